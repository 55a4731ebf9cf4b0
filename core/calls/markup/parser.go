package markup

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
)

// Parse reads a rendered document back into a Response. It is the inverse of
// Render: the command list comes back in document order with the same types
// the builder produces.
func Parse(data []byte) (*Response, error) {
	d := xml.NewDecoder(bytes.NewReader(data))

	for {
		token, err := d.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("no Response element found")
		}
		if err != nil {
			return nil, fmt.Errorf("error parsing markup: %w", err)
		}

		if se, ok := token.(xml.StartElement); ok {
			if se.Name.Local != "Response" {
				return nil, fmt.Errorf("unexpected root element: %s", se.Name.Local)
			}
			return parseResponse(d)
		}
	}
}

func parseResponse(d *xml.Decoder) (*Response, error) {
	r := &Response{}

	for {
		token, err := d.Token()
		if err != nil {
			return nil, fmt.Errorf("error parsing markup: %w", err)
		}

		switch t := token.(type) {
		case xml.Comment:
			r.Message = string(t)
		case xml.StartElement:
			cmd, err := parseCommand(d, &t)
			if err != nil {
				return nil, err
			}
			r.Commands = append(r.Commands, cmd)
		case xml.EndElement:
			return r, nil
		}
	}
}

func parseCommand(d *xml.Decoder, start *xml.StartElement) (any, error) {
	switch start.Name.Local {
	case "Speak":
		s := Speak{Language: attr(start, "language")}
		text, err := parseText(d)
		if err != nil {
			return nil, err
		}
		s.Text = text
		return s, nil

	case "Play":
		p := Play{}
		if v := attr(start, "loop"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid loop attribute: %s", v)
			}
			if n == 0 {
				p.Loop = Forever
			} else {
				p.Loop = Loop(n)
			}
		}
		url, err := parseText(d)
		if err != nil {
			return nil, err
		}
		p.URL = url
		return p, nil

	case "GetDigits":
		g := GetDigits{
			Action:      attr(start, "action"),
			NumDigits:   intAttr(start, "numDigits"),
			Timeout:     intAttr(start, "timeout"),
			Retries:     intAttr(start, "retries"),
			ValidDigits: attr(start, "validDigits"),
		}
		children, err := parseChildren(d)
		if err != nil {
			return nil, err
		}
		g.Commands = children
		return g, nil

	case "Record":
		r := Record{
			Action:    attr(start, "action"),
			MaxLength: intAttr(start, "maxLength"),
			PlayBeep:  attr(start, "playBeep") == "true",
		}
		return r, d.Skip()

	case "Dial":
		dial := Dial{
			Action:      attr(start, "action"),
			CallbackURL: attr(start, "callbackUrl"),
			CallerID:    attr(start, "callerId"),
			Timeout:     intAttr(start, "timeout"),
		}
		children, err := parseChildren(d)
		if err != nil {
			return nil, err
		}
		dial.Commands = children
		return dial, nil

	case "User":
		endpoint, err := parseText(d)
		if err != nil {
			return nil, err
		}
		return User{Endpoint: endpoint}, nil

	case "Number":
		number, err := parseText(d)
		if err != nil {
			return nil, err
		}
		return Number{Number: number}, nil

	case "Conference":
		c := Conference{
			CallbackURL: attr(start, "callbackUrl"),
			EndOnExit:   attr(start, "endConferenceOnExit") == "true",
			Record:      attr(start, "record") == "true",
		}
		room, err := parseText(d)
		if err != nil {
			return nil, err
		}
		c.Room = room
		return c, nil

	case "Redirect":
		url, err := parseText(d)
		if err != nil {
			return nil, err
		}
		return Redirect{URL: url}, nil

	case "Wait":
		w := Wait{Length: intAttr(start, "length")}
		return w, d.Skip()

	case "Hangup":
		return Hangup{}, d.Skip()

	default:
		return nil, fmt.Errorf("unknown markup element: %s", start.Name.Local)
	}
}

// parseChildren reads nested commands until the parent's end element
func parseChildren(d *xml.Decoder) ([]any, error) {
	var children []any
	for {
		token, err := d.Token()
		if err != nil {
			return nil, fmt.Errorf("error parsing markup: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			cmd, err := parseCommand(d, &t)
			if err != nil {
				return nil, err
			}
			children = append(children, cmd)
		case xml.EndElement:
			return children, nil
		}
	}
}

// parseText reads character data until the element's end tag
func parseText(d *xml.Decoder) (string, error) {
	var buf bytes.Buffer
	for {
		token, err := d.Token()
		if err != nil {
			return "", fmt.Errorf("error parsing markup: %w", err)
		}

		switch t := token.(type) {
		case xml.CharData:
			buf.Write(t)
		case xml.EndElement:
			return buf.String(), nil
		}
	}
}

func attr(se *xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func intAttr(se *xml.StartElement, name string) int {
	v, _ := strconv.Atoi(attr(se, name))
	return v
}
