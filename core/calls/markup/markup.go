// Package markup renders the call-control instruction documents returned to
// the voice-signaling provider. Building is pure, no I/O, and the order of
// commands in a Response is exactly the order callers append them.
package markup

import (
	"encoding/xml"
	"strconv"
)

// default attribute values applied by Render when the caller leaves them zero
const (
	DigitsTimeout = 30  // seconds the provider waits for digit input
	RecordMaxLen  = 600 // seconds of recording before the provider cuts off
)

// Loop is a play repetition count. The zero value renders no attribute (play
// once) and Forever renders loop="0", which the provider treats as repeat
// until hangup.
type Loop int

// Forever repeats the audio until the call ends
const Forever = Loop(-1)

// MarshalXMLAttr renders the loop attribute per the provider's convention
func (l Loop) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	switch {
	case l == Forever:
		return xml.Attr{Name: name, Value: "0"}, nil
	case l > 0:
		return xml.Attr{Name: name, Value: strconv.Itoa(int(l))}, nil
	}
	return xml.Attr{}, nil
}

type Speak struct {
	XMLName  string `xml:"Speak"`
	Text     string `xml:",chardata"`
	Language string `xml:"language,attr,omitempty"`
}

type Play struct {
	XMLName string `xml:"Play"`
	URL     string `xml:",chardata"`
	Loop    Loop   `xml:"loop,attr,omitempty"`
}

type GetDigits struct {
	XMLName     string `xml:"GetDigits"`
	Action      string `xml:"action,attr,omitempty"`
	NumDigits   int    `xml:"numDigits,attr,omitempty"`
	Timeout     int    `xml:"timeout,attr,omitempty"`
	Retries     int    `xml:"retries,attr,omitempty"`
	ValidDigits string `xml:"validDigits,attr,omitempty"`
	Commands    []any
}

type Record struct {
	XMLName   string `xml:"Record"`
	Action    string `xml:"action,attr,omitempty"`
	MaxLength int    `xml:"maxLength,attr,omitempty"`
	PlayBeep  bool   `xml:"playBeep,attr,omitempty"`
}

// User is a SIP endpoint target nested inside a Dial
type User struct {
	XMLName  string `xml:"User"`
	Endpoint string `xml:",chardata"`
}

// Number is an external phone number target nested inside a Dial
type Number struct {
	XMLName string `xml:"Number"`
	Number  string `xml:",chardata"`
}

type Dial struct {
	XMLName     string `xml:"Dial"`
	Action      string `xml:"action,attr,omitempty"`
	CallbackURL string `xml:"callbackUrl,attr,omitempty"`
	CallerID    string `xml:"callerId,attr,omitempty"`
	Timeout     int    `xml:"timeout,attr,omitempty"`
	Commands    []any
}

type Conference struct {
	XMLName     string `xml:"Conference"`
	Room        string `xml:",chardata"`
	CallbackURL string `xml:"callbackUrl,attr,omitempty"`
	EndOnExit   bool   `xml:"endConferenceOnExit,attr,omitempty"`
	Record      bool   `xml:"record,attr,omitempty"`
}

type Redirect struct {
	XMLName string `xml:"Redirect"`
	URL     string `xml:",chardata"`
}

type Wait struct {
	XMLName string `xml:"Wait"`
	Length  int    `xml:"length,attr,omitempty"`
}

type Hangup struct {
	XMLName string `xml:"Hangup"`
}

// Response is the document root. Message is rendered as a comment so internal
// diagnostics can ride along without the provider acting on them.
type Response struct {
	XMLName  string `xml:"Response"`
	Message  string `xml:",comment"`
	Commands []any
}

// Add appends commands preserving order
func (r *Response) Add(commands ...any) *Response {
	r.Commands = append(r.Commands, commands...)
	return r
}

// Render marshals the response with the XML header prepended
func (r *Response) Render() ([]byte, error) {
	body, err := xml.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// HangupResponse is a valid document that just ends the call, used when a
// handler has nothing better to tell the provider.
func HangupResponse(msg string) *Response {
	r := &Response{Message: msg}
	r.Add(Hangup{})
	return r
}
