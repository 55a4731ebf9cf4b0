// Package teleapi is the HTTP client for the signaling provider's REST API.
// It implements calls.VoiceClient: outbound commands against live calls and
// conferences, plus webhook signature validation.
package teleapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"github.com/leaseline/callroom/core/calls"
	"github.com/nyaruka/gocommon/httpx"
)

// IgnoreSignatures controls whether we ignore signatures (public for testing overriding)
var IgnoreSignatures = false

const signatureHeader = "X-Provider-Signature"

// Client issues commands against the provider account's REST API
type Client struct {
	httpClient *http.Client
	baseURL    string
	authID     string
	authToken  string
}

// NewClient creates a new provider API client for the passed in account
func NewClient(httpClient *http.Client, baseURL, authID, authToken string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Second * 30}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		authID:     authID,
		authToken:  authToken,
	}
}

func (c *Client) accountURL(path string) string {
	return fmt.Sprintf("%s/Account/%s%s", c.baseURL, c.authID, path)
}

// request performs one API call, mapping 404s to not-found command errors
func (c *Client) request(ctx context.Context, command, method, requestURL string, form url.Values) ([]byte, error) {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.authID, c.authToken)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")

	trace, err := httpx.DoTrace(c.httpClient, req, nil, nil, -1)
	if err != nil {
		return nil, &calls.ProviderCommandError{Command: command, Err: err}
	}

	status := trace.Response.StatusCode
	if status == http.StatusNotFound {
		return nil, &calls.ProviderCommandError{Command: command, StatusCode: status, NotFound: true, Err: fmt.Errorf("not found")}
	}
	if status >= 400 {
		return nil, &calls.ProviderCommandError{Command: command, StatusCode: status, Err: fmt.Errorf("received non 2xx status: %d", status)}
	}
	return trace.ResponseBody, nil
}

// TransferCall redirects the legs of a live call onto new markup URLs
func (c *Client) TransferCall(ctx context.Context, params *calls.TransferParams) error {
	form := url.Values{"legs": []string{params.Legs}}
	if params.ALegURL != "" {
		form.Set("aleg_url", params.ALegURL)
	}
	if params.BLegURL != "" {
		form.Set("bleg_url", params.BLegURL)
	}

	_, err := c.request(ctx, "transfer", http.MethodPost, c.accountURL(fmt.Sprintf("/Call/%s/", params.CallID)), form)
	return err
}

// HangupCall terminates a live call
func (c *Client) HangupCall(ctx context.Context, callID string) error {
	_, err := c.request(ctx, "hangup", http.MethodDelete, c.accountURL(fmt.Sprintf("/Call/%s/", callID)), nil)
	return err
}

// MakeCall originates an outbound call and returns its provider id
func (c *Client) MakeCall(ctx context.Context, from, to, answerURL, hangupURL string) (string, error) {
	form := url.Values{
		"from":       []string{from},
		"to":         []string{to},
		"answer_url": []string{answerURL},
		"hangup_url": []string{hangupURL},
	}

	body, err := c.request(ctx, "make call", http.MethodPost, c.accountURL("/Call/"), form)
	if err != nil {
		return "", err
	}

	callID, err := jsonparser.GetString(body, "request_uuid")
	if err != nil {
		return "", &calls.ProviderCommandError{Command: "make call", Err: fmt.Errorf("response missing request_uuid: %w", err)}
	}
	return callID, nil
}

// GetLiveCalls fetches all currently connected calls on the account
func (c *Client) GetLiveCalls(ctx context.Context) ([]*calls.LiveCall, error) {
	body, err := c.request(ctx, "get live calls", http.MethodGet, c.accountURL("/Call/?status=live"), nil)
	if err != nil {
		return nil, err
	}

	live := make([]*calls.LiveCall, 0, 8)
	_, err = jsonparser.ArrayEach(body, func(value []byte, dataType jsonparser.ValueType, offset int, _ error) {
		id, _ := jsonparser.GetString(value, "call_uuid")
		to, _ := jsonparser.GetString(value, "to")
		if id != "" {
			live = append(live, &calls.LiveCall{ID: id, To: to})
		}
	}, "calls")
	if err != nil {
		return nil, &calls.ProviderCommandError{Command: "get live calls", Err: fmt.Errorf("error parsing live calls: %w", err)}
	}
	return live, nil
}

// GetLiveConference fetches the live state of a conference room
func (c *Client) GetLiveConference(ctx context.Context, conferenceID string) (*calls.LiveConference, error) {
	body, err := c.request(ctx, "get conference", http.MethodGet, c.accountURL(fmt.Sprintf("/Conference/%s/", url.PathEscape(conferenceID))), nil)
	if err != nil {
		return nil, err
	}

	conf := &calls.LiveConference{ID: conferenceID}
	count, err := jsonparser.GetInt(body, "conference_member_count")
	if err != nil {
		return nil, &calls.ProviderCommandError{Command: "get conference", Err: fmt.Errorf("response missing member count: %w", err)}
	}
	conf.MemberCount = int(count)

	jsonparser.ArrayEach(body, func(value []byte, dataType jsonparser.ValueType, offset int, _ error) {
		memberID, _ := jsonparser.GetString(value, "member_id")
		if memberID != "" {
			conf.MemberIDs = append(conf.MemberIDs, memberID)
		}
	}, "members")

	return conf, nil
}

// HangupConferenceMember kicks a member out of a conference room
func (c *Client) HangupConferenceMember(ctx context.Context, conferenceID, memberID string) error {
	path := fmt.Sprintf("/Conference/%s/Member/%s/", url.PathEscape(conferenceID), url.PathEscape(memberID))
	_, err := c.request(ctx, "hangup member", http.MethodDelete, c.accountURL(path), nil)
	return err
}

// DeleteRecording removes a stored recording from the provider
func (c *Client) DeleteRecording(ctx context.Context, recordingID string) error {
	_, err := c.request(ctx, "delete recording", http.MethodDelete, c.accountURL(fmt.Sprintf("/Recording/%s/", recordingID)), nil)
	return err
}

// ValidateRequestSignature validates the signature on the passed in webhook
// request, returning an error if it is invalid
func (c *Client) ValidateRequestSignature(r *http.Request) error {
	// shortcut for testing
	if IgnoreSignatures {
		return nil
	}

	actual := r.Header.Get(signatureHeader)
	if actual == "" {
		return fmt.Errorf("missing request signature header")
	}

	r.ParseForm()

	path := r.URL.RequestURI()
	proxyPath := r.Header.Get("X-Forwarded-Path")
	if proxyPath != "" {
		path = proxyPath
	}

	url := fmt.Sprintf("https://%s%s", r.Host, path)
	expected := calculateSignature(url, r.PostForm, c.authToken)

	// compare signatures in way that isn't sensitive to a timing attack
	if !hmac.Equal(expected, []byte(actual)) {
		return fmt.Errorf("invalid request signature: %s", actual)
	}

	return nil
}

// the signature is the base64 HMAC-SHA1 of the full URL followed by the
// sorted post parameters, keyed with the account's auth token
func calculateSignature(url string, form url.Values, authToken string) []byte {
	var buffer bytes.Buffer
	buffer.WriteString(url)

	keys := make(sort.StringSlice, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	keys.Sort()

	for _, k := range keys {
		buffer.WriteString(k)
		for _, v := range form[k] {
			buffer.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write(buffer.Bytes())
	hash := mac.Sum(nil)

	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(hash)))
	base64.StdEncoding.Encode(encoded, hash)

	return encoded
}
