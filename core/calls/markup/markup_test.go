package markup_test

import (
	"testing"

	"github.com/leaseline/callroom/core/calls/markup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	tcs := []struct {
		response *markup.Response
		expected string
	}{
		{
			markup.HangupResponse(""),
			`<?xml version="1.0" encoding="UTF-8"?>
<Response>
  <Hangup></Hangup>
</Response>`,
		},
		{
			(&markup.Response{}).Add(
				markup.Speak{Text: "Thank you for calling Parkside Lofts."},
				markup.GetDigits{
					Action:    "http://cr.test/digits?call=12",
					NumDigits: 1,
					Timeout:   markup.DigitsTimeout,
					Commands: []any{
						markup.Speak{Text: "Press 1 to request a callback."},
						markup.Play{URL: "http://cr.test/hold.mp3"},
					},
				},
				markup.Play{URL: "http://cr.test/hold.mp3", Loop: markup.Forever},
			),
			`<?xml version="1.0" encoding="UTF-8"?>
<Response>
  <Speak>Thank you for calling Parkside Lofts.</Speak>
  <GetDigits action="http://cr.test/digits?call=12" numDigits="1" timeout="30">
    <Speak>Press 1 to request a callback.</Speak>
    <Play>http://cr.test/hold.mp3</Play>
  </GetDigits>
  <Play loop="0">http://cr.test/hold.mp3</Play>
</Response>`,
		},
		{
			(&markup.Response{}).Add(
				markup.Dial{
					Action:      "http://cr.test/postDial?call=12",
					CallbackURL: "http://cr.test/callbackDial?call=12",
					CallerID:    "+15550001111",
					Timeout:     25,
					Commands: []any{
						markup.User{Endpoint: "sip:anna@leaseline.sip.test"},
						markup.Number{Number: "+15552223333"},
					},
				},
			),
			`<?xml version="1.0" encoding="UTF-8"?>
<Response>
  <Dial action="http://cr.test/postDial?call=12" callbackUrl="http://cr.test/callbackDial?call=12" callerId="+15550001111" timeout="25">
    <User>sip:anna@leaseline.sip.test</User>
    <Number>+15552223333</Number>
  </Dial>
</Response>`,
		},
		{
			(&markup.Response{}).Add(
				markup.Speak{Text: "This call may be recorded."},
				markup.Conference{Room: "room_ab12", CallbackURL: "http://cr.test/conf?call=12", EndOnExit: true, Record: true},
			),
			`<?xml version="1.0" encoding="UTF-8"?>
<Response>
  <Speak>This call may be recorded.</Speak>
  <Conference callbackUrl="http://cr.test/conf?call=12" endConferenceOnExit="true" record="true">room_ab12</Conference>
</Response>`,
		},
		{
			(&markup.Response{}).Add(
				markup.Speak{Text: "Please leave a message after the tone."},
				markup.Record{Action: "http://cr.test/recording?call=12", MaxLength: markup.RecordMaxLen, PlayBeep: true},
			),
			`<?xml version="1.0" encoding="UTF-8"?>
<Response>
  <Speak>Please leave a message after the tone.</Speak>
  <Record action="http://cr.test/recording?call=12" maxLength="600" playBeep="true"></Record>
</Response>`,
		},
	}

	for _, tc := range tcs {
		body, err := tc.response.Render()
		require.NoError(t, err)
		assert.Equal(t, tc.expected, string(body))
	}
}

func TestRoundTrip(t *testing.T) {
	r := (&markup.Response{}).Add(
		markup.Speak{Text: "Welcome."},
		markup.GetDigits{
			Action:    "http://cr.test/digits?call=44",
			NumDigits: 1,
			Timeout:   30,
			Retries:   1,
			Commands: []any{
				markup.Speak{Text: "Press 2 for voicemail."},
				markup.Play{URL: "http://cr.test/hold.mp3"},
			},
		},
		markup.Play{URL: "http://cr.test/hold.mp3", Loop: markup.Forever},
		markup.Redirect{URL: "http://cr.test/dequeue?call=44"},
		markup.Wait{Length: 10},
		markup.Hangup{},
	)

	body, err := r.Render()
	require.NoError(t, err)

	parsed, err := markup.Parse(body)
	require.NoError(t, err)

	// same commands in the same order
	require.Len(t, parsed.Commands, 6)
	assert.Equal(t, r.Commands, parsed.Commands)

	// rendering what we parsed gives the same bytes back
	body2, err := parsed.Render()
	require.NoError(t, err)
	assert.Equal(t, string(body), string(body2))
}

func TestParseErrors(t *testing.T) {
	_, err := markup.Parse([]byte(`<Reply><Speak>hi</Speak></Reply>`))
	assert.EqualError(t, err, "unexpected root element: Reply")

	_, err = markup.Parse([]byte(`<Response><Shout>hi</Shout></Response>`))
	assert.EqualError(t, err, "unknown markup element: Shout")

	_, err = markup.Parse([]byte(`not xml`))
	assert.Error(t, err)
}
