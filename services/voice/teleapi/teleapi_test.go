package teleapi_test

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/leaseline/callroom/core/calls"
	"github.com/leaseline/callroom/services/voice/teleapi"
	"github.com/nyaruka/gocommon/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeCall(t *testing.T) {
	defer httpx.SetRequestor(httpx.DefaultRequestor)
	httpx.SetRequestor(httpx.NewMockRequestor(map[string][]*httpx.MockResponse{
		"https://api.example.com/v1/Account/AUTH1/Call/": {
			httpx.NewMockResponse(201, nil, []byte(`{"request_uuid": "CA-new-1", "message": "call fired"}`)),
		},
	}))

	c := teleapi.NewClient(http.DefaultClient, "https://api.example.com/v1", "AUTH1", "token123")

	callID, err := c.MakeCall(context.Background(), "+12025550100", "sip:ann@pbx", "https://crm.example.com/answer", "https://crm.example.com/hangup")
	require.NoError(t, err)
	assert.Equal(t, "CA-new-1", callID)
}

func TestHangupCallNotFound(t *testing.T) {
	defer httpx.SetRequestor(httpx.DefaultRequestor)
	httpx.SetRequestor(httpx.NewMockRequestor(map[string][]*httpx.MockResponse{
		"https://api.example.com/v1/Account/AUTH1/Call/CA-gone/": {
			httpx.NewMockResponse(404, nil, []byte(`{"error": "not found"}`)),
		},
	}))

	c := teleapi.NewClient(http.DefaultClient, "https://api.example.com/v1", "AUTH1", "token123")

	err := c.HangupCall(context.Background(), "CA-gone")
	require.Error(t, err)

	// a call that already resolved at the provider is not a failure for
	// teardown paths
	assert.True(t, calls.IsProviderNotFound(err))
}

func TestTransferCallServerError(t *testing.T) {
	defer httpx.SetRequestor(httpx.DefaultRequestor)
	httpx.SetRequestor(httpx.NewMockRequestor(map[string][]*httpx.MockResponse{
		"https://api.example.com/v1/Account/AUTH1/Call/CA1/": {
			httpx.NewMockResponse(500, nil, []byte(`{"error": "boom"}`)),
		},
	}))

	c := teleapi.NewClient(http.DefaultClient, "https://api.example.com/v1", "AUTH1", "token123")

	err := c.TransferCall(context.Background(), &calls.TransferParams{CallID: "CA1", Legs: "aleg", ALegURL: "https://crm.example.com/vm"})
	require.Error(t, err)
	assert.False(t, calls.IsProviderNotFound(err))
}

func TestGetLiveCalls(t *testing.T) {
	defer httpx.SetRequestor(httpx.DefaultRequestor)
	httpx.SetRequestor(httpx.NewMockRequestor(map[string][]*httpx.MockResponse{
		"https://api.example.com/v1/Account/AUTH1/Call/?status=live": {
			httpx.NewMockResponse(200, nil, []byte(`{"calls": [{"call_uuid": "CA1", "to": "sip:ann@pbx"}, {"call_uuid": "CA2", "to": "+13105550123"}]}`)),
		},
	}))

	c := teleapi.NewClient(http.DefaultClient, "https://api.example.com/v1", "AUTH1", "token123")

	live, err := c.GetLiveCalls(context.Background())
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, &calls.LiveCall{ID: "CA1", To: "sip:ann@pbx"}, live[0])
}

func TestGetLiveConference(t *testing.T) {
	defer httpx.SetRequestor(httpx.DefaultRequestor)
	httpx.SetRequestor(httpx.NewMockRequestor(map[string][]*httpx.MockResponse{
		"https://api.example.com/v1/Account/AUTH1/Conference/room_abc/": {
			httpx.NewMockResponse(200, nil, []byte(`{"conference_name": "room_abc", "conference_member_count": 1, "members": [{"member_id": "10"}]}`)),
		},
	}))

	c := teleapi.NewClient(http.DefaultClient, "https://api.example.com/v1", "AUTH1", "token123")

	conf, err := c.GetLiveConference(context.Background(), "room_abc")
	require.NoError(t, err)
	assert.Equal(t, 1, conf.MemberCount)
	assert.Equal(t, []string{"10"}, conf.MemberIDs)
}

func TestValidateRequestSignature(t *testing.T) {
	c := teleapi.NewClient(http.DefaultClient, "https://api.example.com/v1", "AUTH1", "token123")

	form := url.Values{"CallUUID": []string{"CA1"}, "From": []string{"+13105550123"}}
	req, _ := http.NewRequest("POST", "https://crm.example.com/cr/telephony/directDial", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Host = "crm.example.com"

	// no signature header
	assert.Error(t, c.ValidateRequestSignature(req))

	// garbage signature
	req.Header.Set("X-Provider-Signature", "bm90IHJlYWw=")
	assert.Error(t, c.ValidateRequestSignature(req))
}
