package telephony_test

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leaseline/callroom/core/calls"
	"github.com/leaseline/callroom/core/models"
	"github.com/lib/pq"
	"github.com/leaseline/callroom/runtime"
	"github.com/leaseline/callroom/testsuite"
	"github.com/leaseline/callroom/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/leaseline/callroom/web/call"
)

type fixture struct {
	server *web.Server
	store  *testsuite.FakeStore
	voice  *testsuite.FakeVoice
}

func setup(t *testing.T) *fixture {
	store := testsuite.NewFakeStore()
	voice := testsuite.NewFakeVoice()

	store.Teams[1] = &models.Team{ID_: 1, Name_: "Leasing", QueueEnabled_: true, CallerID_: "+12025550100"}
	store.Agents[2] = &models.Agent{ID_: 2, Name_: "Bob", Status_: models.AgentAvailable, Online_: true, SipEndpoints_: []string{"sip:bob@pbx"}, Role_: models.RoleWorkingAgent}
	store.TeamAgents[1] = []models.AgentID{2}
	store.Messages[1] = models.VoiceMessageSet{
		models.MsgVoicemail:   {Type_: models.MsgVoicemail, Text_: "Please leave a message."},
		models.MsgUnavailable: {Type_: models.MsgUnavailable, Text_: "Nobody is available."},
	}

	engine := calls.NewEngine(store, voice, &testsuite.FakeNotifier{}, &testsuite.FakeTasks{}, &testsuite.FakeLocker{}, calls.Options{
		BaseURL: "http://localhost:8071",
	})

	cfg := runtime.NewDefaultConfig()
	cfg.Port = 8071
	rt := &runtime.Runtime{Config: cfg}

	wg := &sync.WaitGroup{}
	server := web.NewServer(rt, engine, nil, wg)
	server.Start()
	time.Sleep(100 * time.Millisecond)
	t.Cleanup(func() { server.Stop(); wg.Wait() })

	return &fixture{server: server, store: store, voice: voice}
}

func post(t *testing.T, path string, form url.Values) *http.Response {
	resp, err := http.PostForm("http://localhost:8071"+path, form)
	require.NoError(t, err)
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestDirectDial(t *testing.T) {
	f := setup(t)

	resp := post(t, "/cr/telephony/directDial", url.Values{
		"CallUUID":    {"CA100"},
		"From":        {"+13105550123"},
		"To":          {"+12025550100"},
		"target_type": {"team"},
		"target_id":   {"1"},
		"AuthToken":   {"hunter2"},
	})
	body := readBody(t, resp)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "text/xml", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "<Dial")
	assert.Contains(t, body, "sip:bob@pbx")

	// the stored raw payload never contains provider credentials
	var stored *models.Call
	for _, c := range f.store.Calls {
		stored = c
	}
	require.NotNil(t, stored)
	assert.NotContains(t, string(stored.Raw_), "hunter2")
	assert.Contains(t, string(stored.Raw_), "CA100")
}

func TestDirectDialMissingFields(t *testing.T) {
	setup(t)

	resp := post(t, "/cr/telephony/directDial", url.Values{"CallUUID": {"CA100"}})
	readBody(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestDigitsPressedUnknownCall(t *testing.T) {
	setup(t)

	resp := post(t, "/cr/telephony/digitsPressed", url.Values{"CallUUID": {"CA404"}, "Digits": {"1"}})
	readBody(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestPostDial(t *testing.T) {
	f := setup(t)

	call := &models.Call{
		ExternalID_: "CA200", Direction_: models.DirectionIn, Status_: models.CallStatusRinging,
		TargetType_: models.TargetTeam, TargetID_: 1, FromNumber_: "+13105550123", ToNumber_: "+12025550100",
		DialedAgentIDs_: pq.Int64Array{2},
	}
	require.NoError(t, f.store.InsertCall(t.Context(), call))

	resp := post(t, "/cr/telephony/postDial", url.Values{
		"CallUUID":         {"CA200"},
		"DialStatus":       {"completed"},
		"DialBLegTo":       {"sip:bob@pbx"},
		"DialBLegDuration": {"42"},
	})
	readBody(t, resp)

	assert.Equal(t, 200, resp.StatusCode)
	assert.True(t, call.Answered())
	assert.Equal(t, models.AgentID(2), call.AgentID())
}

func TestVoicemailPrompt(t *testing.T) {
	f := setup(t)

	call := &models.Call{
		ExternalID_: "CA300", Direction_: models.DirectionIn, Status_: models.CallStatusRinging,
		TargetType_: models.TargetTeam, TargetID_: 1, FromNumber_: "+13105550123", ToNumber_: "+12025550100",
	}
	require.NoError(t, f.store.InsertCall(t.Context(), call))

	resp := post(t, "/cr/telephony/voicemail", url.Values{
		"call":    {string(call.UUID())},
		"message": {"voicemail"},
	})
	body := readBody(t, resp)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, body, "Please leave a message.")
	assert.Contains(t, body, "<Record")
}

func TestTransferEndpoint(t *testing.T) {
	f := setup(t)

	call := &models.Call{
		ExternalID_: "CA400", Direction_: models.DirectionIn, Status_: models.CallStatusInProgress,
		TargetType_: models.TargetTeam, TargetID_: 1, FromNumber_: "+13105550123", ToNumber_: "+12025550100",
		Answered_: true, AgentID_: 2,
	}
	require.NoError(t, f.store.InsertCall(t.Context(), call))

	resp, err := http.Post("http://localhost:8071/cr/call/transfer", "application/json",
		strings.NewReader(`{"call_id": "CA400", "agent_id": 2, "target_type": "external", "number": "+12025550199"}`))
	require.NoError(t, err)
	readBody(t, resp)

	assert.Equal(t, 200, resp.StatusCode)
	require.Len(t, f.voice.CommandsOf("TransferCall"), 1)
}

func TestIndex(t *testing.T) {
	setup(t)

	resp, err := http.Get("http://localhost:8071/")
	require.NoError(t, err)
	body := readBody(t, resp)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, body, `"component": "callroom"`)
}
