package calls_test

import (
	"context"
	"testing"
	"time"

	"github.com/leaseline/callroom/core/calls"
	"github.com/leaseline/callroom/core/calls/markup"
	"github.com/leaseline/callroom/core/models"
	"github.com/nyaruka/gocommon/dates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectDialRingsAvailableAgents(t *testing.T) {
	f := setup()
	ctx := context.Background()

	resp, err := f.engine.DirectDial(ctx, &calls.DirectDialRequest{
		CallID:     "CA123",
		From:       "+13105550123",
		To:         "+12025550100",
		TargetType: models.TargetTeam,
		TargetID:   1,
	})
	require.NoError(t, err)
	require.Len(t, resp.Commands, 1)

	dial, ok := resp.Commands[0].(markup.Dial)
	require.True(t, ok)
	assert.Equal(t, "+12025550100", dial.CallerID)
	assert.Equal(t, 25, dial.Timeout)

	// Bob has fewer booked slots so his endpoint rings first
	require.Len(t, dial.Commands, 2)
	assert.Equal(t, markup.User{Endpoint: "sip:bob@pbx"}, dial.Commands[0])
	assert.Equal(t, markup.User{Endpoint: "sip:ann@pbx"}, dial.Commands[1])

	// the call record exists with the dialed agents recorded
	call, err := f.store.GetCallByExternalID(ctx, "CA123")
	require.NoError(t, err)
	require.NotNil(t, call)
	assert.Equal(t, models.CallStatusRinging, call.Status())
	assert.Equal(t, []models.AgentID{2, 1}, call.DialedAgentIDs())
}

func TestDirectDialIsIdempotent(t *testing.T) {
	f := setup()
	ctx := context.Background()

	req := &calls.DirectDialRequest{CallID: "CA123", From: "+13105550123", To: "+12025550100", TargetType: models.TargetTeam, TargetID: 1}

	_, err := f.engine.DirectDial(ctx, req)
	require.NoError(t, err)
	_, err = f.engine.DirectDial(ctx, req)
	require.NoError(t, err)

	count := 0
	for _, c := range f.store.Calls {
		if c.ExternalID() == "CA123" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestDirectDialTerminalCallHangsUp(t *testing.T) {
	f := setup()
	ctx := context.Background()

	call := f.insertCall("CA123")
	call.Status_ = models.CallStatusCompleted

	resp, err := f.engine.DirectDial(ctx, &calls.DirectDialRequest{CallID: "CA123", TargetType: models.TargetTeam, TargetID: 1})
	require.NoError(t, err)
	require.Len(t, resp.Commands, 1)
	assert.IsType(t, markup.Hangup{}, resp.Commands[0])
}

func TestDirectDialQueuesWhenAllBusy(t *testing.T) {
	f := setup()
	ctx := context.Background()

	f.store.Agents[1].Status_ = models.AgentBusy
	f.store.Agents[2].Status_ = models.AgentBusy

	resp, err := f.engine.DirectDial(ctx, &calls.DirectDialRequest{
		CallID: "CA123", From: "+13105550123", To: "+12025550100", TargetType: models.TargetTeam, TargetID: 1,
	})
	require.NoError(t, err)

	// welcome prompt, digit gather, endless hold music, dequeue redirect
	require.Len(t, resp.Commands, 4)
	assert.Equal(t, markup.Speak{Text: "You are in the queue."}, resp.Commands[0])
	assert.IsType(t, markup.GetDigits{}, resp.Commands[1])
	assert.Equal(t, markup.Play{URL: "https://crm.example.com/static/hold.mp3", Loop: markup.Forever}, resp.Commands[2])
	assert.IsType(t, markup.Redirect{}, resp.Commands[3])

	call, _ := f.store.GetCallByExternalID(ctx, "CA123")
	entry, err := f.store.GetOpenQueueEntry(ctx, call.ID())
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.TeamID(1), entry.TeamID())

	assert.Equal(t, []string{calls.EventCallQueueChanged}, f.notifier.Events())
}

func TestDirectDialVoicemailWhenNobodyEligible(t *testing.T) {
	f := setup()
	ctx := context.Background()

	for _, a := range f.store.Agents {
		a.Online_ = false
	}

	resp, err := f.engine.DirectDial(ctx, &calls.DirectDialRequest{
		CallID: "CA123", From: "+13105550123", To: "+12025550100", TargetType: models.TargetTeam, TargetID: 1,
	})
	require.NoError(t, err)

	require.Len(t, resp.Commands, 2)
	assert.Equal(t, markup.Speak{Text: "Nobody is available."}, resp.Commands[0])
	assert.IsType(t, markup.Record{}, resp.Commands[1])

	call, _ := f.store.GetCallByExternalID(ctx, "CA123")
	assert.Equal(t, models.CallStatusMissed, call.Status())
	assert.Equal(t, models.MissedNoQueue, call.MissedReason())
}

func TestDirectDialSpamGoesToVoicemail(t *testing.T) {
	f := setup()
	ctx := context.Background()

	f.store.Blacklist["+13105550123"] = true

	resp, err := f.engine.DirectDial(ctx, &calls.DirectDialRequest{
		CallID: "CA123", From: "+13105550123", To: "+12025550100", TargetType: models.TargetTeam, TargetID: 1,
	})
	require.NoError(t, err)

	require.Len(t, resp.Commands, 2)
	assert.Equal(t, markup.Speak{Text: "Please leave a message."}, resp.Commands[0])
	assert.IsType(t, markup.Record{}, resp.Commands[1])

	// no agents were dialed and nothing was queued
	call, _ := f.store.GetCallByExternalID(ctx, "CA123")
	assert.Empty(t, call.DialedAgentIDs())
	entry, _ := f.store.GetOpenQueueEntry(ctx, call.ID())
	assert.Nil(t, entry)
}

func TestDirectDialAfterHours(t *testing.T) {
	f := setup()
	ctx := context.Background()

	f.store.Teams[1].OfficeStart_ = 9
	f.store.Teams[1].OfficeEnd_ = 17
	f.store.Teams[1].Timezone_ = "UTC"

	dates.SetNowFunc(dates.NewFixedNow(time.Date(2024, 3, 5, 3, 0, 0, 0, time.UTC)))
	defer dates.SetNowFunc(time.Now)

	resp, err := f.engine.DirectDial(ctx, &calls.DirectDialRequest{
		CallID: "CA123", From: "+13105550123", To: "+12025550100", TargetType: models.TargetTeam, TargetID: 1,
	})
	require.NoError(t, err)

	require.Len(t, resp.Commands, 2)
	assert.Equal(t, markup.Speak{Text: "We are closed."}, resp.Commands[0])
	assert.IsType(t, markup.Record{}, resp.Commands[1])

	call, _ := f.store.GetCallByExternalID(ctx, "CA123")
	assert.Equal(t, models.MissedAfterHours, call.MissedReason())
}

func TestDirectDialProgramRoutesToOwningTeam(t *testing.T) {
	f := setup()
	ctx := context.Background()

	resp, err := f.engine.DirectDial(ctx, &calls.DirectDialRequest{
		CallID: "CA123", From: "+13105550123", To: "+12025550110", TargetType: models.TargetProgram, TargetID: 10,
	})
	require.NoError(t, err)

	require.Len(t, resp.Commands, 1)
	dial, ok := resp.Commands[0].(markup.Dial)
	require.True(t, ok)
	assert.Len(t, dial.Commands, 2)
}

func TestDirectDialSpecificAgent(t *testing.T) {
	f := setup()
	ctx := context.Background()

	resp, err := f.engine.DirectDial(ctx, &calls.DirectDialRequest{
		CallID: "CA123", From: "+13105550123", To: "+12025550100", TargetType: models.TargetUser, TargetID: 2,
	})
	require.NoError(t, err)

	require.Len(t, resp.Commands, 1)
	dial, ok := resp.Commands[0].(markup.Dial)
	require.True(t, ok)
	require.Len(t, dial.Commands, 1)
	assert.Equal(t, markup.User{Endpoint: "sip:bob@pbx"}, dial.Commands[0])
}

func TestDirectDialSpecificAgentUnavailable(t *testing.T) {
	f := setup()
	ctx := context.Background()

	f.store.Agents[2].Status_ = models.AgentNotAvailable

	resp, err := f.engine.DirectDial(ctx, &calls.DirectDialRequest{
		CallID: "CA123", From: "+13105550123", To: "+12025550100", TargetType: models.TargetUser, TargetID: 2,
	})
	require.NoError(t, err)

	// a specific-agent call never queues, it goes straight to voicemail with
	// the prompt of the agent's owning team
	require.Len(t, resp.Commands, 2)
	assert.Equal(t, markup.Speak{Text: "Nobody is available."}, resp.Commands[0])
	assert.IsType(t, markup.Record{}, resp.Commands[1])
}

func TestDirectDialRecordingNotice(t *testing.T) {
	f := setup()
	ctx := context.Background()

	f.store.Teams[1].RecordCalls_ = true
	f.store.Messages[1][models.MsgCallRecordingNotice] = models.VoiceMessage{Type_: models.MsgCallRecordingNotice, Text_: "This call may be recorded."}

	resp, err := f.engine.DirectDial(ctx, &calls.DirectDialRequest{
		CallID: "CA123", From: "+13105550123", To: "+12025550100", TargetType: models.TargetTeam, TargetID: 1,
	})
	require.NoError(t, err)

	require.Len(t, resp.Commands, 2)
	assert.Equal(t, markup.Speak{Text: "This call may be recorded."}, resp.Commands[0])
	assert.IsType(t, markup.Dial{}, resp.Commands[1])
}
