package calls_test

import (
	"context"
	"testing"

	"github.com/leaseline/callroom/core/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialOutFiresAgentLegs(t *testing.T) {
	f := setup()
	ctx := context.Background()

	call := f.insertCall("CA123")
	entry := f.enqueueCall(call)

	require.NoError(t, f.engine.DialOutForQueue(ctx, call.ID(), 1))

	makes := f.voice.CommandsOf("MakeCall")
	require.Len(t, makes, 2)
	assert.Equal(t, "sip:bob@pbx", makes[0].Params["to"])
	assert.Equal(t, "sip:ann@pbx", makes[1].Params["to"])
	assert.Contains(t, makes[0].Params["answer_url"], "/cr/telephony/agentCallForQueue")
	assert.Contains(t, makes[0].Params["answer_url"], "agent=2")

	require.Len(t, entry.FiredCalls(), 2)
}

func TestDialOutSkipsDecliners(t *testing.T) {
	f := setup()
	ctx := context.Background()

	call := f.insertCall("CA123")
	entry := f.enqueueCall(call)
	entry.DeclinedBy_ = []int64{2}

	require.NoError(t, f.engine.DialOutForQueue(ctx, call.ID(), 1))

	makes := f.voice.CommandsOf("MakeCall")
	require.Len(t, makes, 1)
	assert.Equal(t, "sip:ann@pbx", makes[0].Params["to"])
}

func TestDialOutSkipsWhileLegsInFlight(t *testing.T) {
	f := setup()
	ctx := context.Background()

	call := f.insertCall("CA123")
	entry := f.enqueueCall(call)
	entry.FiredCalls_ = models.FiredCalls{2: {"leg-bob"}}

	require.NoError(t, f.engine.DialOutForQueue(ctx, call.ID(), 1))

	assert.Empty(t, f.voice.CommandsOf("MakeCall"))
}

func TestDialOutAbandonsWhenEveryoneDeclined(t *testing.T) {
	f := setup()
	ctx := context.Background()

	call := f.insertCall("CA123")
	entry := f.enqueueCall(call)
	entry.DeclinedBy_ = []int64{1, 2}

	require.NoError(t, f.engine.DialOutForQueue(ctx, call.ID(), 1))

	assert.Empty(t, f.voice.CommandsOf("MakeCall"))
	assert.NotNil(t, entry.DequeuedOn())
	assert.Equal(t, models.QueueActionVoicemail, entry.RequestedAction())
	assert.Equal(t, models.MissedDeclined, call.MissedReason())

	transfers := f.voice.CommandsOf("TransferCall")
	require.Len(t, transfers, 1)
	assert.Contains(t, transfers[0].Params["aleg_url"], "message=callQueueUnavailable")
}

func TestDialOutNoOpWhenDequeued(t *testing.T) {
	f := setup()
	ctx := context.Background()

	call := f.insertCall("CA123")

	// no open queue entry for this call
	require.NoError(t, f.engine.DialOutForQueue(ctx, call.ID(), 1))
	assert.Empty(t, f.voice.CommandsOf("MakeCall"))
}
