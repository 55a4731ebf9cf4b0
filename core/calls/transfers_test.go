package calls_test

import (
	"context"
	"testing"

	"github.com/leaseline/callroom/core/calls"
	"github.com/leaseline/callroom/core/calls/markup"
	"github.com/leaseline/callroom/core/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitiateTransferToExternalNumber(t *testing.T) {
	f := setup()
	ctx := context.Background()

	call := f.insertCall("CA123")
	call.Status_ = models.CallStatusInProgress
	call.AgentID_ = 2
	f.store.Agents[2].Status_ = models.AgentBusy

	err := f.engine.InitiateTransfer(ctx, &calls.TransferRequest{
		CallID: "CA123", AgentID: 2, TargetType: models.TargetExternal, Number: "+12025550177",
	})
	require.NoError(t, err)

	assert.Equal(t, "+12025550177", call.TransferredTo())

	// a linked outbound record exists for the external leg
	var out *models.Call
	for _, c := range f.store.Calls {
		if c.TransferredFromID() == call.ID() {
			out = c
		}
	}
	require.NotNil(t, out)
	assert.Equal(t, models.DirectionOut, out.Direction())
	assert.Equal(t, models.TargetExternal, out.TargetType())
	assert.Equal(t, "+12025550177", out.ToNumber())

	transfers := f.voice.CommandsOf("TransferCall")
	require.Len(t, transfers, 1)
	assert.Contains(t, transfers[0].Params["aleg_url"], "/cr/telephony/transferDial")

	// the initiating agent is free again
	assert.Equal(t, models.AgentAvailable, f.store.Agents[2].Status())
}

func TestInitiateTransferToTeam(t *testing.T) {
	f := setup()
	ctx := context.Background()

	call := f.insertCall("CA123")
	call.Status_ = models.CallStatusInProgress

	err := f.engine.InitiateTransfer(ctx, &calls.TransferRequest{
		CallID: "CA123", AgentID: 2, TargetType: models.TargetTeam, TargetID: 1,
	})
	require.NoError(t, err)

	var handoff *models.Call
	for _, c := range f.store.Calls {
		if c.TransferredFromID() == call.ID() {
			handoff = c
		}
	}
	require.NotNil(t, handoff)
	assert.Equal(t, models.TargetTeam, handoff.TargetType())
	assert.Equal(t, 1, handoff.TargetID())

	transfers := f.voice.CommandsOf("TransferCall")
	require.Len(t, transfers, 1)
	assert.Contains(t, transfers[0].Params["aleg_url"], "/cr/telephony/transferTarget")
}

func TestInitiateTransferTerminalCall(t *testing.T) {
	f := setup()
	ctx := context.Background()

	call := f.insertCall("CA123")
	call.Status_ = models.CallStatusCompleted

	err := f.engine.InitiateTransfer(ctx, &calls.TransferRequest{
		CallID: "CA123", AgentID: 2, TargetType: models.TargetExternal, Number: "+12025550177",
	})
	require.Error(t, err)
	assert.Empty(t, f.voice.CommandsOf("TransferCall"))
}

func TestTransferDialMarkup(t *testing.T) {
	f := setup()
	ctx := context.Background()

	call := f.insertCall("CA123")

	resp, err := f.engine.TransferDial(ctx, string(call.UUID()), "+12025550177")
	require.NoError(t, err)

	require.Len(t, resp.Commands, 1)
	dial, ok := resp.Commands[0].(markup.Dial)
	require.True(t, ok)
	require.Len(t, dial.Commands, 1)
	assert.Equal(t, markup.Number{Number: "+12025550177"}, dial.Commands[0])
	assert.Contains(t, dial.Action, "/cr/telephony/postDial")
}
