package calls_test

import (
	"context"
	"testing"
	"time"

	"github.com/leaseline/callroom/core/calls/markup"
	"github.com/leaseline/callroom/core/models"
	"github.com/nyaruka/gocommon/dates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyForDequeueSchedulesDialOut(t *testing.T) {
	f := setup()
	ctx := context.Background()

	call := f.insertCall("CA123")
	f.enqueueCall(call)

	resp, err := f.engine.ReadyForDequeue(ctx, string(call.UUID()))
	require.NoError(t, err)

	// the caller gets another hold loop while agents are dialed in the
	// background
	require.NotEmpty(t, resp.Commands)
	assert.IsType(t, markup.GetDigits{}, resp.Commands[0])

	require.Len(t, f.tasks.DialOuts, 1)
	assert.Equal(t, call.ID(), f.tasks.DialOuts[0].CallID)
	assert.Equal(t, models.TeamID(1), f.tasks.DialOuts[0].TeamID)
}

func TestReadyForDequeueNoEntry(t *testing.T) {
	f := setup()
	ctx := context.Background()

	call := f.insertCall("CA123")

	resp, err := f.engine.ReadyForDequeue(ctx, string(call.UUID()))
	require.NoError(t, err)

	// dequeued by another path, nothing renders on this leg
	assert.Empty(t, resp.Commands)
	assert.Empty(t, f.tasks.DialOuts)
}

func TestReadyForDequeueAfterClosing(t *testing.T) {
	f := setup()
	ctx := context.Background()

	f.store.Teams[1].OfficeStart_ = 9
	f.store.Teams[1].OfficeEnd_ = 17
	f.store.Teams[1].Timezone_ = "UTC"

	call := f.insertCall("CA123")
	entry := f.enqueueCall(call)

	dates.SetNowFunc(dates.NewFixedNow(time.Date(2024, 3, 5, 18, 0, 0, 0, time.UTC)))
	defer dates.SetNowFunc(time.Now)

	resp, err := f.engine.ReadyForDequeue(ctx, string(call.UUID()))
	require.NoError(t, err)

	// the office closed while the caller waited
	require.Len(t, resp.Commands, 2)
	assert.Equal(t, markup.Speak{Text: "We are closing for today."}, resp.Commands[0])
	assert.IsType(t, markup.Record{}, resp.Commands[1])

	assert.NotNil(t, entry.DequeuedOn())
	assert.Equal(t, models.MissedEndOfDay, call.MissedReason())
	assert.Empty(t, f.tasks.DialOuts)
}

func TestReadyForDequeueTerminalCallHangsUp(t *testing.T) {
	f := setup()
	ctx := context.Background()

	call := f.insertCall("CA123")
	call.Status_ = models.CallStatusCompleted

	resp, err := f.engine.ReadyForDequeue(ctx, string(call.UUID()))
	require.NoError(t, err)
	require.Len(t, resp.Commands, 1)
	assert.IsType(t, markup.Hangup{}, resp.Commands[0])
}
