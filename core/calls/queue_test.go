package calls_test

import (
	"context"
	"testing"
	"time"

	"github.com/leaseline/callroom/core/calls"
	"github.com/leaseline/callroom/core/models"
	"github.com/nyaruka/gocommon/dates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldQueue(t *testing.T) {
	queueTeam := &models.Team{ID_: 1, QueueEnabled_: true}
	noQueueTeam := &models.Team{ID_: 2, QueueEnabled_: false}

	tcs := []struct {
		team       *models.Team
		av         *calls.Availability
		targetType models.TargetType
		expected   bool
	}{
		// eligible agents but nobody can ring right now
		{queueTeam, &calls.Availability{Eligible: 2}, models.TargetTeam, true},
		// someone can ring, dial instead of queue
		{queueTeam, &calls.Availability{Eligible: 2, Ring: []*models.Agent{{ID_: 1}}}, models.TargetTeam, false},
		// nobody eligible at all, voicemail instead of queue
		{queueTeam, &calls.Availability{}, models.TargetTeam, false},
		// queueing disabled for the team
		{noQueueTeam, &calls.Availability{Eligible: 2}, models.TargetTeam, false},
		// calls aimed at one agent never queue
		{queueTeam, &calls.Availability{Eligible: 2}, models.TargetTeamMember, false},
		{queueTeam, &calls.Availability{Eligible: 2}, models.TargetUser, false},
	}

	for i, tc := range tcs {
		assert.Equal(t, tc.expected, calls.ShouldQueue(tc.team, tc.av, tc.targetType), "%d: mismatch", i)
	}
}

func TestEnqueueIsIdempotent(t *testing.T) {
	f := setup()
	ctx := context.Background()

	call := f.insertCall("CA123")

	first, err := f.engine.Enqueue(ctx, call, 1)
	require.NoError(t, err)
	second, err := f.engine.Enqueue(ctx, call, 1)
	require.NoError(t, err)

	assert.Equal(t, first.ID(), second.ID())
	assert.Len(t, f.store.QueueEntries, 1)
}

func TestResolveUnansweredAgent(t *testing.T) {
	id, err := calls.ResolveUnansweredAgent(nil)
	require.NoError(t, err)
	assert.Equal(t, models.NilAgentID, id)

	id, err = calls.ResolveUnansweredAgent([]models.AgentID{7})
	require.NoError(t, err)
	assert.Equal(t, models.AgentID(7), id)

	// more than one receiver is ambiguous, never guessed
	id, err = calls.ResolveUnansweredAgent([]models.AgentID{7, 8})
	require.Error(t, err)
	assert.Equal(t, models.NilAgentID, id)
}

func TestEndOfDaySweep(t *testing.T) {
	f := setup()
	ctx := context.Background()

	call1 := f.insertCall("CA1")
	call2 := f.insertCall("CA2")
	entry1 := f.enqueueCall(call1)
	entry2 := f.enqueueCall(call2)

	dates.SetNowFunc(dates.NewFixedNow(time.Date(2024, 3, 5, 17, 0, 0, 0, time.UTC)))
	defer dates.SetNowFunc(time.Now)

	require.NoError(t, f.engine.EndOfDaySweep(ctx, 1))

	assert.NotNil(t, entry1.DequeuedOn())
	assert.NotNil(t, entry2.DequeuedOn())
	assert.Equal(t, models.QueueActionVoicemail, entry1.RequestedAction())
	assert.Equal(t, models.MissedEndOfDay, call1.MissedReason())
	assert.Equal(t, models.MissedEndOfDay, call2.MissedReason())

	// both waiting callers were moved to the closing voicemail
	transfers := f.voice.CommandsOf("TransferCall")
	require.Len(t, transfers, 2)
	for _, tr := range transfers {
		assert.Contains(t, tr.Params["aleg_url"], "message=callQueueClosing")
	}
}
