package models_test

import (
	"testing"
	"time"

	"github.com/leaseline/callroom/core/models"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestInOfficeHours(t *testing.T) {
	team := &models.Team{OfficeStart_: 9, OfficeEnd_: 18, Timezone_: "America/New_York"}

	// 15:00 UTC is 10:00 in New York, inside office hours
	assert.True(t, team.InOfficeHours(time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)))

	// 03:00 UTC is the previous evening in New York
	assert.False(t, team.InOfficeHours(time.Date(2024, 3, 5, 3, 0, 0, 0, time.UTC)))

	// end hour is exclusive
	loc, _ := time.LoadLocation("America/New_York")
	assert.False(t, team.InOfficeHours(time.Date(2024, 3, 5, 18, 0, 0, 0, loc)))
	assert.True(t, team.InOfficeHours(time.Date(2024, 3, 5, 17, 59, 0, 0, loc)))

	// teams without configured hours are always open
	always := &models.Team{}
	assert.True(t, always.InOfficeHours(time.Date(2024, 3, 5, 3, 0, 0, 0, time.UTC)))

	// an unknown timezone falls back to UTC rather than failing closed
	weird := &models.Team{OfficeStart_: 9, OfficeEnd_: 18, Timezone_: "Mars/Olympus"}
	assert.True(t, weird.InOfficeHours(time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)))
}

func TestCallStatusTerminal(t *testing.T) {
	assert.True(t, models.CallStatusCompleted.IsTerminal())
	assert.True(t, models.CallStatusMissed.IsTerminal())
	assert.True(t, models.CallStatusCanceled.IsTerminal())
	assert.False(t, models.CallStatusRinging.IsTerminal())
	assert.False(t, models.CallStatusQueued.IsTerminal())
	assert.False(t, models.CallStatusInProgress.IsTerminal())
}

func TestDialedAgentIDs(t *testing.T) {
	call := &models.Call{DialedAgentIDs_: pq.Int64Array{3, 1}}
	assert.Equal(t, []models.AgentID{3, 1}, call.DialedAgentIDs())

	none := &models.Call{}
	assert.Empty(t, none.DialedAgentIDs())
}
