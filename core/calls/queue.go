package calls

import (
	"context"
	"log/slog"
	"time"

	"github.com/leaseline/callroom/core/models"
	"github.com/nyaruka/gocommon/dates"
)

// The queue manager owns queue membership and entry/exit bookkeeping.
// Storage failures here are never fatal to call handling, callers log them
// and still answer the provider with valid markup.

// ShouldQueue decides whether an incoming call to a team goes to its queue:
// queueing must be enabled, the team must have eligible agents none of whom
// can ring right now (all busy or none available), and the call must not be
// a transfer aimed at a specific agent.
func ShouldQueue(team *models.Team, av *Availability, targetType models.TargetType) bool {
	if !team.QueueEnabled() {
		return false
	}
	if targetType == models.TargetTeamMember || targetType == models.TargetUser {
		return false
	}
	return av.Eligible > 0 && len(av.Ring) == 0
}

// Enqueue creates (or returns the existing) open queue entry for a call.
// Idempotent, retried webhooks for the same call never create duplicates.
func (e *Engine) Enqueue(ctx context.Context, call *models.Call, teamID models.TeamID) (*models.QueueEntry, error) {
	var entry *models.QueueEntry
	err := withRetry("enqueue", func() error {
		var err error
		entry, err = e.store.InsertQueueEntry(ctx, call.ID(), teamID, dates.Now())
		return err
	})
	if err != nil {
		return nil, err
	}

	e.notify(ctx, &Notification{
		Event:   EventCallQueueChanged,
		Data:    map[string]any{"call_id": call.ID(), "team_id": teamID},
		Routing: Routing{Teams: []models.TeamID{teamID}},
	})
	return entry, nil
}

// AssignConnectedAgent attributes the agent who picked up a queued call,
// first assignment wins, later automatic assignments are no-ops
func (e *Engine) AssignConnectedAgent(ctx context.Context, entry *models.QueueEntry, agentID models.AgentID) (bool, error) {
	var applied bool
	err := withRetry("assign connected agent", func() error {
		var err error
		applied, err = e.store.AssignConnectedAgent(ctx, entry, agentID)
		return err
	})
	return applied, err
}

// ResolveUnansweredAgent decides which agent gets attributed in queue stats
// when dialed receivers went unanswered. Exactly one receiver means that
// receiver, more than one is ambiguous and stays unattributed.
func ResolveUnansweredAgent(receiverIDs []models.AgentID) (models.AgentID, error) {
	switch len(receiverIDs) {
	case 0:
		return models.NilAgentID, nil
	case 1:
		return receiverIDs[0], nil
	default:
		return models.NilAgentID, &AmbiguousStateError{Reason: "multiple unanswered receivers, not attributing a queue agent"}
	}
}

// closeQueueEntry dequeues the entry with its outcome and writes the stats
// row, returning whether this caller actually closed it
func (e *Engine) closeQueueEntry(ctx context.Context, entry *models.QueueEntry, action models.QueueAction, dequeuedOn time.Time) bool {
	log := slog.With("comp", "calls", "call_id", entry.CallID(), "queue_entry_id", entry.ID())

	var closed bool
	err := withRetry("close queue entry", func() error {
		var err error
		closed, err = e.store.CloseQueueEntry(ctx, entry, action, dequeuedOn)
		return err
	})
	if err != nil {
		log.Error("error closing queue entry", "error", err)
		return false
	}
	if !closed {
		return false
	}

	if err := e.store.RecordQueueStats(ctx, entry); err != nil {
		log.Error("error recording queue stats", "error", err)
	}

	e.notify(ctx, &Notification{
		Event:   EventCallQueueChanged,
		Data:    map[string]any{"call_id": entry.CallID(), "team_id": entry.TeamID()},
		Routing: Routing{Teams: []models.TeamID{entry.TeamID()}},
	})
	return true
}

// EndOfDaySweep closes all open queue entries for a team that has passed the
// end of its office hours, transferring each waiting caller to a closing
// voicemail. Run as a task when office hours end.
func (e *Engine) EndOfDaySweep(ctx context.Context, teamID models.TeamID) error {
	entries, err := e.store.GetOpenQueueEntriesForTeam(ctx, teamID)
	if err != nil {
		return err
	}
	log := slog.With("comp", "calls", "team_id", teamID)

	for _, entry := range entries {
		call, err := e.store.GetCallByID(ctx, entry.CallID())
		if err != nil {
			log.Error("error loading queued call for sweep", "call_id", entry.CallID(), "error", err)
			continue
		}

		if !e.closeQueueEntry(ctx, entry, models.QueueActionVoicemail, dates.Now()) {
			continue
		}
		if err := e.store.MarkMissed(ctx, call, models.MissedEndOfDay); err != nil {
			log.Error("error marking swept call missed", "call_id", call.ID(), "error", err)
		}

		err = e.voice.TransferCall(ctx, &TransferParams{
			CallID:  call.ExternalID(),
			Legs:    "aleg",
			ALegURL: e.urls.Voicemail(string(call.UUID()), models.MsgCallQueueClosing),
		})
		if err != nil && !IsProviderNotFound(err) {
			log.Error("error transferring swept call to voicemail", "call_id", call.ID(), "error", err)
		}
	}
	return nil
}
