package calls

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leaseline/callroom/core/models"
	"github.com/nyaruka/gocommon/dates"
)

// DialOutForQueue fires outbound agent legs for a queued call. Runs as a
// worker task so the caller's webhook never waits on provider API calls.
// Agents who already declined this call are skipped, and when nobody is left
// to try the caller is moved to the queue-unavailable voicemail.
func (e *Engine) DialOutForQueue(ctx context.Context, callID models.CallID, teamID models.TeamID) error {
	call, err := e.store.GetCallByID(ctx, callID)
	if err != nil {
		return err
	}
	log := slog.With("comp", "calls", "call_id", callID, "team_id", teamID)

	if isTerminal(call) {
		return nil
	}

	entry, err := e.store.GetOpenQueueEntry(ctx, callID)
	if err != nil {
		return err
	}
	if entry == nil {
		// dequeued between scheduling and execution
		return nil
	}

	// skip a re-fire while legs from the previous round are still ringing
	if len(entry.FiredCalls()) > 0 {
		log.Debug("agent legs still in flight, skipping dial-out")
		return nil
	}

	av, err := e.ResolveAvailability(ctx, teamID, entry.DeclinedBy())
	if err != nil {
		return err
	}

	if len(av.Ring) == 0 {
		return e.abandonQueuedCall(ctx, call, entry)
	}

	queuedUUID := string(call.UUID())
	fired := models.FiredCalls{}
	for _, agent := range av.Ring {
		answerURL := e.urls.AgentCallForQueue(queuedUUID, agent.ID())
		for _, endpoint := range agent.SipEndpoints() {
			legID, err := e.voice.MakeCall(ctx, call.ToNumber(), endpoint, answerURL, answerURL)
			if err != nil {
				log.Error("error firing agent leg", "agent_id", agent.ID(), "endpoint", endpoint, "error", err)
				continue
			}
			fired[agent.ID()] = append(fired[agent.ID()], legID)
		}
	}

	if len(fired) == 0 {
		return e.abandonQueuedCall(ctx, call, entry)
	}

	if err := e.store.UpdateFiredCalls(ctx, entry, fired); err != nil {
		return fmt.Errorf("error recording fired calls for queue entry %d: %w", entry.ID(), err)
	}
	log.Info("fired agent legs for queued call", "agents", len(fired))
	return nil
}

// abandonQueuedCall gives up on connecting a queued caller to an agent and
// moves them to voicemail
func (e *Engine) abandonQueuedCall(ctx context.Context, call *models.Call, entry *models.QueueEntry) error {
	log := slog.With("comp", "calls", "call_id", call.ID())

	if !e.closeQueueEntry(ctx, entry, models.QueueActionVoicemail, dates.Now()) {
		return nil
	}
	if err := e.store.MarkMissed(ctx, call, models.MissedDeclined); err != nil {
		log.Error("error marking abandoned call missed", "error", err)
	}

	err := e.voice.TransferCall(ctx, &TransferParams{
		CallID:  call.ExternalID(),
		Legs:    "aleg",
		ALegURL: e.urls.Voicemail(string(call.UUID()), models.MsgCallQueueUnavailable),
	})
	if err != nil && !IsProviderNotFound(err) {
		return fmt.Errorf("error transferring abandoned call %d to voicemail: %w", call.ID(), err)
	}
	return nil
}
