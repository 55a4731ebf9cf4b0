package calls

import (
	"context"
	"log/slog"

	"github.com/leaseline/callroom/core/calls/markup"
	"github.com/leaseline/callroom/core/models"
	"github.com/nyaruka/gocommon/dates"
)

// ReadyForDequeue is hit when a queued caller's hold loop runs out. It kicks
// off (or re-kicks) the dial-out task for the entry and hands back another
// hold loop, or winds the caller down if their queue entry is gone or the
// office has closed while they waited.
func (e *Engine) ReadyForDequeue(ctx context.Context, callUUID string) (*markup.Response, error) {
	call, err := e.loadCallByUUID(ctx, callUUID)
	if err != nil {
		return nil, err
	}
	log := slog.With("comp", "calls", "call_id", call.ID())

	if isTerminal(call) {
		return markup.HangupResponse("call already ended"), nil
	}

	entry, err := e.store.GetOpenQueueEntry(ctx, call.ID())
	if err != nil {
		log.Error("error loading queue entry", "error", err)
	}
	if entry == nil {
		// dequeued by another path (agent pickup, digit action), the caller
		// leg is being transferred out, nothing more to say on this leg
		return &markup.Response{Message: "no longer queued"}, nil
	}

	teamID, programID := e.teamForCall(ctx, call)
	team, err := e.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	if team != nil && !team.InOfficeHours(dates.Now()) {
		e.closeQueueEntry(ctx, entry, models.QueueActionVoicemail, dates.Now())
		if err := e.store.MarkMissed(ctx, call, models.MissedEndOfDay); err != nil {
			log.Error("error marking call missed", "error", err)
		}
		msg, _ := e.msgs.Resolve(ctx, teamID, programID, models.MsgCallQueueClosing)
		return e.voicemailResponse(call, msg), nil
	}

	if err := e.tasks.QueueDialOut(ctx, call.ID(), entry.TeamID()); err != nil {
		// the next hold loop will retry, don't fail the caller over this
		log.Error("error queueing dial-out task", "error", err)
	}

	menu, _ := e.msgs.Resolve(ctx, teamID, programID, models.MsgCallQueueUnavailable)
	return e.holdResponse(call, menu), nil
}
