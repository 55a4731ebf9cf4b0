package calls

import (
	"context"
	"log/slog"

	"github.com/leaseline/callroom/core/calls/markup"
	"github.com/leaseline/callroom/core/models"
	"github.com/nyaruka/gocommon/dates"
)

// call lifecycle event names as the provider reports them
const (
	LegEventAnswer = "answer"
	LegEventHangup = "hangup"
)

// CallbackDialRequest is a per-leg lifecycle event for a dialed call
type CallbackDialRequest struct {
	CallID          string
	Event           string
	Duration        int
	MachineDetected bool
}

// CallbackDial handles per-leg answer and hangup events. Answer marks the
// call connected and notifies, hangup finalizes it with first-writer-wins
// semantics against the dial-status webhook racing in.
func (e *Engine) CallbackDial(ctx context.Context, req *CallbackDialRequest) (*markup.Response, error) {
	call, err := e.loadCall(ctx, req.CallID)
	if err != nil {
		return nil, err
	}
	log := slog.With("comp", "calls", "call_id", call.ID(), "event", req.Event)

	switch req.Event {
	case LegEventAnswer:
		if isTerminal(call) {
			return &markup.Response{Message: "call already ended"}, nil
		}
		if err := e.store.MarkAnswered(ctx, call, models.NilAgentID, dates.Now()); err != nil {
			log.Error("error marking call answered", "error", err)
		}
		e.notify(ctx, &Notification{
			Event: EventCallAnswered,
			Data:  map[string]any{"call_id": call.ID()},
		})
		return &markup.Response{Message: "answered"}, nil

	case LegEventHangup:
		return e.legHangup(ctx, call, req)

	default:
		log.Error("unknown leg event")
		return &markup.Response{Message: "unknown event"}, nil
	}
}

func (e *Engine) legHangup(ctx context.Context, call *models.Call, req *CallbackDialRequest) (*markup.Response, error) {
	log := slog.With("comp", "calls", "call_id", call.ID())

	status := models.CallStatusCompleted
	if !call.Answered() {
		if call.Direction() == models.DirectionIn {
			if err := e.store.MarkMissed(ctx, call, models.MissedFallback); err != nil {
				log.Error("error marking call missed", "error", err)
			}
		}
		status = models.CallStatusMissed
		if call.Direction() == models.DirectionOut {
			status = models.CallStatusCanceled
		}
	}

	won, err := e.store.MarkEnded(ctx, call, status, dates.Now(), req.Duration)
	if err != nil {
		log.Error("error ending call", "error", err)
	}
	if won {
		e.releaseAgents(ctx, call, call.DialedAgentIDs())
		e.notifyTerminated(ctx, call, req.MachineDetected)
	}
	return &markup.Response{Message: "hangup"}, nil
}
