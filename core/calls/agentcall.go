package calls

import (
	"context"
	"log/slog"
	"slices"

	"github.com/leaseline/callroom/core/calls/markup"
	"github.com/leaseline/callroom/core/models"
	"github.com/nyaruka/gocommon/dates"
)

// AgentCallRequest is a lifecycle event on an outbound agent leg fired for a
// queued call
type AgentCallRequest struct {
	QueuedCallUUID string
	AgentID        models.AgentID
	Event          string // answer or hangup
	LegCallID      string // provider id of the agent leg itself
}

// AgentCallForQueue handles the agent side of queue dial-out. The first
// agent to answer wins the caller, everyone else hears a short notice and is
// hung up. A hangup before the entry closes counts as a decline.
func (e *Engine) AgentCallForQueue(ctx context.Context, req *AgentCallRequest) (*markup.Response, error) {
	call, err := e.loadCallByUUID(ctx, req.QueuedCallUUID)
	if err != nil {
		return nil, err
	}
	log := slog.With("comp", "calls", "call_id", call.ID(), "agent_id", req.AgentID, "event", req.Event)

	entry, err := e.store.GetOpenQueueEntry(ctx, call.ID())
	if err != nil {
		log.Error("error loading queue entry", "error", err)
	}

	switch req.Event {
	case LegEventAnswer:
		return e.agentLegAnswered(ctx, call, entry, req)
	case LegEventHangup:
		return e.agentLegHungUp(ctx, call, entry, req)
	default:
		log.Error("unknown agent leg event")
		return &markup.Response{Message: "unknown event"}, nil
	}
}

func (e *Engine) agentLegAnswered(ctx context.Context, call *models.Call, entry *models.QueueEntry, req *AgentCallRequest) (*markup.Response, error) {
	log := slog.With("comp", "calls", "call_id", call.ID(), "agent_id", req.AgentID)

	if entry == nil || isTerminal(call) {
		return tooLateResponse(), nil
	}

	won, err := e.AssignConnectedAgent(ctx, entry, req.AgentID)
	if err != nil {
		log.Error("error assigning connected agent", "error", err)
		return tooLateResponse(), nil
	}
	if !won {
		// another agent picked up first
		return tooLateResponse(), nil
	}

	e.closeQueueEntry(ctx, entry, models.QueueActionNone, dates.Now())
	if err := e.store.MarkAnswered(ctx, call, req.AgentID, dates.Now()); err != nil {
		log.Error("error marking queued call answered", "error", err)
	}
	e.markAgentBusy(ctx, req.AgentID)

	// pull the waiting caller out of the hold loop and into the room
	err = e.voice.TransferCall(ctx, &TransferParams{
		CallID:  call.ExternalID(),
		Legs:    "aleg",
		ALegURL: e.urls.TransferFromQueue(req.QueuedCallUUID),
	})
	if err != nil && !IsProviderNotFound(err) {
		log.Error("error transferring caller to conference", "error", err)
	}

	// the race is decided, tear down the other fired legs
	for agentID, legs := range entry.FiredCalls() {
		if agentID == req.AgentID {
			continue
		}
		for _, legID := range legs {
			if err := e.voice.HangupCall(ctx, legID); err != nil && !IsProviderNotFound(err) {
				log.Error("error hanging up losing agent leg", "leg_id", legID, "error", err)
			}
		}
	}
	if err := e.store.UpdateFiredCalls(ctx, entry, models.FiredCalls{}); err != nil {
		log.Error("error clearing fired calls", "error", err)
	}

	e.notify(ctx, &Notification{
		Event:   EventCallAnswered,
		Data:    map[string]any{"call_id": call.ID(), "agent_id": req.AgentID},
		Routing: Routing{Users: []models.AgentID{req.AgentID}, Teams: []models.TeamID{entry.TeamID()}},
	})

	// the winning agent joins the caller's conference room
	room := ConferenceRoom(req.QueuedCallUUID)
	r := &markup.Response{}
	r.Add(markup.Conference{
		Room:        room,
		CallbackURL: e.urls.Conference(req.QueuedCallUUID),
		EndOnExit:   true,
	})
	return r, nil
}

func (e *Engine) agentLegHungUp(ctx context.Context, call *models.Call, entry *models.QueueEntry, req *AgentCallRequest) (*markup.Response, error) {
	log := slog.With("comp", "calls", "call_id", call.ID(), "agent_id", req.AgentID)

	if entry == nil {
		// the race was already settled, nothing to bookkeep
		return &markup.Response{Message: "queue entry closed"}, nil
	}

	if err := e.store.AddDeclinedBy(ctx, entry, req.AgentID); err != nil {
		log.Error("error recording decline", "error", err)
	}

	// drop this agent's legs from the in-flight set
	fired := models.FiredCalls{}
	for agentID, legs := range entry.FiredCalls() {
		if agentID == req.AgentID {
			remaining := slices.DeleteFunc(slices.Clone(legs), func(id string) bool { return id == req.LegCallID })
			if len(remaining) > 0 {
				fired[agentID] = remaining
			}
			continue
		}
		fired[agentID] = legs
	}
	if err := e.store.UpdateFiredCalls(ctx, entry, fired); err != nil {
		log.Error("error updating fired calls", "error", err)
	}

	if len(fired) == 0 {
		// everyone we rang declined, try the next round of agents
		if err := e.tasks.QueueDialOut(ctx, call.ID(), entry.TeamID()); err != nil {
			log.Error("error queueing dial-out retry", "error", err)
		}
	}
	return &markup.Response{Message: "decline recorded"}, nil
}

func tooLateResponse() *markup.Response {
	r := &markup.Response{}
	r.Add(markup.Speak{Text: "The caller is no longer waiting."})
	r.Add(markup.Hangup{})
	return r
}
