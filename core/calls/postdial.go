package calls

import (
	"context"
	"log/slog"

	"github.com/leaseline/callroom/core/calls/markup"
	"github.com/leaseline/callroom/core/models"
	"github.com/nyaruka/gocommon/dates"
)

// dial status constants as the provider reports them
const (
	DialStatusCompleted = "completed"
	DialStatusNoAnswer  = "no-answer"
	DialStatusBusy      = "busy"
	DialStatusTimeout   = "timeout"
	DialStatusCancel    = "cancel"
	DialStatusFailed    = "failed"
)

// hangup cause the provider reports when the caller gave up before answer
const HangupCauseOriginatorCancel = "ORIGINATOR_CANCEL"

// PostDialRequest is the dial-status event fired when a Dial instruction
// finishes
type PostDialRequest struct {
	CallID       string
	DialStatus   string
	HangupCause  string
	BLegTo       string // the endpoint that answered, when one did
	BLegDuration int    // seconds the b-leg was connected
}

// PostDial handles the end of a Dial: it finalizes the call on completion,
// falls back to voicemail on no-answer/busy, and releases dialed agents
// under the live-call-aware, sticky-status rules.
func (e *Engine) PostDial(ctx context.Context, req *PostDialRequest) (*markup.Response, error) {
	call, err := e.loadCall(ctx, req.CallID)
	if err != nil {
		return nil, err
	}
	log := slog.With("comp", "calls", "call_id", call.ID(), "dial_status", req.DialStatus, "hangup_cause", req.HangupCause)

	// replayed terminal events answer politely and change nothing
	if isTerminal(call) {
		return &markup.Response{Message: "call already ended"}, nil
	}

	switch req.DialStatus {
	case DialStatusCompleted:
		return e.postDialCompleted(ctx, call, req)

	case DialStatusCancel:
		// caller hung up while agents were still ringing
		if err := e.store.MarkMissed(ctx, call, models.MissedNoQueue); err != nil {
			log.Error("error marking canceled call missed", "error", err)
		}
		if _, err := e.store.MarkEnded(ctx, call, models.CallStatusCanceled, dates.Now(), 0); err != nil {
			log.Error("error ending canceled call", "error", err)
		}
		e.releaseAgents(ctx, call, call.DialedAgentIDs())
		e.notifyTerminated(ctx, call, false)
		return &markup.Response{Message: "caller canceled"}, nil

	case DialStatusNoAnswer, DialStatusBusy, DialStatusTimeout, DialStatusFailed:
		return e.postDialUnanswered(ctx, call)

	default:
		log.Error("unknown dial status")
		return &markup.Response{Message: "unknown dial status"}, nil
	}
}

// postDialCompleted finalizes a dial whose b-leg connected and ended
func (e *Engine) postDialCompleted(ctx context.Context, call *models.Call, req *PostDialRequest) (*markup.Response, error) {
	log := slog.With("comp", "calls", "call_id", call.ID())
	now := dates.Now()

	answered := req.BLegDuration > 0
	if answered && !call.Answered() {
		agentID := e.agentForEndpoint(ctx, call, req.BLegTo)
		if err := e.store.MarkAnswered(ctx, call, agentID, now); err != nil {
			log.Error("error marking call answered", "error", err)
		}
	}

	status := models.CallStatusCompleted
	if !answered {
		// a caller who gave up before any agent answered isn't a fallback miss
		reason := models.MissedFallback
		if req.HangupCause == HangupCauseOriginatorCancel {
			reason = models.MissedNoQueue
		}
		if err := e.store.MarkMissed(ctx, call, reason); err != nil {
			log.Error("error marking completed call missed", "error", err)
		}
		status = models.CallStatusMissed
	}

	won, err := e.store.MarkEnded(ctx, call, status, now, req.BLegDuration)
	if err != nil {
		log.Error("error ending call", "error", err)
	}
	if won {
		e.releaseAgents(ctx, call, call.DialedAgentIDs())
		e.notifyTerminated(ctx, call, false)
	}
	return &markup.Response{Message: "dial complete"}, nil
}

// postDialUnanswered handles no-answer and busy outcomes: queued calls defer
// to queue handling, direct dials fall back to voicemail
func (e *Engine) postDialUnanswered(ctx context.Context, call *models.Call) (*markup.Response, error) {
	log := slog.With("comp", "calls", "call_id", call.ID())

	e.releaseAgents(ctx, call, call.DialedAgentIDs())

	entry, err := e.store.GetOpenQueueEntry(ctx, call.ID())
	if err != nil {
		log.Error("error loading queue entry", "error", err)
	}
	if entry != nil {
		// a queue context is active, attribute stats if unambiguous and let
		// the queue's own unavailable handling take the caller
		agentID, err := ResolveUnansweredAgent(call.DialedAgentIDs())
		if err != nil {
			log.Info("not attributing queue agent", "reason", err)
		} else if agentID != models.NilAgentID {
			if _, err := e.AssignConnectedAgent(ctx, entry, agentID); err != nil {
				log.Error("error attributing queue agent", "error", err)
			}
		}
		return e.transferToVoicemail(ctx, call, models.QueueActionVoicemail, models.MsgCallQueueUnavailable)
	}

	if err := e.store.MarkMissed(ctx, call, models.MissedNoQueue); err != nil {
		log.Error("error marking call missed", "error", err)
	}

	teamID, programID := e.teamForCall(ctx, call)
	msg, _ := e.msgs.Resolve(ctx, teamID, programID, models.MsgUnavailable)
	return e.voicemailResponse(call, msg), nil
}

// agentForEndpoint maps the answering endpoint back to one of the dialed
// agents
func (e *Engine) agentForEndpoint(ctx context.Context, call *models.Call, endpoint string) models.AgentID {
	if endpoint == "" {
		return models.NilAgentID
	}
	for _, agentID := range call.DialedAgentIDs() {
		agent, err := e.store.GetAgent(ctx, agentID)
		if err != nil || agent == nil {
			continue
		}
		for _, ep := range agent.SipEndpoints() {
			if ep == endpoint {
				return agentID
			}
		}
	}
	return models.NilAgentID
}

func (e *Engine) notifyTerminated(ctx context.Context, call *models.Call, machineDetected bool) {
	routing := Routing{}
	if call.AgentID() != models.NilAgentID {
		routing.Users = []models.AgentID{call.AgentID()}
	}
	e.notify(ctx, &Notification{
		Event:   EventCallTerminated,
		Data:    map[string]any{"call_id": call.ID(), "machine_detected": machineDetected},
		Routing: routing,
	})
}
