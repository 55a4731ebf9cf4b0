package calls

import (
	"context"
	"log/slog"

	"github.com/leaseline/callroom/core/calls/markup"
	"github.com/leaseline/callroom/core/models"
	"github.com/nyaruka/gocommon/dates"
)

// conference action names as the provider reports them
const (
	ConfActionEnter       = "enter"
	ConfActionExit        = "exit"
	ConfActionRecordStart = "record-start"
	ConfActionRecordStop  = "record-stop"
)

// ConferenceRequest is a conference lifecycle event for a queued call's room
type ConferenceRequest struct {
	CallID            string
	Action            string
	ConferenceName    string
	MemberID          string
	RecordURL         string
	RecordingID       string
	RecordingDuration int
}

// ConferenceCallback handles conference room events for calls bridged out of
// the queue: member entry arms the lone-member watchdog, member exit tears
// the call down, record-stop persists the recording.
func (e *Engine) ConferenceCallback(ctx context.Context, req *ConferenceRequest) (*markup.Response, error) {
	call, err := e.loadCall(ctx, req.CallID)
	if err != nil {
		return nil, err
	}
	log := slog.With("comp", "calls", "call_id", call.ID(), "action", req.Action)

	switch req.Action {
	case ConfActionEnter:
		room := req.ConferenceName
		if room == "" {
			room = ConferenceRoom(string(call.UUID()))
		}
		e.watchdog.MemberEntered(room, req.MemberID)
		return &markup.Response{Message: "member entered"}, nil

	case ConfActionExit:
		if isTerminal(call) {
			return &markup.Response{Message: "call already ended"}, nil
		}
		duration := 0
		if call.Answered() && call.StartedOn() != nil {
			duration = int(dates.Now().Sub(*call.StartedOn()).Seconds())
		}
		won, err := e.store.MarkEnded(ctx, call, endStatusFor(call), dates.Now(), duration)
		if err != nil {
			log.Error("error ending conference call", "error", err)
		}
		if won {
			agentIDs := call.DialedAgentIDs()
			if call.AgentID() != models.NilAgentID {
				agentIDs = append(agentIDs, call.AgentID())
			}
			e.releaseAgents(ctx, call, agentIDs)
			e.notifyTerminated(ctx, call, false)
		}
		return &markup.Response{Message: "member exited"}, nil

	case ConfActionRecordStop:
		// zero-length recordings are noise from immediate hangups
		if req.RecordingDuration > 0 {
			if err := e.store.SaveRecording(ctx, call, req.RecordURL, req.RecordingID, req.RecordingDuration); err != nil {
				log.Error("error saving conference recording", "error", err)
			}
		}
		return &markup.Response{Message: "recording saved"}, nil

	case ConfActionRecordStart:
		return &markup.Response{Message: "recording started"}, nil

	default:
		log.Error("unknown conference action")
		return &markup.Response{Message: "unknown action"}, nil
	}
}

func endStatusFor(call *models.Call) models.CallStatus {
	if call.Answered() {
		return models.CallStatusCompleted
	}
	return models.CallStatusMissed
}

// TransferFromQueue renders the conference bridge markup for a caller being
// pulled out of the queue by an answering agent. The agent leg joins the
// same room from its own answer markup.
func (e *Engine) TransferFromQueue(ctx context.Context, callUUID string) (*markup.Response, error) {
	call, err := e.loadCallByUUID(ctx, callUUID)
	if err != nil {
		return nil, err
	}
	if isTerminal(call) {
		return markup.HangupResponse("call already ended"), nil
	}

	teamID, programID := e.teamForCall(ctx, call)
	record := false
	if team, err := e.store.GetTeam(ctx, teamID); err == nil && team != nil {
		record = team.RecordCalls()
	}

	r := &markup.Response{}
	if record {
		notice, _ := e.msgs.Resolve(ctx, teamID, programID, models.MsgCallRecordingNotice)
		r.Add(promptCommands(notice)...)
	}
	r.Add(markup.Conference{
		Room:        ConferenceRoom(callUUID),
		CallbackURL: e.urls.Conference(callUUID),
		EndOnExit:   true,
		Record:      record,
	})
	return r, nil
}
