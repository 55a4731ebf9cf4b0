package calls

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/leaseline/callroom/core/calls/markup"
	"github.com/leaseline/callroom/core/models"
	"github.com/nyaruka/gocommon/dates"
)

// DirectDialRequest is an incoming ring event from the provider
type DirectDialRequest struct {
	CallID     string
	From       string
	To         string
	TargetType models.TargetType
	TargetID   int
	Raw        json.RawMessage
}

// DirectDial handles the first webhook of an incoming call: it creates (or
// re-loads) the call record, resolves the routing target and answers with
// dial, queue or voicemail markup.
func (e *Engine) DirectDial(ctx context.Context, req *DirectDialRequest) (*markup.Response, error) {
	log := slog.With("comp", "calls", "external_id", req.CallID)

	call, err := e.store.GetCallByExternalID(ctx, req.CallID)
	if err != nil {
		return nil, err
	}
	if call == nil {
		call = &models.Call{
			ExternalID_: req.CallID,
			Direction_:  models.DirectionIn,
			Status_:     models.CallStatusRinging,
			TargetType_: req.TargetType,
			TargetID_:   req.TargetID,
			FromNumber_: req.From,
			ToNumber_:   req.To,
			Raw_:        rawFromEvent(req.CallID, req.Raw),
		}
		if err := e.store.InsertCall(ctx, call); err != nil {
			return nil, err
		}
	}
	if isTerminal(call) {
		return markup.HangupResponse("call already ended"), nil
	}

	teamID, programID := e.teamForCall(ctx, call)

	// calls aimed at one specific agent never queue or spam-check
	if call.TargetType() == models.TargetTeamMember || call.TargetType() == models.TargetUser {
		return e.dialSpecificAgent(ctx, call, teamID, programID)
	}

	team, err := e.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team == nil {
		return nil, &NotFoundError{Kind: "team", ID: req.CallID}
	}

	// spam callers go straight to voicemail, no agents ring
	spam, err := e.store.IsBlacklisted(ctx, req.From)
	if err != nil {
		log.Error("error checking blacklist", "error", err)
	}
	if spam {
		log.Info("spam caller, routing to voicemail", "from", req.From)
		msg, _ := e.msgs.Resolve(ctx, teamID, programID, models.MsgVoicemail)
		return e.voicemailResponse(call, msg), nil
	}

	now := dates.Now()
	if !team.InOfficeHours(now) {
		if err := e.store.MarkMissed(ctx, call, models.MissedAfterHours); err != nil {
			log.Error("error marking call missed after hours", "error", err)
		}
		msg, _ := e.msgs.Resolve(ctx, teamID, programID, models.MsgAfterHours)
		return e.voicemailResponse(call, msg), nil
	}

	av, err := e.ResolveAvailability(ctx, teamID, nil)
	if err != nil {
		return nil, err
	}

	if ShouldQueue(team, av, call.TargetType()) {
		return e.enterQueue(ctx, call, team, programID)
	}

	if len(av.Ring) == 0 {
		// nobody eligible at all, offer voicemail
		if err := e.store.MarkMissed(ctx, call, models.MissedNoQueue); err != nil {
			log.Error("error marking call missed", "error", err)
		}
		msg, _ := e.msgs.Resolve(ctx, teamID, programID, models.MsgUnavailable)
		return e.voicemailResponse(call, msg), nil
	}

	return e.dialResponse(ctx, call, team, programID, av.Ring)
}

// enterQueue creates the queue entry and renders the welcome plus hold loop
func (e *Engine) enterQueue(ctx context.Context, call *models.Call, team *models.Team, programID models.ProgramID) (*markup.Response, error) {
	log := slog.With("comp", "calls", "call_id", call.ID(), "team_id", team.ID())

	if _, err := e.Enqueue(ctx, call, team.ID()); err != nil {
		// never block the caller on queue bookkeeping, fall back to voicemail
		log.Error("error enqueuing call", "error", err)
		msg, _ := e.msgs.Resolve(ctx, team.ID(), programID, models.MsgCallQueueUnavailable)
		return e.voicemailResponse(call, msg), nil
	}

	welcome, _ := e.msgs.Resolve(ctx, team.ID(), programID, models.MsgCallQueueWelcome)
	menu, _ := e.msgs.Resolve(ctx, team.ID(), programID, models.MsgCallQueueUnavailable)

	r := &markup.Response{}
	r.Add(promptCommands(welcome)...)
	hold := e.holdResponse(call, menu)
	r.Add(hold.Commands...)
	return r, nil
}

// dialResponse rings the passed in agents and records who we dialed so the
// dial-status webhook can attribute or release them later
func (e *Engine) dialResponse(ctx context.Context, call *models.Call, team *models.Team, programID models.ProgramID, ring []*models.Agent) (*markup.Response, error) {
	log := slog.With("comp", "calls", "call_id", call.ID())

	if err := e.store.SetDialedAgents(ctx, call, ringAgentIDs(ring)); err != nil {
		log.Error("error recording dialed agents", "error", err)
	}

	callUUID := string(call.UUID())
	dial := markup.Dial{
		Action:      e.urls.PostDial(callUUID),
		CallbackURL: e.urls.CallbackDial(callUUID),
		CallerID:    team.CallerID(),
		Timeout:     e.dialTimeout,
	}
	for _, ep := range ringEndpoints(ring) {
		dial.Commands = append(dial.Commands, markup.User{Endpoint: ep})
	}

	r := &markup.Response{}
	if team.RecordCalls() {
		notice, _ := e.msgs.Resolve(ctx, team.ID(), programID, models.MsgCallRecordingNotice)
		r.Add(promptCommands(notice)...)
	}
	r.Add(dial)
	return r, nil
}

// dialSpecificAgent handles calls aimed at one team member or user
func (e *Engine) dialSpecificAgent(ctx context.Context, call *models.Call, teamID models.TeamID, programID models.ProgramID) (*markup.Response, error) {
	log := slog.With("comp", "calls", "call_id", call.ID())

	agent, err := e.store.GetAgent(ctx, models.AgentID(call.TargetID()))
	if err != nil {
		return nil, err
	}

	canRing := agent != nil && agent.Online() && agent.Status() == models.AgentAvailable && len(agent.SipEndpoints()) > 0
	if !canRing {
		if err := e.store.MarkMissed(ctx, call, models.MissedNoQueue); err != nil {
			log.Error("error marking call missed", "error", err)
		}
		msg, _ := e.msgs.Resolve(ctx, teamID, programID, models.MsgUnavailable)
		return e.voicemailResponse(call, msg), nil
	}

	team, err := e.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team == nil {
		team = &models.Team{}
	}
	return e.dialResponse(ctx, call, team, programID, []*models.Agent{agent})
}
