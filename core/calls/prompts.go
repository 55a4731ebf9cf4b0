package calls

import (
	"context"

	"github.com/leaseline/callroom/core/calls/markup"
	"github.com/leaseline/callroom/core/models"
)

// promptCommands renders a voice message as markup commands, preferring
// recorded audio over synthesized text
func promptCommands(msg models.VoiceMessage) []any {
	if msg.AudioURL() != "" {
		return []any{markup.Play{URL: msg.AudioURL()}}
	}
	if msg.Text() != "" {
		return []any{markup.Speak{Text: msg.Text()}}
	}
	return nil
}

// voicemailResponse renders the passed in prompt followed by a record
// instruction whose callback lands on the recording webhook
func (e *Engine) voicemailResponse(call *models.Call, msg models.VoiceMessage) *markup.Response {
	r := &markup.Response{}
	r.Add(promptCommands(msg)...)
	r.Add(markup.Record{Action: e.urls.Recording(string(call.UUID())), MaxLength: markup.RecordMaxLen, PlayBeep: true})
	return r
}

// VoicemailPrompt is the markup served by the voicemail endpoint that
// transfer commands point their aleg at
func (e *Engine) VoicemailPrompt(ctx context.Context, callUUID string, msgType models.MessageType) (*markup.Response, error) {
	call, err := e.loadCallByUUID(ctx, callUUID)
	if err != nil {
		return nil, err
	}

	teamID, programID := e.teamForCall(ctx, call)
	msg, err := e.msgs.Resolve(ctx, teamID, programID, msgType)
	if err != nil && !IsNotFound(err) {
		return nil, err
	}
	return e.voicemailResponse(call, msg), nil
}

// holdResponse renders the queue hold loop: a digit gather wrapping
// alternating menu prompts and hold music, an endless music tail, then a
// redirect back to the dequeue-ready endpoint for when the gather times out
func (e *Engine) holdResponse(call *models.Call, menuMsg models.VoiceMessage) *markup.Response {
	callUUID := string(call.UUID())

	gatherCommands := make([]any, 0, e.holdRepeats*2)
	for i := 0; i < e.holdRepeats; i++ {
		gatherCommands = append(gatherCommands, promptCommands(menuMsg)...)
		if e.holdMusicURL != "" {
			gatherCommands = append(gatherCommands, markup.Play{URL: e.holdMusicURL})
		}
	}

	r := &markup.Response{}
	r.Add(markup.GetDigits{
		Action:    e.urls.DigitsPressed(callUUID),
		NumDigits: 1,
		Timeout:   markup.DigitsTimeout,
		Commands:  gatherCommands,
	})
	if e.holdMusicURL != "" {
		r.Add(markup.Play{URL: e.holdMusicURL, Loop: markup.Forever})
	}
	r.Add(markup.Redirect{URL: e.urls.DequeueReady(callUUID)})
	return r
}

// teamForCall resolves the team (and program when routed through one) that
// owns a call's target. NilTeamID when the target doesn't map to a team.
func (e *Engine) teamForCall(ctx context.Context, call *models.Call) (models.TeamID, models.ProgramID) {
	switch call.TargetType() {
	case models.TargetTeam:
		return models.TeamID(call.TargetID()), models.NilProgramID
	case models.TargetProgram:
		program, err := e.store.GetProgram(ctx, models.ProgramID(call.TargetID()))
		if err != nil || program == nil {
			return models.NilTeamID, models.ProgramID(call.TargetID())
		}
		return program.TeamID(), program.ID()
	case models.TargetTeamMember, models.TargetUser:
		agent, err := e.store.GetAgent(ctx, models.AgentID(call.TargetID()))
		if err != nil || agent == nil {
			return models.NilTeamID, models.NilProgramID
		}
		return agent.TeamID(), models.NilProgramID
	default:
		return models.NilTeamID, models.NilProgramID
	}
}
