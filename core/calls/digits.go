package calls

import (
	"context"
	"log/slog"

	"github.com/leaseline/callroom/core/calls/markup"
	"github.com/leaseline/callroom/core/models"
	"github.com/nyaruka/gocommon/dates"
)

// DigitsRequest is a digit press reported by the provider's gather
type DigitsRequest struct {
	CallID string
	Digits string
}

// DigitsPressed maps the pressed digit through the team's configured menu
// and acts on it. Unknown digits replay the menu instructions, the provider
// never sees an error for a bad key press.
func (e *Engine) DigitsPressed(ctx context.Context, req *DigitsRequest) (*markup.Response, error) {
	call, err := e.loadCall(ctx, req.CallID)
	if err != nil {
		return nil, err
	}
	log := slog.With("comp", "calls", "call_id", call.ID(), "digits", req.Digits)

	// a replayed gather for a call that already ended must not act
	if isTerminal(call) {
		return markup.HangupResponse("call already ended"), nil
	}

	teamID, programID := e.teamForCall(ctx, call)
	menu, err := e.store.GetDigitMenu(ctx, teamID)
	if err != nil {
		log.Error("error loading digit menu", "error", err)
	}

	action, known := menu[req.Digits]
	if !known {
		// replay the hold loop instructions
		menuMsg, _ := e.msgs.Resolve(ctx, teamID, programID, models.MsgCallQueueUnavailable)
		return e.holdResponse(call, menuMsg), nil
	}

	switch action.Kind() {
	case models.DigitCallback:
		return e.requestCallback(ctx, call, teamID, programID)
	case models.DigitVoicemail:
		return e.transferToVoicemail(ctx, call, models.QueueActionVoicemail, models.MsgVoicemail)
	case models.DigitTransferToNumber:
		return e.transferToNumber(ctx, call, action.Number())
	default:
		log.Error("unknown digit action kind", "kind", action.Kind())
		menuMsg, _ := e.msgs.Resolve(ctx, teamID, programID, models.MsgCallQueueUnavailable)
		return e.holdResponse(call, menuMsg), nil
	}
}

// requestCallback marks the caller as wanting a callback, closes their queue
// entry and acknowledges before hanging up
func (e *Engine) requestCallback(ctx context.Context, call *models.Call, teamID models.TeamID, programID models.ProgramID) (*markup.Response, error) {
	log := slog.With("comp", "calls", "call_id", call.ID())

	if err := e.store.MarkCallbackRequested(ctx, call); err != nil {
		log.Error("error marking callback requested", "error", err)
	}

	entry, err := e.store.GetOpenQueueEntry(ctx, call.ID())
	if err != nil {
		log.Error("error loading queue entry", "error", err)
	}
	if entry != nil {
		e.closeQueueEntry(ctx, entry, models.QueueActionCallback, dates.Now())
	}

	e.notify(ctx, &Notification{
		Event:   EventCallbackRequested,
		Data:    map[string]any{"call_id": call.ID(), "from": call.FromNumber()},
		Routing: Routing{Teams: []models.TeamID{teamID}},
	})

	ack, _ := e.msgs.Resolve(ctx, teamID, programID, models.MsgCallBackRequestAck)
	r := &markup.Response{}
	r.Add(promptCommands(ack)...)
	r.Add(markup.Hangup{})
	return r, nil
}

// transferToVoicemail asks the provider to move the caller leg onto the
// voicemail prompt endpoint and closes any open queue entry
func (e *Engine) transferToVoicemail(ctx context.Context, call *models.Call, action models.QueueAction, msgType models.MessageType) (*markup.Response, error) {
	log := slog.With("comp", "calls", "call_id", call.ID())

	entry, err := e.store.GetOpenQueueEntry(ctx, call.ID())
	if err != nil {
		log.Error("error loading queue entry", "error", err)
	}
	if entry != nil {
		e.closeQueueEntry(ctx, entry, action, dates.Now())
	}

	err = e.voice.TransferCall(ctx, &TransferParams{
		CallID:  call.ExternalID(),
		Legs:    "aleg",
		ALegURL: e.urls.Voicemail(string(call.UUID()), msgType),
	})
	if err != nil && !IsProviderNotFound(err) {
		log.Error("error transferring call to voicemail", "error", err)
		// transfer failed, render the voicemail prompt directly instead
		teamID, programID := e.teamForCall(ctx, call)
		msg, _ := e.msgs.Resolve(ctx, teamID, programID, msgType)
		return e.voicemailResponse(call, msg), nil
	}

	return &markup.Response{Message: "transferring to voicemail"}, nil
}

// transferToNumber moves the caller to an external phone number through a
// provider transfer command
func (e *Engine) transferToNumber(ctx context.Context, call *models.Call, number string) (*markup.Response, error) {
	log := slog.With("comp", "calls", "call_id", call.ID(), "number", number)

	if err := e.store.SetTransferredTo(ctx, call, number); err != nil {
		log.Error("error recording transfer number", "error", err)
	}

	entry, err := e.store.GetOpenQueueEntry(ctx, call.ID())
	if err != nil {
		log.Error("error loading queue entry", "error", err)
	}
	if entry != nil {
		e.closeQueueEntry(ctx, entry, models.QueueActionTransfer, dates.Now())
	}

	err = e.voice.TransferCall(ctx, &TransferParams{
		CallID:  call.ExternalID(),
		Legs:    "aleg",
		ALegURL: e.urls.TransferDial(string(call.UUID()), number),
	})
	if err != nil && !IsProviderNotFound(err) {
		log.Error("error transferring call to number", "error", err)
		// transfer failed, dial the number from this leg directly instead
		r := &markup.Response{}
		r.Add(markup.Dial{
			Action:   e.urls.PostDial(string(call.UUID())),
			CallerID: call.ToNumber(),
			Commands: []any{markup.Number{Number: number}},
		})
		return r, nil
	}

	return &markup.Response{Message: "transferring to number"}, nil
}
