package calls

import (
	"context"
	"log/slog"

	"github.com/leaseline/callroom/core/calls/markup"
	"github.com/leaseline/callroom/core/models"
)

// TransferRequest is an agent-initiated transfer of a connected call
type TransferRequest struct {
	CallID     string
	AgentID    models.AgentID    // the agent handing the call off
	TargetType models.TargetType // team, team_member or external
	TargetID   int
	Number     string // external number when TargetType is external
}

// InitiateTransfer moves a connected caller to a new destination. The caller
// leg is redirected to a fresh direct-dial pass against the new target, for
// external numbers through the transfer-dial endpoint. The original call
// record stays intact, transfers to external numbers create a linked
// outbound record.
func (e *Engine) InitiateTransfer(ctx context.Context, req *TransferRequest) error {
	call, err := e.loadCall(ctx, req.CallID)
	if err != nil {
		return err
	}
	log := slog.With("comp", "calls", "call_id", call.ID(), "target_type", req.TargetType)

	if isTerminal(call) {
		return &AmbiguousStateError{Reason: "call already ended, nothing to transfer"}
	}

	var alegURL string
	switch req.TargetType {
	case models.TargetExternal:
		if err := e.store.SetTransferredTo(ctx, call, req.Number); err != nil {
			log.Error("error recording transfer number", "error", err)
		}

		// the external leg gets its own linked record so reporting sees both
		out := &models.Call{
			ExternalID_:        call.ExternalID(),
			Direction_:         models.DirectionOut,
			Status_:            models.CallStatusRinging,
			TargetType_:        models.TargetExternal,
			FromNumber_:        call.ToNumber(),
			ToNumber_:          req.Number,
			TransferredFromID_: call.ID(),
			Raw_:               rawFromEvent(call.ExternalID(), nil),
		}
		if err := e.store.InsertCall(ctx, out); err != nil {
			return err
		}
		alegURL = e.urls.TransferDial(string(out.UUID()), req.Number)

	case models.TargetTeam, models.TargetTeamMember, models.TargetUser, models.TargetProgram:
		handoff := &models.Call{
			ExternalID_:        call.ExternalID(),
			Direction_:         call.Direction(),
			Status_:            models.CallStatusRinging,
			TargetType_:        req.TargetType,
			TargetID_:          req.TargetID,
			FromNumber_:        call.FromNumber(),
			ToNumber_:          call.ToNumber(),
			TransferredFromID_: call.ID(),
			Raw_:               rawFromEvent(call.ExternalID(), nil),
		}
		if err := e.store.InsertCall(ctx, handoff); err != nil {
			return err
		}
		alegURL = e.urls.TransferTarget(string(handoff.UUID()))

	default:
		return &AmbiguousStateError{Reason: "unknown transfer target type"}
	}

	err = e.voice.TransferCall(ctx, &TransferParams{
		CallID:  call.ExternalID(),
		Legs:    "aleg",
		ALegURL: alegURL,
	})
	if err != nil {
		if IsProviderNotFound(err) {
			return &AmbiguousStateError{Reason: "call gone at provider, nothing to transfer"}
		}
		return err
	}

	// the initiator has handed the call off, free them if nothing else holds
	e.releaseAgents(ctx, call, []models.AgentID{req.AgentID})
	return nil
}

// TransferDial renders the markup for a transferred leg dialing an external
// number. Served on the endpoint transfer commands point their aleg at.
func (e *Engine) TransferDial(ctx context.Context, callUUID, number string) (*markup.Response, error) {
	call, err := e.loadCallByUUID(ctx, callUUID)
	if err != nil {
		return nil, err
	}
	if isTerminal(call) {
		return markup.HangupResponse("call already ended"), nil
	}

	r := &markup.Response{}
	r.Add(markup.Dial{
		Action:      e.urls.PostDial(callUUID),
		CallbackURL: e.urls.CallbackDial(callUUID),
		CallerID:    call.FromNumber(),
		Timeout:     e.dialTimeout,
		Commands:    []any{markup.Number{Number: number}},
	})
	return r, nil
}

// TransferTarget re-runs routing for a transferred leg against its new
// target, reusing the direct-dial flow on the existing record
func (e *Engine) TransferTarget(ctx context.Context, callUUID string) (*markup.Response, error) {
	call, err := e.loadCallByUUID(ctx, callUUID)
	if err != nil {
		return nil, err
	}
	return e.DirectDial(ctx, &DirectDialRequest{
		CallID:     call.ExternalID(),
		From:       call.FromNumber(),
		To:         call.ToNumber(),
		TargetType: call.TargetType(),
		TargetID:   call.TargetID(),
	})
}
