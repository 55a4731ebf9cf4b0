// Package call contains the CRM-facing endpoints for acting on live calls.
// Unlike the telephony webhooks these speak JSON and are called from inside
// the deployment, not by the signaling provider.
package call

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/leaseline/callroom/core/calls"
	"github.com/leaseline/callroom/core/models"
	"github.com/leaseline/callroom/web"
	"github.com/nyaruka/gocommon/jsonx"
)

func init() {
	web.RegisterRoute(http.MethodPost, "/cr/call/transfer", handleTransfer)
}

// request to hand a connected call off to a new destination
type transferRequest struct {
	CallID     string `json:"call_id"     validate:"required"`
	AgentID    int    `json:"agent_id"    validate:"required"`
	TargetType string `json:"target_type" validate:"required"`
	TargetID   int    `json:"target_id"`
	Number     string `json:"number"`
}

func handleTransfer(ctx context.Context, s *web.Server, r *http.Request, w http.ResponseWriter) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return web.WriteError(w, http.StatusBadRequest, err)
	}

	request := &transferRequest{}
	if err := jsonx.Unmarshal(body, request); err != nil {
		return web.WriteError(w, http.StatusBadRequest, fmt.Errorf("error unmarshalling request: %w", err))
	}
	if err := web.Validate(request); err != nil {
		return web.WriteError(w, http.StatusBadRequest, err)
	}

	err = s.Engine().InitiateTransfer(ctx, &calls.TransferRequest{
		CallID:     request.CallID,
		AgentID:    models.AgentID(request.AgentID),
		TargetType: models.TargetType(request.TargetType),
		TargetID:   request.TargetID,
		Number:     request.Number,
	})
	if err != nil {
		if calls.IsNotFound(err) {
			return web.WriteError(w, http.StatusNotFound, err)
		}
		var ambiguous *calls.AmbiguousStateError
		if errors.As(err, &ambiguous) {
			return web.WriteError(w, http.StatusConflict, err)
		}
		return err
	}

	return web.WriteJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}
