package calls

import (
	"context"
	"log/slog"
	"time"

	"github.com/leaseline/callroom/core/models"
)

// The guard layer is the one place that decides whether a webhook may still
// act on a call. Handlers consult it before firing side effects so that
// duplicate and out-of-order deliveries are no-ops everywhere.

const agentLockExpiration = 10 * time.Second

// loadCall resolves the internal call for a provider call id, a NotFoundError
// if we have never seen the leg
func (e *Engine) loadCall(ctx context.Context, externalID string) (*models.Call, error) {
	call, err := e.store.GetCallByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if call == nil {
		return nil, &NotFoundError{Kind: "call", ID: externalID}
	}
	return call, nil
}

// loadCallByUUID resolves a call from the uuid we put in callback URLs
func (e *Engine) loadCallByUUID(ctx context.Context, uuid string) (*models.Call, error) {
	call, err := e.store.GetCallByUUID(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if call == nil {
		return nil, &NotFoundError{Kind: "call", ID: uuid}
	}
	return call, nil
}

// isTerminal reports whether the call already reached a terminal status, in
// which case the handler answers the provider but fires no side effects
func isTerminal(call *models.Call) bool {
	return call.Status().IsTerminal()
}

// releaseAgents flips the passed in agents back to available after call
// teardown. Two rules apply: an agent with another live call stays busy, and
// an agent who explicitly went not-available stays that way. The whole
// sequence runs under a per-call lock so concurrent teardown legs don't
// interleave their read-modify-write steps.
func (e *Engine) releaseAgents(ctx context.Context, call *models.Call, agentIDs []models.AgentID) {
	if len(agentIDs) == 0 {
		return
	}
	log := slog.With("comp", "calls", "call_id", call.ID())

	lockValue, err := e.locker.Grab("call:"+string(call.UUID()), agentLockExpiration)
	if err != nil {
		log.Error("error grabbing agent release lock", "error", err)
	} else if lockValue != "" {
		defer e.locker.Release("call:"+string(call.UUID()), lockValue)
	}

	live, err := e.voice.GetLiveCalls(ctx)
	if err != nil {
		// can't tell who still has calls, leave everyone as they are
		log.Error("error fetching live calls, skipping agent release", "error", err)
		return
	}

	for _, agentID := range agentIDs {
		agent, err := e.store.GetAgent(ctx, agentID)
		if err != nil {
			log.Error("error loading agent for release", "agent_id", agentID, "error", err)
			continue
		}
		if agent == nil {
			continue
		}

		// explicit user intent outranks automatic bookkeeping
		if agent.Status() == models.AgentNotAvailable {
			continue
		}
		if hasLiveCall(agent, live, call.ExternalID()) {
			log.Debug("agent still on a live call, staying busy", "agent_id", agentID)
			continue
		}

		applied, err := e.store.UpdateAgentStatus(ctx, agentID, models.AgentBusy, models.AgentAvailable)
		if err != nil {
			log.Error("error releasing agent", "agent_id", agentID, "error", err)
			continue
		}
		if applied {
			log.Debug("agent released", "agent_id", agentID)
		}
	}
}

// hasLiveCall returns whether any live call other than the one being torn
// down is connected to one of the agent's endpoints
func hasLiveCall(agent *models.Agent, live []*LiveCall, ignoreCallID string) bool {
	endpoints := make(map[string]bool, len(agent.SipEndpoints()))
	for _, ep := range agent.SipEndpoints() {
		endpoints[ep] = true
	}

	for _, lc := range live {
		if lc.ID == ignoreCallID {
			continue
		}
		if endpoints[lc.To] {
			return true
		}
	}
	return false
}

// markAgentBusy conditionally moves an available agent to busy
func (e *Engine) markAgentBusy(ctx context.Context, agentID models.AgentID) {
	if _, err := e.store.UpdateAgentStatus(ctx, agentID, models.AgentAvailable, models.AgentBusy); err != nil {
		slog.Error("error marking agent busy", "comp", "calls", "agent_id", agentID, "error", err)
	}
}
