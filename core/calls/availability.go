package calls

import (
	"context"
	"slices"

	"github.com/leaseline/callroom/core/models"
)

// Availability is the computed candidate picture for a routing decision
type Availability struct {
	// Ring are the agents whose endpoints we may actually dial, in
	// deterministic next-agent order
	Ring []*models.Agent

	// Eligible is the count of agents who are online and either available
	// or busy. Busy agents can't be rung but still make a team
	// queue-eligible, the caller waits for them to free up.
	Eligible int
}

// ResolveAvailability computes the candidate agent set for a team. Members
// whose role doesn't take calls are skipped entirely, and agents in the
// exclusion set (e.g. a transfer initiator) never ring. Ring order is
// fewest booked slots first, then earliest membership, ties broken by id so
// the ordering is reproducible.
func (e *Engine) ResolveAvailability(ctx context.Context, teamID models.TeamID, exclude []models.AgentID) (*Availability, error) {
	agents, err := e.store.GetTeamAgents(ctx, teamID)
	if err != nil {
		return nil, err
	}

	excluded := make(map[models.AgentID]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	av := &Availability{}
	for _, a := range agents {
		if !a.Online() || !a.CallEligible() {
			continue
		}
		if a.Status() == models.AgentAvailable || a.Status() == models.AgentBusy {
			av.Eligible++
		}
		if a.Status() != models.AgentAvailable || excluded[a.ID()] || len(a.SipEndpoints()) == 0 {
			continue
		}
		av.Ring = append(av.Ring, a)
	}

	slices.SortFunc(av.Ring, func(a, b *models.Agent) int {
		if a.Booked() != b.Booked() {
			return a.Booked() - b.Booked()
		}
		if !a.MemberSince().Equal(b.MemberSince()) {
			if a.MemberSince().Before(b.MemberSince()) {
				return -1
			}
			return 1
		}
		return int(a.ID()) - int(b.ID())
	})

	return av, nil
}

// ringEndpoints flattens the ring set into the SIP endpoints to dial
func ringEndpoints(agents []*models.Agent) []string {
	endpoints := make([]string, 0, len(agents))
	for _, a := range agents {
		endpoints = append(endpoints, a.SipEndpoints()...)
	}
	return endpoints
}

// ringAgentIDs returns the ids of the agents in the ring set
func ringAgentIDs(agents []*models.Agent) []models.AgentID {
	ids := make([]models.AgentID, len(agents))
	for i, a := range agents {
		ids[i] = a.ID()
	}
	return ids
}
