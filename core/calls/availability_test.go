package calls_test

import (
	"context"
	"testing"
	"time"

	"github.com/leaseline/callroom/core/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAvailability(t *testing.T) {
	f := setup()
	ctx := context.Background()

	av, err := f.engine.ResolveAvailability(ctx, 1, nil)
	require.NoError(t, err)

	// Ann, Bob and busy Cat are all eligible, only Ann and Bob can ring
	assert.Equal(t, 3, av.Eligible)
	require.Len(t, av.Ring, 2)

	// Bob rings first, fewer booked slots
	assert.Equal(t, models.AgentID(2), av.Ring[0].ID())
	assert.Equal(t, models.AgentID(1), av.Ring[1].ID())
}

func TestResolveAvailabilityExcludes(t *testing.T) {
	f := setup()
	ctx := context.Background()

	av, err := f.engine.ResolveAvailability(ctx, 1, []models.AgentID{2})
	require.NoError(t, err)

	// exclusion removes Bob from the ring set but not from eligibility
	assert.Equal(t, 3, av.Eligible)
	require.Len(t, av.Ring, 1)
	assert.Equal(t, models.AgentID(1), av.Ring[0].ID())
}

func TestResolveAvailabilitySkipsOfflineAndEndpointless(t *testing.T) {
	f := setup()
	ctx := context.Background()

	f.store.Agents[1].Online_ = false
	f.store.Agents[2].SipEndpoints_ = nil

	av, err := f.engine.ResolveAvailability(ctx, 1, nil)
	require.NoError(t, err)

	// offline Ann doesn't count at all, endpointless Bob counts but can't ring
	assert.Equal(t, 2, av.Eligible)
	assert.Empty(t, av.Ring)
}

func TestResolveAvailabilitySkipsIneligibleRoles(t *testing.T) {
	f := setup()
	ctx := context.Background()

	f.store.Agents[1].Role_ = models.RoleDispatcher
	f.store.Agents[3].Role_ = models.RoleAuditor

	av, err := f.engine.ResolveAvailability(ctx, 1, nil)
	require.NoError(t, err)

	// dispatcher Ann and auditor Cat don't take calls at all
	assert.Equal(t, 1, av.Eligible)
	require.Len(t, av.Ring, 1)
	assert.Equal(t, models.AgentID(2), av.Ring[0].ID())
}

func TestResolveAvailabilityOrderIsDeterministic(t *testing.T) {
	f := setup()
	ctx := context.Background()

	since := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	f.store.Agents[1].Booked_ = 1
	f.store.Agents[1].MemberSince_ = since
	f.store.Agents[2].Booked_ = 1
	f.store.Agents[2].MemberSince_ = since

	av, err := f.engine.ResolveAvailability(ctx, 1, nil)
	require.NoError(t, err)

	// equal load and tenure fall back to id order
	require.Len(t, av.Ring, 2)
	assert.Equal(t, models.AgentID(1), av.Ring[0].ID())
	assert.Equal(t, models.AgentID(2), av.Ring[1].ID())
}
