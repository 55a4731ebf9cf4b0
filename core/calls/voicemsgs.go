package calls

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/leaseline/callroom/core/models"
	cache "github.com/patrickmn/go-cache"
)

// MessageResolver looks up the voice prompts configured for a team. Lookups
// are read-mostly so resolved sets are cached for a short while.
type MessageResolver struct {
	store Store
	cache *cache.Cache
}

// NewMessageResolver creates a new resolver around the passed in store
func NewMessageResolver(store Store) *MessageResolver {
	return &MessageResolver{
		store: store,
		cache: cache.New(time.Minute*5, time.Minute*15),
	}
}

// Resolve returns the prompt of the passed in type for a team. A missing
// team is a NotFoundError, a missing localization fails soft: it is logged
// and an empty-safe message comes back so callers always have something to
// render.
func (r *MessageResolver) Resolve(ctx context.Context, teamID models.TeamID, programID models.ProgramID, msgType models.MessageType) (models.VoiceMessage, error) {
	if teamID == models.NilTeamID {
		return models.VoiceMessage{}, &NotFoundError{Kind: "team", ID: "0"}
	}

	key := fmt.Sprintf("%d:%d", teamID, programID)
	cached, found := r.cache.Get(key)
	if !found {
		set, err := r.store.GetVoiceMessages(ctx, teamID, programID)
		if err != nil {
			return models.VoiceMessage{}, err
		}
		// cache our own copy, the store's map may be mutated under us
		set = maps.Clone(set)
		r.cache.Set(key, set, cache.DefaultExpiration)
		cached = set
	}

	set := cached.(models.VoiceMessageSet)
	msg, ok := set[msgType]
	if !ok || msg.IsEmpty() {
		slog.Warn("no voice message configured", "comp", "calls", "team_id", teamID, "message_type", msgType)
		return models.VoiceMessage{Type_: msgType}, nil
	}
	return msg, nil
}
