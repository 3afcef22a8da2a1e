package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/login/ports"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/cache"
)

// Store keeps login session state in a cache with a sliding TTL: every
// Save pushes the expiry out again.
type Store struct {
	cache cache.Cache
	keys  cache.KeyBuilder
	ttl   time.Duration
}

var _ ports.SessionStore = (*Store)(nil)

func NewStore(c cache.Cache, ttl time.Duration) *Store {
	return &Store{
		cache: c,
		keys:  cache.NewKeyBuilder("session"),
		ttl:   ttl,
	}
}

func (s *Store) Load(ctx context.Context, id string) (ports.SessionState, bool, error) {
	var state ports.SessionState
	err := s.cache.Get(ctx, s.keys.Build(id), &state)
	if errors.Is(err, cache.ErrCacheMiss) {
		return ports.SessionState{}, false, nil
	}
	if err != nil {
		return ports.SessionState{}, false, fmt.Errorf("failed to load login session: %w", err)
	}
	return state, true, nil
}

func (s *Store) Save(ctx context.Context, id string, state ports.SessionState) error {
	if err := s.cache.Set(ctx, s.keys.Build(id), state, s.ttl); err != nil {
		return fmt.Errorf("failed to save login session: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, s.keys.Build(id))
}
