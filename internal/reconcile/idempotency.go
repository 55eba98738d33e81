package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aistudio-app/backend/pkg/redis"
)

// IdempotencyGuard short-circuits duplicate worker callbacks before they hit
// the database. It is best effort; the status CAS is the real protection.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// CheckAndMark returns true when the callback was already seen.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, jobID string) (bool, error) {
	if jobID == "" {
		return false, errors.New("job id is required")
	}
	key := g.store.IdempotencyKey(g.scope, jobID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete releases the mark so a failed reconcile can be retried by the worker.
func (g *IdempotencyGuard) Delete(ctx context.Context, jobID string) error {
	if jobID == "" {
		return errors.New("job id is required")
	}
	key := g.store.IdempotencyKey(g.scope, jobID)
	return g.store.Del(ctx, key)
}
