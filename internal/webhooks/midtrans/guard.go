package midtranswebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edulink-id/studyfair-backend/pkg/redis"
)

// ReplayGuard suppresses exact redeliveries of a notification within the TTL.
// It is a damper only; the engine stays idempotent without it.
type ReplayGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

// NewReplayGuard builds a guard over the provided idempotency store.
func NewReplayGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*ReplayGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &ReplayGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// CheckAndMark reports whether the notification was already seen, marking it
// seen otherwise.
func (g *ReplayGuard) CheckAndMark(ctx context.Context, notificationID string) (bool, error) {
	if notificationID == "" {
		return false, errors.New("notification id is required")
	}
	key := g.store.IdempotencyKey(g.scope, notificationID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete releases the mark so a redelivery can retry after a failed apply.
func (g *ReplayGuard) Delete(ctx context.Context, notificationID string) error {
	if notificationID == "" {
		return errors.New("notification id is required")
	}
	key := g.store.IdempotencyKey(g.scope, notificationID)
	return g.store.Del(ctx, key)
}
