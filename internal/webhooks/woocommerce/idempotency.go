package woowebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultDeliveryTTL covers the platform's retry horizon.
const DefaultDeliveryTTL = 72 * time.Hour

type deliveryStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	DeliveryKey(source, deliveryID string) string
}

// IdempotencyGuard marks webhook deliveries as seen so redeliveries of the
// same delivery id are acknowledged without being dispatched again.
type IdempotencyGuard struct {
	store  deliveryStore
	ttl    time.Duration
	source string
}

func NewIdempotencyGuard(store deliveryStore, ttl time.Duration, source string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("delivery store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if ttl == 0 {
		ttl = DefaultDeliveryTTL
	}
	if strings.TrimSpace(source) == "" {
		return nil, errors.New("source is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, source: source}, nil
}

// CheckAndMark reports whether the delivery was already seen and marks it
// otherwise.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, deliveryID string) (bool, error) {
	key, err := g.key(deliveryID)
	if err != nil {
		return false, err
	}
	set, err := g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark delivery: %w", err)
	}
	return !set, nil
}

// Delete clears the mark so the platform's retry is processed.
func (g *IdempotencyGuard) Delete(ctx context.Context, deliveryID string) error {
	key, err := g.key(deliveryID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *IdempotencyGuard) key(deliveryID string) (string, error) {
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return "", errors.New("delivery id is required")
	}
	return g.store.DeliveryKey(g.source, deliveryID), nil
}
