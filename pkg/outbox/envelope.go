package outbox

import (
	"context"
	"encoding/json"
	"time"
)

// Actor kinds recorded on emitted events.
const (
	ActorWebhook   = "webhook"
	ActorAdmin     = "admin"
	ActorBackfill  = "backfill"
	ActorReconcile = "reconcile"
)

// ActorRef identifies what caused the event: a webhook delivery, an admin
// subject, or a scheduled job.
type ActorRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

type actorKey struct{}

// WithActor records who is driving the current operation so events emitted
// further down the call chain carry it.
func WithActor(ctx context.Context, actor ActorRef) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor set by WithActor.
func ActorFromContext(ctx context.Context) (*ActorRef, bool) {
	if ctx == nil {
		return nil, false
	}
	actor, ok := ctx.Value(actorKey{}).(ActorRef)
	if !ok {
		return nil, false
	}
	return &actor, true
}
