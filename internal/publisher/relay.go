// Package publisher relays committed outbox rows to Pub/Sub.
//
// Rows are read oldest first under FOR UPDATE SKIP LOCKED, so several relay
// processes can run at once. Messages carry the aggregate id as ordering
// key; when one event of an order fails, later events of that order in the
// same batch are left for the next pass so subscribers never see them out
// of sequence.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-sync/pkg/db/models"
	"github.com/angelmondragon/storefront-sync/pkg/enums"
	"github.com/angelmondragon/storefront-sync/pkg/logger"
	"github.com/angelmondragon/storefront-sync/pkg/metrics"
	"github.com/angelmondragon/storefront-sync/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultMaxAttempts    = 10
	defaultPublishTimeout = 15 * time.Second
	maxErrorBackoff       = 10 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// Message is one Pub/Sub message built from an outbox row.
type Message struct {
	Data        []byte
	Attributes  map[string]string
	OrderingKey string
}

// Sink delivers a message to a topic and waits for the server ack.
type Sink interface {
	Send(ctx context.Context, topic string, msg Message) error
}

// Check is a dependency probed before the relay starts.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type RelayParams struct {
	Logger         *logger.Logger
	Tx             txRunner
	Outbox         outboxStore
	DeadLetters    deadLetterStore
	Registry       resolver
	Sink           Sink
	Metrics        *metrics.OutboxMetrics
	Checks         []Check
	BatchSize      int
	PollInterval   time.Duration
	MaxAttempts    int
	PublishTimeout time.Duration
}

type Relay struct {
	logg           *logger.Logger
	tx             txRunner
	outbox         outboxStore
	dlq            deadLetterStore
	registry       resolver
	sink           Sink
	metrics        *metrics.OutboxMetrics
	checks         []Check
	batchSize      int
	pollInterval   time.Duration
	maxAttempts    int
	publishTimeout time.Duration
	now            func() time.Time
}

// Stats summarizes one Drain pass.
type Stats struct {
	Fetched      int
	Published    int
	Retried      int
	Deferred     int
	DeadLettered int
}

func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.Tx == nil:
		return nil, errors.New("transaction runner is required")
	case params.Outbox == nil:
		return nil, errors.New("outbox store is required")
	case params.DeadLetters == nil:
		return nil, errors.New("dead letter store is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.Sink == nil:
		return nil, errors.New("sink is required")
	}

	r := &Relay{
		logg:           params.Logger,
		tx:             params.Tx,
		outbox:         params.Outbox,
		dlq:            params.DeadLetters,
		registry:       params.Registry,
		sink:           params.Sink,
		metrics:        params.Metrics,
		checks:         params.Checks,
		batchSize:      params.BatchSize,
		pollInterval:   params.PollInterval,
		maxAttempts:    params.MaxAttempts,
		publishTimeout: params.PublishTimeout,
		now:            func() time.Time { return time.Now().UTC() },
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.pollInterval <= 0 {
		r.pollInterval = defaultPollInterval
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.publishTimeout <= 0 {
		r.publishTimeout = defaultPublishTimeout
	}
	return r, nil
}

// Run drains the outbox until ctx ends. A full batch is followed by another
// pass right away; an empty one waits a poll interval. Failed passes back
// off exponentially with jitter up to maxErrorBackoff.
func (r *Relay) Run(ctx context.Context) error {
	for _, check := range r.checks {
		if err := check.Ping(ctx); err != nil {
			r.logg.Error(r.logg.WithField(ctx, "dependency", check.Name), "relay dependency unavailable", err)
			return fmt.Errorf("%s ping: %w", check.Name, err)
		}
	}

	backoff := r.errorBackoff()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		stats, err := r.Drain(ctx)
		if err != nil {
			r.logg.Error(ctx, "outbox relay pass failed", err)
			wait, _ := backoff.Next()
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}
		backoff = r.errorBackoff()

		if stats.Fetched >= r.batchSize {
			continue
		}
		if err := sleep(ctx, r.pollInterval); err != nil {
			return err
		}
	}
}

func (r *Relay) errorBackoff() retry.Backoff {
	b := retry.NewExponential(r.pollInterval)
	b = retry.WithJitterPercent(25, b)
	return retry.WithCappedDuration(maxErrorBackoff, b)
}

// Drain publishes one batch inside a single transaction. Row bookkeeping
// errors abort the pass; publish errors are recorded on the row.
func (r *Relay) Drain(ctx context.Context) (Stats, error) {
	var stats Stats
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		stats = Stats{}
		rows, err := r.outbox.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox rows: %w", err)
		}
		stats.Fetched = len(rows)

		blocked := map[uuid.UUID]struct{}{}
		for _, row := range rows {
			if _, ok := blocked[row.AggregateID]; ok {
				stats.Deferred++
				continue
			}
			outcome, err := r.relayOne(ctx, tx, row)
			if err != nil {
				return err
			}
			switch outcome {
			case metrics.OutboxOutcomePublished:
				stats.Published++
			case metrics.OutboxOutcomeRetry:
				stats.Retried++
				blocked[row.AggregateID] = struct{}{}
			case metrics.OutboxOutcomeDeadLettered:
				stats.DeadLettered++
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	if stats.Fetched > 0 {
		r.logg.Debug(r.logg.WithFields(ctx, map[string]any{
			"fetched":       stats.Fetched,
			"published":     stats.Published,
			"retried":       stats.Retried,
			"deferred":      stats.Deferred,
			"dead_lettered": stats.DeadLettered,
		}), "outbox relay pass")
	}
	return stats, nil
}

func (r *Relay) relayOne(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (string, error) {
	fields := rowFields(row)

	resolved, err := r.registry.Resolve(row)
	if err != nil {
		return r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err, fields)
	}
	fields["topic"] = resolved.Descriptor.Topic
	fields["event_id"] = resolved.Envelope.EventID

	sendErr := r.send(ctx, row, resolved)
	if sendErr == nil {
		if err := r.outbox.MarkPublishedTx(tx, row.ID); err != nil {
			return "", fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		r.metrics.Observe(row.EventType, metrics.OutboxOutcomePublished)
		r.logg.Info(r.logg.WithFields(ctx, fields), "outbox event published")
		return metrics.OutboxOutcomePublished, nil
	}

	var nonRetryable registry.NonRetryableError
	if errors.As(sendErr, &nonRetryable) {
		return r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, sendErr, fields)
	}
	if row.AttemptCount+1 >= r.maxAttempts {
		return r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("attempt %d: %w", row.AttemptCount+1, sendErr), fields)
	}

	if err := r.outbox.MarkFailedTx(tx, row.ID, sendErr); err != nil {
		return "", fmt.Errorf("mark failed %s: %w", row.ID, err)
	}
	fields["attempt_count"] = row.AttemptCount + 1
	r.metrics.Observe(row.EventType, metrics.OutboxOutcomeRetry)
	r.logg.Warn(r.logg.WithField(r.logg.WithFields(ctx, fields), "error", sendErr.Error()), "outbox publish failed; will retry")
	return metrics.OutboxOutcomeRetry, nil
}

func (r *Relay) send(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if actor := resolved.Envelope.Actor; actor != nil {
		attrs["actor_kind"] = actor.Kind
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	defer cancel()
	return r.sink.Send(sendCtx, resolved.Descriptor.Topic, Message{
		Data:        row.Payload,
		Attributes:  attrs,
		OrderingKey: row.AggregateID.String(),
	})
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) (string, error) {
	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      r.now(),
	}
	if err := r.dlq.InsertTx(tx, entry); err != nil {
		return "", fmt.Errorf("dead letter %s: %w", row.ID, err)
	}
	if err := r.outbox.MarkTerminalTx(tx, row.ID, cause, r.maxAttempts); err != nil {
		return "", fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}

	fields["error_reason"] = reason
	r.metrics.Observe(row.EventType, metrics.OutboxOutcomeDeadLettered)
	r.logg.Warn(r.logg.WithField(r.logg.WithFields(ctx, fields), "error", msg), "outbox event dead-lettered")
	return metrics.OutboxOutcomeDeadLettered, nil
}

func rowFields(row models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
