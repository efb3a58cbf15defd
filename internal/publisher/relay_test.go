package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-sync/pkg/config"
	"github.com/angelmondragon/storefront-sync/pkg/db"
	"github.com/angelmondragon/storefront-sync/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-sync/pkg/db/models"
	"github.com/angelmondragon/storefront-sync/pkg/enums"
	"github.com/angelmondragon/storefront-sync/pkg/logger"
	"github.com/angelmondragon/storefront-sync/pkg/outbox"
	"github.com/angelmondragon/storefront-sync/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-sync/pkg/outbox/registry"
)

type sentMessage struct {
	topic string
	msg   Message
}

type fakeSink struct {
	mu   sync.Mutex
	sent []sentMessage
	fail func(Message) error
}

func (s *fakeSink) Send(_ context.Context, topic string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		if err := s.fail(msg); err != nil {
			return err
		}
	}
	s.sent = append(s.sent, sentMessage{topic: topic, msg: msg})
	return nil
}

type relayFixture struct {
	client *db.Client
	repo   *outbox.Repository
	dlq    *outbox.DLQRepository
	sink   *fakeSink
	relay  *Relay
	base   time.Time
}

func newRelayFixture(t *testing.T, maxAttempts int) *relayFixture {
	t.Helper()
	client := dbtest.Open(t)
	reg, err := registry.NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders", CustomersTopic: "customers"})
	require.NoError(t, err)

	f := &relayFixture{
		client: client,
		repo:   outbox.NewRepository(client.DB()),
		dlq:    outbox.NewDLQRepository(client.DB()),
		sink:   &fakeSink{},
		base:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.relay, err = NewRelay(RelayParams{
		Logger:      logger.New(logger.Options{ServiceName: "relay-test", Output: io.Discard}),
		Tx:          client,
		Outbox:      f.repo,
		DeadLetters: f.dlq,
		Registry:    reg,
		Sink:        f.sink,
		BatchSize:   10,
		MaxAttempts: maxAttempts,
	})
	require.NoError(t, err)
	return f
}

// insert writes a row seq seconds after the fixture base time so fetch
// order is deterministic.
func (f *relayFixture) insert(t *testing.T, seq int, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, aggregateID uuid.UUID, data any, attempts int) models.OutboxEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    outbox.CurrentVersion,
		EventID:    uuid.NewString(),
		OccurredAt: f.base,
		Actor:      &outbox.ActorRef{Kind: outbox.ActorWebhook, ID: "delivery-1"},
		Data:       raw,
	})
	require.NoError(t, err)

	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   aggregateID,
		Payload:       envelope,
		CreatedAt:     f.base.Add(time.Duration(seq) * time.Second),
		AttemptCount:  attempts,
	}
	require.NoError(t, f.repo.Insert(f.client.DB(), row))
	return row
}

func (f *relayFixture) insertOrderSynced(t *testing.T, seq int, orderID uuid.UUID, attempts int) models.OutboxEvent {
	return f.insert(t, seq, enums.EventOrderSynced, enums.AggregateOrder, orderID,
		payloads.OrderSyncedEvent{OrderID: orderID, ExternalOrderID: 727, OrderNumber: "727", Status: "processing", TotalAmount: "29.99"}, attempts)
}

func (f *relayFixture) reload(t *testing.T, id uuid.UUID) models.OutboxEvent {
	t.Helper()
	var row models.OutboxEvent
	require.NoError(t, f.client.DB().Where("id = ?", id).Take(&row).Error)
	return row
}

func TestDrainPublishesWithOrderingKeyAndAttributes(t *testing.T) {
	f := newRelayFixture(t, 5)
	orderID := uuid.New()
	row := f.insertOrderSynced(t, 1, orderID, 0)
	customerID := uuid.New()
	f.insert(t, 2, enums.EventCustomerSynced, enums.AggregateCustomer, customerID,
		payloads.CustomerSyncedEvent{UserID: customerID, ExternalCustomerID: 42, Email: "ada@example.com"}, 0)

	stats, err := f.relay.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Fetched: 2, Published: 2}, stats)

	require.Len(t, f.sink.sent, 2)
	first := f.sink.sent[0]
	assert.Equal(t, "orders", first.topic)
	assert.Equal(t, orderID.String(), first.msg.OrderingKey)
	assert.Equal(t, string(enums.EventOrderSynced), first.msg.Attributes["event_type"])
	assert.Equal(t, orderID.String(), first.msg.Attributes["aggregate_id"])
	assert.Equal(t, outbox.ActorWebhook, first.msg.Attributes["actor_kind"])
	assert.NotEmpty(t, first.msg.Attributes["event_id"])
	assert.JSONEq(t, string(row.Payload), string(first.msg.Data))
	assert.Equal(t, "customers", f.sink.sent[1].topic)

	assert.NotNil(t, f.reload(t, row.ID).PublishedAt)

	stats, err = f.relay.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Fetched)
}

func TestDrainDefersLaterEventsOfFailedAggregate(t *testing.T) {
	f := newRelayFixture(t, 5)
	blockedOrder := uuid.New()
	otherOrder := uuid.New()
	first := f.insertOrderSynced(t, 1, blockedOrder, 0)
	second := f.insert(t, 2, enums.EventOrderTrackingUpdated, enums.AggregateOrder, blockedOrder,
		payloads.OrderTrackingUpdatedEvent{OrderID: blockedOrder, OrderNumber: "727", TrackingNumber: "1Z999"}, 0)
	other := f.insertOrderSynced(t, 3, otherOrder, 0)

	f.sink.fail = func(msg Message) error {
		if msg.Attributes["event_type"] == string(enums.EventOrderSynced) && msg.OrderingKey == blockedOrder.String() {
			return errors.New("deadline exceeded")
		}
		return nil
	}

	stats, err := f.relay.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Fetched: 3, Published: 1, Retried: 1, Deferred: 1}, stats)

	failed := f.reload(t, first.ID)
	assert.Nil(t, failed.PublishedAt)
	assert.Equal(t, 1, failed.AttemptCount)
	require.NotNil(t, failed.LastError)
	assert.Contains(t, *failed.LastError, "deadline exceeded")

	deferred := f.reload(t, second.ID)
	assert.Nil(t, deferred.PublishedAt)
	assert.Zero(t, deferred.AttemptCount)

	assert.NotNil(t, f.reload(t, other.ID).PublishedAt)

	f.sink.fail = nil
	stats, err = f.relay.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Published)
	require.Len(t, f.sink.sent, 3)
	assert.Equal(t, string(enums.EventOrderSynced), f.sink.sent[1].msg.Attributes["event_type"])
	assert.Equal(t, string(enums.EventOrderTrackingUpdated), f.sink.sent[2].msg.Attributes["event_type"])
}

func TestDrainDeadLettersUnresolvableRow(t *testing.T) {
	f := newRelayFixture(t, 5)
	row := f.insert(t, 1, enums.OutboxEventType("order_exploded"), enums.AggregateOrder, uuid.New(), map[string]string{"x": "y"}, 0)

	stats, err := f.relay.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DeadLettered)
	assert.Empty(t, f.sink.sent)

	entry, err := f.dlq.FindByEventID(context.Background(), row.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)

	assert.Equal(t, 5, f.reload(t, row.ID).AttemptCount)
	stats, err = f.relay.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Fetched)
}

func TestDrainDeadLettersAfterMaxAttempts(t *testing.T) {
	f := newRelayFixture(t, 3)
	row := f.insertOrderSynced(t, 1, uuid.New(), 2)
	f.sink.fail = func(Message) error { return errors.New("unavailable") }

	stats, err := f.relay.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DeadLettered)

	entry, err := f.dlq.FindByEventID(context.Background(), row.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, entry.ErrorReason)
	require.NotNil(t, entry.ErrorMessage)
	assert.Contains(t, *entry.ErrorMessage, "unavailable")
}

func TestDrainDeadLettersNonRetryableSendError(t *testing.T) {
	f := newRelayFixture(t, 5)
	row := f.insertOrderSynced(t, 1, uuid.New(), 0)
	f.sink.fail = func(Message) error {
		return registry.NewNonRetryableError(errors.New("message too large"))
	}

	stats, err := f.relay.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DeadLettered)

	entry, err := f.dlq.FindByEventID(context.Background(), row.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)
}

func TestRunFailsFastOnDependencyCheck(t *testing.T) {
	f := newRelayFixture(t, 5)
	f.relay.checks = []Check{{Name: "pubsub", Ping: func(context.Context) error { return errors.New("no topic") }}}

	err := f.relay.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pubsub ping")
}

func TestRunDrainsUntilCancelled(t *testing.T) {
	f := newRelayFixture(t, 5)
	f.relay.pollInterval = 5 * time.Millisecond
	orderID := uuid.New()
	f.insertOrderSynced(t, 1, orderID, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		f.sink.mu.Lock()
		defer f.sink.mu.Unlock()
		return len(f.sink.sent) > 0
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after cancel")
	}
	assert.Equal(t, orderID.String(), f.sink.sent[0].msg.OrderingKey)
}

func TestNewRelayRequiresDependencies(t *testing.T) {
	_, err := NewRelay(RelayParams{})
	require.Error(t, err)
}
