package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-sync/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-sync/pkg/db/models"
	"github.com/angelmondragon/storefront-sync/pkg/enums"
	"github.com/angelmondragon/storefront-sync/pkg/logger"
	"github.com/angelmondragon/storefront-sync/pkg/outbox/payloads"
)

func TestEmitWritesEnvelopeInsideTx(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	svc := NewService(repo, logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard}))

	orderID := uuid.New()
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderSynced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &ActorRef{Kind: ActorWebhook, ID: "delivery-1"},
			Data:          payloads.OrderSyncedEvent{OrderID: orderID, OrderNumber: "727"},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, client.DB().Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, orderID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, CurrentVersion, envelope.Version)
	assert.Equal(t, rows[0].ID.String(), envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, ActorWebhook, envelope.Actor.Kind)
}

func TestEmitTakesActorFromContext(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), nil)

	ctx := WithActor(context.Background(), ActorRef{Kind: ActorAdmin, ID: "ops@example.com"})
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventOrderTrackingUpdated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          payloads.OrderTrackingUpdatedEvent{TrackingNumber: "1Z"},
		})
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, client.DB().First(&row).Error)
	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, ActorAdmin, envelope.Actor.Kind)
	assert.Equal(t, "ops@example.com", envelope.Actor.ID)
}

func TestEmitRolledBackWithTx(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), nil)

	boom := errors.New("boom")
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventCustomerSynced,
			AggregateType: enums.AggregateCustomer,
			AggregateID:   uuid.New(),
			Data:          payloads.CustomerSyncedEvent{Email: "a@x.com"},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRejectsUnknownEventAndMissingTx(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderSynced}))

	client := dbtest.Open(t)
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{EventType: "order_refunded"})
	})
	require.Error(t, err)

	err = client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderSynced,
			AggregateType: enums.AggregateOrder,
			Data:          payloads.OrderSyncedEvent{OrderNumber: "727"},
		})
	})
	require.ErrorContains(t, err, "without aggregate id")
}

func TestPublishLifecycle(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first := seedEvent(t, client.DB(), base, 0)
	second := seedEvent(t, client.DB(), base.Add(time.Minute), 0)
	exhausted := seedEvent(t, client.DB(), base.Add(2*time.Minute), 3)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, first.ID, rows[0].ID)
		assert.Equal(t, second.ID, rows[1].ID)

		require.NoError(t, repo.MarkPublishedTx(tx, first.ID))
		require.NoError(t, repo.MarkFailedTx(tx, second.ID, errors.New("unavailable")))
		return nil
	})
	require.NoError(t, err)

	var stored models.OutboxEvent
	require.NoError(t, client.DB().First(&stored, "id = ?", second.ID).Error)
	assert.Equal(t, 1, stored.AttemptCount)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "unavailable", *stored.LastError)

	err = client.WithTx(context.Background(), func(tx *gorm.DB) error {
		require.NoError(t, repo.MarkTerminalTx(tx, second.ID, errors.New("gave up"), 3))
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.NoError(t, err)
		assert.Empty(t, rows)
		return nil
	})
	require.NoError(t, err)

	err = client.WithTx(context.Background(), func(tx *gorm.DB) error {
		deleted, err := repo.DeleteRetiredBefore(tx, base.Add(time.Hour), 3)
		require.NoError(t, err)
		assert.Equal(t, int64(3), deleted)
		return nil
	})
	require.NoError(t, err)
	_ = exhausted
}

func TestDeleteRetiredKeepsPendingRows(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pending := seedEvent(t, client.DB(), base, 1)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		deleted, err := repo.DeleteRetiredBefore(tx, base.Add(time.Hour), 3)
		require.NoError(t, err)
		assert.Zero(t, deleted)
		return nil
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Where("id = ?", pending.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDLQRepositoryInsertAndFind(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewDLQRepository(client.DB())

	eventID := uuid.New()
	msg := "max publish attempts reached"
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return repo.InsertTx(tx, models.OutboxDLQ{
			EventID:       eventID,
			EventType:     enums.EventOrderSynced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"version":1}`),
			ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
			ErrorMessage:  &msg,
			AttemptCount:  10,
			FailedAt:      time.Now().UTC(),
		})
	})
	require.NoError(t, err)

	found, err := repo.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, found.ErrorReason)

	missing, err := repo.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return repo.InsertTx(tx, models.OutboxDLQ{
			EventID:       eventID,
			EventType:     enums.EventOrderSynced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   found.AggregateID,
			Payload:       json.RawMessage(`{"version":1}`),
			ErrorReason:   enums.OutboxDLQReasonNonRetryable,
			FailedAt:      time.Now().UTC(),
		})
	})
	require.NoError(t, err, "second dead letter for the same event is ignored")

	again, err := repo.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, again.ErrorReason)
}

func seedEvent(t *testing.T, conn *gorm.DB, createdAt time.Time, attempts int) models.OutboxEvent {
	t.Helper()
	event := models.OutboxEvent{
		EventType:     enums.EventOrderSynced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"data":{}}`),
		CreatedAt:     createdAt,
		AttemptCount:  attempts,
	}
	require.NoError(t, conn.Create(&event).Error)
	return event
}
