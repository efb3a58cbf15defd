package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-sync/pkg/db"
	"github.com/angelmondragon/storefront-sync/pkg/db/models"
	"github.com/angelmondragon/storefront-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-sync/pkg/errors"
	"github.com/angelmondragon/storefront-sync/pkg/logger"
	"github.com/angelmondragon/storefront-sync/pkg/outbox"
	"github.com/angelmondragon/storefront-sync/pkg/outbox/payloads"
)

// TrackingService records shipment tracking set by staff.
type TrackingService struct {
	repo    *Repository
	tx      txRunner
	outbox  outboxPublisher
	logg    *logger.Logger
	timeout time.Duration
}

func NewTrackingService(repo *Repository, tx txRunner, outbox outboxPublisher, logg *logger.Logger, callTimeout time.Duration) (*TrackingService, error) {
	if repo == nil {
		return nil, errors.New("orders repository required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if outbox == nil {
		return nil, errors.New("outbox publisher required")
	}
	return &TrackingService{repo: repo, tx: tx, outbox: outbox, logg: logg, timeout: callTimeout}, nil
}

// UpdateTracking sets the tracking number on every order with the given
// display number and returns the most recent one. An empty status means
// shipped.
func (s *TrackingService) UpdateTracking(ctx context.Context, orderNumber, trackingNumber string, status enums.OrderStatus) (*models.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	trackingNumber = strings.TrimSpace(trackingNumber)
	if orderNumber == "" || trackingNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number and tracking number are required")
	}
	if status == "" {
		status = enums.OrderStatusShipped
	} else {
		status = enums.NormalizeOrderStatus(status.String())
	}

	ctx, cancel := db.WithCallTimeout(ctx, s.timeout)
	defer cancel()

	var (
		updated *models.Order
		matched int
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.FindByOrderNumberForUpdate(ctx, orderNumber)
		if err != nil {
			return db.Persistence(err, "find order by number")
		}
		if len(rows) == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}

		ids := make([]uuid.UUID, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		now := time.Now().UTC()
		if err := repo.UpdateTracking(ctx, ids, trackingNumber, status, now); err != nil {
			return db.Persistence(err, "update tracking")
		}

		for i := range rows {
			order := &rows[i]
			order.TrackingNumber = &trackingNumber
			order.Status = status
			order.UpdatedAt = now
			err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderTrackingUpdated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Data: payloads.OrderTrackingUpdatedEvent{
					OrderID:        order.ID,
					OrderNumber:    order.OrderNumber,
					UserID:         order.UserID,
					TrackingNumber: trackingNumber,
					Status:         status.String(),
				},
			})
			if err != nil {
				return err
			}
		}
		updated = &rows[0]
		matched = len(rows)
		return nil
	})
	if err != nil {
		return nil, db.Persistence(err, "update tracking")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":     updated.ID.String(),
			"order_number": updated.OrderNumber,
			"status":       status,
			"matched":      matched,
		})
		s.logg.Info(logCtx, "order tracking updated")
	}
	return updated, nil
}
