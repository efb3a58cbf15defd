package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-sync/internal/users"
	"github.com/angelmondragon/storefront-sync/pkg/db"
	"github.com/angelmondragon/storefront-sync/pkg/db/models"
	"github.com/angelmondragon/storefront-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-sync/pkg/errors"
	"github.com/angelmondragon/storefront-sync/pkg/logger"
	"github.com/angelmondragon/storefront-sync/pkg/outbox"
	"github.com/angelmondragon/storefront-sync/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-sync/pkg/woocommerce"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type identityResolver interface {
	ResolveOrCreateTx(ctx context.Context, tx *gorm.DB, in users.CustomerInput) (*models.User, error)
	LookupByEmailTx(ctx context.Context, tx *gorm.DB, email string) (*models.User, bool, error)
	LookupByExternalIDTx(ctx context.Context, tx *gorm.DB, externalID int64) (*models.User, bool, error)
}

// NormalizerParams wires the order normalizer.
type NormalizerParams struct {
	Repo        *Repository
	Users       identityResolver
	Tx          txRunner
	Outbox      outboxPublisher
	Logger      *logger.Logger
	CallTimeout time.Duration
}

// Normalizer maps platform orders into orders and order_items.
type Normalizer struct {
	repo     *Repository
	users    identityResolver
	tx       txRunner
	outbox   outboxPublisher
	logg     *logger.Logger
	timeout  time.Duration
	validate *validator.Validate
}

// UpsertResult reports what a sync did to the stored order.
type UpsertResult struct {
	Order         *models.Order
	Stale         bool
	ItemsReplaced bool
}

func NewNormalizer(params NormalizerParams) (*Normalizer, error) {
	if params.Repo == nil {
		return nil, errors.New("orders repository required")
	}
	if params.Users == nil {
		return nil, errors.New("identity resolver required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox publisher required")
	}
	return &Normalizer{
		repo:     params.Repo,
		users:    params.Users,
		tx:       params.Tx,
		outbox:   params.Outbox,
		logg:     params.Logger,
		timeout:  params.CallTimeout,
		validate: validator.New(),
	}, nil
}

// UpsertOrder stores the payload and returns the persisted order with items.
func (n *Normalizer) UpsertOrder(ctx context.Context, payload woocommerce.Order) (*models.Order, error) {
	res, err := n.Upsert(ctx, payload)
	if err != nil {
		return nil, err
	}
	return res.Order, nil
}

// Upsert runs the whole sync in one transaction: owner resolution, the
// version-guarded order upsert, item replacement and the order_synced event.
// Amounts and dates are parsed first so a bad payload writes nothing.
func (n *Normalizer) Upsert(ctx context.Context, payload woocommerce.Order) (*UpsertResult, error) {
	order, items, err := n.mapPayload(payload)
	if err != nil {
		return nil, err
	}

	ctx, cancel := db.WithCallTimeout(ctx, n.timeout)
	defer cancel()

	result := &UpsertResult{}
	err = n.tx.WithTx(ctx, func(tx *gorm.DB) error {
		owner, err := n.resolveOwner(ctx, tx, payload)
		if err != nil {
			return err
		}
		if owner != nil {
			order.UserID = &owner.ID
		}

		repo := n.repo.WithTx(tx)
		applied, err := repo.UpsertVersioned(ctx, order)
		if err != nil {
			return db.Persistence(err, "upsert order")
		}
		stored, err := repo.FindByExternalOrderID(ctx, payload.ID)
		if err != nil {
			return db.Persistence(err, "reload order")
		}
		result.Order = stored
		result.Stale = !applied

		if applied && len(items) > 0 {
			if err := repo.ReplaceItems(ctx, stored.ID, items); err != nil {
				return db.Persistence(err, "replace order items")
			}
			result.ItemsReplaced = true
		}

		stored.Items, err = repo.ListItems(ctx, stored.ID)
		if err != nil {
			return db.Persistence(err, "load order items")
		}
		if !applied {
			return nil
		}
		return n.emitSynced(ctx, tx, stored, result.ItemsReplaced)
	})
	if err != nil {
		return nil, db.Persistence(err, "sync order")
	}

	if n.logg != nil {
		logCtx := n.logg.WithFields(ctx, map[string]any{
			"order_id":          result.Order.ID.String(),
			"external_order_id": payload.ID,
			"status":            result.Order.Status,
			"items_replaced":    result.ItemsReplaced,
		})
		if result.Stale {
			n.logg.Warn(logCtx, "stale order payload ignored")
		} else {
			n.logg.Info(logCtx, "order synced")
		}
	}
	return result, nil
}

func (n *Normalizer) resolveOwner(ctx context.Context, tx *gorm.DB, payload woocommerce.Order) (*models.User, error) {
	email := users.NormalizeEmail(payload.Billing.Email)
	if payload.CustomerID > 0 {
		if email == "" {
			// Not enough to upsert the customer; link whoever already holds the id.
			user, found, err := n.users.LookupByExternalIDTx(ctx, tx, payload.CustomerID)
			if err != nil || !found {
				return nil, err
			}
			return user, nil
		}
		var phone *string
		if p := strings.TrimSpace(payload.Billing.Phone); p != "" {
			phone = &p
		}
		return n.users.ResolveOrCreateTx(ctx, tx, users.CustomerInput{
			ExternalCustomerID: payload.CustomerID,
			Email:              email,
			FirstName:          payload.Billing.FirstName,
			LastName:           payload.Billing.LastName,
			Phone:              phone,
		})
	}
	// Guest checkout: link to an existing account holding the billing email.
	user, found, err := n.users.LookupByEmailTx(ctx, tx, email)
	if err != nil || !found {
		return nil, err
	}
	return user, nil
}

func (n *Normalizer) emitSynced(ctx context.Context, tx *gorm.DB, order *models.Order, itemsReplaced bool) error {
	return n.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderSynced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderSyncedEvent{
			OrderID:          order.ID,
			ExternalOrderID:  order.ExternalOrderID,
			OrderNumber:      order.OrderNumber,
			UserID:           order.UserID,
			CustomerEmail:    order.CustomerEmail,
			Status:           order.Status.String(),
			TotalAmount:      order.TotalAmount.StringFixed(2),
			Currency:         order.Currency,
			ItemCount:        len(order.Items),
			ItemsReplaced:    itemsReplaced,
			SourceModifiedAt: order.SourceModifiedAt,
		},
	})
}

func (n *Normalizer) mapPayload(payload woocommerce.Order) (*models.Order, []models.OrderItem, error) {
	if err := n.validate.Struct(payload); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order payload")
	}

	total, err := payload.Total.Decimal()
	if err != nil {
		return nil, nil, invalidField("total", payload.Total, err)
	}
	orderDate := payload.CreatedAt()
	if orderDate.IsZero() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "order date is missing")
	}

	items := make([]models.OrderItem, 0, len(payload.LineItems))
	for i, li := range payload.LineItems {
		price, err := li.Price.Decimal()
		if err != nil {
			return nil, nil, invalidField(fmt.Sprintf("line_items[%d].price", i), li.Price, err)
		}
		lineTotal, err := li.Total.Decimal()
		if err != nil {
			return nil, nil, invalidField(fmt.Sprintf("line_items[%d].total", i), li.Total, err)
		}
		items = append(items, models.OrderItem{
			ExternalProductID: li.ProductID,
			ProductName:       strings.TrimSpace(li.Name),
			ProductSKU:        optional(li.SKU),
			Quantity:          li.Quantity,
			UnitPrice:         price.Round(2),
			TotalPrice:        lineTotal.Round(2),
			ProductImage:      optional(li.ImageURL()),
		})
	}

	order := &models.Order{
		ExternalOrderID: payload.ID,
		CustomerEmail:   users.NormalizeEmail(payload.Billing.Email),
		OrderNumber:     payload.DisplayNumber(),
		Status:          enums.NormalizeOrderStatus(payload.Status),
		TotalAmount:     total.Round(2),
		Currency:        strings.ToUpper(strings.TrimSpace(payload.Currency)),
		OrderDate:       orderDate.UTC(),
		ShippingAddress: payload.Shipping,
		BillingAddress:  payload.Billing,
		PaymentMethod:   strings.TrimSpace(payload.PaymentMethodTitle),
		Notes:           payload.CustomerNote,
		UpdatedAt:       time.Now().UTC(),
	}
	if modified := payload.DateModifiedGMT.Time; !modified.IsZero() {
		m := modified.UTC()
		order.SourceModifiedAt = &m
	}
	return order, items, nil
}

func invalidField(field string, raw woocommerce.Amount, err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("%s is not a valid amount", field)).
		WithDetails(map[string]any{"field": field, "value": string(raw)})
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
