package sync

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-sync/internal/orders"
	"github.com/angelmondragon/storefront-sync/internal/users"
	"github.com/angelmondragon/storefront-sync/pkg/db/models"
	"github.com/angelmondragon/storefront-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-sync/pkg/errors"
	"github.com/angelmondragon/storefront-sync/pkg/logger"
	"github.com/angelmondragon/storefront-sync/pkg/metrics"
	"github.com/angelmondragon/storefront-sync/pkg/woocommerce"
)

type orderNormalizer interface {
	Upsert(ctx context.Context, payload woocommerce.Order) (*orders.UpsertResult, error)
}

type customerResolver interface {
	ResolveOrCreate(ctx context.Context, in users.CustomerInput) (*models.User, error)
}

// Event is one inbound change notification from the platform.
type Event struct {
	Kind    enums.WebhookTopic
	Payload json.RawMessage
}

// Result describes what HandleEvent did.
type Result struct {
	Kind    enums.WebhookTopic
	Ignored bool
	Stale   bool
	OrderID *uuid.UUID
	UserID  *uuid.UUID
}

type ServiceParams struct {
	Orders    orderNormalizer
	Customers customerResolver
	Logger    *logger.Logger
	Metrics   *metrics.SyncMetrics
}

// Orchestrator routes platform events to the order normalizer or the
// identity resolver.
type Orchestrator struct {
	orders    orderNormalizer
	customers customerResolver
	logg      *logger.Logger
	metrics   *metrics.SyncMetrics
}

func NewOrchestrator(params ServiceParams) (*Orchestrator, error) {
	if params.Orders == nil {
		return nil, errors.New("order normalizer required")
	}
	if params.Customers == nil {
		return nil, errors.New("customer resolver required")
	}
	return &Orchestrator{
		orders:    params.Orders,
		customers: params.Customers,
		logg:      params.Logger,
		metrics:   params.Metrics,
	}, nil
}

// HandleEvent dispatches by kind. Deletes and unknown kinds are ignored
// without error.
func (o *Orchestrator) HandleEvent(ctx context.Context, event Event) (Result, error) {
	started := time.Now()
	kind := enums.ParseWebhookTopic(event.Kind.String())

	var (
		res Result
		err error
	)
	switch {
	case kind.IsOrderUpsert():
		res, err = o.handleOrder(ctx, event.Payload)
	case kind.IsCustomerUpsert():
		res, err = o.handleCustomer(ctx, event.Payload)
	default:
		res = Result{Ignored: true}
		if o.logg != nil {
			o.logg.Info(o.logg.WithTopic(ctx, kind.String()), "sync event ignored")
		}
	}
	res.Kind = kind

	o.metrics.Observe(kind.String(), outcome(res, err), time.Since(started))
	return res, err
}

func (o *Orchestrator) handleOrder(ctx context.Context, raw json.RawMessage) (Result, error) {
	var payload woocommerce.Order
	if err := decode(raw, &payload); err != nil {
		return Result{}, err
	}
	upserted, err := o.orders.Upsert(ctx, payload)
	if err != nil {
		return Result{}, err
	}
	id := upserted.Order.ID
	return Result{Stale: upserted.Stale, OrderID: &id, UserID: upserted.Order.UserID}, nil
}

func (o *Orchestrator) handleCustomer(ctx context.Context, raw json.RawMessage) (Result, error) {
	var payload woocommerce.Customer
	if err := decode(raw, &payload); err != nil {
		return Result{}, err
	}
	in := users.CustomerInput{
		ExternalCustomerID: payload.ID,
		Email:              payload.Email,
		FirstName:          payload.FirstName,
		LastName:           payload.LastName,
	}
	if phone := strings.TrimSpace(payload.Phone()); phone != "" {
		in.Phone = &phone
	}
	user, err := o.customers.ResolveOrCreate(ctx, in)
	if err != nil {
		return Result{}, err
	}
	return Result{UserID: &user.ID}, nil
}

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "event payload is empty")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event payload")
	}
	return nil
}

func outcome(res Result, err error) string {
	switch {
	case err != nil && pkgerrors.IsCode(err, pkgerrors.CodeValidation):
		return metrics.OutcomeInvalid
	case err != nil:
		return metrics.OutcomeFailed
	case res.Ignored:
		return metrics.OutcomeIgnored
	case res.Stale:
		return metrics.OutcomeStale
	default:
		return metrics.OutcomeApplied
	}
}
