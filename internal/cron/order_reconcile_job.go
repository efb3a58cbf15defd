package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-sync/internal/orders"
	"github.com/angelmondragon/storefront-sync/pkg/logger"
	"github.com/angelmondragon/storefront-sync/pkg/outbox"
	"github.com/angelmondragon/storefront-sync/pkg/woocommerce"
)

const (
	OrderReconcileJobName  = "order-reconcile"
	defaultReconcileWindow = 2 * time.Hour
	reconcileMaxPages      = 50
)

type orderSource interface {
	ListOrders(ctx context.Context, params woocommerce.ListOrdersParams) (*woocommerce.OrdersPage, error)
	PerPage() int
}

type orderUpserter interface {
	Upsert(ctx context.Context, payload woocommerce.Order) (*orders.UpsertResult, error)
}

type OrderReconcileJobParams struct {
	Logger *logger.Logger
	Source orderSource
	Orders orderUpserter
	Window time.Duration
}

// OrderReconcileJob re-reads orders modified within the window and runs them
// through the normalizer, picking up webhooks the platform failed to deliver.
// The version guard keeps an older REST copy from replacing newer state.
type OrderReconcileJob struct {
	logg   *logger.Logger
	source orderSource
	orders orderUpserter
	window time.Duration
	now    func() time.Time
}

func NewOrderReconcileJob(params OrderReconcileJobParams) (*OrderReconcileJob, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Source == nil {
		return nil, errors.New("order source required")
	}
	if params.Orders == nil {
		return nil, errors.New("order normalizer required")
	}
	window := params.Window
	if window <= 0 {
		window = defaultReconcileWindow
	}
	return &OrderReconcileJob{
		logg:   params.Logger,
		source: params.Source,
		orders: params.Orders,
		window: window,
		now:    time.Now,
	}, nil
}

func (j *OrderReconcileJob) Name() string { return OrderReconcileJobName }

func (j *OrderReconcileJob) Run(ctx context.Context) error {
	ctx = outbox.WithActor(ctx, outbox.ActorRef{Kind: outbox.ActorReconcile})
	since := j.now().UTC().Add(-j.window)
	perPage := j.source.PerPage()

	var (
		errs                     error
		fetched, applied, failed int
	)
	for page := 1; page <= reconcileMaxPages; page++ {
		result, err := j.source.ListOrders(ctx, woocommerce.ListOrdersParams{
			Page:          page,
			PerPage:       perPage,
			ModifiedAfter: &since,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("list page %d: %w", page, err))
			break
		}
		fetched += len(result.Orders)
		for _, payload := range result.Orders {
			res, err := j.orders.Upsert(ctx, payload)
			if err != nil {
				failed++
				errs = multierr.Append(errs, fmt.Errorf("order %d: %w", payload.ID, err))
				continue
			}
			if !res.Stale {
				applied++
			}
		}
		if !result.HasMore(perPage) {
			break
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"modified_after": since,
		"fetched":        fetched,
		"applied":        applied,
		"failed":         failed,
	}), "orders reconciled")
	return errs
}
