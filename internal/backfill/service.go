package backfill

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-sync/internal/orders"
	"github.com/angelmondragon/storefront-sync/internal/users"
	pkgerrors "github.com/angelmondragon/storefront-sync/pkg/errors"
	"github.com/angelmondragon/storefront-sync/pkg/logger"
	"github.com/angelmondragon/storefront-sync/pkg/outbox"
	"github.com/angelmondragon/storefront-sync/pkg/woocommerce"
)

const defaultMaxPages = 100

type orderSource interface {
	ListOrders(ctx context.Context, params woocommerce.ListOrdersParams) (*woocommerce.OrdersPage, error)
	PerPage() int
}

type orderUpserter interface {
	Upsert(ctx context.Context, payload woocommerce.Order) (*orders.UpsertResult, error)
}

type ServiceParams struct {
	Source   orderSource
	Orders   orderUpserter
	Logger   *logger.Logger
	MaxPages int
}

// Service imports a customer's historical orders from the platform REST API.
type Service struct {
	source   orderSource
	orders   orderUpserter
	logg     *logger.Logger
	maxPages int
}

// Summary reports one import run. Err combines every per-order failure.
type Summary struct {
	Email    string   `json:"email"`
	Pages    int      `json:"pages"`
	Fetched  int      `json:"fetched"`
	Matched  int      `json:"matched"`
	Imported int      `json:"imported"`
	Stale    int      `json:"stale"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
	Err      error    `json:"-"`
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Source == nil {
		return nil, errors.New("order source required")
	}
	if params.Orders == nil {
		return nil, errors.New("order normalizer required")
	}
	maxPages := params.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	return &Service{
		source:   params.Source,
		orders:   params.Orders,
		logg:     params.Logger,
		maxPages: maxPages,
	}, nil
}

// ImportForEmail pages through orders matching the email search and
// normalizes those whose billing email matches exactly. A failing order is
// recorded in the summary and the import moves on.
func (s *Service) ImportForEmail(ctx context.Context, email string, since *time.Time) (Summary, error) {
	email = users.NormalizeEmail(email)
	summary := Summary{Email: email}
	if email == "" {
		return summary, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}

	ctx = outbox.WithActor(ctx, outbox.ActorRef{Kind: outbox.ActorBackfill, ID: email})
	perPage := s.source.PerPage()

	var combined error
	for page := 1; page <= s.maxPages; page++ {
		result, err := s.source.ListOrders(ctx, woocommerce.ListOrdersParams{
			Page:    page,
			PerPage: perPage,
			Search:  email,
			After:   since,
		})
		if err != nil {
			summary.Err = combined
			summary.Errors = errorStrings(combined)
			return summary, err
		}
		summary.Pages++
		summary.Fetched += len(result.Orders)

		for _, payload := range result.Orders {
			if users.NormalizeEmail(payload.Billing.Email) != email {
				continue
			}
			summary.Matched++
			upserted, err := s.orders.Upsert(ctx, payload)
			if err != nil {
				summary.Failed++
				combined = multierr.Append(combined, fmt.Errorf("order %d: %w", payload.ID, err))
				continue
			}
			if upserted.Stale {
				summary.Stale++
				continue
			}
			summary.Imported++
		}

		if !result.HasMore(perPage) {
			break
		}
	}

	summary.Err = combined
	summary.Errors = errorStrings(combined)

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"email":    email,
			"pages":    summary.Pages,
			"fetched":  summary.Fetched,
			"matched":  summary.Matched,
			"imported": summary.Imported,
			"failed":   summary.Failed,
		})
		if combined != nil {
			s.logg.Error(logCtx, "backfill completed with failures", combined)
		} else {
			s.logg.Info(logCtx, "backfill completed")
		}
	}
	return summary, nil
}

func errorStrings(err error) []string {
	errs := multierr.Errors(err)
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, strings.TrimSpace(e.Error()))
	}
	return out
}
