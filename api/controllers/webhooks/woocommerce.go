package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/storefront-sync/api/responses"
	ordersync "github.com/angelmondragon/storefront-sync/internal/sync"
	woowebhook "github.com/angelmondragon/storefront-sync/internal/webhooks/woocommerce"
	pkgerrors "github.com/angelmondragon/storefront-sync/pkg/errors"
	"github.com/angelmondragon/storefront-sync/pkg/logger"
	"github.com/angelmondragon/storefront-sync/pkg/metrics"
	"github.com/angelmondragon/storefront-sync/pkg/outbox"
	"github.com/angelmondragon/storefront-sync/pkg/woocommerce"
)

const maxWebhookBody = 4 << 20

type eventHandler interface {
	HandleEvent(ctx context.Context, event ordersync.Event) (ordersync.Result, error)
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Delete(ctx context.Context, deliveryID string) error
}

type webhookAck struct {
	Received  bool    `json:"received"`
	Duplicate bool    `json:"duplicate,omitempty"`
	Ignored   bool    `json:"ignored,omitempty"`
	Stale     bool    `json:"stale,omitempty"`
	OrderID   *string `json:"order_id,omitempty"`
	UserID    *string `json:"user_id,omitempty"`
}

// WooCommerceWebhook verifies, dedupes and dispatches platform deliveries.
// A failed dispatch clears the delivery mark so the platform's retry runs.
func WooCommerceWebhook(svc eventHandler, guard deliveryGuard, secret string, syncMetrics *metrics.SyncMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sync service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		delivery := woowebhook.DeliveryFromRequest(r)
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"delivery_id":    delivery.DeliveryID,
				"webhook_topic":  delivery.Topic.String(),
				"webhook_source": delivery.Source,
			})
		}

		if woowebhook.IsPing(delivery, payload) {
			if logg != nil {
				logg.Info(ctx, "webhook.ping")
			}
			responses.WriteSuccess(w, webhookAck{Received: true})
			return
		}

		if !woocommerce.VerifySignature(secret, payload, delivery.Signature) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		if delivery.DeliveryID != "" {
			seen, err := guard.CheckAndMark(ctx, delivery.DeliveryID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check delivery"))
				return
			}
			if seen {
				syncMetrics.IncDuplicate(delivery.Topic.String())
				if logg != nil {
					logg.Info(ctx, "webhook.duplicate")
				}
				responses.WriteSuccess(w, webhookAck{Received: true, Duplicate: true})
				return
			}
		} else if logg != nil {
			logg.Warn(ctx, "webhook.missing_delivery_id")
		}

		ctx = outbox.WithActor(ctx, outbox.ActorRef{Kind: outbox.ActorWebhook, ID: delivery.DeliveryID})
		result, err := svc.HandleEvent(ctx, ordersync.Event{Kind: delivery.Topic, Payload: payload})
		if err != nil {
			if delivery.DeliveryID != "" {
				if delErr := guard.Delete(ctx, delivery.DeliveryID); delErr != nil && logg != nil {
					logg.Error(ctx, "webhook.unmark_failed", delErr)
				}
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, ackFromResult(result))
	}
}

func ackFromResult(res ordersync.Result) webhookAck {
	ack := webhookAck{Received: true, Ignored: res.Ignored, Stale: res.Stale}
	if res.OrderID != nil {
		id := res.OrderID.String()
		ack.OrderID = &id
	}
	if res.UserID != nil {
		id := res.UserID.String()
		ack.UserID = &id
	}
	return ack
}
