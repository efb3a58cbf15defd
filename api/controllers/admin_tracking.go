package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-sync/api/responses"
	"github.com/angelmondragon/storefront-sync/api/validators"
	internalorders "github.com/angelmondragon/storefront-sync/internal/orders"
	"github.com/angelmondragon/storefront-sync/pkg/db/models"
	"github.com/angelmondragon/storefront-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-sync/pkg/errors"
	"github.com/angelmondragon/storefront-sync/pkg/logger"
)

type trackingUpdater interface {
	UpdateTracking(ctx context.Context, orderNumber, trackingNumber string, status enums.OrderStatus) (*models.Order, error)
}

type trackingRequest struct {
	TrackingNumber string `json:"tracking_number" validate:"required,max=128"`
	Status         string `json:"status" validate:"max=32"`
}

// AdminUpdateTracking sets the tracking number on an order by its display number.
func AdminUpdateTracking(svc trackingUpdater, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tracking service unavailable"))
			return
		}

		orderNumber := validators.SanitizeString(chi.URLParam(r, "orderNumber"), 64)
		if orderNumber == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order number is required"))
			return
		}

		var body trackingRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.UpdateTracking(r.Context(), orderNumber, validators.SanitizeString(body.TrackingNumber, 128), enums.OrderStatus(body.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.OrderFromModel(*order))
	}
}
