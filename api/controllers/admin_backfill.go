package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/storefront-sync/api/responses"
	"github.com/angelmondragon/storefront-sync/api/validators"
	"github.com/angelmondragon/storefront-sync/internal/backfill"
	pkgerrors "github.com/angelmondragon/storefront-sync/pkg/errors"
	"github.com/angelmondragon/storefront-sync/pkg/logger"
)

type backfillImporter interface {
	ImportForEmail(ctx context.Context, email string, since *time.Time) (backfill.Summary, error)
}

type backfillRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Since string `json:"since,omitempty"`
}

// AdminBackfill imports a customer's order history from the platform. Per-order
// failures are reported in the summary; only a failed listing is an error.
func AdminBackfill(svc backfillImporter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "backfill unavailable"))
			return
		}

		var body backfillRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		since, err := validators.ParseOptionalTime(body.Since, "since")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.ImportForEmail(r.Context(), body.Email, since)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
