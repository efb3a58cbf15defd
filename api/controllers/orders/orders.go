package orders

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront-sync/api/responses"
	"github.com/angelmondragon/storefront-sync/api/validators"
	internalorders "github.com/angelmondragon/storefront-sync/internal/orders"
	pkgerrors "github.com/angelmondragon/storefront-sync/pkg/errors"
	"github.com/angelmondragon/storefront-sync/pkg/logger"
)

type orderQuery interface {
	GetOrdersForUser(ctx context.Context, email string) (*internalorders.UserOrders, error)
}

// Lookup returns the orders of the customer with the given email, newest
// first. An unknown email answers 200 with a null user and no orders.
func Lookup(svc orderQuery, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order query unavailable"))
			return
		}

		email, err := validators.ParseQueryEmail(r, "email")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.GetOrdersForUser(r.Context(), email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.UserOrdersFromResult(result))
	}
}
