package middleware

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront-sync/api/responses"
	pkgauth "github.com/angelmondragon/storefront-sync/pkg/auth"
	pkgerrors "github.com/angelmondragon/storefront-sync/pkg/errors"
	"github.com/angelmondragon/storefront-sync/pkg/logger"
)

// Operator is the admin token holder behind a request.
type Operator struct {
	Subject string
	Role    pkgauth.Role
}

type operatorKey struct{}

// WithOperator seeds the context as AdminAuth does.
func WithOperator(ctx context.Context, subject, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, operatorKey{}, Operator{Subject: subject, Role: pkgauth.Role(role)})
}

func OperatorFromContext(ctx context.Context) (Operator, bool) {
	if ctx == nil {
		return Operator{}, false
	}
	op, ok := ctx.Value(operatorKey{}).(Operator)
	return op, ok
}

// SubjectFromContext returns the authenticated operator subject, if any.
func SubjectFromContext(ctx context.Context) string {
	op, _ := OperatorFromContext(ctx)
	return op.Subject
}

// RequireRole admits requests whose token carries one of roles.
func RequireRole(logg *logger.Logger, roles ...pkgauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op, ok := OperatorFromContext(r.Context())
			if !ok || !hasRole(roles, op.Role) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role not permitted").
					WithDetails(map[string]any{"role": string(op.Role)}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasRole(roles []pkgauth.Role, role pkgauth.Role) bool {
	for _, candidate := range roles {
		if candidate == role {
			return true
		}
	}
	return false
}
