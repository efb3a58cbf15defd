package validators

import (
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-sync/pkg/errors"
)

// ParseQueryEmail reads a required email query parameter.
func ParseQueryEmail(r *http.Request, key string) (string, error) {
	raw := SanitizeString(r.URL.Query().Get(key), maxEmailLen)
	if raw == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "email is required").WithDetails(map[string]any{"field": key})
	}
	if err := validate.Var(raw, "email"); err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "email is invalid").WithDetails(map[string]any{"field": key})
	}
	return raw, nil
}

// ParseOptionalTime parses an RFC 3339 timestamp; blank means nil.
func ParseOptionalTime(value, field string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "timestamp must be RFC 3339").WithDetails(map[string]any{"field": field})
	}
	utc := parsed.UTC()
	return &utc, nil
}
