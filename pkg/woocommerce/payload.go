package woocommerce

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-sync/pkg/types"
)

// Platform timestamps come without a zone; the *_gmt variants are UTC.
const platformTimeLayout = "2006-01-02T15:04:05"

// Amount keeps a monetary field exactly as the platform sent it. The REST
// API mixes JSON strings ("29.99") and numbers (9.99) for prices.
type Amount string

// UnmarshalJSON accepts a JSON string, number or null.
func (a *Amount) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*a = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*a = Amount(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	*a = Amount(n.String())
	return nil
}

// Decimal parses the amount. Empty is an error: a missing total must not
// silently become zero.
func (a Amount) Decimal() (decimal.Decimal, error) {
	raw := strings.TrimSpace(string(a))
	if raw == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}
	return decimal.NewFromString(raw)
}

// Time is a platform timestamp. Both the zone-less layout and RFC 3339 are
// accepted; zone-less values are read as UTC.
type Time struct {
	time.Time
}

func (t *Time) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return fmt.Errorf("time: %w", err)
	}
	parsed, err := ParseTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// ParseTime parses a platform timestamp; empty input yields the zero time.
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed.UTC(), nil
	}
	parsed, err := time.ParseInLocation(platformTimeLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("time: unrecognized timestamp %q", value)
	}
	return parsed, nil
}

// Order is the subset of the REST order resource the sync reads.
type Order struct {
	ID                 int64         `json:"id" validate:"required,gt=0"`
	Number             string        `json:"number"`
	Status             string        `json:"status"`
	Currency           string        `json:"currency"`
	Total              Amount        `json:"total"`
	CustomerID         int64         `json:"customer_id" validate:"gte=0"`
	CustomerNote       string        `json:"customer_note"`
	PaymentMethodTitle string        `json:"payment_method_title"`
	DateCreated        Time          `json:"date_created"`
	DateCreatedGMT     Time          `json:"date_created_gmt"`
	DateModifiedGMT    Time          `json:"date_modified_gmt"`
	Billing            types.Address `json:"billing"`
	Shipping           types.Address `json:"shipping"`
	LineItems          []LineItem    `json:"line_items" validate:"dive"`
}

// CreatedAt prefers the GMT timestamp and falls back to the site-local one.
func (o Order) CreatedAt() time.Time {
	if !o.DateCreatedGMT.IsZero() {
		return o.DateCreatedGMT.Time
	}
	return o.DateCreated.Time
}

// DisplayNumber falls back to the numeric id when the store has no custom numbering.
func (o Order) DisplayNumber() string {
	if n := strings.TrimSpace(o.Number); n != "" {
		return n
	}
	return fmt.Sprintf("%d", o.ID)
}

type LineItem struct {
	ProductID int64      `json:"product_id"`
	Name      string     `json:"name"`
	SKU       string     `json:"sku"`
	Quantity  int        `json:"quantity" validate:"gt=0"`
	Price     Amount     `json:"price"`
	Total     Amount     `json:"total"`
	Image     *ItemImage `json:"image,omitempty"`
}

type ItemImage struct {
	ID  int64  `json:"id"`
	Src string `json:"src"`
}

// ImageURL returns the nested image src when present.
func (li LineItem) ImageURL() string {
	if li.Image == nil {
		return ""
	}
	return strings.TrimSpace(li.Image.Src)
}

// Customer is the subset of the REST customer resource the sync reads.
type Customer struct {
	ID              int64         `json:"id" validate:"required,gt=0"`
	Email           string        `json:"email" validate:"required,email"`
	FirstName       string        `json:"first_name"`
	LastName        string        `json:"last_name"`
	Billing         types.Address `json:"billing"`
	DateModifiedGMT Time          `json:"date_modified_gmt"`
}

// Phone prefers the billing phone; the customer resource has no top-level one.
func (c Customer) Phone() string {
	return strings.TrimSpace(c.Billing.Phone)
}
