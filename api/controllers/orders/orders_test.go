package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	internalorders "github.com/angelmondragon/storefront-sync/internal/orders"
	"github.com/angelmondragon/storefront-sync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-sync/pkg/errors"
)

type fakeQuery struct {
	result *internalorders.UserOrders
	err    error
	email  string
}

func (f *fakeQuery) GetOrdersForUser(_ context.Context, email string) (*internalorders.UserOrders, error) {
	f.email = email
	return f.result, f.err
}

type lookupEnvelope struct {
	Data struct {
		User *struct {
			Email string `json:"email"`
		} `json:"user"`
		Orders []struct {
			OrderNumber string `json:"order_number"`
			TotalAmount string `json:"total_amount"`
		} `json:"orders"`
	} `json:"data"`
}

func TestLookupReturnsOrders(t *testing.T) {
	user := &models.User{ID: uuid.New(), Email: "jane@example.com"}
	svc := &fakeQuery{result: &internalorders.UserOrders{
		User: user,
		Orders: []models.Order{
			{ID: uuid.New(), UserID: &user.ID, ExternalOrderID: 728, OrderNumber: "728", TotalAmount: decimal.RequireFromString("42.50"), OrderDate: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
			{ID: uuid.New(), UserID: &user.ID, ExternalOrderID: 727, OrderNumber: "727", TotalAmount: decimal.RequireFromString("10.00"), OrderDate: time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)},
		},
	}}

	rec := httptest.NewRecorder()
	Lookup(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders?email=jane@example.com", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body lookupEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.User == nil || body.Data.User.Email != "jane@example.com" {
		t.Fatalf("unexpected user %+v", body.Data.User)
	}
	if len(body.Data.Orders) != 2 || body.Data.Orders[0].OrderNumber != "728" || body.Data.Orders[0].TotalAmount != "42.50" {
		t.Fatalf("unexpected orders %+v", body.Data.Orders)
	}
}

func TestLookupUnknownEmail(t *testing.T) {
	svc := &fakeQuery{result: &internalorders.UserOrders{Orders: []models.Order{}}}
	rec := httptest.NewRecorder()
	Lookup(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders?email=ghost@example.com", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body lookupEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.User != nil || body.Data.Orders == nil || len(body.Data.Orders) != 0 {
		t.Fatalf("expected null user and empty orders, got %s", rec.Body.String())
	}
}

func TestLookupErrors(t *testing.T) {
	cases := []struct {
		name   string
		target string
		err    error
		status int
	}{
		{name: "missing email", target: "/api/v1/orders", status: http.StatusBadRequest},
		{name: "malformed email", target: "/api/v1/orders?email=jane", status: http.StatusBadRequest},
		{name: "store timeout", target: "/api/v1/orders?email=jane@example.com", err: pkgerrors.New(pkgerrors.CodePersistence, "list orders for user"), status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeQuery{err: tc.err}
			rec := httptest.NewRecorder()
			Lookup(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.target, nil))
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
		})
	}
}
