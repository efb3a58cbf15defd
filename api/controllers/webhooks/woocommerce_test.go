package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	ordersync "github.com/angelmondragon/storefront-sync/internal/sync"
	woowebhook "github.com/angelmondragon/storefront-sync/internal/webhooks/woocommerce"
	"github.com/angelmondragon/storefront-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-sync/pkg/errors"
	"github.com/angelmondragon/storefront-sync/pkg/outbox"
	"github.com/angelmondragon/storefront-sync/pkg/woocommerce"
)

const testSecret = "wc_secret"

type memoryStore struct {
	keys map[string]struct{}
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]struct{}{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = struct{}{}
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

func (m *memoryStore) DeliveryKey(source, id string) string {
	return source + ":" + id
}

type fakeHandler struct {
	calls  int
	events []ordersync.Event
	actors []*outbox.ActorRef
	result ordersync.Result
	err    error
}

func (f *fakeHandler) HandleEvent(ctx context.Context, event ordersync.Event) (ordersync.Result, error) {
	f.calls++
	f.events = append(f.events, event)
	actor, _ := outbox.ActorFromContext(ctx)
	f.actors = append(f.actors, actor)
	return f.result, f.err
}

func newGuard(t *testing.T) *woowebhook.IdempotencyGuard {
	t.Helper()
	guard, err := woowebhook.NewIdempotencyGuard(newMemoryStore(), time.Minute, "woocommerce")
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	return guard
}

func signedRequest(body []byte, topic, deliveryID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/woocommerce", bytes.NewReader(body))
	req.Header.Set(woocommerce.HeaderTopic, topic)
	req.Header.Set(woocommerce.HeaderDeliveryID, deliveryID)
	req.Header.Set(woocommerce.HeaderSource, "https://shop.test/")
	req.Header.Set(woocommerce.HeaderSignature, woocommerce.ComputeSignature(testSecret, body))
	return req
}

func decodeAck(t *testing.T, rec *httptest.ResponseRecorder) webhookAck {
	t.Helper()
	var env struct {
		Data webhookAck `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v (%s)", err, rec.Body.String())
	}
	return env.Data
}

func TestWooCommerceWebhookDispatchesAndDedupes(t *testing.T) {
	orderID := uuid.New()
	svc := &fakeHandler{result: ordersync.Result{Kind: enums.TopicOrderCreated, OrderID: &orderID}}
	handler := WooCommerceWebhook(svc, newGuard(t), testSecret, nil, nil)
	body := []byte(`{"id":727,"number":"727"}`)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(body, "order.created", "d-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	ack := decodeAck(t, rec)
	if ack.OrderID == nil || *ack.OrderID != orderID.String() || ack.Duplicate {
		t.Fatalf("unexpected ack %+v", ack)
	}
	if svc.events[0].Kind != enums.TopicOrderCreated || !bytes.Equal(svc.events[0].Payload, body) {
		t.Fatalf("unexpected event %+v", svc.events[0])
	}
	if svc.actors[0] == nil || svc.actors[0].Kind != outbox.ActorWebhook || svc.actors[0].ID != "d-1" {
		t.Fatalf("unexpected actor %+v", svc.actors[0])
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(body, "order.created", "d-1"))
	if rec.Code != http.StatusOK || !decodeAck(t, rec).Duplicate {
		t.Fatalf("expected duplicate ack, got %d %s", rec.Code, rec.Body.String())
	}
	if svc.calls != 1 {
		t.Fatalf("duplicate was dispatched, calls=%d", svc.calls)
	}
}

func TestWooCommerceWebhookRejectsBadSignature(t *testing.T) {
	svc := &fakeHandler{}
	handler := WooCommerceWebhook(svc, newGuard(t), testSecret, nil, nil)

	req := signedRequest([]byte(`{"id":1}`), "order.created", "d-2")
	req.Header.Set(woocommerce.HeaderSignature, woocommerce.ComputeSignature("other", []byte(`{"id":1}`)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req = signedRequest([]byte(`{"id":1}`), "order.created", "d-3")
	req.Header.Del(woocommerce.HeaderSignature)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing signature: expected 401, got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("unsigned delivery was dispatched")
	}
}

func TestWooCommerceWebhookAcksPing(t *testing.T) {
	svc := &fakeHandler{}
	handler := WooCommerceWebhook(svc, newGuard(t), testSecret, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/woocommerce", bytes.NewReader([]byte("webhook_id=15")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("ping was dispatched")
	}
}

func TestWooCommerceWebhookFailureAllowsRetry(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "invalid payload", err: pkgerrors.New(pkgerrors.CodeValidation, "decode event payload"), status: http.StatusBadRequest},
		{name: "store unavailable", err: pkgerrors.New(pkgerrors.CodePersistence, "upsert order"), status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeHandler{err: tc.err}
			handler := WooCommerceWebhook(svc, newGuard(t), testSecret, nil, nil)
			body := []byte(`{"id":727}`)

			for attempt := 1; attempt <= 2; attempt++ {
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, signedRequest(body, "order.updated", "d-9"))
				if rec.Code != tc.status {
					t.Fatalf("attempt %d: expected %d, got %d", attempt, tc.status, rec.Code)
				}
			}
			if svc.calls != 2 {
				t.Fatalf("retry was not dispatched, calls=%d", svc.calls)
			}
		})
	}
}
