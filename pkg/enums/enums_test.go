package enums

import "testing"

func TestNormalizeOrderStatus(t *testing.T) {
	cases := map[string]OrderStatus{
		"":                OrderStatusPending,
		"wc-processing":   OrderStatusProcessing,
		" Completed ":     OrderStatusCompleted,
		"awaiting-pickup": OrderStatus("awaiting-pickup"),
	}
	for in, want := range cases {
		if got := NormalizeOrderStatus(in); got != want {
			t.Fatalf("NormalizeOrderStatus(%q) = %q, want %q", in, got, want)
		}
	}
	if OrderStatus("awaiting-pickup").IsKnown() {
		t.Fatal("custom status should not be known")
	}
	if !OrderStatusShipped.IsKnown() {
		t.Fatal("shipped should be known")
	}
}

func TestWebhookTopicClassification(t *testing.T) {
	if !ParseWebhookTopic(" Order.Updated ").IsOrderUpsert() {
		t.Fatal("expected order upsert")
	}
	if !TopicCustomerCreated.IsCustomerUpsert() {
		t.Fatal("expected customer upsert")
	}
	if TopicOrderDeleted.IsOrderUpsert() || TopicOrderDeleted.IsCustomerUpsert() {
		t.Fatal("deleted topics are not upserts")
	}
}

func TestParseOutboxEventType(t *testing.T) {
	if _, err := ParseOutboxEventType("order_synced"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseOutboxEventType("order_paid"); err == nil {
		t.Fatal("expected unknown event type error")
	}
	if _, err := ParseOutboxAggregateType("customer"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
