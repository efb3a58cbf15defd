package enums

import "strings"

// WebhookTopic is the event kind the platform sends in X-WC-Webhook-Topic.
type WebhookTopic string

const (
	TopicOrderCreated    WebhookTopic = "order.created"
	TopicOrderUpdated    WebhookTopic = "order.updated"
	TopicOrderDeleted    WebhookTopic = "order.deleted"
	TopicCustomerCreated WebhookTopic = "customer.created"
	TopicCustomerUpdated WebhookTopic = "customer.updated"
	TopicCustomerDeleted WebhookTopic = "customer.deleted"
)

// ParseWebhookTopic trims and lowercases the raw header value. Any string is
// accepted; dispatch decides what to do with kinds it does not handle.
func ParseWebhookTopic(value string) WebhookTopic {
	return WebhookTopic(strings.ToLower(strings.TrimSpace(value)))
}

func (t WebhookTopic) String() string {
	return string(t)
}

// IsOrderUpsert reports order.created and order.updated.
func (t WebhookTopic) IsOrderUpsert() bool {
	return t == TopicOrderCreated || t == TopicOrderUpdated
}

// IsCustomerUpsert reports customer.created and customer.updated.
func (t WebhookTopic) IsCustomerUpsert() bool {
	return t == TopicCustomerCreated || t == TopicCustomerUpdated
}
