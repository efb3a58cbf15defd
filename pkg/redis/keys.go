package redis

import "strings"

const namespace = "sf"

func (c *Client) IdempotencyKey(scope, id string) string {
	return key("idempotency", scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return key("rate_limit", scope)
}

// DeliveryKey marks a processed webhook delivery from source.
func (c *Client) DeliveryKey(source, deliveryID string) string {
	return key("delivery", source, deliveryID)
}

// LockKey names a cross-instance worker lock; env may be empty.
func (c *Client) LockKey(name, env string) string {
	return key("lock", name, env)
}

func key(parts ...string) string {
	var b strings.Builder
	b.WriteString(namespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}
