package enums

import "strings"

// OrderStatus mirrors the commerce platform's order status. The set is open:
// stores can register custom statuses, so unknown values are stored as-is.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusOnHold     OrderStatus = "on-hold"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
	OrderStatusFailed     OrderStatus = "failed"
)

var knownOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusOnHold,
	OrderStatusShipped,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusRefunded,
	OrderStatusFailed,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsKnown reports whether the status is one of the stock platform statuses.
func (s OrderStatus) IsKnown() bool {
	for _, candidate := range knownOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// NormalizeOrderStatus lowercases and strips the "wc-" prefix the platform
// uses for post statuses. Empty input becomes pending.
func NormalizeOrderStatus(value string) OrderStatus {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.TrimPrefix(v, "wc-")
	if v == "" {
		return OrderStatusPending
	}
	return OrderStatus(v)
}
