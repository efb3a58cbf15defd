package payloads

import (
	"time"

	"github.com/google/uuid"
)

// OrderSyncedEvent is emitted when a platform order is written. Stale
// deliveries rejected by the version guard emit nothing.
type OrderSyncedEvent struct {
	OrderID          uuid.UUID  `json:"orderId"`
	ExternalOrderID  int64      `json:"externalOrderId"`
	OrderNumber      string     `json:"orderNumber"`
	UserID           *uuid.UUID `json:"userId,omitempty"`
	CustomerEmail    string     `json:"customerEmail"`
	Status           string     `json:"status"`
	TotalAmount      string     `json:"totalAmount"`
	Currency         string     `json:"currency"`
	ItemCount        int        `json:"itemCount"`
	ItemsReplaced    bool       `json:"itemsReplaced"`
	SourceModifiedAt *time.Time `json:"sourceModifiedAt,omitempty"`
}

// OrderTrackingUpdatedEvent feeds the push collaborator's shipped notice.
type OrderTrackingUpdatedEvent struct {
	OrderID        uuid.UUID  `json:"orderId"`
	OrderNumber    string     `json:"orderNumber"`
	UserID         *uuid.UUID `json:"userId,omitempty"`
	TrackingNumber string     `json:"trackingNumber"`
	Status         string     `json:"status"`
}

type CustomerSyncedEvent struct {
	UserID             uuid.UUID `json:"userId"`
	ExternalCustomerID int64     `json:"externalCustomerId"`
	Email              string    `json:"email"`
}
