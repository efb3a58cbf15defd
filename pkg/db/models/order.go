package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-sync/pkg/enums"
	"github.com/angelmondragon/storefront-sync/pkg/types"
)

// Order is the normalized copy of a platform order. UserID is the owning
// reference; CustomerEmail is a display cache refreshed on every sync.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	ExternalOrderID  int64             `gorm:"column:external_order_id;not null;uniqueIndex"`
	UserID           *uuid.UUID        `gorm:"column:user_id;type:uuid;index"`
	CustomerEmail    string            `gorm:"column:customer_email;not null;default:''"`
	OrderNumber      string            `gorm:"column:order_number;not null;index"`
	Status           enums.OrderStatus `gorm:"column:status;type:text;not null"`
	TotalAmount      decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency         string            `gorm:"column:currency;not null;default:''"`
	OrderDate        time.Time         `gorm:"column:order_date;not null"`
	ShippingAddress  types.Address     `gorm:"column:shipping_address;type:jsonb"`
	BillingAddress   types.Address     `gorm:"column:billing_address;type:jsonb"`
	PaymentMethod    string            `gorm:"column:payment_method;not null;default:''"`
	Notes            string            `gorm:"column:notes;not null;default:''"`
	TrackingNumber   *string           `gorm:"column:tracking_number"`
	SourceModifiedAt *time.Time        `gorm:"column:source_modified_at"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
