package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderItem is owned by exactly one Order and has no identity across syncs:
// the whole set is replaced whenever the platform sends line items.
type OrderItem struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	Position          int             `gorm:"column:position;not null;default:0"`
	ExternalProductID int64           `gorm:"column:external_product_id;not null"`
	ProductName       string          `gorm:"column:product_name;not null"`
	ProductSKU        *string         `gorm:"column:product_sku"`
	Quantity          int             `gorm:"column:quantity;not null"`
	UnitPrice         decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	TotalPrice        decimal.Decimal `gorm:"column:total_price;type:numeric(12,2);not null"`
	ProductImage      *string         `gorm:"column:product_image"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
