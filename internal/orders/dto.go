package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-sync/internal/users"
	"github.com/angelmondragon/storefront-sync/pkg/db/models"
	"github.com/angelmondragon/storefront-sync/pkg/types"
)

// OrderDTO is the transport shape for one order. Amounts are fixed two-place
// strings to avoid float rounding in clients.
type OrderDTO struct {
	ID              uuid.UUID      `json:"id"`
	ExternalOrderID int64          `json:"external_order_id"`
	OrderNumber     string         `json:"order_number"`
	Status          string         `json:"status"`
	TotalAmount     string         `json:"total_amount"`
	Currency        string         `json:"currency"`
	OrderDate       time.Time      `json:"order_date"`
	CustomerEmail   string         `json:"customer_email"`
	ShippingAddress types.Address  `json:"shipping_address"`
	BillingAddress  types.Address  `json:"billing_address"`
	PaymentMethod   string         `json:"payment_method"`
	Notes           string         `json:"notes,omitempty"`
	TrackingNumber  *string        `json:"tracking_number,omitempty"`
	Items           []OrderItemDTO `json:"items"`
}

type OrderItemDTO struct {
	ExternalProductID int64   `json:"external_product_id"`
	ProductName       string  `json:"product_name"`
	ProductSKU        *string `json:"product_sku,omitempty"`
	Quantity          int     `json:"quantity"`
	UnitPrice         string  `json:"unit_price"`
	TotalPrice        string  `json:"total_price"`
	ProductImage      *string `json:"product_image,omitempty"`
}

// UserOrdersDTO is the lookup response body.
type UserOrdersDTO struct {
	User   *users.UserDTO `json:"user"`
	Orders []OrderDTO     `json:"orders"`
}

func OrderFromModel(o models.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemDTO{
			ExternalProductID: item.ExternalProductID,
			ProductName:       item.ProductName,
			ProductSKU:        item.ProductSKU,
			Quantity:          item.Quantity,
			UnitPrice:         item.UnitPrice.StringFixed(2),
			TotalPrice:        item.TotalPrice.StringFixed(2),
			ProductImage:      item.ProductImage,
		})
	}
	return OrderDTO{
		ID:              o.ID,
		ExternalOrderID: o.ExternalOrderID,
		OrderNumber:     o.OrderNumber,
		Status:          o.Status.String(),
		TotalAmount:     o.TotalAmount.StringFixed(2),
		Currency:        o.Currency,
		OrderDate:       o.OrderDate,
		CustomerEmail:   o.CustomerEmail,
		ShippingAddress: o.ShippingAddress,
		BillingAddress:  o.BillingAddress,
		PaymentMethod:   o.PaymentMethod,
		Notes:           o.Notes,
		TrackingNumber:  o.TrackingNumber,
		Items:           items,
	}
}

func UserOrdersFromResult(result *UserOrders) UserOrdersDTO {
	out := UserOrdersDTO{Orders: []OrderDTO{}}
	if result == nil {
		return out
	}
	out.User = users.FromModel(result.User)
	for _, o := range result.Orders {
		out.Orders = append(out.Orders, OrderFromModel(o))
	}
	return out
}
