package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-sync/pkg/db/models"
	"github.com/angelmondragon/storefront-sync/pkg/enums"
)

// Columns the platform owns. tracking_number and created_at are never
// overwritten by a sync.
var syncedColumns = []string{
	"order_number",
	"status",
	"total_amount",
	"currency",
	"order_date",
	"shipping_address",
	"billing_address",
	"payment_method",
	"notes",
	"updated_at",
}

// Columns a payload can only fill, never clear. A sync without an owner,
// an email or a modified time keeps what is stored.
var retainedColumns = map[string]string{
	"user_id":            "excluded.user_id",
	"customer_email":     "NULLIF(excluded.customer_email, '')",
	"source_modified_at": "excluded.source_modified_at",
}

// The stored row only yields to a payload at least as new as itself. A
// payload without a modified time carries no version and always applies.
const versionGuard = "(orders.source_modified_at IS NULL OR excluded.source_modified_at IS NULL OR orders.source_modified_at <= excluded.source_modified_at)"

func upsertAssignments() clause.Set {
	set := clause.AssignmentColumns(syncedColumns)
	for _, column := range []string{"user_id", "customer_email", "source_modified_at"} {
		set = append(set, clause.Assignment{
			Column: clause.Column{Name: column},
			Value:  gorm.Expr(fmt.Sprintf("COALESCE(%s, orders.%s)", retainedColumns[column], column)),
		})
	}
	return set
}

// Repository exposes order and order item persistence.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository that runs on tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// UpsertVersioned inserts the order or updates the row with the same
// external id when the version guard allows it. applied is false when the
// stored row is newer and was left untouched.
func (r *Repository) UpsertVersioned(ctx context.Context, order *models.Order) (bool, error) {
	res := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_order_id"}},
			DoUpdates: upsertAssignments(),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: versionGuard},
			}},
		}).
		Create(order)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FindByExternalOrderID loads the order without items.
func (r *Repository) FindByExternalOrderID(ctx context.Context, externalID int64) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("external_order_id = ?", externalID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// ReplaceItems deletes every item of the order and inserts items in slice
// order. Positions are reassigned from zero.
func (r *Repository) ReplaceItems(ctx context.Context, orderID uuid.UUID, items []models.OrderItem) error {
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&models.OrderItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].OrderID = orderID
		items[i].Position = i
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

// ListItems returns the order's items by position.
func (r *Repository) ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("position ASC").
		Find(&items).Error
	return items, err
}

// ListByUserID returns the user's orders newest first with items preloaded.
// Equal order dates fall back to the external id so the order is stable.
func (r *Repository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("user_id = ?", userID).
		Order("order_date DESC").
		Order("external_order_id ASC").
		Find(&rows).Error
	return rows, err
}

// FindByOrderNumberForUpdate locks every order carrying number, most recent
// first. Order numbers are not unique across the platform's history.
func (r *Repository) FindByOrderNumberForUpdate(ctx context.Context, number string) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_number = ?", number).
		Order("order_date DESC").
		Order("external_order_id ASC").
		Find(&rows).Error
	return rows, err
}

// UpdateTracking sets the tracking number and status on every listed order.
func (r *Repository) UpdateTracking(ctx context.Context, ids []uuid.UUID, trackingNumber string, status enums.OrderStatus, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"tracking_number": trackingNumber,
			"status":          status,
			"updated_at":      at,
		}).Error
}
