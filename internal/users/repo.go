package users

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-sync/pkg/db/models"
)

// Repository exposes user persistence. Bind it to a transaction with WithTx.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
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

// UpsertByExternalCustomerID inserts the user or overwrites every mutable
// column of the row holding the same external customer id. The stored row is
// re-read so the caller sees the persisted primary key.
func (r *Repository) UpsertByExternalCustomerID(ctx context.Context, user *models.User, seenAt time.Time) (*models.User, error) {
	user.LastLogin = &seenAt
	user.UpdatedAt = seenAt
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_customer_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"email", "first_name", "last_name", "phone", "last_login", "updated_at",
			}),
		}).
		Create(user).Error
	if err != nil {
		return nil, err
	}
	return r.FindByExternalCustomerID(ctx, user.ExternalCustomerID)
}

// FindByExternalCustomerID loads the user keyed by the platform customer id.
func (r *Repository) FindByExternalCustomerID(ctx context.Context, externalID int64) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("external_customer_id = ?", externalID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail returns at most two matches so callers can detect ambiguity
// without loading every row.
func (r *Repository) FindByEmail(ctx context.Context, email string) ([]models.User, error) {
	var rows []models.User
	err := r.db.WithContext(ctx).
		Where("email = ?", email).
		Order("created_at ASC").
		Limit(2).
		Find(&rows).Error
	return rows, err
}
