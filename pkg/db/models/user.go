package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the internal identity of a platform customer.
type User struct {
	ID                 uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ExternalCustomerID int64      `gorm:"column:external_customer_id;not null;uniqueIndex"`
	Email              string     `gorm:"column:email;type:text;not null;uniqueIndex"`
	FirstName          string     `gorm:"column:first_name;not null;default:''"`
	LastName           string     `gorm:"column:last_name;not null;default:''"`
	Phone              *string    `gorm:"column:phone"`
	LastLogin          *time.Time `gorm:"column:last_login"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the primary key client side so upserts can report it.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
