package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-sync/pkg/db/models"
)

// CustomerInput is the identity carried by a customer or order event.
type CustomerInput struct {
	ExternalCustomerID int64  `validate:"gt=0"`
	Email              string `validate:"required"`
	FirstName          string
	LastName           string
	Phone              *string
}

func (c CustomerInput) toModel() *models.User {
	return &models.User{
		ExternalCustomerID: c.ExternalCustomerID,
		Email:              NormalizeEmail(c.Email),
		FirstName:          strings.TrimSpace(c.FirstName),
		LastName:           strings.TrimSpace(c.LastName),
		Phone:              normalizePhone(c.Phone),
	}
}

// UserDTO is the transport shape returned by the lookup endpoint.
type UserDTO struct {
	ID        uuid.UUID  `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Phone     *string    `json:"phone,omitempty"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
		LastLogin: u.LastLogin,
	}
}

// NormalizeEmail is applied on every write and lookup; the store keeps
// emails lowercased.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizePhone(phone *string) *string {
	if phone == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*phone)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
