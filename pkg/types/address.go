package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Address is the structured billing/shipping block copied verbatim from the
// commerce platform. No field is validated; the platform is the source of truth.
type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company,omitempty"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// IsZero reports whether every field is empty.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Value marshals Address into a jsonb document.
func (a Address) Value() (driver.Value, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("address: marshal %w", err)
	}
	return string(raw), nil
}

// Scan decodes a jsonb document. NULL and empty values yield the zero Address.
func (a *Address) Scan(value interface{}) error {
	if value == nil {
		*a = Address{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("address: unsupported scan type %T", value)
	}
	if len(raw) == 0 {
		*a = Address{}
		return nil
	}

	var decoded Address
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("address: decode %w", err)
	}
	*a = decoded
	return nil
}
