package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Role scopes what an operator token may do on the admin routes.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleOperator
}

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	Subject string
	Role    Role
	JTI     string
}

// AccessTokenClaims represents the typed JWT presented on admin routes.
type AccessTokenClaims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}
