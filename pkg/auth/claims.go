package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/greenline-backend/pkg/enums"
)

// Identity is the authenticated caller derived from a verified token.
type Identity struct {
	UserID string
	Role   enums.ActorRole
}

// AccessTokenClaims is the identity provider's token shape. The subject is the
// user id.
type AccessTokenClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}
