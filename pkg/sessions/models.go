package sessions

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// RefreshCredential is the server side record of an issued refresh token.
// Only the SHA-256 of the token is stored.
type RefreshCredential struct {
	ID          uuid.UUID  `json:"id"`
	AccountID   uuid.UUID  `json:"account_id"`
	TokenHash   string     `json:"-"`
	Fingerprint string     `json:"fingerprint,omitempty"` // empty when not device bound
	ExpiresAt   time.Time  `json:"expires_at"`
	Revoked     bool       `json:"revoked"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsLive reports whether the credential is neither revoked nor expired at now
func (c RefreshCredential) IsLive(now time.Time) bool {
	return !c.Revoked && now.Before(c.ExpiresAt)
}

// AccessToken is a signed short lived bearer credential
type AccessToken struct {
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"access_expires_at"`
}

// TokenPair is returned on login
type TokenPair struct {
	AccessToken
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// HashToken returns the hex SHA-256 of a raw token value
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
