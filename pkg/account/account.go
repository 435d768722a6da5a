package account

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the subject role carried by every account and every credential.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// ParseRole converts a stored or claimed role string into a Role
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// IsDeviceBound reports whether device limits, fingerprint binding and the
// single-active-session rule apply to subjects with this role. Only students are bound.
func (r Role) IsDeviceBound() bool {
	return r == RoleStudent
}

func (r Role) String() string {
	return string(r)
}

// Status is the account status. Blocked accounts fail authentication outright.
type Status string

const (
	StatusActive  Status = "active"
	StatusBlocked Status = "blocked"
)

type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	Role         Role      `json:"role"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (a Account) IsBlocked() bool {
	return a.Status == StatusBlocked
}

// NormalizeEmail lower-cases and trims an email for lookups
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
