package bootstrap

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tendant/simple-lms/pkg/account"
)

// AccountCreator is the part of account.Service the bootstrap needs
type AccountCreator interface {
	AnyWithRole(ctx context.Context, role account.Role) (bool, error)
	CreateAccount(ctx context.Context, email, password string, role account.Role) (account.Account, error)
}

// AdminBootstrapConfig contains configuration for bootstrapping the first admin account
type AdminBootstrapConfig struct {
	// Admin credentials (from ADMIN_EMAIL, ADMIN_PASSWORD). An empty password is generated.
	AdminEmail    string
	AdminPassword string

	Accounts AccountCreator
}

// AdminBootstrapResult contains the result of admin bootstrap operation
type AdminBootstrapResult struct {
	AccountID   uuid.UUID
	Email       string
	Password    string // Only populated if auto-generated
	UserCreated bool   // true if the account was created, false if skipped

	// Password was provided via environment variable
	PasswordFromEnv bool
}

// BootstrapAdmin creates the first admin account when no admin exists yet
func BootstrapAdmin(ctx context.Context, cfg AdminBootstrapConfig) (*AdminBootstrapResult, error) {
	if cfg.Accounts == nil {
		return nil, fmt.Errorf("invalid bootstrap configuration: Accounts is required")
	}
	if cfg.AdminEmail == "" {
		return &AdminBootstrapResult{UserCreated: false}, nil
	}

	exists, err := cfg.Accounts.AnyWithRole(ctx, account.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to check for admin accounts: %w", err)
	}
	if exists {
		slog.Info("Admin account already exists - skipping admin bootstrap")
		return &AdminBootstrapResult{UserCreated: false}, nil
	}

	password := cfg.AdminPassword
	if password == "" {
		password, err = generatePassword()
		if err != nil {
			return nil, err
		}
	}

	acct, err := cfg.Accounts.CreateAccount(ctx, cfg.AdminEmail, password, account.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin account: %w", err)
	}

	result := &AdminBootstrapResult{
		AccountID:       acct.ID,
		Email:           acct.Email,
		UserCreated:     true,
		PasswordFromEnv: cfg.AdminPassword != "",
	}
	if !result.PasswordFromEnv {
		result.Password = password
	}
	slog.Info("Admin account created", "email", acct.Email, "accountID", acct.ID)
	return result, nil
}

func generatePassword() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate admin password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
