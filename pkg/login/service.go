package login

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tendant/simple-lms/pkg/account"
	"github.com/tendant/simple-lms/pkg/audit"
	"github.com/tendant/simple-lms/pkg/device"
	"github.com/tendant/simple-lms/pkg/devicepolicy"
	lmserrors "github.com/tendant/simple-lms/pkg/errors"
	"github.com/tendant/simple-lms/pkg/sessions"
)

// Authenticator verifies email and password
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (account.Account, error)
}

// Admitter runs the device policy for an authenticated subject and calls issue while
// the account is still locked
type Admitter interface {
	AdmitAndIssue(ctx context.Context, accountID uuid.UUID, role account.Role, fingerprint string, meta device.Meta, issue func(ctx context.Context) error) (devicepolicy.Admission, error)
}

// CredentialIssuer mints and manages credential pairs
type CredentialIssuer interface {
	Issue(ctx context.Context, accountID uuid.UUID, role account.Role, fingerprint string) (sessions.TokenPair, error)
	Renew(ctx context.Context, refreshToken string) (sessions.AccessToken, error)
	Revoke(ctx context.Context, refreshToken string) error
}

type LoginRequest struct {
	Email       string
	Password    string
	Fingerprint string
	UserAgent   string
	IP          string
}

// LoginResult is a successful login
type LoginResult struct {
	sessions.TokenPair
	Account   account.Account
	Admission devicepolicy.Admission
}

type Service struct {
	accounts Authenticator
	policy   Admitter
	issuer   CredentialIssuer
	audit    audit.Recorder
}

type Option func(*Service)

func WithAudit(r audit.Recorder) Option {
	return func(s *Service) { s.audit = r }
}

func NewService(accounts Authenticator, policy Admitter, issuer CredentialIssuer, opts ...Option) *Service {
	s := &Service{
		accounts: accounts,
		policy:   policy,
		issuer:   issuer,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.audit = audit.OrNop(s.audit)
	return s
}

// Login authenticates the request, admits it under the device policy and issues a credential pair.
// Earlier credentials of a student are revoked before the new pair is minted.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	if account.NormalizeEmail(req.Email) == "" || req.Password == "" {
		return LoginResult{}, lmserrors.ErrInvalidCredentials
	}

	acct, err := s.accounts.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return LoginResult{}, err
	}

	var pair sessions.TokenPair
	issue := func(ctx context.Context) error {
		var err error
		pair, err = s.issuer.Issue(ctx, acct.ID, acct.Role, req.Fingerprint)
		if err != nil {
			return fmt.Errorf("failed to issue credentials: %w", err)
		}
		return nil
	}

	adm, err := s.policy.AdmitAndIssue(ctx, acct.ID, acct.Role, req.Fingerprint, device.Meta{
		UserAgent: req.UserAgent,
		IPAddress: req.IP,
	}, issue)
	if err != nil {
		slog.Info("Login rejected", "accountID", acct.ID, "error", err)
		return LoginResult{}, err
	}

	s.audit.Record(ctx, audit.Event{
		AccountID:   acct.ID,
		EventType:   audit.EventLoginSucceeded,
		Description: "Login succeeded",
		Metadata: map[string]interface{}{
			"role":             acct.Role.String(),
			"ip_address":       req.IP,
			"new_device":       adm.NewDevice,
			"sessions_revoked": adm.SessionsRevoked,
		},
	})
	return LoginResult{TokenPair: pair, Account: acct, Admission: adm}, nil
}

// Refresh exchanges a live refresh token for a new access token
func (s *Service) Refresh(ctx context.Context, refreshToken string) (sessions.AccessToken, error) {
	if refreshToken == "" {
		return sessions.AccessToken{}, lmserrors.ErrSessionExpired
	}
	return s.issuer.Renew(ctx, refreshToken)
}

// Logout revokes the refresh credential behind refreshToken. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.issuer.Revoke(ctx, refreshToken); err != nil {
		return fmt.Errorf("failed to revoke refresh credential: %w", err)
	}
	return nil
}
