package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	lmserrors "github.com/tendant/simple-lms/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// Service authenticates accounts and exposes the lookups the device policy needs
type Service struct {
	repo Repository
	// dummyHash is compared against when the email is unknown so both failure paths cost the same
	dummyHash []byte
	cost      int
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithBcryptCost overrides bcrypt.DefaultCost for newly hashed passwords
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) {
		s.cost = cost
	}
}

// NewService creates a new account service
func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{
		repo: repo,
		cost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), s.cost)
	return s
}

// Authenticate verifies email and password. Unknown email and wrong password return
// the same InvalidCredentials error. A blocked account fails with AccountBlocked.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Account, error) {
	acct, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return Account{}, lmserrors.ErrInvalidCredentials
		}
		return Account{}, fmt.Errorf("failed to look up account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(password)); err != nil {
		slog.Debug("Password mismatch", "accountID", acct.ID)
		return Account{}, lmserrors.ErrInvalidCredentials
	}

	if acct.IsBlocked() {
		slog.Warn("Blocked account attempted to log in", "accountID", acct.ID)
		return Account{}, lmserrors.ErrAccountBlocked
	}
	return acct, nil
}

// Get returns the account with the given id
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	acct, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Account{}, lmserrors.NotFound("account", id.String())
		}
		return Account{}, err
	}
	return acct, nil
}

// Activate sets the account status back to active
func (s *Service) Activate(ctx context.Context, id uuid.UUID) error {
	return s.repo.SetStatus(ctx, id, StatusActive)
}

// AnyWithRole reports whether at least one account holds role
func (s *Service) AnyWithRole(ctx context.Context, role Role) (bool, error) {
	ids, err := s.repo.ListIDsByRole(ctx, role)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

// ListStudentIDs returns the ids of every student account
func (s *Service) ListStudentIDs(ctx context.Context) ([]uuid.UUID, error) {
	return s.repo.ListIDsByRole(ctx, RoleStudent)
}

// CreateAccount hashes the password and stores a new active account
func (s *Service) CreateAccount(ctx context.Context, email, password string, role Role) (Account, error) {
	if NormalizeEmail(email) == "" {
		return Account{}, lmserrors.InvalidInput("email", "must not be empty")
	}
	if len(password) < 8 {
		return Account{}, lmserrors.InvalidInput("password", "must be at least 8 characters")
	}
	if _, err := ParseRole(string(role)); err != nil {
		return Account{}, lmserrors.InvalidInput("role", err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Account{}, fmt.Errorf("failed to hash password: %w", err)
	}
	return s.repo.Create(ctx, Account{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       StatusActive,
	})
}
