package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-lms/pkg/account"
	lmserrors "github.com/tendant/simple-lms/pkg/errors"
	"github.com/tendant/simple-lms/pkg/tokengenerator"
)

// Issuer mints access/refresh pairs and keeps the server side refresh credential rows
type Issuer struct {
	repo               Repository
	tokens             tokengenerator.TokenGenerator
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	now                func() time.Time
}

// Option configures an Issuer
type Option func(*Issuer)

// WithAccessTokenExpiry sets the access token lifetime
func WithAccessTokenExpiry(d time.Duration) Option {
	return func(i *Issuer) {
		if d > 0 {
			i.accessTokenExpiry = d
		}
	}
}

// WithRefreshTokenExpiry sets the refresh token lifetime
func WithRefreshTokenExpiry(d time.Duration) Option {
	return func(i *Issuer) {
		if d > 0 {
			i.refreshTokenExpiry = d
		}
	}
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer creates a credential issuer
func NewIssuer(repo Repository, tokens tokengenerator.TokenGenerator, opts ...Option) *Issuer {
	i := &Issuer{
		repo:               repo,
		tokens:             tokens,
		accessTokenExpiry:  tokengenerator.DefaultAccessTokenExpiry,
		refreshTokenExpiry: tokengenerator.DefaultRefreshTokenExpiry,
		now:                func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// boundFingerprint returns the fingerprint to embed: only device bound roles carry one
func boundFingerprint(role account.Role, fingerprint string) string {
	if !role.IsDeviceBound() {
		return ""
	}
	return fingerprint
}

// Issue mints a new pair and persists the refresh credential. It does not revoke
// earlier credentials; callers enforcing single session do that first.
func (i *Issuer) Issue(ctx context.Context, accountID uuid.UUID, role account.Role, fingerprint string) (TokenPair, error) {
	fp := boundFingerprint(role, fingerprint)
	base := tokengenerator.Claims{
		Role:             role.String(),
		Fingerprint:      fp,
		RegisteredClaims: jwt.RegisteredClaims{Subject: accountID.String()},
	}

	access, err := i.mintAccess(base)
	if err != nil {
		return TokenPair{}, err
	}

	refreshClaims := base
	refreshClaims.TokenType = tokengenerator.TokenTypeRefresh
	refresh, refreshExpiresAt, err := i.tokens.GenerateToken(refreshClaims, i.refreshTokenExpiry)
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	_, err = i.repo.Create(ctx, RefreshCredential{
		AccountID:   accountID,
		TokenHash:   HashToken(refresh),
		Fingerprint: fp,
		ExpiresAt:   refreshExpiresAt,
		CreatedAt:   i.now(),
	})
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to persist refresh credential: %w", err)
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

func (i *Issuer) mintAccess(claims tokengenerator.Claims) (AccessToken, error) {
	claims.TokenType = tokengenerator.TokenTypeAccess
	token, expiresAt, err := i.tokens.GenerateToken(claims, i.accessTokenExpiry)
	if err != nil {
		return AccessToken{}, fmt.Errorf("failed to generate access token: %w", err)
	}
	return AccessToken{Token: token, ExpiresAt: expiresAt}, nil
}

// Renew exchanges a refresh token for a new access token carrying the same claims.
// A token that still verifies but whose row is gone, revoked or expired fails with SessionExpired.
func (i *Issuer) Renew(ctx context.Context, refreshToken string) (AccessToken, error) {
	claims, err := tokengenerator.ParseTyped(i.tokens, refreshToken, tokengenerator.TokenTypeRefresh)
	if err != nil {
		slog.Debug("Refresh token rejected", "error", err)
		return AccessToken{}, lmserrors.ErrSessionExpired
	}

	cred, err := i.repo.GetByTokenHash(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AccessToken{}, lmserrors.ErrSessionExpired
		}
		return AccessToken{}, err
	}
	if !cred.IsLive(i.now()) || cred.AccountID.String() != claims.Subject {
		return AccessToken{}, lmserrors.ErrSessionExpired
	}

	return i.mintAccess(tokengenerator.Claims{
		Role:             claims.Role,
		Fingerprint:      claims.Fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{Subject: claims.Subject},
	})
}

// Revoke revokes the credential behind refreshToken. Unknown tokens are ignored.
func (i *Issuer) Revoke(ctx context.Context, refreshToken string) error {
	return i.repo.RevokeByTokenHash(ctx, HashToken(refreshToken), i.now())
}

// RevokeAll revokes every credential the account holds right now
func (i *Issuer) RevokeAll(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return i.repo.RevokeAllByAccount(ctx, accountID, i.now())
}

// DeleteAll removes every credential of the account
func (i *Issuer) DeleteAll(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return i.repo.DeleteAllByAccount(ctx, accountID)
}

// HasLiveSession reports whether the account holds a non-revoked, unexpired credential
func (i *Issuer) HasLiveSession(ctx context.Context, accountID uuid.UUID) (bool, error) {
	return i.repo.HasLive(ctx, accountID, i.now())
}

// DeleteExpired purges expired credentials
func (i *Issuer) DeleteExpired(ctx context.Context) (int64, error) {
	return i.repo.DeleteExpired(ctx, i.now())
}

// RunSweeper deletes expired credentials every interval until ctx is cancelled
func (i *Issuer) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := i.DeleteExpired(ctx)
			if err != nil {
				slog.Error("Failed to sweep expired refresh credentials", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("Swept expired refresh credentials", "count", n)
			}
		}
	}
}
