package devicepolicy

import (
	"context"
	"crypto/subtle"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tendant/simple-lms/pkg/account"
	"github.com/tendant/simple-lms/pkg/audit"
	lmserrors "github.com/tendant/simple-lms/pkg/errors"
	"github.com/tendant/simple-lms/pkg/metrics"
)

// Subject is the verified identity behind an access token
type Subject struct {
	AccountID   uuid.UUID
	Role        account.Role
	Fingerprint string // fingerprint claim, empty when the token is not device bound
}

// Validator re-checks session liveness and device binding on every request
type Validator struct {
	policy   PolicySource
	sessions SessionStore
	options
}

func NewValidator(policy PolicySource, sessions SessionStore, opts ...Option) *Validator {
	return &Validator{
		policy:   policy,
		sessions: sessions,
		options:  buildOptions(opts),
	}
}

// Validate returns nil when the request may proceed
func (v *Validator) Validate(ctx context.Context, subj Subject, requestFingerprint string) error {
	if !subj.Role.IsDeviceBound() {
		v.metrics.Validation(metrics.ValidationExempt)
		return nil
	}

	live, err := v.sessions.HasLiveSession(ctx, subj.AccountID)
	switch {
	case err != nil:
		slog.Warn("Session liveness check failed, allowing request", "accountID", subj.AccountID, "error", err)
		v.metrics.Validation(metrics.ValidationFailOpen)
	case !live:
		v.metrics.Validation(metrics.ValidationSessionExpired)
		return lmserrors.ErrSessionExpiredElsewhere
	}

	enabled, err := v.policy.EnforcementEnabled(ctx)
	if err != nil {
		slog.Warn("Enforcement setting unavailable, skipping device check", "accountID", subj.AccountID, "error", err)
		v.metrics.Validation(metrics.ValidationFailOpen)
		return nil
	}
	if !enabled || subj.Fingerprint == "" {
		v.metrics.Validation(metrics.ValidationPassed)
		return nil
	}

	if requestFingerprint == "" {
		v.metrics.Validation(metrics.ValidationDeviceMissing)
		return lmserrors.ErrDeviceSessionInvalid.WithDetail("reason", "device identifier missing")
	}

	if subtle.ConstantTimeCompare([]byte(subj.Fingerprint), []byte(requestFingerprint)) != 1 {
		v.metrics.Validation(metrics.ValidationDeviceMismatch)
		v.revokeOnMismatch(ctx, subj.AccountID)
		return lmserrors.ErrDeviceSessionInvalid.WithDetail("reason", "device changed")
	}

	v.metrics.Validation(metrics.ValidationPassed)
	return nil
}

// revokeOnMismatch kills the session family. The request is refused whether or not this succeeds.
func (v *Validator) revokeOnMismatch(ctx context.Context, accountID uuid.UUID) {
	n, err := v.sessions.RevokeAll(ctx, accountID)
	if err != nil {
		slog.Error("Failed to revoke sessions after device mismatch", "accountID", accountID, "error", err)
	} else {
		v.metrics.SessionsRevoked(metrics.RevokedDeviceMismatch, n)
	}
	slog.Warn("Device mismatch, sessions revoked", "accountID", accountID, "revoked", n)
	v.audit.Record(ctx, audit.Event{
		AccountID:   accountID,
		EventType:   audit.EventDeviceMismatch,
		Description: "Access token presented from a different device; all sessions revoked",
		Metadata:    map[string]interface{}{"revoked": n},
	})
}
