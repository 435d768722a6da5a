// Package device provides device fingerprinting and the per-account device registry
// used by the student device policy.
//
// # Overview
//
// The device package provides:
//   - Deterministic request fingerprints (client header, or a hash of user-agent and client IP)
//   - DeviceRecord storage keyed by (account, fingerprint) with upsert semantics
//   - Login and activity counters, the device change counter and the admin block flag
//   - An account-scoped lock so concurrent logins for one account are serialized
//
// # Basic Usage
//
//	import "github.com/tendant/simple-lms/pkg/device"
//
//	repo := device.NewPostgresRepository(pool)
//	fp := device.FingerprintFromRequest(r, "X-Device-Id")
//
//	err := repo.WithAccountLock(ctx, accountID, func(ctx context.Context, tx device.Repository) error {
//		records, err := tx.ListByAccount(ctx, accountID)
//		...
//	})
//
// # Fingerprints
//
// A fingerprint is never random. When the client sends the configured device header
// its value is used verbatim. Otherwise the fingerprint is the hex SHA-256 of
// "<user-agent>|<client ip>", so the same browser on the same network reproduces
// the same value without any client side storage.
package device
