// Package errors provides structured error handling with error codes for simple-lms.
//
// Every operational failure the authentication and device policy code can produce
// is an *Error carrying an ErrorCode. Codes map to HTTP status codes, so handlers
// never pick a status themselves.
//
// # Basic Usage
//
//	import "github.com/tendant/simple-lms/pkg/errors"
//
//	// Return a sentinel from a service
//	return errors.ErrDeviceLimitExceeded
//
//	// Inspect it in a caller
//	if errors.IsCode(err, errors.ErrCodeDeviceLimitExceeded) {
//		// show "too many devices" screen
//	}
//
//	// Sentinels also work with the standard library
//	if stderrors.Is(err, errors.ErrSessionExpired) { ... }
//
//	// Render from an HTTP handler
//	errors.RenderError(w, r, err)
//
// # Device policy codes
//
//   - DEVICE_BLOCKED: the fingerprint was blocked by an administrator (403)
//   - DEVICE_LIMIT_EXCEEDED: a new fingerprint would exceed the per-student cap (403)
//   - DEVICE_SESSION_INVALID: the bearer credential is bound to another device (401).
//     Clients show a "logged out due to device change" message for this code.
//   - SESSION_EXPIRED / SESSION_EXPIRED_ELSEWHERE: no live refresh credential (401)
//   - INVALID_POLICY_VALUE: admin tried to set the cap outside {1,2} (400)
//
// INVALID_CREDENTIALS uses the same message for unknown emails and wrong passwords.
package errors
