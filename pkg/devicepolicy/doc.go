// Package devicepolicy enforces the student device policy.
//
// The Engine runs at login. For device-bound subjects it checks the admin block
// flag, the per-student device cap and the enforcement toggle against the device
// registry, records the device, and revokes every earlier refresh credential so that
// only the session about to be issued stays live.
//
// The Validator runs on every authenticated request. It requires a live refresh
// credential for students and, while enforcement is on, that the fingerprint bound
// into the access token matches the one presented with the request. A mismatch
// revokes the whole session family.
//
// Policy violations always fail closed. Storage errors inside the Validator fail
// open and are logged and counted, since refusing all traffic on a database hiccup is
// worse than briefly skipping a device check.
package devicepolicy
