// Package admin implements the administrator overrides of the student device policy:
// the global device cap and enforcement toggle, per-account device reset and forced
// logout, bulk reset, and blocking individual device records.
//
// Device record deletion is the primary effect of a reset. Deleting the account's
// refresh credentials and reactivating the account are best-effort: failures are
// logged and the reset still reports success.
package admin
