// Package login orchestrates sign-in for the LMS: password verification, the student
// device policy, and credential issuance, in that order.
//
// The api subpackage exposes the flow over HTTP:
//
//	POST /api/auth/login    email + password, returns an access/refresh pair
//	POST /api/auth/refresh  exchanges a live refresh token for a new access token
//	POST /api/auth/logout   revokes the presented refresh token
//
// Students are identified by device. Clients send a stable identifier in the
// X-Device-Id header; without it the fingerprint is derived from the user agent
// and client IP.
package login
