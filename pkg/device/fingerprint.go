package device

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// DefaultDeviceHeader is the request header clients use to supply their fingerprint
const DefaultDeviceHeader = "X-Device-Id"

// maxFingerprintLength bounds client supplied identifiers
const maxFingerprintLength = 128

// DeriveFingerprint hashes the request characteristics into a stable fingerprint
func DeriveFingerprint(userAgent, ip string) string {
	hash := sha256.Sum256([]byte(userAgent + "|" + ip))
	return hex.EncodeToString(hash[:])
}

// HeaderFingerprint returns the client supplied fingerprint from header, or "" when absent.
// Overlong values are hashed down rather than rejected.
func HeaderFingerprint(r *http.Request, header string) string {
	if header == "" {
		header = DefaultDeviceHeader
	}
	fp := strings.TrimSpace(r.Header.Get(header))
	if len(fp) > maxFingerprintLength {
		hash := sha256.Sum256([]byte(fp))
		return hex.EncodeToString(hash[:])
	}
	return fp
}

// FingerprintFromRequest returns the header fingerprint when present, otherwise derives
// one from the user-agent and client IP.
func FingerprintFromRequest(r *http.Request, header string) string {
	if fp := HeaderFingerprint(r, header); fp != "" {
		return fp
	}
	return DeriveFingerprint(r.UserAgent(), ClientIP(r))
}

// ClientIP returns the originating client address. chi's RealIP middleware, when
// installed, has already rewritten RemoteAddr from X-Forwarded-For / X-Real-IP.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// MetaFromRequest collects the descriptive attributes stored on a DeviceRecord
func MetaFromRequest(r *http.Request) Meta {
	return Meta{
		UserAgent: r.UserAgent(),
		IPAddress: ClientIP(r),
	}
}

// determineDeviceName guesses a human readable name from the user agent
func determineDeviceName(userAgent string) string {
	if userAgent == "" {
		return "Unknown Device"
	}

	if contains(userAgent, "iPhone") {
		return "iPhone"
	} else if contains(userAgent, "iPad") {
		return "iPad"
	} else if contains(userAgent, "Android") && contains(userAgent, "Mobile") {
		return "Android Phone"
	} else if contains(userAgent, "Android") {
		return "Android Tablet"
	}

	if contains(userAgent, "CrOS") {
		return "Chromebook"
	} else if contains(userAgent, "Macintosh") || contains(userAgent, "Mac OS X") {
		return "Mac"
	} else if contains(userAgent, "Windows") {
		return "Windows PC"
	} else if contains(userAgent, "Linux") {
		return "Linux"
	}

	// Edge and Chrome both advertise Safari, so order matters
	switch {
	case contains(userAgent, "Edg"):
		return "Edge Browser"
	case contains(userAgent, "Firefox"):
		return "Firefox Browser"
	case contains(userAgent, "Chrome"):
		return "Chrome Browser"
	case contains(userAgent, "Safari"):
		return "Safari Browser"
	}
	return "Unknown Device"
}

// contains reports whether s contains substr, case insensitive
func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
