package device

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveFingerprint_Deterministic(t *testing.T) {
	a := DeriveFingerprint("Mozilla/5.0", "10.0.0.1")
	b := DeriveFingerprint("Mozilla/5.0", "10.0.0.1")
	c := DeriveFingerprint("Mozilla/5.0", "10.0.0.2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestFingerprintFromRequest(t *testing.T) {
	t.Run("header wins", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("X-Device-Id", "  device-123 ")
		assert.Equal(t, "device-123", FingerprintFromRequest(r, ""))
	})

	t.Run("custom header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("X-Client-Device", "abc")
		assert.Equal(t, "abc", FingerprintFromRequest(r, "X-Client-Device"))
	})

	t.Run("derived from user agent and ip", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "192.168.1.5:5555"
		r.Header.Set("User-Agent", "TestAgent")
		assert.Equal(t, DeriveFingerprint("TestAgent", "192.168.1.5"), FingerprintFromRequest(r, ""))
	})

	t.Run("overlong header is hashed", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("X-Device-Id", strings.Repeat("x", 500))
		fp := FingerprintFromRequest(r, "")
		assert.Len(t, fp, 64)
	})
}

func TestHeaderFingerprint_Absent(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.Empty(t, HeaderFingerprint(r, ""))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "[::1]:8080"
	assert.Equal(t, "::1", ClientIP(r))

	r.RemoteAddr = "not-an-addr"
	assert.Equal(t, "not-an-addr", ClientIP(r))
}

func TestDetermineDeviceName(t *testing.T) {
	tests := []struct {
		userAgent string
		expected  string
	}{
		{"", "Unknown Device"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)", "iPhone"},
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8) Mobile Safari/537.36", "Android Phone"},
		{"Mozilla/5.0 (Linux; Android 13; SM-X200) Safari/537.36", "Android Tablet"},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0", "Windows PC"},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0)", "Mac"},
		{"Mozilla/5.0 (X11; CrOS x86_64 14541.0.0)", "Chromebook"},
		{"curl/8.4.0", "Unknown Device"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, determineDeviceName(tt.userAgent))
		})
	}
}
