// Package auth verifies the admin credential used by the privileged license
// operations.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"
)

// ErrEmptySecret is returned when no admin secret is configured.
var ErrEmptySecret = errors.New("admin secret must not be empty")

// AdminVerifier compares presented credentials against the configured admin
// secret. Both sides are reduced to keyed HMAC-SHA256 digests before the
// constant-time comparison so the secret's length does not leak.
type AdminVerifier struct {
	key    []byte
	digest []byte
}

// NewAdminVerifier digests secret once with a per-process random key.
func NewAdminVerifier(secret string) (*AdminVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrEmptySecret
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	v := &AdminVerifier{key: key}
	v.digest = v.hash(secret)
	return v, nil
}

func (v *AdminVerifier) hash(s string) []byte {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(s))
	return mac.Sum(nil)
}

// Authorize reports whether credential equals the admin secret.
func (v *AdminVerifier) Authorize(credential string) bool {
	if v == nil || credential == "" {
		return false
	}
	return subtle.ConstantTimeCompare(v.hash(credential), v.digest) == 1
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. It returns "" when the scheme is not bearer.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
