package license

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// DefaultKeyPrefix is used when no prefix is configured.
const DefaultKeyPrefix = "ASTRALUX"

// License is the persisted state of a single license key.
type License struct {
	Key                 string     `json:"license_key"`
	Hwid                string     `json:"hwid,omitempty"`
	OwnerIdentity       string     `json:"owner_identity,omitempty"`
	Revoked             bool       `json:"revoked"`
	HwidResetsRemaining int        `json:"hwid_resets_remaining"`
	CreatedAt           time.Time  `json:"created_at"`
	ActivatedAt         *time.Time `json:"activated_at,omitempty"`
	// Version is incremented by the store on every successful write and is
	// the token for CompareAndSwapLicense.
	Version int64 `json:"version"`
}

// Bound reports whether a hardware id is attached.
func (l License) Bound() bool {
	return l.Hwid != ""
}

// Claimed reports whether an owner identity is attached.
func (l License) Claimed() bool {
	return l.OwnerIdentity != ""
}

// AccessLogEntry is one append-only record of a validation attempt.
type AccessLogEntry struct {
	ID         string    `json:"id"`
	LicenseKey string    `json:"license_key"`
	Hwid       string    `json:"hwid,omitempty"`
	SourceIP   string    `json:"source_ip"`
	Timestamp  time.Time `json:"timestamp"`
}

// GenerateKey returns PREFIX-XXXX-XXXX-XXXX with three random 2-byte groups
// rendered as uppercase hex.
func GenerateKey(prefix string) (string, error) {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	raw := strings.ToUpper(hex.EncodeToString(b))
	return fmt.Sprintf("%s-%s-%s-%s", strings.ToUpper(prefix), raw[0:4], raw[4:8], raw[8:12]), nil
}

// NormalizeKey trims whitespace and uppercases a caller-supplied key.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// NormalizeHwid trims whitespace. Hardware ids are opaque otherwise, so two
// differing byte strings never share a binding.
func NormalizeHwid(hwid string) string {
	return strings.TrimSpace(hwid)
}

// NormalizeText trims whitespace and applies Unicode NFC so that visually
// identical owner identities compare equal.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
