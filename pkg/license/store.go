package license

import (
	"context"
	"errors"
)

// Sentinel errors a Store implementation must use for the outcomes the
// engine distinguishes. Anything else is treated as the store being unavailable.
var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrDuplicateKey    = errors.New("duplicate license key")
	ErrVersionConflict = errors.New("license version conflict")
)

// Store is the durable license table plus the append-only access ledger.
type Store interface {
	GetLicense(ctx context.Context, key string) (License, error)
	// FindLicensesByOwner skips revoked licenses.
	FindLicensesByOwner(ctx context.Context, identity string) ([]License, error)
	InsertLicense(ctx context.Context, l License) error
	// CompareAndSwapLicense writes next only if the stored version still
	// equals expectedVersion. The store bumps the version on success.
	CompareAndSwapLicense(ctx context.Context, expectedVersion int64, next License) error
	// MarkRevoked sets revoked=true; ErrRecordNotFound when no row matched.
	MarkRevoked(ctx context.Context, key string) error

	AppendAccessLog(ctx context.Context, entry AccessLogEntry) error
	QueryDistinctHwids(ctx context.Context, key string) ([]string, error)
	QueryDistinctIPs(ctx context.Context, key string) ([]string, error)

	Ping(ctx context.Context) error
}
