// Package store persists licenses and the access ledger with GORM.
package store

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/astralux/licensing/pkg/license"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and tunes the database.
type Config struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	LogSQL       bool
}

// licenseRow is the licenses table.
type licenseRow struct {
	LicenseKey    string  `gorm:"primaryKey;size:64"`
	Hwid          *string `gorm:"size:512"`
	OwnerIdentity *string `gorm:"size:256;index"`
	Revoked       bool    `gorm:"not null"`
	HwidResets    int     `gorm:"not null"`
	CreatedAt     time.Time
	ActivatedAt   *time.Time
	Version       int64 `gorm:"not null"`
}

func (licenseRow) TableName() string { return "licenses" }

// accessLogRow is the append-only access_logs table. license_key is not a
// foreign key.
type accessLogRow struct {
	ID         string    `gorm:"primaryKey;size:36"`
	LicenseKey string    `gorm:"size:64;index;not null"`
	Hwid       *string   `gorm:"size:512"`
	IPAddress  string    `gorm:"size:64"`
	Timestamp  time.Time `gorm:"index"`
}

func (accessLogRow) TableName() string { return "access_logs" }

// Store implements license.Store.
type Store struct {
	db *gorm.DB
}

var _ license.Store = (*Store)(nil)

// Open connects, sizes the pool and migrates the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite, "":
		dialector = sqlite.Open(cfg.DSN)
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	level := logger.Silent
	if cfg.LogSQL {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if cfg.Driver == DriverPostgres {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
			sqlDB.SetMaxIdleConns(cfg.MaxOpenConns / 2)
		}
		sqlDB.SetConnMaxIdleTime(15 * time.Minute)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&licenseRow{}, &accessLogRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

var memorySeq atomic.Int64

// MemoryDSN returns a fresh shared-cache in-memory SQLite DSN. The database
// lives as long as the Store that opened it.
func MemoryDSN(name string) string {
	return fmt.Sprintf("file:%s-%d-%d?mode=memory&cache=shared", name, time.Now().UnixNano(), memorySeq.Add(1))
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
