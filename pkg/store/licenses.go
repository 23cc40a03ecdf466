package store

import (
	"context"
	"errors"

	"github.com/astralux/licensing/pkg/license"
	"gorm.io/gorm"
)

func toLicense(row licenseRow) license.License {
	return license.License{
		Key:                 row.LicenseKey,
		Hwid:                deref(row.Hwid),
		OwnerIdentity:       deref(row.OwnerIdentity),
		Revoked:             row.Revoked,
		HwidResetsRemaining: row.HwidResets,
		CreatedAt:           row.CreatedAt,
		ActivatedAt:         row.ActivatedAt,
		Version:             row.Version,
	}
}

func (s *Store) GetLicense(ctx context.Context, key string) (license.License, error) {
	var row licenseRow
	if err := s.db.WithContext(ctx).Where("license_key = ?", key).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return license.License{}, license.ErrRecordNotFound
		}
		return license.License{}, err
	}
	return toLicense(row), nil
}

// FindLicensesByOwner returns the owner's licenses that are not revoked.
func (s *Store) FindLicensesByOwner(ctx context.Context, identity string) ([]license.License, error) {
	var rows []licenseRow
	err := s.db.WithContext(ctx).
		Where("owner_identity = ? AND revoked = ?", identity, false).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]license.License, 0, len(rows))
	for _, row := range rows {
		out = append(out, toLicense(row))
	}
	return out, nil
}

// InsertLicense creates the row at version 1.
func (s *Store) InsertLicense(ctx context.Context, l license.License) error {
	row := licenseRow{
		LicenseKey:    l.Key,
		Hwid:          nullable(l.Hwid),
		OwnerIdentity: nullable(l.OwnerIdentity),
		Revoked:       l.Revoked,
		HwidResets:    l.HwidResetsRemaining,
		CreatedAt:     l.CreatedAt,
		ActivatedAt:   l.ActivatedAt,
		Version:       1,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return license.ErrDuplicateKey
		}
		return err
	}
	return nil
}

// CompareAndSwapLicense writes every mutable column in one conditional
// UPDATE guarded by the version column.
func (s *Store) CompareAndSwapLicense(ctx context.Context, expectedVersion int64, next license.License) error {
	var activatedAt any
	if next.ActivatedAt != nil {
		activatedAt = *next.ActivatedAt
	}
	var hwid, owner any
	if next.Hwid != "" {
		hwid = next.Hwid
	}
	if next.OwnerIdentity != "" {
		owner = next.OwnerIdentity
	}

	result := s.db.WithContext(ctx).Model(&licenseRow{}).
		Where("license_key = ? AND version = ?", next.Key, expectedVersion).
		Updates(map[string]interface{}{
			"hwid":           hwid,
			"owner_identity": owner,
			"revoked":        next.Revoked,
			"hwid_resets":    next.HwidResetsRemaining,
			"activated_at":   activatedAt,
			"version":        gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}
	return s.missOrConflict(ctx, next.Key)
}

// MarkRevoked also bumps the version so in-flight swaps re-read the flag.
func (s *Store) MarkRevoked(ctx context.Context, key string) error {
	result := s.db.WithContext(ctx).Model(&licenseRow{}).
		Where("license_key = ?", key).
		Updates(map[string]interface{}{
			"revoked": true,
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return license.ErrRecordNotFound
	}
	return nil
}

func (s *Store) missOrConflict(ctx context.Context, key string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&licenseRow{}).Where("license_key = ?", key).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return license.ErrRecordNotFound
	}
	return license.ErrVersionConflict
}
