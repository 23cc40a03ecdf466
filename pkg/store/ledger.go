package store

import (
	"context"

	"github.com/astralux/licensing/pkg/license"
)

// AppendAccessLog inserts one ledger entry. Entries are never updated.
func (s *Store) AppendAccessLog(ctx context.Context, entry license.AccessLogEntry) error {
	row := accessLogRow{
		ID:         entry.ID,
		LicenseKey: entry.LicenseKey,
		Hwid:       nullable(entry.Hwid),
		IPAddress:  entry.SourceIP,
		Timestamp:  entry.Timestamp,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// QueryDistinctHwids returns every non-null hwid ever logged for key.
func (s *Store) QueryDistinctHwids(ctx context.Context, key string) ([]string, error) {
	var hwids []string
	err := s.db.WithContext(ctx).Model(&accessLogRow{}).
		Where("license_key = ? AND hwid IS NOT NULL", key).
		Distinct("hwid").
		Pluck("hwid", &hwids).Error
	if err != nil {
		return nil, err
	}
	return hwids, nil
}

// QueryDistinctIPs returns every source address ever logged for key.
func (s *Store) QueryDistinctIPs(ctx context.Context, key string) ([]string, error) {
	var ips []string
	err := s.db.WithContext(ctx).Model(&accessLogRow{}).
		Where("license_key = ? AND ip_address <> ''", key).
		Distinct("ip_address").
		Pluck("ip_address", &ips).Error
	if err != nil {
		return nil, err
	}
	return ips, nil
}

// AccessLog lists the ledger of key, oldest first.
func (s *Store) AccessLog(ctx context.Context, key string) ([]license.AccessLogEntry, error) {
	var rows []accessLogRow
	if err := s.db.WithContext(ctx).Where("license_key = ?", key).Order("timestamp, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]license.AccessLogEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, license.AccessLogEntry{
			ID:         row.ID,
			LicenseKey: row.LicenseKey,
			Hwid:       deref(row.Hwid),
			SourceIP:   row.IPAddress,
			Timestamp:  row.Timestamp,
		})
	}
	return out, nil
}
