package license

import (
	"context"
	"sort"
)

// Classification is the sharing risk level of a license.
type Classification string

const (
	ClassNormal     Classification = "normal"
	ClassSuspicious Classification = "suspicious"
	ClassHighRisk   Classification = "high-risk"
)

// Thresholds map distinct hwid counts to a Classification. A count below
// SuspiciousAt is normal, a count at or above HighRiskAt is high-risk, and
// everything between is suspicious.
type Thresholds struct {
	SuspiciousAt int
	HighRiskAt   int
	SampleSize   int
}

func DefaultThresholds() Thresholds {
	return Thresholds{SuspiciousAt: 2, HighRiskAt: 3, SampleSize: 10}
}

// Classify applies t to a distinct hwid count.
func (t Thresholds) Classify(distinctHwids int) Classification {
	switch {
	case distinctHwids >= t.HighRiskAt:
		return ClassHighRisk
	case distinctHwids >= t.SuspiciousAt:
		return ClassSuspicious
	default:
		return ClassNormal
	}
}

// ShareReport summarises the access ledger of one license.
type ShareReport struct {
	LicenseKey     string         `json:"license_key"`
	Classification Classification `json:"classification"`
	DistinctHwids  int            `json:"distinct_hwids"`
	DistinctIPs    int            `json:"distinct_ips"`
	SampleHwids    []string       `json:"sample_hwids"`
}

// Detector derives sharing risk from the access ledger. It never writes.
type Detector struct {
	store      Store
	auth       Authorizer
	thresholds Thresholds
	in         instruments
}

func NewDetector(store Store, auth Authorizer, t Thresholds, opts ...Option) *Detector {
	def := DefaultThresholds()
	if t.SuspiciousAt <= 1 || t.HighRiskAt <= t.SuspiciousAt {
		t.SuspiciousAt, t.HighRiskAt = def.SuspiciousAt, def.HighRiskAt
	}
	if t.SampleSize <= 0 {
		t.SampleSize = def.SampleSize
	}
	in := defaultInstruments()
	for _, opt := range opts {
		opt(&in)
	}
	return &Detector{store: store, auth: auth, thresholds: t, in: in}
}

// Thresholds returns the thresholds in effect.
func (d *Detector) Thresholds() Thresholds {
	return d.thresholds
}

// CheckShare reports how many distinct machines and addresses have used key.
func (d *Detector) CheckShare(ctx context.Context, credential, rawKey string) (report ShareReport, err error) {
	key := NormalizeKey(rawKey)
	ctx, done := d.in.start(ctx, OpCheckShare, key)
	defer func() { done(err) }()

	if d.auth == nil || !d.auth.Authorize(credential) {
		return ShareReport{}, ErrUnauthorized
	}
	if key == "" {
		return ShareReport{}, invalidInput("missing license_key")
	}

	hwids, err := d.store.QueryDistinctHwids(ctx, key)
	if err != nil {
		return ShareReport{}, storeUnavailable("query distinct hwids", err)
	}
	ips, err := d.store.QueryDistinctIPs(ctx, key)
	if err != nil {
		return ShareReport{}, storeUnavailable("query distinct ips", err)
	}

	sample := append(make([]string, 0, len(hwids)), hwids...)
	sort.Strings(sample)
	if len(sample) > d.thresholds.SampleSize {
		sample = sample[:d.thresholds.SampleSize]
	}

	return ShareReport{
		LicenseKey:     key,
		Classification: d.thresholds.Classify(len(hwids)),
		DistinctHwids:  len(hwids),
		DistinctIPs:    len(ips),
		SampleHwids:    sample,
	}, nil
}
