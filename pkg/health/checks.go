// Package health reports whether the license service can serve requests.
package health

import (
	"context"
	"fmt"
	"time"
)

const (
	StatusOnline   = "online"
	StatusDegraded = "degraded"
)

// Pinger is satisfied by the license store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthStatus struct {
	Status         string    `json:"status"`
	StoreReachable bool      `json:"store_reachable"`
	StoreLatencyMs int64     `json:"store_latency_ms"`
	Version        string    `json:"version,omitempty"`
	CheckedAt      time.Time `json:"checked_at"`
	Healthy        bool      `json:"-"`
	Issues         []string  `json:"issues,omitempty"`
}

// Checker pings the store with a bounded timeout.
type Checker struct {
	store   Pinger
	timeout time.Duration
	version string
	now     func() time.Time
}

func NewChecker(store Pinger, timeout time.Duration, version string) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{store: store, timeout: timeout, version: version, now: time.Now}
}

func (c *Checker) Check(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:    StatusOnline,
		Healthy:   true,
		Version:   c.version,
		CheckedAt: c.now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	began := c.now()
	err := c.store.Ping(ctx)
	status.StoreLatencyMs = c.now().Sub(began).Milliseconds()
	if err != nil {
		status.Status = StatusDegraded
		status.Healthy = false
		status.Issues = append(status.Issues, fmt.Sprintf("store unreachable: %v", err))
		return status
	}
	status.StoreReachable = true
	return status
}
