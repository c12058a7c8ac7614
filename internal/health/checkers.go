package health

import (
	"context"
	"fmt"
	"os"
	"time"
)

// HubChecker reports whether the power hub answers a round trip. An
// unreachable hub makes the daemon not ready: every data path depends
// on it.
type HubChecker struct {
	ping func(ctx context.Context) error
}

// NewHubChecker wraps a hub round-trip probe, typically a ListServices
// call on the shared connection.
func NewHubChecker(ping func(ctx context.Context) error) *HubChecker {
	return &HubChecker{ping: ping}
}

func (c *HubChecker) Name() string { return "hub" }

func (c *HubChecker) Check(ctx context.Context) CheckResult {
	if err := c.ping(ctx); err != nil {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  err.Error(),
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: "hub reachable",
	}
}

// PollChecker reports on the freshness of the last successful poll.
type PollChecker struct {
	maxAge      time.Duration
	getLastPoll func() (time.Time, string)
}

// NewPollChecker creates a freshness check. getLastPoll returns the
// completion time of the last successful poll and the error text of
// the last failed one, if any. A last poll older than maxAge degrades
// the status.
func NewPollChecker(maxAge time.Duration, getLastPoll func() (time.Time, string)) *PollChecker {
	return &PollChecker{
		maxAge:      maxAge,
		getLastPoll: getLastPoll,
	}
}

func (c *PollChecker) Name() string { return "poller" }

func (c *PollChecker) Check(_ context.Context) CheckResult {
	lastPoll, lastError := c.getLastPoll()

	if lastPoll.IsZero() {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "no successful poll yet",
		}
	}

	age := time.Since(lastPoll)
	if age > c.maxAge {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("last successful poll %s ago", age.Round(time.Second)),
			Error:   lastError,
		}
	}

	if lastError != "" {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "last poll failed, serving previous snapshot",
			Error:   lastError,
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: "polling",
	}
}

// SnapshotFileChecker reports on the persisted snapshot file. The file
// only appears after the first successful poll, so a missing file is
// degraded rather than unhealthy.
type SnapshotFileChecker struct {
	path string
}

// NewSnapshotFileChecker creates a check for the snapshot file.
func NewSnapshotFileChecker(path string) *SnapshotFileChecker {
	return &SnapshotFileChecker{path: path}
}

func (c *SnapshotFileChecker) Name() string { return "snapshot_file" }

func (c *SnapshotFileChecker) Check(_ context.Context) CheckResult {
	if c.path == "" {
		return CheckResult{
			Status:  StatusHealthy,
			Message: "not configured (optional)",
		}
	}

	info, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusDegraded,
				Message: "snapshot not written yet",
			}
		}
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  err.Error(),
		}
	}

	if info.IsDir() {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  "expected file, got directory",
		}
	}

	if info.Size() == 0 {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "snapshot file is empty",
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: "snapshot persisted",
	}
}

// CacheChecker reports on the response cache backend. A lost cache is
// degraded only: the API keeps serving, just without caching.
type CacheChecker struct {
	ping func(ctx context.Context) error
}

// NewCacheChecker wraps a cache backend probe, typically the redis
// health check.
func NewCacheChecker(ping func(ctx context.Context) error) *CacheChecker {
	return &CacheChecker{ping: ping}
}

func (c *CacheChecker) Name() string { return "cache" }

func (c *CacheChecker) Check(ctx context.Context) CheckResult {
	if err := c.ping(ctx); err != nil {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "cache unreachable, serving uncached",
			Error:   err.Error(),
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: "cache reachable",
	}
}
