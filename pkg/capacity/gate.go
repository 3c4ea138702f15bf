// Package capacity implements the storage quota admission check.
//
// Usage is derived, never stored: every check walks the storage root and sums
// the sizes of the regular files below it. Nothing is reserved between the
// check and the write, so two requests that pass concurrently may together
// overshoot the quota. The quota is a best-effort ceiling, not a ledger.
package capacity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/vidforge/internal/logger"
	"github.com/shirou/gopsutil/v4/disk"
)

// Gate admits or rejects prospective payloads against a byte quota.
//
// Thread safety:
// Safe for concurrent use. The quota can be changed at runtime with SetQuota.
type Gate struct {
	root  string
	quota atomic.Uint64

	// diskUsage is swapped out in tests.
	diskUsage func(ctx context.Context, path string) (*disk.UsageStat, error)
}

// Decision is the outcome of one capacity check.
type Decision struct {
	Allowed bool
	Used    uint64
	Quota   uint64

	// ScanErr is set when the storage root could not be scanned. The gate
	// then assumes zero usage and admits the payload if it fits the quota.
	ScanErr error
}

// Remaining returns the bytes left under the quota, zero when over quota.
func (d Decision) Remaining() uint64 {
	if d.Used >= d.Quota {
		return 0
	}
	return d.Quota - d.Used
}

// Stats is an informational snapshot of storage usage.
type Stats struct {
	Root      string `json:"root"`
	Quota     uint64 `json:"quota_bytes"`
	Used      uint64 `json:"used_bytes"`
	Remaining uint64 `json:"remaining_bytes"`

	// DiskTotal and DiskFree describe the filesystem holding Root. They are
	// reported only; the quota alone decides admission.
	DiskTotal uint64 `json:"disk_total_bytes"`
	DiskFree  uint64 `json:"disk_free_bytes"`
}

// New creates a gate enforcing quota bytes under root.
func New(root string, quota uint64) *Gate {
	g := &Gate{
		root:      root,
		diskUsage: disk.UsageWithContext,
	}
	g.quota.Store(quota)
	return g
}

// Root returns the scanned directory.
func (g *Gate) Root() string {
	return g.root
}

// Quota returns the current quota in bytes.
func (g *Gate) Quota() uint64 {
	return g.quota.Load()
}

// SetQuota replaces the quota. Checks already in progress keep the old value.
func (g *Gate) SetQuota(quota uint64) {
	old := g.quota.Swap(quota)
	if old != quota {
		logger.Info("Storage quota changed: %s -> %s", humanize.IBytes(old), humanize.IBytes(quota))
	}
}

// HasCapacity reports whether size more bytes fit under the quota.
func (g *Gate) HasCapacity(ctx context.Context, size uint64) bool {
	return g.Check(ctx, size).Allowed
}

// Check scans the storage root and decides whether size more bytes fit.
//
// The boundary is inclusive: a payload exactly equal to the remaining
// capacity is admitted.
func (g *Gate) Check(ctx context.Context, size uint64) Decision {
	decision := Decision{Quota: g.quota.Load()}

	used, err := g.UsedBytes(ctx)
	if err != nil {
		logger.Warn("Storage scan of %s failed, assuming empty storage: %v", g.root, err)
		decision.ScanErr = err
		used = 0
	}
	decision.Used = used
	decision.Allowed = used <= decision.Quota && decision.Quota-used >= size

	return decision
}

// UsedBytes sums the sizes of all regular files under the root, recursively.
//
// Files removed while the walk is in progress are skipped. Any other error,
// including an inaccessible root, aborts the scan.
func (g *Gate) UsedBytes(ctx context.Context) (uint64, error) {
	var total uint64

	err := filepath.WalkDir(g.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != g.root && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		total += uint64(info.Size())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", g.root, err)
	}

	return total, nil
}

// Stats reports quota usage together with filesystem totals.
// A failure to probe the filesystem leaves DiskTotal and DiskFree at zero.
func (g *Gate) Stats(ctx context.Context) (Stats, error) {
	used, err := g.UsedBytes(ctx)
	if err != nil {
		return Stats{}, err
	}

	quota := g.quota.Load()
	stats := Stats{Root: g.root, Quota: quota, Used: used}
	if used < quota {
		stats.Remaining = quota - used
	}

	usage, err := g.diskUsage(ctx, g.root)
	if err != nil {
		logger.Debug("Disk usage probe for %s failed: %v", g.root, err)
		return stats, nil
	}
	stats.DiskTotal = usage.Total
	stats.DiskFree = usage.Free

	if stats.DiskFree < stats.Remaining {
		logger.Warn("Filesystem free space (%s) is below the remaining quota (%s)",
			humanize.IBytes(stats.DiskFree), humanize.IBytes(stats.Remaining))
	}

	return stats, nil
}

// ParseQuota converts a human size ("4TiB", "500 GB", "1048576") to bytes.
func ParseQuota(value string) (uint64, error) {
	size, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("invalid quota %q: %w", value, err)
	}
	return size, nil
}
