// sweep.go - Background reclamation of blobs left without metadata.
//
// Orphans appear when a process dies between writing bytes and writing the
// sidecar, or between the two removals in Delete.
package storage

import (
	"context"
	"path"
	"strings"
	"time"

	"secure-transfer/internal/logging"
)

// SweepConfig holds configuration for the sweep job.
type SweepConfig struct {
	Enabled  bool
	Interval time.Duration
	// MinAge protects uploads still being written.
	MinAge time.Duration
	Blobs  BlobStore
}

// StartSweepJob runs until ctx is cancelled.
func StartSweepJob(ctx context.Context, cfg SweepConfig) {
	if !cfg.Enabled {
		logging.Info("sweep disabled", nil)
		return
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}

	logging.Info("sweep starting", map[string]any{
		"interval": cfg.Interval.String(),
		"min_age":  cfg.MinAge.String(),
	})

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	// Run immediately on start
	_, _ = SweepOrphans(ctx, cfg.Blobs, cfg.MinAge, time.Now())

	for {
		select {
		case <-ctx.Done():
			logging.Info("sweep shutting down", nil)
			return
		case <-ticker.C:
			_, _ = SweepOrphans(ctx, cfg.Blobs, cfg.MinAge, time.Now())
		}
	}
}

// SweepOrphans removes blobs older than minAge whose id has no metadata and
// returns how many were removed.
func SweepOrphans(ctx context.Context, blobs BlobStore, minAge time.Duration, now time.Time) (int, error) {
	start := time.Now()

	list, err := blobs.List(ctx, blobPrefix)
	if err != nil {
		logging.Error("sweep list failed", nil, err)
		return 0, err
	}

	cutoff := now.Add(-minAge)
	removed := 0
	for _, b := range list {
		if b.ModTime.After(cutoff) {
			continue
		}
		name := path.Base(b.Key)
		id := strings.TrimSuffix(name, path.Ext(name))
		if !validID(id) {
			continue
		}
		ok, err := blobs.Exists(ctx, metaKey(id))
		if err != nil {
			logging.Error("sweep metadata check failed", map[string]any{"file_id": id}, err)
			continue
		}
		if ok {
			continue
		}
		if err := blobs.Remove(ctx, b.Key); err != nil {
			logging.Error("sweep remove failed", map[string]any{"file_id": id}, err)
			continue
		}
		logging.Info("sweep removed orphan", map[string]any{"file_id": id, "size": b.Size})
		removed++
	}

	logging.Info("sweep complete", map[string]any{
		"removed":     removed,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return removed, nil
}
