// cleanup.go - Hard delete and the periodic expiry sweep.
//
// Expiry enforcement is lazy (every read/write entry point checks before
// acting) and this sweep is the supplement that catches drops nobody
// touches anymore. Both paths funnel into the same hardDelete.
package server

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
)

// hardDelete removes a drop for good: backend object first (file drops
// only), then the owner's ledger, then the row. Backend failures are
// swallowed inside the blob adapter, so the record deletion always
// proceeds; the ledger decrement is exactly the stored size, clamped at
// zero by the store, and skipped for anonymous drops.
func hardDelete(ctx context.Context, store Store, blobs BlobStore, d *Drop) error {
	if d.Kind == KindFile {
		blobs.Delete(ctx, d.NS, d.Key, d.StorageObjectID)
	}
	if ownerID, ok := d.Owner.Account(); ok && d.FileSizeBytes > 0 {
		if err := store.AdjustStorage(ctx, ownerID, -d.FileSizeBytes); err != nil {
			return err
		}
	}
	return store.DeleteDrop(ctx, d.ID)
}

// SweepConfig holds configuration for the expiry sweep job.
type SweepConfig struct {
	Enabled  bool
	Interval time.Duration
	Store    Store
	Blobs    BlobStore
}

// SweepConfigFromEnv reads sweep configuration from environment variables.
// Disabled unless KD_CLEANUP_ENABLED=true.
func SweepConfigFromEnv(store Store, blobs BlobStore) SweepConfig {
	interval := time.Hour
	if v := os.Getenv("KD_CLEANUP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			interval = d
		}
	}
	return SweepConfig{
		Enabled:  os.Getenv("KD_CLEANUP_ENABLED") == "true",
		Interval: interval,
		Store:    store,
		Blobs:    blobs,
	}
}

// StartSweepJob runs the expiry sweep on a ticker until ctx is cancelled.
// Runs once immediately on start.
func StartSweepJob(ctx context.Context, cfg SweepConfig) {
	if !cfg.Enabled {
		log.Printf("service=sweep msg=%q", "disabled")
		return
	}

	log.Printf("service=sweep msg=%q interval=%s", "starting", cfg.Interval)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	runSweep(ctx, cfg)

	for {
		select {
		case <-ctx.Done():
			log.Printf("service=sweep msg=%q", "shutting_down")
			return
		case <-ticker.C:
			runSweep(ctx, cfg)
		}
	}
}

// runSweep scans every drop in id-ordered pages and hard-deletes the ones
// found expired. One failed page aborts the run; the next tick retries.
func runSweep(ctx context.Context, cfg SweepConfig) {
	start := time.Now()
	now := time.Now().UTC()

	var (
		afterID uuid.UUID
		scanned int
		deleted int
	)
	for {
		page, err := cfg.Store.ListDropsPage(ctx, afterID, 500)
		if err != nil {
			log.Printf("service=sweep msg=%q err=%v", "list_failed", err)
			return
		}
		if len(page) == 0 {
			break
		}
		for _, d := range page {
			scanned++
			if !d.IsExpired(now) {
				continue
			}
			if err := hardDelete(ctx, cfg.Store, cfg.Blobs, d); err != nil {
				log.Printf("service=sweep msg=%q ns=%s key=%s err=%v",
					"delete_failed", d.NS, d.Key, err)
				continue
			}
			deleted++
		}
		afterID = page[len(page)-1].ID
	}

	metrics.sweepRuns.Add(1)
	metrics.sweepDeleted.Add(int64(deleted))
	log.Printf("service=sweep msg=%q scanned=%d deleted=%d duration_ms=%d",
		"sweep_complete", scanned, deleted, time.Since(start).Milliseconds())
}
