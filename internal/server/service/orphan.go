package service

import (
	"context"
	"log/slog"
	"time"

	"shutterhub/internal/server/blobstore"
	"shutterhub/internal/server/database"

	"github.com/google/uuid"
)

// OrphanSink receives blob keys that escaped the photo ledger, so a later
// sweep can reclaim them. Implementations must tolerate being called during
// cleanup paths and never fail the caller.
type OrphanSink interface {
	LogOrphan(ctx context.Context, blobKey, reason string)
}

// OrphanStore is the slice of the repository the sink and sweeper need.
type OrphanStore interface {
	LogOrphan(ctx context.Context, blobKey, reason string) error
	UnsweptOrphans(ctx context.Context, limit int) ([]*database.OrphanBlob, error)
	MarkOrphanSwept(ctx context.Context, id uuid.UUID) error
}

// dbOrphanSink records orphans in the database; a write failure is logged
// and swallowed, the orphan is already lost to the ledger either way.
type dbOrphanSink struct {
	store OrphanStore
}

// NewOrphanSink creates a database-backed orphan sink.
func NewOrphanSink(store OrphanStore) OrphanSink {
	return &dbOrphanSink{store: store}
}

func (s *dbOrphanSink) LogOrphan(ctx context.Context, blobKey, reason string) {
	if err := s.store.LogOrphan(ctx, blobKey, reason); err != nil {
		slog.Error("failed to log orphan blob", "blob_key", blobKey, "reason", reason, "error", err)
		return
	}
	slog.Warn("orphan blob recorded", "blob_key", blobKey, "reason", reason)
}

const sweepBatchSize = 100

// OrphanSweeper periodically deletes orphaned blobs from storage and marks
// their records swept.
type OrphanSweeper struct {
	store    OrphanStore
	blobs    blobstore.Store
	interval time.Duration
	done     chan struct{}
}

// NewOrphanSweeper creates a sweeper running at the given interval.
func NewOrphanSweeper(store OrphanStore, blobs blobstore.Store, interval time.Duration) *OrphanSweeper {
	return &OrphanSweeper{
		store:    store,
		blobs:    blobs,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine.
func (s *OrphanSweeper) Start(ctx context.Context) {
	slog.Info("orphan sweeper started", "interval", s.interval)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		// Run once immediately on start
		s.runSweep(ctx)

		for {
			select {
			case <-ticker.C:
				s.runSweep(ctx)
			case <-ctx.Done():
				slog.Info("orphan sweeper stopping")
				close(s.done)
				return
			}
		}
	}()
}

// Wait blocks until the sweeper has fully stopped.
func (s *OrphanSweeper) Wait() {
	<-s.done
}

func (s *OrphanSweeper) runSweep(ctx context.Context) {
	orphans, err := s.store.UnsweptOrphans(ctx, sweepBatchSize)
	if err != nil {
		slog.Error("failed to list orphan blobs", "error", err)
		return
	}
	if len(orphans) == 0 {
		return
	}

	var swept, failed int
	for _, orphan := range orphans {
		if err := s.blobs.Remove(ctx, orphan.BlobKey); err != nil {
			slog.Error("failed to remove orphan blob",
				"blob_key", orphan.BlobKey,
				"error", err,
			)
			failed++
			continue
		}
		if err := s.store.MarkOrphanSwept(ctx, orphan.ID); err != nil {
			slog.Error("failed to mark orphan swept",
				"blob_key", orphan.BlobKey,
				"error", err,
			)
			failed++
			continue
		}
		swept++
	}

	slog.Info("orphan sweep complete", "swept", swept, "failed", failed, "total", len(orphans))
}
