package attach

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"famvault/internal/models"
)

const (
	// DefaultGracePeriod is the minimum age of a swept blob.
	DefaultGracePeriod = 24 * time.Hour
	// DefaultSweepBatchSize bounds one orphan listing.
	DefaultSweepBatchSize = 500
)

// OrphanLister pages through unreferenced blobs by id.
type OrphanLister interface {
	ListOrphanBlobs(ctx context.Context, cutoff time.Time, afterID string, limit int) ([]models.BlobDescriptor, error)
}

// BlobDeleter removes a blob's bytes and descriptor.
type BlobDeleter interface {
	Delete(ctx context.Context, id string) error
}

// SweepOptions controls one sweep. Apply false is a dry run.
type SweepOptions struct {
	GracePeriod time.Duration
	BatchSize   int
	Apply       bool
}

// SweepResult reports one sweep.
type SweepResult struct {
	CandidateCount int   `json:"candidate_count"`
	DeletedCount   int   `json:"deleted_count"`
	FailedCount    int   `json:"failed_count"`
	ReclaimedBytes int64 `json:"reclaimed_bytes"`
	DryRun         bool  `json:"dry_run"`
}

// Reaper deletes blobs no slot references.
type Reaper struct {
	orphans OrphanLister
	blobs   BlobDeleter
	logger  *slog.Logger
	now     func() time.Time
}

// NewReaper builds a Reaper.
func NewReaper(orphans OrphanLister, blobs BlobDeleter, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{orphans: orphans, blobs: blobs, logger: logger.With("component", "reaper"), now: time.Now}
}

// Sweep lists orphans older than the grace period and, when applying,
// deletes them. Failed deletes are counted and skipped.
func (r *Reaper) Sweep(ctx context.Context, opts SweepOptions) (SweepResult, error) {
	result := SweepResult{DryRun: !opts.Apply}
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultSweepBatchSize
	}
	cutoff := r.now().Add(-grace)

	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		blobs, err := r.orphans.ListOrphanBlobs(ctx, cutoff, after, batch)
		if err != nil {
			return result, fmt.Errorf("list orphan blobs: %w", err)
		}
		if len(blobs) == 0 {
			break
		}
		after = blobs[len(blobs)-1].ID
		result.CandidateCount += len(blobs)

		for _, blob := range blobs {
			if !opts.Apply {
				result.ReclaimedBytes += blob.Length
				continue
			}
			if err := r.blobs.Delete(ctx, blob.ID); err != nil {
				result.FailedCount++
				reapedBlobs.WithLabelValues("failed").Inc()
				r.logger.Warn("orphan delete failed", "blob_id", blob.ID, "error", err)
				continue
			}
			result.DeletedCount++
			result.ReclaimedBytes += blob.Length
			reapedBlobs.WithLabelValues("deleted").Inc()
		}
		if len(blobs) < batch {
			break
		}
	}

	r.logger.Info("orphan sweep finished",
		"dry_run", result.DryRun,
		"candidates", result.CandidateCount,
		"deleted", result.DeletedCount,
		"failed", result.FailedCount,
		"reclaimed", humanize.IBytes(uint64(result.ReclaimedBytes)),
		"cutoff", cutoff.UTC().Format(time.RFC3339),
	)
	return result, nil
}
