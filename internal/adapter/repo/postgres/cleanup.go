package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/pitch-evaluator/internal/adapter/observability"
)

// CleanupService prunes retained raw model output past the retention window.
type CleanupService struct {
	Pool      PgxPool
	Retention time.Duration
	now       func() time.Time
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(pool PgxPool, retention time.Duration) *CleanupService {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &CleanupService{Pool: pool, Retention: retention, now: time.Now}
}

// CleanupOldData deletes evaluation failures older than the retention window
// and returns how many rows were removed.
func (s *CleanupService) CleanupOldData(ctx context.Context) (int64, error) {
	ctx, span := startSpan(ctx, "repo.cleanup", "cleanup.EvaluationFailures", "DELETE", "evaluation_failures")
	defer span.End()

	cutoff := s.now().UTC().Add(-s.Retention)
	tag, err := s.Pool.Exec(ctx, `DELETE FROM evaluation_failures WHERE created_at < $1`, cutoff)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("op=cleanup.evaluation_failures: %w", err)
	}
	n := tag.RowsAffected()
	observability.RecordMaintenance("raw_output_cleanup", n)
	slog.Info("data cleanup completed",
		slog.Int64("deleted_failures", n),
		slog.Time("cutoff", cutoff),
	)
	return n, nil
}

// RunPeriodic runs the cleanup once immediately and then on every tick until ctx is done.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := s.CleanupOldData(ctx); err != nil {
		slog.Error("initial cleanup failed", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
			if _, err := s.CleanupOldData(ctx); err != nil {
				slog.Error("periodic cleanup failed", slog.Any("error", err))
			}
		}
	}
}
