package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/pitch-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
)

// StuckMessage is stored on submissions the sweeper fails.
const StuckMessage = "evaluation exceeded maximum processing age"

// StuckSubmissionSweeper fails submissions left in processing, for example by
// a worker that died mid-evaluation.
type StuckSubmissionSweeper struct {
	subs             domain.SubmissionRepository
	maxProcessingAge time.Duration
	interval         time.Duration
	now              func() time.Time
}

func NewStuckSubmissionSweeper(subs domain.SubmissionRepository, maxProcessingAge, interval time.Duration) *StuckSubmissionSweeper {
	if subs == nil {
		return nil
	}
	if maxProcessingAge <= 0 {
		maxProcessingAge = 15 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StuckSubmissionSweeper{
		subs:             subs,
		maxProcessingAge: maxProcessingAge,
		interval:         interval,
		now:              time.Now,
	}
}

func (s *StuckSubmissionSweeper) Run(ctx context.Context) {
	if s == nil || s.subs == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stuck submission sweeper stopping")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce fails every submission whose processing started before the
// cutoff and returns how many were marked.
func (s *StuckSubmissionSweeper) SweepOnce(ctx context.Context) int {
	tracer := otel.Tracer("submissions.sweeper")
	ctx, span := tracer.Start(ctx, "StuckSubmissionSweeper.SweepOnce")
	defer span.End()

	cutoff := s.now().Add(-s.maxProcessingAge)
	const pageSize = 100
	span.SetAttributes(
		attribute.Int("submissions.page_size", pageSize),
		attribute.Float64("submissions.max_processing_age_seconds", s.maxProcessingAge.Seconds()),
	)

	marked := 0
	for {
		subs, err := s.subs.ListStuck(ctx, domain.SubmissionProcessing, cutoff, pageSize)
		if err != nil {
			span.RecordError(err)
			slog.Error("stuck submission sweep failed to list submissions", slog.Any("error", err))
			break
		}
		progressed := 0
		for _, sub := range subs {
			msg := "INTERNAL: " + StuckMessage
			ok, err := s.subs.FailStuck(ctx, sub.ID, cutoff, msg)
			if err != nil {
				span.RecordError(err)
				slog.Error("stuck submission sweep failed to update status", slog.String("submission_id", sub.ID), slog.Any("error", err))
				continue
			}
			if !ok {
				slog.Info("stuck submission finished before sweep", slog.String("submission_id", sub.ID))
				continue
			}
			progressed++
			slog.Warn("marked stuck submission failed", slog.String("submission_id", sub.ID), slog.Time("updated_at", sub.UpdatedAt))
		}
		marked += progressed
		// Marked rows leave the processing state, so the next page starts fresh.
		if len(subs) < pageSize || progressed == 0 {
			break
		}
	}

	span.SetAttributes(attribute.Int("submissions.marked_failed", marked))
	observability.RecordMaintenance("stuck_submissions", int64(marked))
	return marked
}
