package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
)

// EvaluationRepo persists the latest evaluation per submission.
type EvaluationRepo struct{ Pool PgxPool }

// NewEvaluationRepo constructs an EvaluationRepo with the given pool.
func NewEvaluationRepo(p PgxPool) *EvaluationRepo { return &EvaluationRepo{Pool: p} }

// Get loads the stored evaluation for a submission.
func (r *EvaluationRepo) Get(ctx domain.Context, submissionID string) (domain.Evaluation, error) {
	ctx, span := startSpan(ctx, "repo.evaluations", "evaluations.Get", "SELECT", "evaluations")
	defer span.End()
	span.SetAttributes(attribute.String("submission.id", submissionID))

	q := `SELECT submission_id::text, rubric_id, criteria, aggregate, max_score, summary, model, version, created_at FROM evaluations WHERE submission_id=$1`
	var (
		e        domain.Evaluation
		criteria []byte
	)
	err := r.Pool.QueryRow(ctx, q, submissionID).Scan(&e.SubmissionID, &e.RubricID, &criteria, &e.Aggregate, &e.MaxScore, &e.Summary, &e.Model, &e.Version, &e.CreatedAt)
	if err != nil {
		return domain.Evaluation{}, wrapErr("evaluation.get", err)
	}
	if err := json.Unmarshal(criteria, &e.Criteria); err != nil {
		return domain.Evaluation{}, fmt.Errorf("op=evaluation.get: decode criteria: %w", err)
	}
	if err := e.CheckAggregate(); err != nil {
		return domain.Evaluation{}, fmt.Errorf("op=evaluation.get: %w", err)
	}
	return e, nil
}

// Replace swaps the stored evaluation for e inside one transaction. The stored
// version must equal expectedVersion (0 when nothing is stored) or ErrConflict is returned.
func (r *EvaluationRepo) Replace(ctx domain.Context, e domain.Evaluation, expectedVersion int64) (domain.Evaluation, error) {
	ctx, span := startSpan(ctx, "repo.evaluations", "evaluations.Replace", "REPLACE", "evaluations")
	defer span.End()
	span.SetAttributes(attribute.String("submission.id", e.SubmissionID), attribute.Int64("evaluation.expected_version", expectedVersion))

	if err := e.CheckAggregate(); err != nil {
		return domain.Evaluation{}, fmt.Errorf("op=evaluation.replace: %w", err)
	}
	criteria, err := json.Marshal(e.Criteria)
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("op=evaluation.replace: %w", err)
	}

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Evaluation{}, wrapErr("evaluation.replace.begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current int64
	err = tx.QueryRow(ctx, `SELECT version FROM evaluations WHERE submission_id=$1 FOR UPDATE`, e.SubmissionID).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.Evaluation{}, wrapErr("evaluation.replace.lock", err)
	}
	if current != expectedVersion {
		span.SetAttributes(attribute.Int64("evaluation.stored_version", current))
		return domain.Evaluation{}, fmt.Errorf("op=evaluation.replace: %w: stored version %d, expected %d", domain.ErrConflict, current, expectedVersion)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM evaluations WHERE submission_id=$1`, e.SubmissionID); err != nil {
		return domain.Evaluation{}, wrapErr("evaluation.replace.delete", err)
	}

	e.Version = current + 1
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	ins := `INSERT INTO evaluations (submission_id, rubric_id, criteria, aggregate, max_score, summary, model, version, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	if _, err := tx.Exec(ctx, ins, e.SubmissionID, e.RubricID, criteria, e.Aggregate, e.MaxScore, e.Summary, e.Model, e.Version, e.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.Evaluation{}, fmt.Errorf("op=evaluation.replace: %w: concurrent insert", domain.ErrConflict)
		}
		return domain.Evaluation{}, wrapErr("evaluation.replace.insert", err)
	}
	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.Evaluation{}, fmt.Errorf("op=evaluation.replace: %w: concurrent insert", domain.ErrConflict)
		}
		return domain.Evaluation{}, wrapErr("evaluation.replace.commit", err)
	}
	span.SetAttributes(attribute.Int64("evaluation.version", e.Version))
	return e, nil
}

// RecordFailure keeps an unparseable model reply for later inspection.
func (r *EvaluationRepo) RecordFailure(ctx domain.Context, f domain.EvaluationFailure) error {
	ctx, span := startSpan(ctx, "repo.evaluations", "evaluations.RecordFailure", "INSERT", "evaluation_failures")
	defer span.End()

	id := f.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO evaluation_failures (id, submission_id, rubric_id, model, raw_output, reason, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	if _, err := r.Pool.Exec(ctx, q, id, f.SubmissionID, f.RubricID, f.Model, f.RawOutput, f.Reason, time.Now().UTC()); err != nil {
		span.RecordError(err)
		return wrapErr("evaluation.record_failure", err)
	}
	return nil
}
