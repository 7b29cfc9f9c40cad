package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
)

const submissionColumns = `id::text, rubric_id, source, user_id, company_name, contact_name, contact_email, website, answers, status, error, created_at, updated_at`

// SubmissionRepo persists submissions using a minimal pgx pool.
type SubmissionRepo struct{ Pool PgxPool }

// NewSubmissionRepo constructs a SubmissionRepo with the given pool.
func NewSubmissionRepo(p PgxPool) *SubmissionRepo { return &SubmissionRepo{Pool: p} }

func startSpan(ctx domain.Context, tracerName, name, operation, table string) (domain.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", operation),
		attribute.String("db.sql.table", table),
	)
	return ctx, span
}

// Create stores a new submission and returns its id (generates one if empty).
func (r *SubmissionRepo) Create(ctx domain.Context, s domain.Submission) (string, error) {
	ctx, span := startSpan(ctx, "repo.submissions", "submissions.Create", "INSERT", "submissions")
	defer span.End()

	id := s.ID
	if id == "" {
		id = uuid.New().String()
	}
	status := s.Status
	if status == "" {
		status = domain.SubmissionPending
	}
	answers := s.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	b, err := json.Marshal(answers)
	if err != nil {
		return "", fmt.Errorf("op=submission.create: %w", err)
	}
	now := time.Now().UTC()
	q := `INSERT INTO submissions (id, rubric_id, source, user_id, company_name, contact_name, contact_email, website, answers, status, error, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,'',$11,$11)`
	_, err = r.Pool.Exec(ctx, q, id, s.RubricID, s.Source, s.UserID, s.CompanyName, s.ContactName, s.ContactEmail, s.Website, b, string(status), now)
	if err != nil {
		span.RecordError(err)
		return "", wrapErr("submission.create", err)
	}
	span.SetAttributes(attribute.String("submission.id", id))
	return id, nil
}

// Get loads a submission by id.
func (r *SubmissionRepo) Get(ctx domain.Context, id string) (domain.Submission, error) {
	ctx, span := startSpan(ctx, "repo.submissions", "submissions.Get", "SELECT", "submissions")
	defer span.End()
	span.SetAttributes(attribute.String("submission.id", id))

	row := r.Pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id=$1`, id)
	s, err := scanSubmission(row)
	if err != nil {
		return domain.Submission{}, wrapErr("submission.get", err)
	}
	return s, nil
}

// UpdateStatus sets the status and error message of a submission.
func (r *SubmissionRepo) UpdateStatus(ctx domain.Context, id string, status domain.SubmissionStatus, errMsg *string) error {
	ctx, span := startSpan(ctx, "repo.submissions", "submissions.UpdateStatus", "UPDATE", "submissions")
	defer span.End()
	span.SetAttributes(attribute.String("submission.id", id), attribute.String("submission.status", string(status)))

	errVal := ""
	if errMsg != nil {
		errVal = *errMsg
	}
	tag, err := r.Pool.Exec(ctx, `UPDATE submissions SET status=$2, error=$3, updated_at=$4 WHERE id=$1`, id, string(status), errVal, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		return wrapErr("submission.update_status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=submission.update_status: %w", domain.ErrNotFound)
	}
	return nil
}

// FailStuck marks a submission failed if it is still processing and older than updatedBefore.
func (r *SubmissionRepo) FailStuck(ctx domain.Context, id string, updatedBefore time.Time, errMsg string) (bool, error) {
	ctx, span := startSpan(ctx, "repo.submissions", "submissions.FailStuck", "UPDATE", "submissions")
	defer span.End()
	span.SetAttributes(attribute.String("submission.id", id))

	tag, err := r.Pool.Exec(ctx,
		`UPDATE submissions SET status=$2, error=$3, updated_at=$4 WHERE id=$1 AND status=$5 AND updated_at < $6`,
		id, string(domain.SubmissionFailed), errMsg, time.Now().UTC(), string(domain.SubmissionProcessing), updatedBefore)
	if err != nil {
		span.RecordError(err)
		return false, wrapErr("submission.fail_stuck", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListStuck returns up to limit submissions in status whose last update is older than updatedBefore.
func (r *SubmissionRepo) ListStuck(ctx domain.Context, status domain.SubmissionStatus, updatedBefore time.Time, limit int) ([]domain.Submission, error) {
	ctx, span := startSpan(ctx, "repo.submissions", "submissions.ListStuck", "SELECT", "submissions")
	defer span.End()

	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + submissionColumns + ` FROM submissions WHERE status=$1 AND updated_at < $2 ORDER BY updated_at ASC LIMIT $3`
	rows, err := r.Pool.Query(ctx, q, string(status), updatedBefore, limit)
	if err != nil {
		span.RecordError(err)
		return nil, wrapErr("submission.list_stuck", err)
	}
	defer rows.Close()

	var out []domain.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, wrapErr("submission.list_stuck", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("submission.list_stuck", err)
	}
	span.SetAttributes(attribute.Int("submissions.count", len(out)))
	return out, nil
}

// Delete removes a submission; its evaluation and failures cascade.
func (r *SubmissionRepo) Delete(ctx domain.Context, id string) error {
	ctx, span := startSpan(ctx, "repo.submissions", "submissions.Delete", "DELETE", "submissions")
	defer span.End()
	span.SetAttributes(attribute.String("submission.id", id))

	tag, err := r.Pool.Exec(ctx, `DELETE FROM submissions WHERE id=$1`, id)
	if err != nil {
		span.RecordError(err)
		return wrapErr("submission.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=submission.delete: %w", domain.ErrNotFound)
	}
	return nil
}

func scanSubmission(row pgx.Row) (domain.Submission, error) {
	var (
		s       domain.Submission
		answers []byte
		status  string
	)
	if err := row.Scan(&s.ID, &s.RubricID, &s.Source, &s.UserID, &s.CompanyName, &s.ContactName, &s.ContactEmail, &s.Website, &answers, &status, &s.ErrorMessage, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return domain.Submission{}, err
	}
	s.Status = domain.SubmissionStatus(status)
	s.Answers = map[string]string{}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &s.Answers); err != nil {
			return domain.Submission{}, fmt.Errorf("decode answers: %w", err)
		}
	}
	return s, nil
}
