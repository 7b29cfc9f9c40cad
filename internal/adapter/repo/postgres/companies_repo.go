package postgres

import (
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
)

var companyColumns = []string{
	"id::text", "COALESCE(submission_id::text, '')", "name", "normalized_name", "source", "user_id",
	"score", "max_score", "score_percent", "contact_name", "contact_email", "website", "summary",
	"created_at", "updated_at",
}

const defaultCompanyPageSize = 20

// CompanyRepo persists companies derived from evaluations.
type CompanyRepo struct{ Pool PgxPool }

// NewCompanyRepo constructs a CompanyRepo with the given pool.
func NewCompanyRepo(p PgxPool) *CompanyRepo { return &CompanyRepo{Pool: p} }

// Upsert writes c in one statement keyed by (normalized_name, source, user_id).
// The returned bool is true when the row was inserted rather than updated.
func (r *CompanyRepo) Upsert(ctx domain.Context, c domain.Company) (domain.Company, bool, error) {
	ctx, span := startSpan(ctx, "repo.companies", "companies.Upsert", "UPSERT", "companies")
	defer span.End()

	if c.NormalizedName == "" {
		c.NormalizedName = domain.NormalizeCompanyName(c.Name)
	}
	id := c.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	q := `INSERT INTO companies (id, submission_id, name, normalized_name, source, user_id, score, max_score, score_percent, contact_name, contact_email, website, summary, created_at, updated_at)
VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
ON CONFLICT (normalized_name, source, user_id) DO UPDATE SET
	submission_id = EXCLUDED.submission_id,
	name = EXCLUDED.name,
	score = EXCLUDED.score,
	max_score = EXCLUDED.max_score,
	score_percent = EXCLUDED.score_percent,
	contact_name = EXCLUDED.contact_name,
	contact_email = EXCLUDED.contact_email,
	website = EXCLUDED.website,
	summary = EXCLUDED.summary,
	updated_at = EXCLUDED.updated_at
RETURNING id::text, created_at, updated_at, (xmax = 0) AS inserted`

	var inserted bool
	err := r.Pool.QueryRow(ctx, q,
		id, c.SubmissionID, c.Name, c.NormalizedName, c.Source, c.UserID,
		c.Score, c.MaxScore, c.ScorePercent, c.ContactName, c.ContactEmail, c.Website, c.Summary, now,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt, &inserted)
	if err != nil {
		span.RecordError(err)
		return domain.Company{}, false, wrapErr("company.upsert", err)
	}
	span.SetAttributes(attribute.String("company.id", c.ID), attribute.Bool("company.inserted", inserted))
	return c, inserted, nil
}

// List returns companies matching f ordered by score, best first.
func (r *CompanyRepo) List(ctx domain.Context, f domain.CompanyFilter) ([]domain.Company, error) {
	ctx, span := startSpan(ctx, "repo.companies", "companies.List", "SELECT", "companies")
	defer span.End()

	sqlStr, args, err := companyListQuery(f).ToSql()
	if err != nil {
		return nil, wrapErr("company.list.build", err)
	}
	rows, err := r.Pool.Query(ctx, sqlStr, args...)
	if err != nil {
		span.RecordError(err)
		return nil, wrapErr("company.list", err)
	}
	defer rows.Close()

	out := make([]domain.Company, 0)
	for rows.Next() {
		var c domain.Company
		if err := rows.Scan(&c.ID, &c.SubmissionID, &c.Name, &c.NormalizedName, &c.Source, &c.UserID,
			&c.Score, &c.MaxScore, &c.ScorePercent, &c.ContactName, &c.ContactEmail, &c.Website, &c.Summary,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, wrapErr("company.list.scan", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("company.list", err)
	}
	span.SetAttributes(attribute.Int("companies.count", len(out)))
	return out, nil
}

func companyListQuery(f domain.CompanyFilter) sq.SelectBuilder {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultCompanyPageSize
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	q := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select(companyColumns...).
		From("companies")
	if f.Source != "" {
		q = q.Where(sq.Eq{"source": f.Source})
	}
	if f.UserID != "" {
		q = q.Where(sq.Eq{"user_id": f.UserID})
	}
	if f.MinPercent > 0 {
		q = q.Where(sq.GtOrEq{"score_percent": f.MinPercent})
	}
	return q.OrderBy("score_percent DESC", "updated_at DESC", "id").
		Limit(uint64(limit)).
		Offset(uint64(offset))
}
