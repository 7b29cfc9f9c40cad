package postgres

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
)

func TestCompanyListQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filter   domain.CompanyFilter
		contains []string
		args     []any
	}{
		{
			name:     "defaults",
			filter:   domain.CompanyFilter{},
			contains: []string{"FROM companies ORDER BY score_percent DESC, updated_at DESC, id", "LIMIT 20", "OFFSET 0"},
		},
		{
			name:     "all filters",
			filter:   domain.CompanyFilter{Source: "eureka", UserID: "u-1", MinPercent: 60, Offset: 40, Limit: 10},
			contains: []string{"WHERE source = $1 AND user_id = $2 AND score_percent >= $3", "LIMIT 10", "OFFSET 40"},
			args:     []any{"eureka", "u-1", 60},
		},
		{
			name:     "negative offset clamps",
			filter:   domain.CompanyFilter{UserID: "u-2", Offset: -5},
			contains: []string{"WHERE user_id = $1", "OFFSET 0"},
			args:     []any{"u-2"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sqlStr, args, err := companyListQuery(tt.filter).ToSql()
			require.NoError(t, err)
			for _, c := range tt.contains {
				assert.Contains(t, sqlStr, c)
			}
			if tt.args == nil {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tt.args, args)
			}
		})
	}
}

func companyRows(now time.Time) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "submission_id", "name", "normalized_name", "source", "user_id", "score", "max_score", "score_percent", "contact_name", "contact_email", "website", "summary", "created_at", "updated_at"}).
		AddRow("c-1", "s-1", "Acme", "acme", "eureka", "u-1", 16, 20, 80, "", "", "", "good", now, now).
		AddRow("c-2", "", "Beta", "beta", "eureka", "u-1", 60, 100, 60, "", "", "", "fine", now, now)
}

func TestCompanyRepo_List(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	m.ExpectQuery("FROM companies WHERE source").WithArgs("eureka").WillReturnRows(companyRows(now))

	out, err := NewCompanyRepo(m).List(context.Background(), domain.CompanyFilter{Source: "eureka"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "c-1", out[0].ID)
	assert.Equal(t, 80, out[0].ScorePercent)
	assert.Equal(t, 20, out[0].MaxScore)
	assert.Equal(t, "", out[1].SubmissionID)
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestCompanyRepo_Upsert(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	for _, inserted := range []bool{true, false} {
		inserted := inserted
		t.Run(map[bool]string{true: "inserted", false: "updated"}[inserted], func(t *testing.T) {
			t.Parallel()
			m, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer m.Close()

			m.ExpectQuery("(?s)INSERT INTO companies .* ON CONFLICT \\(normalized_name, source, user_id\\) DO UPDATE").
				WithArgs(pgxmock.AnyArg(), "s-1", "  Acme  Labs ", "acme labs", "eureka", "u-1", 16, 20, 80, "Jane", "jane@acme.io", "", "solid", pgxmock.AnyArg()).
				WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at", "inserted"}).AddRow("c-9", now, now, inserted))

			c, gotInserted, err := NewCompanyRepo(m).Upsert(context.Background(), domain.Company{
				SubmissionID: "s-1", Name: "  Acme  Labs ", Source: "eureka", UserID: "u-1",
				Score: 16, MaxScore: 20, ScorePercent: 80, ContactName: "Jane", ContactEmail: "jane@acme.io", Summary: "solid",
			})
			require.NoError(t, err)
			assert.Equal(t, inserted, gotInserted)
			assert.Equal(t, "c-9", c.ID)
			assert.Equal(t, "acme labs", c.NormalizedName)
			assert.NoError(t, m.ExpectationsWereMet())
		})
	}
}

func TestCompanyRepo_Upsert_Error(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	m.ExpectQuery("INSERT INTO companies").WillReturnError(assert.AnError)

	_, _, err = NewCompanyRepo(m).Upsert(context.Background(), domain.Company{Name: "Acme"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=company.upsert")
}
