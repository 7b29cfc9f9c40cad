package ai

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
)

func decodeRubric() domain.Rubric {
	return domain.Rubric{
		ID:    "pitch",
		Scale: domain.Scale{Min: 0, Max: 100},
		Criteria: []domain.Criterion{
			{Key: "problem", Title: "Problem"},
			{Key: "solution", Title: "Solution"},
			{Key: "market", Title: "Market"},
			{Key: "team", Title: "Team"},
		},
	}
}

func TestDecodeEvaluation_FromProse(t *testing.T) {
	raw := "Sure! Here is the evaluation you asked for:\n" +
		`{"criteria": {"team": {"score": 90, "feedback": "Strong"}, "problem": {"score": 80, "feedback": "Clear"},` +
		`"solution": {"score": 60, "feedback": ["Unclear moat", "MVP exists"]}, "market": {"score": "70", "feedback": "Big"}},` +
		`"overall_summary": "Promising team."}` + "\nLet me know if you need more."

	got, err := DecodeEvaluation(raw, decodeRubric())
	require.NoError(t, err)
	require.Len(t, got.Criteria, 4)
	assert.Equal(t, []string{"problem", "solution", "market", "team"}, keys(got.Criteria))
	assert.Equal(t, 80, got.Criteria[0].Score)
	assert.Equal(t, "Problem", got.Criteria[0].Title)
	assert.Equal(t, "• Unclear moat\n• MVP exists", got.Criteria[1].Feedback)
	assert.Equal(t, 70, got.Criteria[2].Score)
	assert.Equal(t, "Promising team.", got.Summary)
	assert.Equal(t, 75, domain.AggregateScore(got.Criteria))
}

func TestDecodeEvaluation_ArrayCriteriaAndSummaryAlias(t *testing.T) {
	raw := "```json\n" + `{"criteria": [
		{"key": "problem", "score": 10, "feedback": "a"},
		{"key": "solution", "score": 20.5, "feedback": "b"},
		{"key": "market", "score": 30, "feedback": null},
		{"key": "team", "score": 40, "feedback": "d"}
	], "summary": "ok"}` + "\n```"

	got, err := DecodeEvaluation(raw, decodeRubric())
	require.NoError(t, err)
	assert.Equal(t, 21, got.Criteria[1].Score)
	assert.Equal(t, "", got.Criteria[2].Feedback)
	assert.Equal(t, "ok", got.Summary)
}

func TestDecodeEvaluation_Failures(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{"no json", "I cannot help with that.", "no JSON object"},
		{"no criteria", `{"overall_summary": "x"}`, "no criteria"},
		{"missing criterion", `{"criteria": {"problem": {"score": 1}, "solution": {"score": 1}, "market": {"score": 1}}}`, `missing criterion "team"`},
		{"non numeric", `{"criteria": {"problem": {"score": "high"}, "solution": {"score": 1}, "market": {"score": 1}, "team": {"score": 1}}}`, "not numeric"},
		{"out of range", `{"criteria": {"problem": {"score": 101}, "solution": {"score": 1}, "market": {"score": 1}, "team": {"score": 1}}}`, "outside [0,100]"},
		{"bad feedback", `{"criteria": {"problem": {"score": 1, "feedback": 5}, "solution": {"score": 1}, "market": {"score": 1}, "team": {"score": 1}}}`, "feedback must be"},
		{"criteria scalar", `{"criteria": 5}`, "object or array"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEvaluation(tt.raw, decodeRubric())
			require.Error(t, err)
			var pe *domain.ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.raw, pe.Raw)
			assert.Contains(t, pe.Reason, tt.reason)
			assert.True(t, errors.Is(err, domain.ErrSchemaInvalid))
		})
	}
}

func keys(cs []domain.CriterionScore) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Key)
	}
	return out
}
