package domain

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// SubmissionStatus is the evaluation lifecycle state of a submission.
type SubmissionStatus string

const (
	SubmissionPending    SubmissionStatus = "pending"
	SubmissionProcessing SubmissionStatus = "processing"
	SubmissionCompleted  SubmissionStatus = "completed"
	SubmissionFailed     SubmissionStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionPending, SubmissionProcessing, SubmissionCompleted, SubmissionFailed:
		return true
	}
	return false
}

// CanTransition reports whether a submission may move from s to next.
// Re-analysis restarts processing from any settled state.
func (s SubmissionStatus) CanTransition(next SubmissionStatus) bool {
	switch next {
	case SubmissionProcessing:
		return s == SubmissionPending || s == SubmissionCompleted || s == SubmissionFailed || s == SubmissionProcessing
	case SubmissionCompleted, SubmissionFailed:
		return s == SubmissionProcessing
	}
	return false
}

// Submission is a founder-provided application awaiting or having received evaluation.
// Invariants: ID is a UUID; RubricID names a registered rubric; Status is valid.
type Submission struct {
	ID           string
	RubricID     string
	Source       string
	UserID       string
	CompanyName  string
	ContactName  string
	ContactEmail string
	Website      string
	Answers      map[string]string
	Status       SubmissionStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Answer returns the trimmed answer for key and whether it is non-blank.
func (s Submission) Answer(key string) (string, bool) {
	v, ok := s.Answers[key]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// CriterionScore is one scored rubric criterion.
type CriterionScore struct {
	Key      string `json:"key"`
	Title    string `json:"title"`
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// Evaluation is the model-produced set of per-criterion scores for a submission.
// Invariant: Aggregate == AggregateScore(Criteria).
type Evaluation struct {
	SubmissionID string
	RubricID     string
	Criteria     []CriterionScore
	Aggregate    int
	MaxScore     int
	Summary      string
	Model        string
	Version      int64
	CreatedAt    time.Time
}

// NewEvaluation builds an evaluation and computes its aggregate from criteria.
func NewEvaluation(submissionID string, r Rubric, criteria []CriterionScore, summary, model string) (Evaluation, error) {
	if len(criteria) == 0 {
		return Evaluation{}, fmt.Errorf("%w: evaluation has no criteria", ErrInvalidArgument)
	}
	for _, c := range criteria {
		if c.Score < r.Scale.Min || c.Score > r.Scale.Max {
			return Evaluation{}, fmt.Errorf("%w: score %d for %s out of range [%d,%d]", ErrInvalidArgument, c.Score, c.Key, r.Scale.Min, r.Scale.Max)
		}
	}
	return Evaluation{
		SubmissionID: submissionID,
		RubricID:     r.ID,
		Criteria:     criteria,
		Aggregate:    AggregateScore(criteria),
		MaxScore:     r.Scale.Max,
		Summary:      summary,
		Model:        model,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// AggregateScore returns the arithmetic mean of the criterion scores rounded
// half away from zero. It returns 0 for an empty slice.
func AggregateScore(criteria []CriterionScore) int {
	if len(criteria) == 0 {
		return 0
	}
	sum := 0
	for _, c := range criteria {
		sum += c.Score
	}
	return int(math.Round(float64(sum) / float64(len(criteria))))
}

// CheckAggregate verifies the stored aggregate still matches its criteria.
func (e Evaluation) CheckAggregate() error {
	if want := AggregateScore(e.Criteria); want != e.Aggregate {
		return fmt.Errorf("%w: aggregate %d does not match mean %d", ErrSchemaInvalid, e.Aggregate, want)
	}
	return nil
}

// Percent returns the aggregate on the 0-100 presentation scale.
func (e Evaluation) Percent() int {
	return ScaleToPercent(e.Aggregate, e.MaxScore)
}

// ScaleToPercent converts score on a 0..max scale to 0..100.
func ScaleToPercent(score, max int) int {
	if max <= 0 {
		return 0
	}
	if max == 100 {
		return score
	}
	return int(math.Round(float64(score) * 100 / float64(max)))
}

// EvaluationFailure keeps a model reply that could not be turned into an evaluation.
type EvaluationFailure struct {
	ID           string
	SubmissionID string
	RubricID     string
	Model        string
	RawOutput    string
	Reason       string
	CreatedAt    time.Time
}

// Company is the reviewable entity derived from a completed evaluation.
// Identity: (NormalizedName, Source, UserID) is unique.
type Company struct {
	ID             string
	SubmissionID   string
	Name           string
	NormalizedName string
	Source         string
	UserID         string
	Score          int
	MaxScore       int
	ScorePercent   int
	ContactName    string
	ContactEmail   string
	Website        string
	Summary        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NormalizeCompanyName lower-cases name, trims it and collapses inner whitespace.
func NormalizeCompanyName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// CompanyFilter narrows company listings.
type CompanyFilter struct {
	Source     string
	UserID     string
	MinPercent int
	Offset     int
	Limit      int
}

// EvaluateRequest is the queued form of an evaluation request.
type EvaluateRequest struct {
	SubmissionID string `json:"submission_id"`
	ForceRefresh bool   `json:"force_refresh"`
	RequestID    string `json:"request_id,omitempty"`
}

// EvaluationCompleted is published after an evaluation is stored.
type EvaluationCompleted struct {
	SubmissionID string    `json:"submission_id"`
	RubricID     string    `json:"rubric_id"`
	CompanyID    string    `json:"company_id,omitempty"`
	Aggregate    int       `json:"aggregate"`
	MaxScore     int       `json:"max_score"`
	Percent      int       `json:"percent"`
	Version      int64     `json:"version"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Context is an alias kept so ports read the same across packages.
type Context = context.Context
