package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
)

// EvaluationView is the API shape of a stored evaluation.
type EvaluationView struct {
	SubmissionID string                  `json:"submissionId"`
	RubricID     string                  `json:"rubricId"`
	Criteria     []domain.CriterionScore `json:"criteria"`
	Aggregate    int                     `json:"aggregate"`
	MaxScore     int                     `json:"maxScore"`
	Percent      int                     `json:"percent"`
	Summary      string                  `json:"summary"`
	Model        string                  `json:"model"`
	Version      int64                   `json:"version"`
	CreatedAt    time.Time               `json:"createdAt"`
}

// NewEvaluationView converts e to its API shape.
func NewEvaluationView(e domain.Evaluation) EvaluationView {
	return EvaluationView{
		SubmissionID: e.SubmissionID,
		RubricID:     e.RubricID,
		Criteria:     e.Criteria,
		Aggregate:    e.Aggregate,
		MaxScore:     e.MaxScore,
		Percent:      e.Percent(),
		Summary:      e.Summary,
		Model:        e.Model,
		Version:      e.Version,
		CreatedAt:    e.CreatedAt,
	}
}

// ResultService assembles the submission status response including ETag logic
// and error mapping.
type ResultService struct {
	Submissions domain.SubmissionRepository
	Evaluations domain.EvaluationRepository
}

// NewResultService constructs a ResultService with the given repositories.
func NewResultService(s domain.SubmissionRepository, e domain.EvaluationRepository) ResultService {
	return ResultService{Submissions: s, Evaluations: e}
}

// Fetch returns the HTTP status code, response body and ETag for a submission.
// It answers 304 when ifNoneMatch equals the current ETag.
func (s ResultService) Fetch(ctx domain.Context, id, ifNoneMatch string) (int, map[string]any, string, error) {
	if err := validateSubmissionID(id); err != nil {
		return http.StatusBadRequest, nil, "", err
	}
	sub, err := s.Submissions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return http.StatusNotFound, nil, "", fmt.Errorf("%w: submission not found", domain.ErrNotFound)
		}
		slog.Error("failed to get submission", slog.String("submission_id", id), slog.Any("error", err))
		return http.StatusInternalServerError, nil, "", err
	}

	m := map[string]any{
		"id":          sub.ID,
		"status":      string(sub.Status),
		"rubricId":    sub.RubricID,
		"companyName": sub.CompanyName,
		"updatedAt":   sub.UpdatedAt,
	}
	if sub.Status == domain.SubmissionFailed {
		m["error"] = map[string]any{
			"code":    errorCodeFromMessage(sub.ErrorMessage),
			"message": sub.ErrorMessage,
		}
	}

	e, err := s.Evaluations.Get(ctx, id)
	switch {
	case err == nil:
		m["evaluation"] = NewEvaluationView(e)
	case errors.Is(err, domain.ErrNotFound):
	default:
		return http.StatusInternalServerError, nil, "", err
	}

	etag := makeETag(m)
	if ifNoneMatch != "" && strings.Trim(ifNoneMatch, `"`) == etag {
		return http.StatusNotModified, nil, etag, nil
	}
	return http.StatusOK, m, etag, nil
}

func makeETag(v any) string {
	b, _ := json.Marshal(v)
	s := sha256.Sum256(b)
	return hex.EncodeToString(s[:])
}

var storedCodes = []string{
	"INVALID_ARGUMENT", "NOT_FOUND", "CONFLICT", "RATE_LIMITED", "UPSTREAM_RATE_LIMIT",
	"UPSTREAM_PAYMENT_REQUIRED", "UPSTREAM_TIMEOUT", "SCHEMA_INVALID", "UPSTREAM_ERROR",
	"PERSISTENCE_ERROR", "INTERNAL",
}

// errorCodeFromMessage maps a stored submission error to a stable error code.
// Messages written by the evaluator start with "CODE: "; anything else is classified by content.
func errorCodeFromMessage(msg string) string {
	for _, c := range storedCodes {
		if strings.HasPrefix(msg, c+": ") {
			return c
		}
	}
	s := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case s == "":
		return "INTERNAL"
	case strings.Contains(s, "schema invalid"):
		return "SCHEMA_INVALID"
	case strings.Contains(s, "payment required"):
		return "UPSTREAM_PAYMENT_REQUIRED"
	case strings.Contains(s, "rate limit"):
		return "UPSTREAM_RATE_LIMIT"
	case strings.Contains(s, "timeout"), strings.Contains(s, "deadline exceeded"):
		return "UPSTREAM_TIMEOUT"
	case strings.Contains(s, "persistence"):
		return "PERSISTENCE_ERROR"
	case strings.Contains(s, "not found"):
		return "NOT_FOUND"
	case strings.Contains(s, "invalid argument"):
		return "INVALID_ARGUMENT"
	default:
		return "INTERNAL"
	}
}
