package usecase

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
	"github.com/fairyhunter13/pitch-evaluator/pkg/textx"
)

const maxAnswerLength = 20000

// SubmissionService stores and loads founder submissions.
type SubmissionService struct {
	Submissions domain.SubmissionRepository
	Rubrics     domain.RubricSource
}

// NewSubmissionService constructs a SubmissionService.
func NewSubmissionService(r domain.SubmissionRepository, rubrics domain.RubricSource) SubmissionService {
	return SubmissionService{Submissions: r, Rubrics: rubrics}
}

// Create sanitizes and stores s as a pending submission.
func (s SubmissionService) Create(ctx domain.Context, in domain.Submission) (domain.Submission, error) {
	in.RubricID = strings.TrimSpace(in.RubricID)
	if _, ok := s.Rubrics.Get(in.RubricID); !ok {
		return domain.Submission{}, fmt.Errorf("%w: unknown rubric %q", domain.ErrInvalidArgument, in.RubricID)
	}
	in.CompanyName = textx.SanitizeLine(in.CompanyName)
	if in.CompanyName == "" {
		return domain.Submission{}, fmt.Errorf("%w: company name required", domain.ErrInvalidArgument)
	}
	in.Source = textx.SanitizeLine(in.Source)
	if in.Source == "" {
		in.Source = in.RubricID
	}
	in.UserID = textx.SanitizeLine(in.UserID)
	in.ContactName = textx.SanitizeLine(in.ContactName)
	in.ContactEmail = strings.ToLower(textx.SanitizeLine(in.ContactEmail))
	in.Website = textx.SanitizeLine(in.Website)

	answers := make(map[string]string, len(in.Answers))
	for k, v := range in.Answers {
		k = textx.SanitizeLine(k)
		v = textx.SanitizeText(v)
		if k == "" || v == "" {
			continue
		}
		if len(v) > maxAnswerLength {
			return domain.Submission{}, fmt.Errorf("%w: answer %q exceeds %d characters", domain.ErrInvalidArgument, k, maxAnswerLength)
		}
		answers[k] = v
	}
	in.Answers = answers
	in.ID = ""
	in.Status = domain.SubmissionPending
	in.ErrorMessage = ""

	id, err := s.Submissions.Create(ctx, in)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("op=submission.create: %w", err)
	}
	slog.Info("submission created", slog.String("submission_id", id), slog.String("rubric_id", in.RubricID))
	return s.Submissions.Get(ctx, id)
}

// Get loads a submission by id.
func (s SubmissionService) Get(ctx domain.Context, id string) (domain.Submission, error) {
	if err := validateSubmissionID(id); err != nil {
		return domain.Submission{}, err
	}
	return s.Submissions.Get(ctx, id)
}

// Delete removes a submission together with its evaluation.
func (s SubmissionService) Delete(ctx domain.Context, id string) error {
	if err := validateSubmissionID(id); err != nil {
		return err
	}
	if err := s.Submissions.Delete(ctx, id); err != nil {
		return fmt.Errorf("op=submission.delete: %w", err)
	}
	slog.Info("submission deleted", slog.String("submission_id", id))
	return nil
}

func validateSubmissionID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: submission id required", domain.ErrInvalidArgument)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: submission id must be a UUID", domain.ErrInvalidArgument)
	}
	return nil
}
