// Package usecase contains application business logic services.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fairyhunter13/pitch-evaluator/internal/adapter/ai"
	"github.com/fairyhunter13/pitch-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
	"github.com/fairyhunter13/pitch-evaluator/internal/prompt"
)

// TokenCounter counts chat prompt tokens for a model.
type TokenCounter interface {
	CountChatTokens(system, user, model string) (int, error)
	CountTokens(text, model string) (int, error)
}

// EvaluateInput names the submission to evaluate.
type EvaluateInput struct {
	SubmissionID string
	ForceRefresh bool
	RequestID    string
}

// EvaluationOutcome is the evaluation returned to the caller. Cached is true
// when no new model result was stored by this call.
type EvaluationOutcome struct {
	Evaluation domain.Evaluation
	Cached     bool
	CompanyID  string
}

// EvaluateService runs the cache-checked evaluation pipeline:
// load, cache check, prompt, model call, parse, persist, company merge.
type EvaluateService struct {
	Submissions domain.SubmissionRepository
	Evaluations domain.EvaluationRepository
	Companies   CompanyService
	Model       domain.ModelClient
	Rubrics     domain.RubricSource
	// Queue and Events are optional.
	Queue  domain.Queue
	Events domain.EventPublisher
	Tokens TokenCounter

	DefaultModel    string
	MaxPromptTokens int
	// PersistBackOff returns a fresh bounded backoff for persistence writes.
	PersistBackOff func() backoff.BackOff
}

func (s *EvaluateService) persistBackOff() backoff.BackOff {
	if s.PersistBackOff != nil {
		return s.PersistBackOff()
	}
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), 3)
}

// EnqueueEvaluation checks the submission exists and hands it to the worker queue.
func (s *EvaluateService) EnqueueEvaluation(ctx domain.Context, in EvaluateInput) error {
	if err := validateSubmissionID(in.SubmissionID); err != nil {
		return err
	}
	if s.Queue == nil {
		return fmt.Errorf("%w: async evaluation is not configured", domain.ErrInternal)
	}
	if _, err := s.Submissions.Get(ctx, in.SubmissionID); err != nil {
		return fmt.Errorf("op=evaluate.enqueue: %w", err)
	}
	req := domain.EvaluateRequest{SubmissionID: in.SubmissionID, ForceRefresh: in.ForceRefresh, RequestID: in.RequestID}
	if req.RequestID == "" {
		req.RequestID = observability.RequestIDFromContext(ctx)
	}
	if err := s.Queue.EnqueueEvaluate(ctx, req); err != nil {
		return fmt.Errorf("op=evaluate.enqueue: %w", err)
	}
	return nil
}

// HandleEvaluate runs Evaluate for a queued request.
func (s *EvaluateService) HandleEvaluate(ctx context.Context, req domain.EvaluateRequest) error {
	_, err := s.Evaluate(ctx, EvaluateInput{SubmissionID: req.SubmissionID, ForceRefresh: req.ForceRefresh, RequestID: req.RequestID})
	return err
}

// Evaluate returns the stored evaluation for the submission unless one is
// missing or ForceRefresh is set, in which case the model is called and the
// new evaluation replaces the stored one.
func (s *EvaluateService) Evaluate(ctx domain.Context, in EvaluateInput) (EvaluationOutcome, error) {
	ctx, span := otel.Tracer("usecase.evaluate").Start(ctx, "EvaluateService.Evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("submission.id", in.SubmissionID), attribute.Bool("evaluate.force_refresh", in.ForceRefresh))

	if err := validateSubmissionID(in.SubmissionID); err != nil {
		return EvaluationOutcome{}, err
	}
	ctx = observability.WithLogAttrs(ctx, slog.String("submission_id", in.SubmissionID))
	lg := observability.LoggerFromContext(ctx)

	sub, err := s.Submissions.Get(ctx, in.SubmissionID)
	if err != nil {
		return EvaluationOutcome{}, fmt.Errorf("op=evaluate.load: %w", err)
	}
	rub, ok := s.Rubrics.Get(sub.RubricID)
	if !ok {
		return EvaluationOutcome{}, fmt.Errorf("%w: unknown rubric %q", domain.ErrInvalidArgument, sub.RubricID)
	}
	span.SetAttributes(attribute.String("rubric.id", rub.ID))

	var expectedVersion int64
	stored, err := s.Evaluations.Get(ctx, sub.ID)
	switch {
	case err == nil && !in.ForceRefresh:
		observability.RecordEvaluation(rub.ID, "cached")
		span.SetAttributes(attribute.Bool("evaluate.cached", true))
		if sub.Status == domain.SubmissionCompleted || sub.Status == domain.SubmissionProcessing {
			lg.Info("returning stored evaluation", slog.Int64("version", stored.Version))
			return EvaluationOutcome{Evaluation: stored, Cached: true}, nil
		}
		return s.resume(ctx, sub, rub, stored)
	case err == nil:
		expectedVersion = stored.Version
	case errors.Is(err, domain.ErrNotFound):
	default:
		return EvaluationOutcome{}, fmt.Errorf("op=evaluate.load_evaluation: %w", err)
	}

	if !sub.Status.CanTransition(domain.SubmissionProcessing) {
		return EvaluationOutcome{}, fmt.Errorf("%w: submission in status %s", domain.ErrConflict, sub.Status)
	}
	if err := s.Submissions.UpdateStatus(ctx, sub.ID, domain.SubmissionProcessing, nil); err != nil {
		return EvaluationOutcome{}, fmt.Errorf("op=evaluate.mark_processing: %w", err)
	}

	out, err := s.run(ctx, sub, rub, expectedVersion)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.ErrorCode(err))
		return EvaluationOutcome{}, s.fail(ctx, sub, rub, err)
	}
	return out, nil
}

func (s *EvaluateService) run(ctx context.Context, sub domain.Submission, rub domain.Rubric, expectedVersion int64) (EvaluationOutcome, error) {
	lg := observability.LoggerFromContext(ctx)
	p := prompt.Build(rub, sub)
	model := rub.Model
	if model == "" {
		model = s.DefaultModel
	}

	if s.Tokens != nil && s.MaxPromptTokens > 0 {
		n, err := s.Tokens.CountChatTokens(p.System, p.User, model)
		if err != nil {
			lg.Warn("prompt token count unavailable", slog.Any("error", err))
		} else {
			observability.RecordTokens(model, "prompt", n)
			if n > s.MaxPromptTokens {
				return EvaluationOutcome{}, fmt.Errorf("%w: prompt has %d tokens, limit is %d", domain.ErrInvalidArgument, n, s.MaxPromptTokens)
			}
		}
	}

	resp, err := s.Model.Generate(ctx, domain.ModelRequest{
		Model:       model,
		System:      p.System,
		Prompt:      p.User,
		Temperature: rub.Temperature,
		MaxTokens:   rub.MaxTokens,
	})
	if err != nil {
		return EvaluationOutcome{}, err
	}
	if resp.Model != "" {
		model = resp.Model
	}
	if s.Tokens != nil {
		if n, err := s.Tokens.CountTokens(resp.Text, model); err == nil {
			observability.RecordTokens(model, "completion", n)
		}
	}

	decoded, err := ai.DecodeEvaluation(resp.Text, rub)
	if err == nil {
		var e domain.Evaluation
		e, err = domain.NewEvaluation(sub.ID, rub, decoded.Criteria, decoded.Summary, model)
		if err != nil {
			err = &domain.ParseError{Raw: resp.Text, Reason: err.Error()}
		} else {
			return s.store(ctx, sub, rub, e, expectedVersion)
		}
	}
	var perr *domain.ParseError
	if errors.As(err, &perr) {
		ferr := s.Evaluations.RecordFailure(context.WithoutCancel(ctx), domain.EvaluationFailure{
			SubmissionID: sub.ID,
			RubricID:     rub.ID,
			Model:        model,
			RawOutput:    perr.Raw,
			Reason:       perr.Reason,
		})
		if ferr != nil {
			lg.Error("failed to keep unparseable model output", slog.Any("error", ferr))
		}
	}
	return EvaluationOutcome{}, fmt.Errorf("op=evaluate.parse: %w", err)
}

func (s *EvaluateService) store(ctx context.Context, sub domain.Submission, rub domain.Rubric, e domain.Evaluation, expectedVersion int64) (EvaluationOutcome, error) {
	lg := observability.LoggerFromContext(ctx)

	var saved domain.Evaluation
	err := s.persist(ctx, func() error {
		var err error
		saved, err = s.Evaluations.Replace(ctx, e, expectedVersion)
		return err
	})
	if errors.Is(err, domain.ErrConflict) {
		// Another writer stored a newer evaluation while the model was running.
		latest, gerr := s.Evaluations.Get(ctx, sub.ID)
		if gerr != nil {
			return EvaluationOutcome{}, fmt.Errorf("%w: load after conflict: %w", domain.ErrPersistence, gerr)
		}
		if uerr := s.Submissions.UpdateStatus(ctx, sub.ID, domain.SubmissionCompleted, nil); uerr != nil {
			lg.Warn("failed to mark submission completed after conflict", slog.Any("error", uerr))
		}
		observability.RecordEvaluation(rub.ID, "conflict")
		lg.Info("discarding evaluation, a newer one was stored", slog.Int64("stored_version", latest.Version))
		return EvaluationOutcome{Evaluation: latest, Cached: true}, nil
	}
	if err != nil {
		return EvaluationOutcome{}, fmt.Errorf("%w: store evaluation: %w", domain.ErrPersistence, err)
	}
	return s.finish(ctx, sub, rub, saved)
}

// resume completes a submission whose evaluation is stored but whose company
// merge or final status update did not succeed. The model is not called.
func (s *EvaluateService) resume(ctx context.Context, sub domain.Submission, rub domain.Rubric, stored domain.Evaluation) (EvaluationOutcome, error) {
	observability.LoggerFromContext(ctx).Info("finishing stored evaluation",
		slog.String("status", string(sub.Status)), slog.Int64("version", stored.Version))
	if err := s.Submissions.UpdateStatus(ctx, sub.ID, domain.SubmissionProcessing, nil); err != nil {
		return EvaluationOutcome{}, fmt.Errorf("op=evaluate.mark_processing: %w", err)
	}
	out, err := s.finish(ctx, sub, rub, stored)
	if err != nil {
		return EvaluationOutcome{}, s.fail(ctx, sub, rub, err)
	}
	out.Cached = true
	return out, nil
}

// finish merges the company for a stored evaluation, marks the submission
// completed and publishes the completion event.
func (s *EvaluateService) finish(ctx context.Context, sub domain.Submission, rub domain.Rubric, saved domain.Evaluation) (EvaluationOutcome, error) {
	lg := observability.LoggerFromContext(ctx)

	var company domain.Company
	err := s.persist(ctx, func() error {
		var err error
		company, _, err = s.Companies.Merge(ctx, sub, saved)
		return err
	})
	if err != nil {
		return EvaluationOutcome{}, fmt.Errorf("%w: merge company: %w", domain.ErrPersistence, err)
	}

	err = s.persist(ctx, func() error {
		return s.Submissions.UpdateStatus(ctx, sub.ID, domain.SubmissionCompleted, nil)
	})
	if err != nil {
		return EvaluationOutcome{}, fmt.Errorf("%w: mark completed: %w", domain.ErrPersistence, err)
	}

	observability.RecordEvaluation(rub.ID, "completed")
	observability.ObserveScore(rub.ID, saved.Percent())
	lg.Info("evaluation stored",
		slog.Int("aggregate", saved.Aggregate),
		slog.Int("max_score", saved.MaxScore),
		slog.Int64("version", saved.Version),
		slog.String("company_id", company.ID))

	s.publish(ctx, saved, company.ID)
	return EvaluationOutcome{Evaluation: saved, CompanyID: company.ID}, nil
}

// persist retries op with the bounded persistence backoff. Invalid input,
// missing rows and version conflicts are not retried.
func (s *EvaluateService) persist(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(s.persistBackOff(), ctx))
}

func (s *EvaluateService) publish(ctx context.Context, e domain.Evaluation, companyID string) {
	if s.Events == nil {
		return
	}
	ev := domain.EvaluationCompleted{
		SubmissionID: e.SubmissionID,
		RubricID:     e.RubricID,
		CompanyID:    companyID,
		Aggregate:    e.Aggregate,
		MaxScore:     e.MaxScore,
		Percent:      e.Percent(),
		Version:      e.Version,
		CompletedAt:  time.Now().UTC(),
	}
	if err := s.Events.PublishEvaluationCompleted(ctx, ev); err != nil {
		observability.LoggerFromContext(ctx).Warn("failed to publish evaluation completed event", slog.Any("error", err))
	}
}

// fail records err on the submission, prefixed with its code, and returns it unchanged.
func (s *EvaluateService) fail(ctx context.Context, sub domain.Submission, rub domain.Rubric, err error) error {
	msg := domain.ErrorCode(err) + ": " + err.Error()
	if uerr := s.Submissions.UpdateStatus(context.WithoutCancel(ctx), sub.ID, domain.SubmissionFailed, &msg); uerr != nil {
		observability.LoggerFromContext(ctx).Error("failed to mark submission failed", slog.Any("error", uerr))
	}
	observability.RecordEvaluation(rub.ID, "failed")
	observability.LoggerFromContext(ctx).Warn("evaluation failed", slog.String("code", domain.ErrorCode(err)), slog.Any("error", err))
	return err
}
