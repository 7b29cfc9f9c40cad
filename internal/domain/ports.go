package domain

import "time"

// Repositories (ports)

type SubmissionRepository interface {
	Create(ctx Context, s Submission) (string, error)
	Get(ctx Context, id string) (Submission, error)
	UpdateStatus(ctx Context, id string, status SubmissionStatus, errMsg *string) error
	ListStuck(ctx Context, status SubmissionStatus, updatedBefore time.Time, limit int) ([]Submission, error)
	// FailStuck marks the submission failed only while it is still processing
	// and last updated before updatedBefore. It reports whether the row changed.
	FailStuck(ctx Context, id string, updatedBefore time.Time, errMsg string) (bool, error)
	Delete(ctx Context, id string) error
}

type EvaluationRepository interface {
	// Get returns the stored evaluation or ErrNotFound.
	Get(ctx Context, submissionID string) (Evaluation, error)
	// Replace deletes any stored evaluation for the submission and inserts e.
	// It fails with ErrConflict when the stored version is not expectedVersion
	// (0 meaning "nothing stored"). The returned evaluation carries the new version.
	Replace(ctx Context, e Evaluation, expectedVersion int64) (Evaluation, error)
	RecordFailure(ctx Context, f EvaluationFailure) error
}

type CompanyRepository interface {
	// Upsert inserts or updates by (normalized name, source, user) and reports
	// whether a row was inserted.
	Upsert(ctx Context, c Company) (Company, bool, error)
	List(ctx Context, f CompanyFilter) ([]Company, error)
}

// ModelRequest is one generation call.
type ModelRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// ModelResponse is the raw text reply and the model that produced it.
type ModelResponse struct {
	Text  string
	Model string
}

// ModelClient (port)
// Implementations return typed errors: ErrUpstreamRateLimit, ErrUpstreamPaymentRequired,
// ErrUpstreamTimeout, ErrTransport or *UpstreamError.
type ModelClient interface {
	Generate(ctx Context, req ModelRequest) (ModelResponse, error)
}

// RubricSource resolves rubrics by id.
type RubricSource interface {
	Get(id string) (Rubric, bool)
}

// Queue (port)

type Queue interface {
	EnqueueEvaluate(ctx Context, req EvaluateRequest) error
}

// EventPublisher (port)

type EventPublisher interface {
	PublishEvaluationCompleted(ctx Context, ev EvaluationCompleted) error
}
