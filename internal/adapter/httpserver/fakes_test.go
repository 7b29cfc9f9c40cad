package httpserver_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	httpserver "github.com/fairyhunter13/pitch-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/pitch-evaluator/internal/config"
	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
	"github.com/fairyhunter13/pitch-evaluator/internal/rubric"
	"github.com/fairyhunter13/pitch-evaluator/internal/usecase"
)

const pitchReply = `{"criteria": [` +
	`{"key": "problem", "score": 80, "feedback": "sharp"},` +
	`{"key": "solution", "score": 60, "feedback": "needs pilots"},` +
	`{"key": "market", "score": 70, "feedback": "ok"},` +
	`{"key": "team", "score": 90, "feedback": "strong"}], "overall_summary": "Promising"}`

type store struct {
	mu        sync.Mutex
	subs      map[string]domain.Submission
	evals     map[string]domain.Evaluation
	companies map[string]domain.Company
}

func newStore() *store {
	return &store{subs: map[string]domain.Submission{}, evals: map[string]domain.Evaluation{}, companies: map[string]domain.Company{}}
}

type subRepo struct{ *store }

func (s subRepo) Create(_ context.Context, sub domain.Submission) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ID = uuid.NewString()
	sub.CreatedAt = time.Now().UTC()
	sub.UpdatedAt = sub.CreatedAt
	s.subs[sub.ID] = sub
	return sub.ID, nil
}

func (s subRepo) Get(_ context.Context, id string) (domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return domain.Submission{}, domain.ErrNotFound
	}
	return sub, nil
}

func (s subRepo) UpdateStatus(_ context.Context, id string, st domain.SubmissionStatus, msg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return domain.ErrNotFound
	}
	sub.Status = st
	sub.ErrorMessage = ""
	if msg != nil {
		sub.ErrorMessage = *msg
	}
	s.subs[id] = sub
	return nil
}

func (s subRepo) ListStuck(context.Context, domain.SubmissionStatus, time.Time, int) ([]domain.Submission, error) {
	return nil, nil
}

func (s subRepo) FailStuck(context.Context, string, time.Time, string) (bool, error) {
	return false, nil
}

func (s subRepo) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.subs, id)
	delete(s.evals, id)
	return nil
}

type evalRepo struct{ *store }

func (s evalRepo) Get(_ context.Context, id string) (domain.Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.evals[id]
	if !ok {
		return domain.Evaluation{}, domain.ErrNotFound
	}
	return e, nil
}

func (s evalRepo) Replace(_ context.Context, e domain.Evaluation, expected int64) (domain.Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.evals[e.SubmissionID].Version != expected {
		return domain.Evaluation{}, domain.ErrConflict
	}
	e.Version = expected + 1
	s.evals[e.SubmissionID] = e
	return e, nil
}

func (s evalRepo) RecordFailure(context.Context, domain.EvaluationFailure) error { return nil }

type companyRepo struct{ *store }

func (s companyRepo) Upsert(_ context.Context, c domain.Company) (domain.Company, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := c.NormalizedName + "|" + c.Source + "|" + c.UserID
	prev, ok := s.companies[key]
	if ok {
		c.ID = prev.ID
	} else {
		c.ID = uuid.NewString()
	}
	c.UpdatedAt = time.Now().UTC()
	s.companies[key] = c
	return c, !ok, nil
}

func (s companyRepo) List(_ context.Context, f domain.CompanyFilter) ([]domain.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Company{}
	for _, c := range s.companies {
		if c.ScorePercent >= f.MinPercent && (f.Source == "" || f.Source == c.Source) {
			out = append(out, c)
		}
	}
	return out, nil
}

// modelFunc adapts a function to domain.ModelClient.
type modelFunc func(context.Context, domain.ModelRequest) (domain.ModelResponse, error)

func (f modelFunc) Generate(ctx context.Context, req domain.ModelRequest) (domain.ModelResponse, error) {
	return f(ctx, req)
}

func replyWith(text string) modelFunc {
	return func(context.Context, domain.ModelRequest) (domain.ModelResponse, error) {
		return domain.ModelResponse{Text: text, Model: "test-model"}, nil
	}
}

func failWith(err error) modelFunc {
	return func(context.Context, domain.ModelRequest) (domain.ModelResponse, error) {
		return domain.ModelResponse{}, err
	}
}

type recordingQueue struct {
	mu   sync.Mutex
	reqs []domain.EvaluateRequest
}

func (q *recordingQueue) EnqueueEvaluate(_ context.Context, req domain.EvaluateRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reqs = append(q.reqs, req)
	return nil
}

type testEnv struct {
	store  *store
	srv    *httpserver.Server
	router http.Handler
}

// newTestEnv wires real services over in-memory repositories and mounts the
// handlers on a chi router the way the application router does.
func newTestEnv(t *testing.T, model domain.ModelClient, queue domain.Queue) *testEnv {
	t.Helper()
	reg, err := rubric.Default()
	require.NoError(t, err)
	st := newStore()
	companies := usecase.NewCompanyService(companyRepo{st})
	eval := &usecase.EvaluateService{
		Submissions:  subRepo{st},
		Evaluations:  evalRepo{st},
		Companies:    companies,
		Model:        model,
		Rubrics:      reg,
		Queue:        queue,
		DefaultModel: "test-model",
	}
	srv := httpserver.NewServer(
		config.Config{AppEnv: "test"},
		usecase.NewSubmissionService(subRepo{st}, reg),
		eval,
		usecase.NewResultService(subRepo{st}, evalRepo{st}),
		companies,
		nil, nil, nil,
	)

	hash, err := httpserver.HashPassword("s3cret", httpserver.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(httpserver.Recoverer(), httpserver.RequestID())
	r.Post("/v1/evaluate", srv.EvaluateHandler())
	r.Post("/v1/submissions", srv.CreateSubmissionHandler())
	r.Get("/v1/submissions/{id}", srv.ResultHandler())
	r.Post("/v1/submissions/{id}/evaluate", srv.SubmissionEvaluateHandler())
	r.Get("/v1/companies", srv.CompaniesHandler())
	r.With(httpserver.BasicAuth("admin", hash)).Delete("/v1/admin/submissions/{id}", srv.DeleteSubmissionHandler())
	return &testEnv{store: st, srv: srv, router: r}
}

func (e *testEnv) seed(t *testing.T, sub domain.Submission) string {
	t.Helper()
	if sub.RubricID == "" {
		sub.RubricID = "pitch"
	}
	if sub.CompanyName == "" {
		sub.CompanyName = "Acme Labs"
	}
	if sub.Source == "" {
		sub.Source = "eureka"
	}
	sub.Status = domain.SubmissionPending
	id, err := subRepo{e.store}.Create(context.Background(), sub)
	require.NoError(t, err)
	return id
}

func usecaseInput(id string) usecase.EvaluateInput {
	return usecase.EvaluateInput{SubmissionID: id}
}
