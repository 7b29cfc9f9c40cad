package usecase_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
)

type memSubmissions struct {
	mu       sync.Mutex
	rows     map[string]domain.Submission
	history  map[string][]domain.SubmissionStatus
	getCalls int
}

func newMemSubmissions(subs ...domain.Submission) *memSubmissions {
	m := &memSubmissions{rows: map[string]domain.Submission{}, history: map[string][]domain.SubmissionStatus{}}
	for _, s := range subs {
		if s.Status == "" {
			s.Status = domain.SubmissionPending
		}
		m.rows[s.ID] = s
	}
	return m
}

func (m *memSubmissions) Create(_ context.Context, s domain.Submission) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	m.rows[s.ID] = s
	return s.ID, nil
}

func (m *memSubmissions) Get(_ context.Context, id string) (domain.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	s, ok := m.rows[id]
	if !ok {
		return domain.Submission{}, fmt.Errorf("op=submission.get: %w", domain.ErrNotFound)
	}
	return s, nil
}

func (m *memSubmissions) UpdateStatus(_ context.Context, id string, status domain.SubmissionStatus, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.Status = status
	s.ErrorMessage = ""
	if errMsg != nil {
		s.ErrorMessage = *errMsg
	}
	s.UpdatedAt = time.Now().UTC()
	m.rows[id] = s
	m.history[id] = append(m.history[id], status)
	return nil
}

func (m *memSubmissions) ListStuck(_ context.Context, status domain.SubmissionStatus, before time.Time, limit int) ([]domain.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Submission
	for _, s := range m.rows {
		if s.Status == status && s.UpdatedAt.Before(before) && len(out) < limit {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSubmissions) FailStuck(_ context.Context, id string, before time.Time, msg string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok || s.Status != domain.SubmissionProcessing || !s.UpdatedAt.Before(before) {
		return false, nil
	}
	s.Status, s.ErrorMessage, s.UpdatedAt = domain.SubmissionFailed, msg, time.Now().UTC()
	m.rows[id] = s
	m.history[id] = append(m.history[id], domain.SubmissionFailed)
	return true, nil
}

func (m *memSubmissions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memSubmissions) status(id string) domain.SubmissionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].Status
}

func (m *memSubmissions) errorMessage(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].ErrorMessage
}

type memEvaluations struct {
	mu          sync.Mutex
	rows        map[string]domain.Evaluation
	failures    []domain.EvaluationFailure
	replaceErrs []error
	replaces    int
}

func newMemEvaluations() *memEvaluations {
	return &memEvaluations{rows: map[string]domain.Evaluation{}}
}

func (m *memEvaluations) Get(_ context.Context, id string) (domain.Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return domain.Evaluation{}, fmt.Errorf("op=evaluation.get: %w", domain.ErrNotFound)
	}
	return e, nil
}

func (m *memEvaluations) Replace(_ context.Context, e domain.Evaluation, expected int64) (domain.Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaces++
	if len(m.replaceErrs) > 0 {
		err := m.replaceErrs[0]
		m.replaceErrs = m.replaceErrs[1:]
		if err != nil {
			return domain.Evaluation{}, err
		}
	}
	if err := e.CheckAggregate(); err != nil {
		return domain.Evaluation{}, err
	}
	current := m.rows[e.SubmissionID].Version
	if current != expected {
		return domain.Evaluation{}, fmt.Errorf("op=evaluation.replace: %w", domain.ErrConflict)
	}
	e.Version = current + 1
	m.rows[e.SubmissionID] = e
	return e, nil
}

func (m *memEvaluations) RecordFailure(_ context.Context, f domain.EvaluationFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, f)
	return nil
}

type memCompanies struct {
	mu         sync.Mutex
	rows       map[string]domain.Company
	upsertErrs []error
}

func newMemCompanies() *memCompanies { return &memCompanies{rows: map[string]domain.Company{}} }

func (m *memCompanies) Upsert(_ context.Context, c domain.Company) (domain.Company, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.upsertErrs) > 0 {
		err := m.upsertErrs[0]
		m.upsertErrs = m.upsertErrs[1:]
		if err != nil {
			return domain.Company{}, false, err
		}
	}
	key := c.NormalizedName + "\x00" + c.Source + "\x00" + c.UserID
	if prev, ok := m.rows[key]; ok {
		c.ID, c.CreatedAt = prev.ID, prev.CreatedAt
		c.UpdatedAt = time.Now().UTC()
		m.rows[key] = c
		return c, false, nil
	}
	c.ID = uuid.NewString()
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	m.rows[key] = c
	return c, true, nil
}

func (m *memCompanies) List(_ context.Context, f domain.CompanyFilter) ([]domain.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Company
	for _, c := range m.rows {
		if (f.Source == "" || c.Source == f.Source) && (f.UserID == "" || c.UserID == f.UserID) && c.ScorePercent >= f.MinPercent {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScorePercent > out[j].ScorePercent })
	if f.Offset >= len(out) {
		return []domain.Company{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memCompanies) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// countingModel returns reply (or err) and counts calls.
type countingModel struct {
	calls  atomic.Int32
	reply  string
	err    error
	before func()
	last   atomic.Pointer[domain.ModelRequest]
}

func (m *countingModel) Generate(_ context.Context, req domain.ModelRequest) (domain.ModelResponse, error) {
	m.calls.Add(1)
	m.last.Store(&req)
	if m.before != nil {
		m.before()
	}
	if m.err != nil {
		return domain.ModelResponse{}, m.err
	}
	return domain.ModelResponse{Text: m.reply, Model: req.Model}, nil
}

type fixedCounter struct{ n int }

func (f fixedCounter) CountChatTokens(_, _, _ string) (int, error) { return f.n, nil }
func (f fixedCounter) CountTokens(_, _ string) (int, error)      { return 10, nil }

type mockQueue struct{ mock.Mock }

func (m *mockQueue) EnqueueEvaluate(ctx context.Context, req domain.EvaluateRequest) error {
	return m.Called(ctx, req).Error(0)
}

type mockEvents struct{ mock.Mock }

func (m *mockEvents) PublishEvaluationCompleted(ctx context.Context, ev domain.EvaluationCompleted) error {
	return m.Called(ctx, ev).Error(0)
}
