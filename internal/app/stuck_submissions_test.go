package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
)

type mockSubmissions struct {
	mock.Mock
	domain.SubmissionRepository
}

func (m *mockSubmissions) ListStuck(ctx context.Context, status domain.SubmissionStatus, before time.Time, limit int) ([]domain.Submission, error) {
	args := m.Called(ctx, status, before, limit)
	subs, _ := args.Get(0).([]domain.Submission)
	return subs, args.Error(1)
}

func (m *mockSubmissions) FailStuck(ctx context.Context, id string, before time.Time, msg string) (bool, error) {
	args := m.Called(ctx, id, before, msg)
	return args.Bool(0), args.Error(1)
}

func TestStuckSubmissionSweeper_SweepOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &mockSubmissions{}
	s := NewStuckSubmissionSweeper(repo, 10*time.Minute, time.Minute)
	s.now = func() time.Time { return now }

	cutoff := now.Add(-10 * time.Minute)
	repo.On("ListStuck", mock.Anything, domain.SubmissionProcessing, cutoff, 100).
		Return([]domain.Submission{{ID: "a"}, {ID: "b"}, {ID: "c"}}, nil).Once()
	wantMsg := "INTERNAL: " + StuckMessage
	repo.On("FailStuck", mock.Anything, "a", cutoff, wantMsg).Return(true, nil).Once()
	repo.On("FailStuck", mock.Anything, "b", cutoff, wantMsg).Return(false, errors.New("db down")).Once()
	// c completed between the list and the update.
	repo.On("FailStuck", mock.Anything, "c", cutoff, wantMsg).Return(false, nil).Once()

	assert.Equal(t, 1, s.SweepOnce(context.Background()))
	repo.AssertExpectations(t)
}

func TestStuckSubmissionSweeper_ListError(t *testing.T) {
	repo := &mockSubmissions{}
	s := NewStuckSubmissionSweeper(repo, 0, 0)
	require.Equal(t, 15*time.Minute, s.maxProcessingAge)
	require.Equal(t, time.Minute, s.interval)

	repo.On("ListStuck", mock.Anything, domain.SubmissionProcessing, mock.Anything, 100).Return(nil, errors.New("db down")).Once()
	assert.Zero(t, s.SweepOnce(context.Background()))
	repo.AssertExpectations(t)
}

func TestStuckSubmissionSweeper_NilRepo(t *testing.T) {
	assert.Nil(t, NewStuckSubmissionSweeper(nil, time.Minute, time.Minute))
	var s *StuckSubmissionSweeper
	s.Run(context.Background())
}

func TestStuckSubmissionSweeper_RunStopsOnCancel(t *testing.T) {
	repo := &mockSubmissions{}
	repo.On("ListStuck", mock.Anything, domain.SubmissionProcessing, mock.Anything, 100).Return(nil, nil)
	s := NewStuckSubmissionSweeper(repo, time.Minute, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
