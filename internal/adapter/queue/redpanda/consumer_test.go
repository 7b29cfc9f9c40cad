package redpanda

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/pitch-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
)

func TestProcessRecord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		value      string
		handlerErr error
		wantCalled bool
		wantErr    error
	}{
		{name: "ok", value: `{"submission_id":"s-1","force_refresh":true,"request_id":"r-1"}`, wantCalled: true},
		{name: "malformed json", value: `{not json`, wantErr: domain.ErrInvalidArgument},
		{name: "missing id", value: `{"force_refresh":true}`, wantErr: domain.ErrInvalidArgument},
		{name: "unknown submission", value: `{"submission_id":"s-2"}`, handlerErr: fmt.Errorf("op=x: %w", domain.ErrNotFound), wantCalled: true, wantErr: domain.ErrNotFound},
		{name: "upstream failure", value: `{"submission_id":"s-3"}`, handlerErr: domain.ErrUpstreamTimeout, wantCalled: true, wantErr: domain.ErrUpstreamTimeout},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var (
				called bool
				gotReq domain.EvaluateRequest
				gotRID string
			)
			h := HandlerFunc(func(ctx context.Context, req domain.EvaluateRequest) error {
				called = true
				gotReq = req
				gotRID = observability.RequestIDFromContext(ctx)
				return tt.handlerErr
			})

			err := processRecord(context.Background(), h, &kgo.Record{Topic: TopicEvaluate, Value: []byte(tt.value)})
			assert.Equal(t, tt.wantCalled, called)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "s-1", gotReq.SubmissionID)
				assert.True(t, gotReq.ForceRefresh)
				assert.Equal(t, "r-1", gotRID)
			}
		})
	}
}

func TestProcessRecord_HandlerPanic(t *testing.T) {
	t.Parallel()
	h := HandlerFunc(func(context.Context, domain.EvaluateRequest) error {
		panic("nil map write")
	})

	err := processRecord(context.Background(), h, &kgo.Record{Topic: TopicEvaluate, Value: []byte(`{"submission_id":"s-9"}`)})
	require.ErrorIs(t, err, domain.ErrInternal)
	assert.Contains(t, err.Error(), "nil map write")
}

func TestConsumer_HandleBatchSurvivesPanics(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	c := &Consumer{workers: 2, handler: HandlerFunc(func(_ context.Context, req domain.EvaluateRequest) error {
		calls.Add(1)
		if req.SubmissionID == "boom" {
			panic("boom")
		}
		return nil
	})}
	records := []*kgo.Record{
		{Topic: TopicEvaluate, Value: []byte(`{"submission_id":"boom"}`)},
		{Topic: TopicEvaluate, Value: []byte(`{"submission_id":"s-1"}`)},
		{Topic: TopicEvaluate, Value: []byte(`{"submission_id":"boom"}`)},
	}

	c.handleBatch(context.Background(), records)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNewConsumer_Validation(t *testing.T) {
	t.Parallel()
	h := HandlerFunc(func(context.Context, domain.EvaluateRequest) error { return nil })

	_, err := NewConsumer(nil, "g", 1, h)
	require.Error(t, err)
	_, err = NewConsumer([]string{"localhost:9092"}, "", 1, h)
	require.Error(t, err)
	_, err = NewConsumer([]string{"localhost:9092"}, "g", 1, nil)
	require.Error(t, err)
}
