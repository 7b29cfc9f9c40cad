package redpanda

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kmsg"
)

type fakeRequester struct {
	code int16
	err  error
	got  *kmsg.CreateTopicsRequest
}

func (f *fakeRequester) Request(_ context.Context, req kmsg.Request) (kmsg.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	ct := req.(*kmsg.CreateTopicsRequest)
	f.got = ct
	resp := kmsg.NewCreateTopicsResponse()
	for _, t := range ct.Topics {
		rt := kmsg.NewCreateTopicsResponseTopic()
		rt.Topic = t.Topic
		rt.ErrorCode = f.code
		resp.Topics = append(resp.Topics, rt)
	}
	return &resp, nil
}

func TestCreateTopicIfNotExists(t *testing.T) {
	t.Parallel()

	t.Run("created", func(t *testing.T) {
		f := &fakeRequester{}
		require.NoError(t, createTopicIfNotExists(context.Background(), f, TopicEvaluate, 8, 1))
		require.Len(t, f.got.Topics, 1)
		assert.Equal(t, int32(8), f.got.Topics[0].NumPartitions)
	})

	t.Run("already exists", func(t *testing.T) {
		f := &fakeRequester{code: 36}
		require.NoError(t, createTopicIfNotExists(context.Background(), f, TopicEvaluate, 1, 1))
	})

	t.Run("broker error code", func(t *testing.T) {
		f := &fakeRequester{code: 41}
		err := createTopicIfNotExists(context.Background(), f, TopicEvaluate, 1, 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "code 41")
	})

	t.Run("request error", func(t *testing.T) {
		f := &fakeRequester{err: errors.New("dial tcp: refused")}
		require.Error(t, createTopicIfNotExists(context.Background(), f, TopicEvaluate, 1, 1))
	})

	t.Run("invalid input", func(t *testing.T) {
		f := &fakeRequester{}
		require.Error(t, createTopicIfNotExists(context.Background(), f, "", 1, 1))
		require.Error(t, createTopicIfNotExists(context.Background(), f, "t", 0, 1))
		require.Error(t, createTopicIfNotExists(context.Background(), f, "t", 1, 0))
		assert.Nil(t, f.got)
	})
}
