package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/pitch-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
)

// Handler runs one evaluate request.
type Handler interface {
	HandleEvaluate(ctx context.Context, req domain.EvaluateRequest) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req domain.EvaluateRequest) error

// HandleEvaluate calls f.
func (f HandlerFunc) HandleEvaluate(ctx context.Context, req domain.EvaluateRequest) error {
	return f(ctx, req)
}

// Consumer reads evaluate requests in a consumer group and commits offsets only
// after every record of a poll has been handled.
type Consumer struct {
	client  *kgo.Client
	tracer  *kotel.Tracer
	handler Handler
	groupID string
	topic   string
	workers int
}

// NewConsumer joins groupID on the evaluate topic. workers bounds how many
// records of one poll are handled concurrently.
func NewConsumer(brokers []string, groupID string, workers int, h Handler) (*Consumer, error) {
	slog.Info("creating redpanda consumer", slog.Any("brokers", brokers), slog.String("group_id", groupID))
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("missing required group ID")
	}
	if h == nil {
		return nil, fmt.Errorf("missing handler")
	}
	if workers <= 0 {
		workers = 4
	}

	tracer, hooks := kotelHooks()
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(TopicEvaluate),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.SessionTimeout(30*time.Second),
		kgo.HeartbeatInterval(3*time.Second),
		kgo.FetchMaxWait(5*time.Second),
		hooks,
	)
	if err != nil {
		return nil, fmt.Errorf("redpanda consumer client: %w", err)
	}
	ensureTopics(context.Background(), client, 8, TopicEvaluate)

	return &Consumer{client: client, tracer: tracer, handler: h, groupID: groupID, topic: TopicEvaluate, workers: workers}, nil
}

// Run polls until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("starting redpanda consumer", slog.String("group_id", c.groupID), slog.String("topic", c.topic), slog.Int("workers", c.workers))

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0

	for {
		fetches := c.client.PollRecords(ctx, c.workers*4)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			c.client.AllowRebalance()
			slog.Info("redpanda consumer stopping")
			return ctx.Err()
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				slog.Error("fetch error", slog.String("topic", fe.Topic), slog.Int("partition", int(fe.Partition)), slog.Any("error", fe.Err))
			}
			c.client.AllowRebalance()
			wait := bo.NextBackOff()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()

		records := fetches.Records()
		if len(records) > 0 {
			c.handleBatch(ctx, records)
			if err := c.client.CommitRecords(ctx, records...); err != nil {
				slog.Error("commit offsets failed", slog.Int("records", len(records)), slog.Any("error", err))
			}
		}
		c.client.AllowRebalance()
	}
}

func (c *Consumer) handleBatch(ctx context.Context, records []*kgo.Record) {
	sem := make(chan struct{}, c.workers)
	var wg sync.WaitGroup
	for _, rec := range records {
		sem <- struct{}{}
		wg.Add(1)
		go func(rec *kgo.Record) {
			defer func() { <-sem; wg.Done() }()
			recCtx := ctx
			if c.tracer != nil {
				_, span := c.tracer.WithProcessSpan(rec)
				defer span.End()
				recCtx = trace.ContextWithSpan(ctx, span)
			}
			_ = processRecord(recCtx, c.handler, rec)
		}(rec)
	}
	wg.Wait()
}

// processRecord decodes and handles one record. Malformed payloads and requests
// for unknown submissions are dropped; the returned error is for logging only.
func processRecord(ctx context.Context, h Handler, rec *kgo.Record) error {
	var req domain.EvaluateRequest
	if err := json.Unmarshal(rec.Value, &req); err != nil || req.SubmissionID == "" {
		observability.RecordQueueMessage(rec.Topic, "invalid")
		slog.Warn("dropping malformed evaluate request",
			slog.String("topic", rec.Topic),
			slog.Int64("offset", rec.Offset),
			slog.Any("error", err))
		return fmt.Errorf("%w: malformed evaluate request", domain.ErrInvalidArgument)
	}

	if req.RequestID != "" {
		ctx = observability.ContextWithRequestID(ctx, req.RequestID)
	}
	ctx = observability.WithLogAttrs(ctx, slog.String("submission_id", req.SubmissionID))
	lg := observability.LoggerFromContext(ctx)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("submission.id", req.SubmissionID))

	start := time.Now()
	err := callHandler(ctx, h, req)
	switch {
	case err == nil:
		observability.RecordQueueMessage(rec.Topic, "processed")
		lg.Info("evaluate request processed", slog.Duration("took", time.Since(start)))
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrNotFound):
		observability.RecordQueueMessage(rec.Topic, "dropped")
		lg.Warn("dropping evaluate request", slog.String("code", domain.ErrorCode(err)), slog.Any("error", err))
	default:
		observability.RecordQueueMessage(rec.Topic, "failed")
		lg.Error("evaluate request failed", slog.String("code", domain.ErrorCode(err)), slog.Any("error", err))
	}
	return err
}

// callHandler turns a handler panic into domain.ErrInternal so the batch is
// still committed and the worker keeps running.
func callHandler(ctx context.Context, h Handler, req domain.EvaluateRequest) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			observability.LoggerFromContext(ctx).Error("panic recovered in evaluate handler", slog.Any("recover", rec))
			err = fmt.Errorf("%w: evaluate handler panic: %v", domain.ErrInternal, rec)
		}
	}()
	return h.HandleEvaluate(ctx, req)
}

// Close leaves the group and closes the client.
func (c *Consumer) Close() error {
	if c.client != nil {
		c.client.Close()
	}
	return nil
}
