// Package redpanda carries evaluate requests and completion events over Redpanda/Kafka.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/pitch-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
)

type syncProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Ping(ctx context.Context) error
	Close()
}

// Producer publishes to Redpanda and implements domain.Queue and domain.EventPublisher.
type Producer struct {
	client         syncProducer
	evaluateTopic  string
	completedTopic string
}

func kotelHooks() (*kotel.Tracer, kgo.Opt) {
	tracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	k := kotel.NewKotel(kotel.WithTracer(tracer))
	return tracer, kgo.WithHooks(k.Hooks()...)
}

// NewProducer connects to brokers and makes sure both topics exist.
func NewProducer(brokers []string) (*Producer, error) {
	slog.Info("creating redpanda producer", slog.Any("brokers", brokers))
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}

	_, hooks := kotelHooks()
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		hooks,
	)
	if err != nil {
		return nil, fmt.Errorf("redpanda client: %w", err)
	}
	ensureTopics(context.Background(), client, 8, TopicEvaluate, TopicEvaluationCompleted)

	return newProducer(client), nil
}

func newProducer(client syncProducer) *Producer {
	return &Producer{client: client, evaluateTopic: TopicEvaluate, completedTopic: TopicEvaluationCompleted}
}

// EnqueueEvaluate publishes an evaluate request keyed by submission id.
func (p *Producer) EnqueueEvaluate(ctx domain.Context, req domain.EvaluateRequest) error {
	if req.SubmissionID == "" {
		return fmt.Errorf("op=queue.enqueue_evaluate: %w: submission id required", domain.ErrInvalidArgument)
	}
	b, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("op=queue.enqueue_evaluate: %w", err)
	}
	rec := &kgo.Record{
		Topic: p.evaluateTopic,
		Key:   []byte(req.SubmissionID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "submission_id", Value: []byte(req.SubmissionID)},
			{Key: "request_id", Value: []byte(req.RequestID)},
			{Key: "force_refresh", Value: []byte(strconv.FormatBool(req.ForceRefresh))},
		},
	}
	if err := p.produce(ctx, rec); err != nil {
		return fmt.Errorf("op=queue.enqueue_evaluate: %w", err)
	}
	slog.Info("evaluate request enqueued", slog.String("submission_id", req.SubmissionID), slog.String("topic", p.evaluateTopic))
	return nil
}

// PublishEvaluationCompleted publishes ev keyed by submission id.
func (p *Producer) PublishEvaluationCompleted(ctx domain.Context, ev domain.EvaluationCompleted) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("op=queue.publish_completed: %w", err)
	}
	rec := &kgo.Record{
		Topic: p.completedTopic,
		Key:   []byte(ev.SubmissionID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "submission_id", Value: []byte(ev.SubmissionID)},
			{Key: "rubric_id", Value: []byte(ev.RubricID)},
		},
	}
	if err := p.produce(ctx, rec); err != nil {
		return fmt.Errorf("op=queue.publish_completed: %w", err)
	}
	return nil
}

func (p *Producer) produce(ctx context.Context, rec *kgo.Record) error {
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		observability.RecordQueueMessage(rec.Topic, "produce_error")
		slog.Error("failed to produce message", slog.String("topic", rec.Topic), slog.Any("error", err))
		return fmt.Errorf("%w: produce: %v", domain.ErrTransport, err)
	}
	observability.RecordQueueMessage(rec.Topic, "produced")
	return nil
}

// Ping checks that at least one broker answers.
func (p *Producer) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", domain.ErrTransport, err)
	}
	return nil
}

// Close closes the producer.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
