package app

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/pitch-evaluator/internal/adapter/ai"
	"github.com/fairyhunter13/pitch-evaluator/internal/adapter/ai/gemini"
	"github.com/fairyhunter13/pitch-evaluator/internal/adapter/ai/openai"
	"github.com/fairyhunter13/pitch-evaluator/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/pitch-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/pitch-evaluator/internal/config"
	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
	"github.com/fairyhunter13/pitch-evaluator/internal/service/ratelimiter"
	"github.com/fairyhunter13/pitch-evaluator/internal/usecase"
)

// ModelBucket is the shared limiter bucket every outbound model call draws from.
const ModelBucket = "model"

// Repositories bundles the Postgres repositories.
type Repositories struct {
	Submissions *postgres.SubmissionRepo
	Evaluations *postgres.EvaluationRepo
	Companies   *postgres.CompanyRepo
}

// NewRepositories builds every repository on pool.
func NewRepositories(pool postgres.PgxPool) Repositories {
	return Repositories{
		Submissions: postgres.NewSubmissionRepo(pool),
		Evaluations: postgres.NewEvaluationRepo(pool),
		Companies:   postgres.NewCompanyRepo(pool),
	}
}

// NewRedis connects to cfg.RedisURL. An empty URL returns nil.
func NewRedis(cfg config.Config) (*redis.Client, error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("op=app.NewRedis: %w", err)
	}
	return redis.NewClient(opts), nil
}

// NewModelClient builds the configured provider with deadline and retry, and
// puts the shared Redis token bucket in front of it when rdb is non-nil.
func NewModelClient(cfg config.Config, rdb *redis.Client) (domain.ModelClient, error) {
	var p ai.Provider
	switch strings.ToLower(cfg.ModelProvider) {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("op=app.NewModelClient: OPENAI_API_KEY is required")
		}
		p = openai.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("op=app.NewModelClient: GEMINI_API_KEY is required")
		}
		p = gemini.New(cfg.GeminiAPIKey, cfg.GeminiBaseURL)
	default:
		return nil, fmt.Errorf("op=app.NewModelClient: unknown provider %q", cfg.ModelProvider)
	}
	client := ai.New(p, ai.Options{
		DefaultModel: cfg.DefaultModel,
		Timeout:      cfg.ModelTimeout,
		NewBackOff:   ai.ExponentialBackOff(cfg.ModelBackoff()),
	})
	if rdb == nil || cfg.ModelRatePerMin <= 0 {
		return client, nil
	}
	limiter := ratelimiter.NewRedisLuaLimiter(rdb, map[string]ratelimiter.BucketConfig{
		ModelBucket: ratelimiter.NewBucketConfigFromPerMinute(cfg.ModelRatePerMin),
	})
	return ai.NewLimitedClient(client, limiter, ModelBucket), nil
}

// NewEvaluateService wires the evaluator. queue and events may be nil.
func NewEvaluateService(cfg config.Config, repos Repositories, model domain.ModelClient, rubrics domain.RubricSource, queue domain.Queue, events domain.EventPublisher) *usecase.EvaluateService {
	retry := cfg.GetRetryConfig()
	return &usecase.EvaluateService{
		Submissions:     repos.Submissions,
		Evaluations:     repos.Evaluations,
		Companies:       usecase.NewCompanyService(repos.Companies),
		Model:           model,
		Rubrics:         rubrics,
		Queue:           queue,
		Events:          events,
		Tokens:          tokencount.DefaultCounter,
		DefaultModel:    cfg.DefaultModel,
		MaxPromptTokens: cfg.MaxPromptTokens,
		PersistBackOff:  retry.BackOff,
	}
}
