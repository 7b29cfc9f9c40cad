package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Pinger is the minimal interface for a database pool or broker client capable of Ping.
type Pinger interface{ Ping(ctx context.Context) error }

// RedisPingResult is the minimal return type of a Redis client's Ping.
type RedisPingResult interface{ Err() error }

// RedisClient is the minimal interface for a Redis client needed for readiness.
type RedisClient interface {
	Ping(ctx context.Context) RedisPingResult
}

// RedisAdapter adapts a go-redis client to RedisClient.
type RedisAdapter struct{ Client redis.UniversalClient }

// Ping implements RedisClient.
func (a RedisAdapter) Ping(ctx context.Context) RedisPingResult { return a.Client.Ping(ctx) }

// BuildReadinessChecks returns the db, redis and kafka readiness checks.
// A nil redis client means the limiter runs in-process and the check is skipped.
func BuildReadinessChecks(pool Pinger, rdb RedisClient, kafka Pinger) (
	dbCheck func(ctx context.Context) error,
	redisCheck func(ctx context.Context) error,
	kafkaCheck func(ctx context.Context) error,
) {
	dbCheck = func(ctx context.Context) error {
		if pool == nil {
			return fmt.Errorf("db not configured")
		}
		return pool.Ping(ctx)
	}
	if rdb != nil {
		redisCheck = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	kafkaCheck = func(ctx context.Context) error {
		if kafka == nil {
			return fmt.Errorf("kafka not configured")
		}
		return kafka.Ping(ctx)
	}
	return dbCheck, redisCheck, kafkaCheck
}
