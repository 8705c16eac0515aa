// Package cache mirrors the most recent snapshot into Redis so readers can
// fetch "latest" prices without querying Postgres.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/crypto-etl/internal/model"
)

const (
	keyPrefix      = "crypto:latest:"
	extractedAtKey = keyPrefix + "extracted_at"
)

// CoinKey returns the key holding a coin's latest snapshot.
func CoinKey(coinID string) string {
	return keyPrefix + coinID
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Publisher writes completed snapshots to Redis.
type Publisher struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewPublisher creates a Publisher. The connection is opened lazily.
func NewPublisher(opts Options, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		ttl:    opts.TTL,
		logger: logger,
	}
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Publish stores every snapshot under its coin key plus the shared
// extraction instant, in one round trip.
func (p *Publisher) Publish(ctx context.Context, snapshots []model.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	pipe := p.client.TxPipeline()
	for _, s := range snapshots {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal snapshot %s: %w", s.CoinID, err)
		}
		pipe.Set(ctx, CoinKey(s.CoinID), data, p.ttl)
	}
	pipe.Set(ctx, extractedAtKey, snapshots[0].ExtractedAt.UTC().Format(time.RFC3339Nano), p.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish latest snapshot: %w", err)
	}

	p.logger.Debug("latest snapshot published", "coins", len(snapshots), "ttl", p.ttl)
	return nil
}

// Latest returns a coin's cached snapshot, or nil if none is cached.
func (p *Publisher) Latest(ctx context.Context, coinID string) (*model.Snapshot, error) {
	data, err := p.client.Get(ctx, CoinKey(coinID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest %s: %w", coinID, err)
	}

	var s model.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal latest %s: %w", coinID, err)
	}
	return &s, nil
}

// LatestExtractedAt returns the instant of the cached snapshot, or the zero
// time if none is cached.
func (p *Publisher) LatestExtractedAt(ctx context.Context) (time.Time, error) {
	v, err := p.client.Get(ctx, extractedAtKey).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get latest extracted_at: %w", err)
	}
	return time.Parse(time.RFC3339Nano, v)
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
