// Package notify publishes committed staking events to Redis.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"stakeScope/internal/model"
)

const DefaultStreamMaxLen = 10000

// Options configures a Publisher. Stream is optional; when set every event is
// also appended to that stream.
type Options struct {
	Addr         string
	Password     string
	DB           int
	Channel      string
	Stream       string
	StreamMaxLen int64
}

type client interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// Publisher sends every event as JSON on a Pub/Sub channel.
type Publisher struct {
	client       client
	channel      string
	stream       string
	streamMaxLen int64
	logger       *zap.Logger
}

func NewPublisher(ctx context.Context, opts Options, logger *zap.Logger) (*Publisher, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if opts.Channel == "" {
		return nil, fmt.Errorf("redis channel is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis at %s: %w", opts.Addr, err)
	}

	logger.Info("connected to redis",
		zap.String("addr", opts.Addr),
		zap.String("channel", opts.Channel),
		zap.String("stream", opts.Stream),
	)
	return newPublisher(rdb, opts, logger), nil
}

func newPublisher(c client, opts Options, logger *zap.Logger) *Publisher {
	maxLen := opts.StreamMaxLen
	if maxLen == 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &Publisher{
		client:       c,
		channel:      opts.Channel,
		stream:       opts.Stream,
		streamMaxLen: maxLen,
		logger:       logger,
	}
}

// PutEvents publishes events in order and stops at the first failure.
func (p *Publisher) PutEvents(ctx context.Context, events []model.Event) error {
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", ev.ID, err)
		}
		if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
			return fmt.Errorf("publish %s: %w", ev.Kind, err)
		}
		if p.stream == "" {
			continue
		}
		args := &redis.XAddArgs{
			Stream: p.stream,
			Values: map[string]interface{}{
				"id":      ev.ID,
				"kind":    string(ev.Kind),
				"pool":    ev.Pool,
				"payload": string(payload),
			},
		}
		if p.streamMaxLen > 0 {
			args.MaxLen = p.streamMaxLen
			args.Approx = true
		}
		if err := p.client.XAdd(ctx, args).Err(); err != nil {
			return fmt.Errorf("append %s to stream: %w", ev.Kind, err)
		}
		p.logger.Debug("event published", zap.String("id", ev.ID), zap.String("kind", string(ev.Kind)))
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}
