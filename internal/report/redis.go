package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PublisherConfig configures where reports are pushed.
type PublisherConfig struct {
	Addr     string
	Password string
	DB       int
	// Key is the list holding the newest reports first.
	Key string
	// Channel receives a short summary per report when set.
	Channel string
	// Keep bounds the list length; 0 keeps 100.
	Keep int64

	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// Publisher pushes finished reports to Redis so dashboards and other jobs
// can pick them up.
type Publisher struct {
	client  *redis.Client
	key     string
	channel string
	keep    int64
}

// NewPublisher connects to Redis and checks the connection.
func NewPublisher(ctx context.Context, cfg PublisherConfig) (*Publisher, error) {
	if cfg.Key == "" {
		cfg.Key = "uiprobe:reports"
	}
	if cfg.Keep <= 0 {
		cfg.Keep = 100
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Publisher{client: client, key: cfg.Key, channel: cfg.Channel, keep: cfg.Keep}, nil
}

type summaryMessage struct {
	RunID   string  `json:"run_id"`
	Suite   string  `json:"suite"`
	Failed  bool    `json:"failed"`
	Summary Summary `json:"summary"`
}

// Publish stores r at the head of the report list and trims it.
func (p *Publisher) Publish(ctx context.Context, r *Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	var note []byte
	if p.channel != "" {
		note, err = json.Marshal(summaryMessage{RunID: r.RunID(), Suite: r.Suite(), Failed: r.Failed(), Summary: r.Summary()})
		if err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, p.key, body)
		pipe.LTrim(ctx, p.key, 0, p.keep-1)
		if note != nil {
			pipe.Publish(ctx, p.channel, note)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish report: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
