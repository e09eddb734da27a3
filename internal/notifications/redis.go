package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis"

	"nexus/internal/config"
)

// DefaultRedisChannel receives job and subscription events.
const DefaultRedisChannel = "nexus:jobs"

type publisher interface {
	Publish(channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher pushes every event as JSON onto a pub/sub channel.
type RedisPublisher struct {
	client  publisher
	channel string
	now     func() time.Time
}

// Envelope is the JSON document published for each event.
type Envelope struct {
	Event     Event          `json:"event"`
	Timestamp time.Time      `json:"ts"`
	Payload   map[string]any `json:"payload"`
}

// NewRedisPublisher connects lazily; the first publish dials the server.
func NewRedisPublisher(cfg config.Notifications) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.RedisAddr),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return newRedisPublisher(client, cfg.RedisChannel)
}

func newRedisPublisher(client publisher, channel string) *RedisPublisher {
	if strings.TrimSpace(channel) == "" {
		channel = DefaultRedisChannel
	}
	return &RedisPublisher{client: client, channel: channel, now: time.Now}
}

// Publish ignores ctx; the redis v6 client has no context-aware commands.
func (r *RedisPublisher) Publish(_ context.Context, event Event, payload Payload) error {
	env := Envelope{
		Event:     event,
		Timestamp: r.now().UTC(),
		Payload:   make(map[string]any, len(payload)),
	}
	for key, value := range payload {
		if err, ok := value.(error); ok {
			env.Payload[key] = err.Error()
			continue
		}
		env.Payload[key] = value
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode redis event: %w", err)
	}
	if err := r.client.Publish(r.channel, string(data)).Err(); err != nil {
		return fmt.Errorf("publish redis event: %w", err)
	}
	return nil
}
