package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Sink applies relayed room traffic to the local registry.
type Sink interface {
	Deliver(chatID int, payload []byte, excludeConnID string) int
	Evict(chatID, userID int) []string
}

const kindEvict = "evict"

// envelope carries either an encoded room event or, with Kind "evict", the
// removal of a user's connections from a room.
type envelope struct {
	Kind    string          `json:"kind,omitempty"`
	ChatID  int             `json:"chat_id"`
	UserID  int             `json:"user_id,omitempty"`
	Exclude string          `json:"exclude,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RedisRelay fans room events out to every service instance over a Redis
// pub/sub channel.
type RedisRelay struct {
	client  *redis.Client
	channel string
}

// NewRedisRelay connects to url and verifies the server answers.
func NewRedisRelay(ctx context.Context, url, channel string) (*RedisRelay, error) {
	if url == "" {
		return nil, errors.New("redis: url is empty")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return NewRedisRelayWithClient(client, channel), nil
}

func NewRedisRelayWithClient(client *redis.Client, channel string) *RedisRelay {
	return &RedisRelay{client: client, channel: channel}
}

// Publish sends an encoded event for chatID to all instances.
func (r *RedisRelay) Publish(ctx context.Context, chatID int, payload []byte, excludeConnID string) error {
	return r.send(ctx, envelope{ChatID: chatID, Exclude: excludeConnID, Payload: payload})
}

// Evict asks all instances to drop userID's connections from chatID.
func (r *RedisRelay) Evict(ctx context.Context, chatID, userID int) error {
	return r.send(ctx, envelope{Kind: kindEvict, ChatID: chatID, UserID: userID})
}

func (r *RedisRelay) send(ctx context.Context, env envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, body).Err()
}

// Run subscribes to the channel and, once the subscription is confirmed,
// applies every envelope to sink until ctx is done.
func (r *RedisRelay) Run(ctx context.Context, sink Sink) error {
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis: subscribe %s: %w", r.channel, err)
	}

	go func() {
		defer sub.Close()
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					zap.L().Warn("relay: malformed envelope", zap.Error(err))
					continue
				}
				apply(sink, env)
			}
		}
	}()
	return nil
}

func apply(sink Sink, env envelope) {
	switch env.Kind {
	case kindEvict:
		sink.Evict(env.ChatID, env.UserID)
	case "":
		sink.Deliver(env.ChatID, env.Payload, env.Exclude)
	default:
		zap.L().Warn("relay: unknown envelope kind", zap.String("kind", env.Kind))
	}
}

func (r *RedisRelay) Close() error {
	return r.client.Close()
}
