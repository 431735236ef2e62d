package preview

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const topicPrefix = "preview:"

// Topic is the pub/sub channel name carrying one section's preview stream.
func Topic(sectionID string) string {
	return topicPrefix + sectionID
}

// RedisChannel publishes envelopes so that surfaces attached to another API
// process receive them too.
type RedisChannel struct {
	client *redis.Client
	topic  string
	owned  bool
}

// NewRedisChannel connects to redisURL and publishes on topic.
func NewRedisChannel(redisURL, topic string) (*RedisChannel, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisChannel{client: client, topic: topic, owned: true}, nil
}

// NewRedisChannelWithClient shares an existing client; Close leaves it open.
func NewRedisChannelWithClient(client *redis.Client, topic string) *RedisChannel {
	return &RedisChannel{client: client, topic: topic}
}

func (c *RedisChannel) Post(ctx context.Context, payload string) error {
	if err := c.client.Publish(ctx, c.topic, payload).Err(); err != nil {
		return fmt.Errorf("publish preview: %w", err)
	}
	return nil
}

func (c *RedisChannel) Close() error {
	if !c.owned {
		return nil
	}
	return c.client.Close()
}

// Relay forwards every envelope published on topic to dst until ctx ends.
// The returned channel is closed once the subscription is live.
func Relay(ctx context.Context, client *redis.Client, topic string, dst Channel) (<-chan struct{}, <-chan error) {
	ready := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		sub := client.Subscribe(ctx, topic)
		defer sub.Close()

		if _, err := sub.Receive(ctx); err != nil {
			close(ready)
			done <- fmt.Errorf("subscribe %s: %w", topic, err)
			return
		}
		close(ready)

		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				done <- nil
				return
			case msg, ok := <-messages:
				if !ok {
					done <- nil
					return
				}
				// Relayed payloads are best effort like any other post.
				_ = dst.Post(ctx, msg.Payload)
			}
		}
	}()

	return ready, done
}
