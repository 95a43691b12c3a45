package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"auction-engine/utils"
)

// RedisPublisher publishes with PUBLISH on a channel named after the topic.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic Topic, payload []byte) error {
	if err := p.client.Publish(ctx, string(topic), payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

// Message is a delivered event.
type Message struct {
	Topic   Topic
	Payload []byte
}

// Handler processes one message. Errors are logged by the subscriber.
type Handler func(ctx context.Context, msg Message) error

// Subscribe consumes topics until ctx ends, calling h for every message.
func Subscribe(ctx context.Context, client *redis.Client, h Handler, topics ...Topic) error {
	channels := make([]string, 0, len(topics))
	for _, t := range topics {
		channels = append(channels, string(t))
	}
	sub := client.Subscribe(ctx, channels...)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %v: %w", channels, err)
	}
	utils.Info("subscribed to topics", map[string]any{"topics": channels})

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			msg := Message{Topic: Topic(m.Channel), Payload: []byte(m.Payload)}
			if err := h(ctx, msg); err != nil {
				utils.Error("event handler failed", map[string]any{"topic": m.Channel, "error": err.Error()})
			}
		}
	}
}
