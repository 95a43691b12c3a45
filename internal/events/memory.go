package events

import (
	"context"
	"sync"

	"auction-engine/utils"
)

// MemoryBus is an in-process Publisher with channel subscribers, used in
// development and tests. Slow subscribers lose messages.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[int]memorySub
	next int
}

type memorySub struct {
	topics map[Topic]bool
	ch     chan Message
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]memorySub)}
}

func (b *MemoryBus) Publish(_ context.Context, topic Topic, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if len(s.topics) > 0 && !s.topics[topic] {
			continue
		}
		select {
		case s.ch <- Message{Topic: topic, Payload: payload}:
		default:
			utils.Warn("memory bus subscriber full, dropping event", map[string]any{"topic": topic})
		}
	}
	return nil
}

// Subscribe returns a channel of messages on topics (all topics if none).
// The channel is closed when ctx ends.
func (b *MemoryBus) Subscribe(ctx context.Context, topics ...Topic) <-chan Message {
	ch := make(chan Message, 64)
	set := make(map[Topic]bool, len(topics))
	for _, t := range topics {
		set[t] = true
	}

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = memorySub{topics: set, ch: ch}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()
	return ch
}
