package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, Topic, []byte) error {
	f.calls++
	return errors.New("redis down")
}

func TestBusEmitDeliversInOrder(t *testing.T) {
	t.Parallel()

	mem := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := mem.Subscribe(ctx, TopicBidPlaced, TopicOutbid)

	bus := NewBus(mem)
	bus.Emit(ctx,
		Event{Topic: TopicBidPlaced, Payload: map[string]any{"auction_id": "a1", "amount": "150.00"}},
		Event{Topic: TopicWinAuction, Payload: map[string]any{"auction_id": "a1"}},
		Event{Topic: TopicOutbid, Payload: map[string]any{"auction_id": "a1", "user": "alice"}},
	)

	first := <-sub
	require.Equal(t, TopicBidPlaced, first.Topic)
	var body map[string]any
	require.NoError(t, json.Unmarshal(first.Payload, &body))
	require.Equal(t, "a1", body["auction_id"])

	second := <-sub
	require.Equal(t, TopicOutbid, second.Topic, "unsubscribed topics are filtered")
}

func TestBusEmitSwallowsFailures(t *testing.T) {
	t.Parallel()

	pub := &failingPublisher{}
	bus := NewBus(pub)
	require.NotPanics(t, func() {
		bus.Emit(context.Background(),
			Event{Topic: TopicFundAccount, Payload: map[string]any{"amount": 1}},
			Event{Topic: TopicFundAccount, Payload: map[string]any{"amount": 2}},
		)
	})
	require.Equal(t, 2, pub.calls)

	var nilBus *Bus
	require.NotPanics(t, func() { nilBus.Emit(context.Background(), Event{Topic: TopicOTP}) })
}

func TestBusEmitSurvivesCancelledRequest(t *testing.T) {
	t.Parallel()

	mem := NewMemoryBus()
	subCtx, stop := context.WithCancel(context.Background())
	defer stop()
	sub := mem.Subscribe(subCtx)

	reqCtx, cancel := context.WithCancel(context.Background())
	cancel()
	NewBus(mem).Emit(reqCtx, Event{Topic: TopicWinAuction, Payload: map[string]any{"auction_id": "a1"}})

	select {
	case msg := <-sub:
		require.Equal(t, TopicWinAuction, msg.Topic)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}
