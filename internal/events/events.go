// Package events publishes domain events to topic channels consumed by the
// mail worker. Publishing is fire-and-forget and at-most-once.
package events

import (
	"context"
	"encoding/json"
	"time"

	"auction-engine/internal/metrics"
	"auction-engine/utils"
)

type Topic string

const (
	TopicOTP               Topic = "OTP-sender"
	TopicResetToken        Topic = "Reset-token"
	TopicBidPlaced         Topic = "Bid-placed"
	TopicOutbid            Topic = "OutBid"
	TopicCreateAuction     Topic = "Create-Auction"
	TopicWinAuction        Topic = "Win-Auction"
	TopicFundAccount       Topic = "Fund-Account"
	TopicContactUs         Topic = "Contact-us"
	TopicRefundReqBuyer    Topic = "Refund-Req-Buyer"
	TopicRefundReqSeller   Topic = "Refund-Req-Seller"
	TopicParticipantInvite Topic = "Participant-Invite"
)

// AllTopics lists every channel the mail worker subscribes to.
var AllTopics = []Topic{
	TopicOTP, TopicResetToken, TopicBidPlaced, TopicOutbid, TopicCreateAuction, TopicWinAuction,
	TopicFundAccount, TopicContactUs, TopicRefundReqBuyer, TopicRefundReqSeller, TopicParticipantInvite,
}

// Event is one message on a topic. Payload is serialized as JSON.
type Event struct {
	Topic   Topic
	Payload map[string]any
}

// Publisher delivers an encoded payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic Topic, payload []byte) error
}

// Bus wraps a Publisher with logging and failure metrics.
type Bus struct {
	pub     Publisher
	timeout time.Duration
}

func NewBus(pub Publisher) *Bus {
	return &Bus{pub: pub, timeout: 5 * time.Second}
}

// Emit publishes events in order. Failures are logged and counted, never returned.
func (b *Bus) Emit(ctx context.Context, evs ...Event) {
	if b == nil || b.pub == nil {
		return
	}
	// domain state is already committed; a cancelled request must not drop the events
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()

	for _, ev := range evs {
		body, err := json.Marshal(ev.Payload)
		if err != nil {
			b.failed(ev.Topic, err)
			continue
		}
		if err := b.pub.Publish(ctx, ev.Topic, body); err != nil {
			b.failed(ev.Topic, err)
			continue
		}
		utils.Debug("event published", map[string]any{"topic": ev.Topic})
	}
}

func (b *Bus) failed(topic Topic, err error) {
	metrics.EventPublishFailed(string(topic))
	utils.Error("event publish failed", map[string]any{"topic": topic, "error": err.Error()})
}
