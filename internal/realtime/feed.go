package realtime

import (
	"context"
	"time"

	"auction-engine/internal/cache"
	"auction-engine/internal/models"
	"auction-engine/internal/money"
	"auction-engine/utils"
)

// Store is the persisted state the hub reads and the chat writes through.
type Store interface {
	ListBids(ctx context.Context, auctionID string) ([]models.Bid, error)
	GetChat(ctx context.Context, chatID string) (models.ChatRoom, error)
	AppendChatMessage(ctx context.Context, chatID, senderID, text string, at time.Time) (models.ChatMessage, error)
	MarkChatRead(ctx context.Context, chatID, readerID string, upTo int64) (int, error)
}

// SendHistory pushes the cached bid history of the auction to c, loading and
// caching it from the store on a miss.
func (h *Hub) SendHistory(ctx context.Context, c *Client, auctionID string) error {
	views, err := h.history(ctx, auctionID)
	if err != nil {
		return err
	}
	c.Send(payloadMessage{Type: "bids", Payload: views})
	return nil
}

func (h *Hub) history(ctx context.Context, auctionID string) ([]models.BidView, error) {
	key := cache.AuctionKey(auctionID)
	var views []models.BidView
	if h.cache != nil {
		if _, ok := h.cache.GetVersioned(ctx, key, &views); ok {
			return views, nil
		}
	}

	bids, err := h.store.ListBids(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	views = models.ViewsOf(bids)
	if !h.remember(ctx, auctionID, historyVersion(bids), views) {
		// a newer history was cached while the store was read
		var newer []models.BidView
		if _, ok := h.cache.GetVersioned(ctx, key, &newer); ok {
			return newer, nil
		}
	}
	return views, nil
}

// BidAccepted refreshes the cached history and broadcasts it as a new_bid
// frame. Callers invoke it after the bid transaction commits.
func (h *Hub) BidAccepted(ctx context.Context, auctionID string, bids []models.Bid) {
	views := models.ViewsOf(bids)
	h.remember(ctx, auctionID, historyVersion(bids), views)
	h.Broadcast(auctionID, payloadMessage{Type: "new_bid", Payload: views})
}

// historyVersion orders snapshots of an auction's bids. Every accepted bid or
// top-up raises the total, and bids are never removed.
func historyVersion(bids []models.Bid) int64 {
	var total money.Amount
	for _, b := range bids {
		total += b.Amount
	}
	return int64(total)
}

// remember caches views unless a newer history is already cached, and
// reports whether the cache now holds views.
func (h *Hub) remember(ctx context.Context, auctionID string, version int64, views []models.BidView) bool {
	if h.cache == nil {
		return true
	}
	wrote, err := h.cache.SetVersioned(ctx, cache.AuctionKey(auctionID), version, views)
	if err != nil {
		utils.Warn("realtime: failed to cache bid history", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return true
	}
	return wrote
}
