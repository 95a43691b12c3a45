// Package realtime fans bid updates, watcher counts and chat messages out to
// websocket clients. A single goroutine (Hub.Run) owns every room.
package realtime

import (
	"context"
	"encoding/json"

	"auction-engine/internal/cache"
	"auction-engine/internal/models"
	"auction-engine/utils"
)

const mailboxSize = 256

type countMessage struct {
	Type     string `json:"type"`
	Watchers int    `json:"watchers"`
}

type payloadMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type statusMessage struct {
	Type   string               `json:"type"`
	Status models.AuctionStatus `json:"status"`
}

// ErrorMessage is sent to a socket whose request was rejected.
type ErrorMessage struct {
	Type    string `json:"type"`
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

func NewErrorMessage(detail, message string) ErrorMessage {
	return ErrorMessage{Type: "error", Detail: detail, Message: message}
}

type opKind int

const (
	opJoin opKind = iota
	opLeave
	opBroadcast
	opEnterChat
	opLeaveChat
	opDeliverChat
)

// op is one request to the hub goroutine. All requests share one mailbox so
// a caller's join, broadcast and leave are applied in the order it sent them.
type op struct {
	kind   opKind
	room   string
	client *Client
	// empty role delivers to both chat slots
	role  models.SenderRole
	raw   []byte
	reply chan bool
}

// Hub is the sole authority on who is connected. It observes persisted state
// but never writes it, except through the chat store on behalf of a sender.
type Hub struct {
	store Store
	cache *cache.Cache

	mailbox chan op
	stopped chan struct{}

	auctions map[string]map[*Client]struct{}
	chats    map[string]map[models.SenderRole]*Client
}

func NewHub(store Store, c *cache.Cache) *Hub {
	return &Hub{
		store:    store,
		cache:    c,
		mailbox:  make(chan op, mailboxSize),
		stopped:  make(chan struct{}),
		auctions: make(map[string]map[*Client]struct{}),
		chats:    make(map[string]map[models.SenderRole]*Client),
	}
}

// Run owns all room state until ctx ends, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case o := <-h.mailbox:
			h.apply(o)
		case <-ctx.Done():
			h.shutdown()
			return
		}
	}
}

// Join adds the client to the auction room and broadcasts the new watcher count.
func (h *Hub) Join(auctionID string, c *Client) {
	h.post(op{kind: opJoin, room: auctionID, client: c})
}

// Leave removes the client from the auction room.
func (h *Hub) Leave(auctionID string, c *Client) {
	h.post(op{kind: opLeave, room: auctionID, client: c})
}

// Broadcast sends v to every socket in the auction room. Frames queued by one
// goroutine are delivered in the order they were queued.
func (h *Hub) Broadcast(auctionID string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		utils.Error("realtime: failed to encode broadcast", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}
	h.post(op{kind: opBroadcast, room: auctionID, raw: raw})
}

// AuctionStatusChanged tells watchers the auction moved to status.
func (h *Hub) AuctionStatusChanged(auctionID string, status models.AuctionStatus) {
	h.Broadcast(auctionID, statusMessage{Type: "status", Status: status})
}

// post queues o for the hub goroutine. It reports false once the hub stopped.
func (h *Hub) post(o op) bool {
	select {
	case h.mailbox <- o:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) apply(o op) {
	switch o.kind {
	case opJoin:
		h.addWatcher(o.room, o.client)
	case opLeave:
		h.removeWatcher(o.room, o.client)
	case opBroadcast:
		h.fanOut(o.room, o.raw)
	case opEnterChat:
		h.addChatter(o.room, o.role, o.client)
	case opLeaveChat:
		h.removeChatter(o.room, o.client)
	case opDeliverChat:
		o.reply <- h.deliver(o.room, o.role, o.raw)
	}
}

func (h *Hub) addWatcher(auctionID string, c *Client) {
	room, ok := h.auctions[auctionID]
	if !ok {
		room = make(map[*Client]struct{})
		h.auctions[auctionID] = room
	}
	room[c] = struct{}{}
	utils.Debug("realtime: watcher joined", map[string]any{"auction_id": auctionID, "user_id": c.UserID, "watchers": len(room)})
	h.broadcastCount(auctionID)
}

func (h *Hub) removeWatcher(auctionID string, c *Client) {
	room, ok := h.auctions[auctionID]
	if !ok {
		return
	}
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.auctions, auctionID)
		return
	}
	h.broadcastCount(auctionID)
}

func (h *Hub) broadcastCount(auctionID string) {
	room := h.auctions[auctionID]
	raw, _ := json.Marshal(countMessage{Type: "count", Watchers: len(room)})
	h.fanOut(auctionID, raw)
}

// fanOut delivers to every member. Members whose queue is full are dropped
// and closed; the rest of the room is unaffected.
func (h *Hub) fanOut(auctionID string, raw []byte) {
	room := h.auctions[auctionID]
	var dropped []*Client
	for c := range room {
		if !c.enqueue(raw) {
			dropped = append(dropped, c)
		}
	}
	if len(dropped) == 0 {
		return
	}
	for _, c := range dropped {
		delete(room, c)
		c.Close()
		utils.Warn("realtime: dropped slow watcher", map[string]any{"auction_id": auctionID, "client_id": c.ID})
	}
	if len(room) == 0 {
		delete(h.auctions, auctionID)
		return
	}
	h.broadcastCount(auctionID)
}

func (h *Hub) shutdown() {
	for id, room := range h.auctions {
		for c := range room {
			c.Close()
		}
		delete(h.auctions, id)
	}
	for id, slots := range h.chats {
		for _, c := range slots {
			c.Close()
		}
		delete(h.chats, id)
	}
	utils.Info("realtime: hub stopped", nil)
}
