package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"auction-engine/utils"
)

const (
	noticeDelivered    = "Message Delivered"
	noticeNotDelivered = "Message not Delivered"
)

// ErrMalformedFrame is returned for inbound frames that cannot be decoded.
var ErrMalformedFrame = errors.New("realtime: malformed frame")

type noticeMessage struct {
	Notice string `json:"notice"`
}

type readReceipt struct {
	ChatNumber int64             `json:"chat_number"`
	Reader     models.SenderRole `json:"reader"`
	Updated    int               `json:"updated"`
}

type inboundChat struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type sendPayload struct {
	Message string `json:"message"`
}

type readPayload struct {
	ChatNumber int64 `json:"chat_number"`
}

// ChatSession is a client seated in one slot of a chat room.
type ChatSession struct {
	hub    *Hub
	client *Client
	ChatID string
	Role   models.SenderRole
	now    func() time.Time
}

// EnterChat seats c in its slot of the room and sends the room as the first
// frame. Users other than the buyer and seller are rejected.
func (h *Hub) EnterChat(ctx context.Context, chatID string, c *Client) (*ChatSession, error) {
	room, err := h.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	role, ok := room.RoleOf(c.UserID)
	if !ok {
		return nil, fmt.Errorf("realtime: %w - user %s is not in chat %s", biddingerrors.ErrForbidden, c.UserID, chatID)
	}

	h.post(op{kind: opEnterChat, room: chatID, client: c, role: role})
	c.Send(payloadMessage{Type: "chat", Payload: room})
	return &ChatSession{hub: h, client: c, ChatID: chatID, Role: role, now: time.Now}, nil
}

// Leave frees the session's slot.
func (s *ChatSession) Leave() {
	s.hub.post(op{kind: opLeaveChat, room: s.ChatID, client: s.client, role: s.Role})
}

// Post persists a message, delivers it to the other slot and tells the sender
// whether it was delivered.
func (s *ChatSession) Post(ctx context.Context, text string) (models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ChatMessage{}, fmt.Errorf("realtime: %w - empty message", biddingerrors.ErrValidation)
	}
	msg, err := s.hub.store.AppendChatMessage(ctx, s.ChatID, s.client.UserID, text, s.now().UTC())
	if err != nil {
		return models.ChatMessage{}, err
	}

	notice := noticeNotDelivered
	if s.hub.deliverTo(s.ChatID, other(s.Role), payloadMessage{Type: "new_message", Payload: msg}) {
		notice = noticeDelivered
	}
	s.client.Send(noticeMessage{Notice: notice})
	return msg, nil
}

// MarkRead marks the other party's messages up to seq as read and tells both slots.
func (s *ChatSession) MarkRead(ctx context.Context, seq int64) (int, error) {
	if seq < 1 {
		return 0, fmt.Errorf("realtime: %w - chat_number must be positive", biddingerrors.ErrValidation)
	}
	n, err := s.hub.store.MarkChatRead(ctx, s.ChatID, s.client.UserID, seq)
	if err != nil {
		return 0, err
	}
	s.hub.deliverTo(s.ChatID, "", payloadMessage{
		Type:    "read_message",
		Payload: readReceipt{ChatNumber: seq, Reader: s.Role, Updated: n},
	})
	return n, nil
}

// Handle dispatches one inbound frame. Decoding failures return
// ErrMalformedFrame; domain rejections are reported to the sender.
func (s *ChatSession) Handle(ctx context.Context, raw []byte) error {
	var in inboundChat
	if err := json.Unmarshal(raw, &in); err != nil {
		return ErrMalformedFrame
	}

	var err error
	switch in.Type {
	case "send_message":
		var p sendPayload
		if json.Unmarshal(in.Payload, &p) != nil {
			return ErrMalformedFrame
		}
		_, err = s.Post(ctx, p.Message)
	case "read_message":
		var p readPayload
		if json.Unmarshal(in.Payload, &p) != nil {
			return ErrMalformedFrame
		}
		_, err = s.MarkRead(ctx, p.ChatNumber)
	default:
		return ErrMalformedFrame
	}

	if err != nil {
		kind, detail := biddingerrors.Classify(err)
		if kind == biddingerrors.KindInternal {
			utils.Error("realtime: chat frame failed", map[string]any{"chat_id": s.ChatID, "error": err.Error()})
		}
		s.client.Send(NewErrorMessage(detail, err.Error()))
	}
	return nil
}

func other(r models.SenderRole) models.SenderRole {
	if r == models.SenderBuyer {
		return models.SenderSeller
	}
	return models.SenderBuyer
}

// deliverTo asks the hub goroutine to queue v for the slot and reports whether
// a connected client accepted it.
func (h *Hub) deliverTo(chatID string, to models.SenderRole, v any) bool {
	raw, err := json.Marshal(v)
	if err != nil {
		return false
	}
	reply := make(chan bool, 1)
	if !h.post(op{kind: opDeliverChat, room: chatID, role: to, raw: raw, reply: reply}) {
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-h.stopped:
		return false
	}
}

func (h *Hub) addChatter(chatID string, role models.SenderRole, c *Client) {
	slots, ok := h.chats[chatID]
	if !ok {
		slots = make(map[models.SenderRole]*Client, 2)
		h.chats[chatID] = slots
	}
	if prev, ok := slots[role]; ok && prev != c {
		prev.Close()
	}
	slots[role] = c
}

func (h *Hub) removeChatter(chatID string, c *Client) {
	slots, ok := h.chats[chatID]
	if !ok {
		return
	}
	for role, seated := range slots {
		if seated == c {
			delete(slots, role)
		}
	}
	if len(slots) == 0 {
		delete(h.chats, chatID)
	}
}

func (h *Hub) deliver(chatID string, to models.SenderRole, raw []byte) bool {
	slots := h.chats[chatID]
	delivered := false
	for role, c := range slots {
		if to != "" && role != to {
			continue
		}
		if c.enqueue(raw) {
			delivered = true
			continue
		}
		c.Close()
		h.removeChatter(chatID, c)
	}
	return delivered
}
