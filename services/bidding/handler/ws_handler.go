package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"auction-engine/internal/auth"
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/realtime"
	"auction-engine/internal/repository"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Hub is the part of the realtime hub the socket handlers drive.
type Hub interface {
	Join(auctionID string, c *realtime.Client)
	Leave(auctionID string, c *realtime.Client)
	SendHistory(ctx context.Context, c *realtime.Client, auctionID string) error
	EnterChat(ctx context.Context, chatID string, c *realtime.Client) (*realtime.ChatSession, error)
}

type TokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

type WatcherRecorder interface {
	RecordWatcher(ctx context.Context, auctionID, userID string) error
}

type WSHandler struct {
	hub      Hub
	verifier TokenVerifier
	auctions AuctionServiceInterface
	bids     BiddingServiceInterface
	watchers WatcherRecorder
	limiter  *helpers.KeyedLimiter
	upgrader websocket.Upgrader
}

// NewWSHandler builds the socket handlers. origins lists the allowed Origin
// headers; an empty list accepts any origin.
func NewWSHandler(hub Hub, verifier TokenVerifier, auctions AuctionServiceInterface, bids BiddingServiceInterface,
	watchers WatcherRecorder, limiter *helpers.KeyedLimiter, origins []string) *WSHandler {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return &WSHandler{
		hub:      hub,
		verifier: verifier,
		auctions: auctions,
		bids:     bids,
		watchers: watchers,
		limiter:  limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

// closeFor picks the close code and reason for a failure before the socket is
// usable. The reason is the detail code.
func closeFor(err error) (int, string) {
	kind, detail := biddingerrors.Classify(err)
	if kind == biddingerrors.KindInternal {
		return websocket.CloseInternalServerErr, detail
	}
	return websocket.ClosePolicyViolation, detail
}

// BidSocketHandler handles /auctions/bids/ws/:auction_id/:token. The token is
// checked after the upgrade so a failure can be reported as close code 1008.
func (h *WSHandler) BidSocketHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.Warn("BidSocketHandler: upgrade failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	p, err := h.verifier.Verify(c.Param("token"))
	if err != nil {
		client := realtime.NewClient(conn, "")
		client.CloseWith(websocket.ClosePolicyViolation, "authentication failed")
		utils.Warn("BidSocketHandler: authentication failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	client := realtime.NewClient(conn, p.UserID)
	go client.WritePump()

	if err := h.admit(ctx, p, auctionID); err != nil {
		client.CloseWith(closeFor(err))
		helpers.LogSocketFailure("BidSocketHandler", err, map[string]any{"auction_id": auctionID, "user_id": p.UserID})
		return
	}

	h.hub.Join(auctionID, client)
	defer h.hub.Leave(auctionID, client)

	if err := h.hub.SendHistory(ctx, client, auctionID); err != nil {
		client.CloseWith(websocket.CloseInternalServerErr, "history unavailable")
		utils.Error("BidSocketHandler: failed to send history", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	helpers.LogSuccess("BidSocketHandler", "watcher joined", map[string]any{"auction_id": auctionID, "user_id": p.UserID})
	client.ReadPump(func(raw []byte) error {
		return h.handleBidFrame(ctx, client, p, auctionID, raw)
	})
}

// admit checks the caller may watch the auction and counts them as a watcher.
func (h *WSHandler) admit(ctx context.Context, p auth.Principal, auctionID string) error {
	if _, err := h.auctions.Get(ctx, repository.Viewer{UserID: p.UserID, Email: p.Email}, auctionID); err != nil {
		return err
	}
	return h.watchers.RecordWatcher(ctx, auctionID, p.UserID)
}

// handleBidFrame places one inbound bid. Rejections are reported on the
// socket; only malformed frames and internal failures end the connection.
func (h *WSHandler) handleBidFrame(ctx context.Context, client *realtime.Client, p auth.Principal, auctionID string, raw []byte) error {
	var frame helpers.BidFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		client.CloseWith(websocket.CloseUnsupportedData, "malformed payload")
		return realtime.ErrMalformedFrame
	}

	var err error
	switch {
	case frame.AuctionID != "" && frame.AuctionID != auctionID:
		err = fmt.Errorf("ws bid: %w - frame is for auction %s", biddingerrors.ErrValidation, frame.AuctionID)
	case h.limiter != nil && !h.limiter.Allow(p.UserID):
		err = fmt.Errorf("ws bid: %w", biddingerrors.ErrRateLimited)
	default:
		_, err = h.bids.PlaceBid(ctx, auctionID, p.UserID, frame.Amount)
	}
	if err == nil {
		return nil
	}

	kind, detail := biddingerrors.Classify(err)
	if kind == biddingerrors.KindInternal {
		client.CloseWith(websocket.CloseInternalServerErr, "internal error")
		utils.Error("BidSocketHandler: bid failed", map[string]any{"auction_id": auctionID, "user_id": p.UserID, "error": err.Error()})
		return err
	}
	client.Send(realtime.NewErrorMessage(detail, err.Error()))
	utils.Debug("BidSocketHandler: bid rejected", map[string]any{"auction_id": auctionID, "user_id": p.UserID, "detail": detail})
	return nil
}

// ChatSocketHandler handles /chats/ws/:chat_id. The caller is authenticated
// by the auth middleware from the Authorization header or cookie.
func (h *WSHandler) ChatSocketHandler(c *gin.Context) {
	p, ok := helpers.MustPrincipal(c, "ChatSocketHandler")
	if !ok {
		return
	}
	chatID := c.Param("chat_id")
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.Warn("ChatSocketHandler: upgrade failed", map[string]any{"chat_id": chatID, "error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	client := realtime.NewClient(conn, p.UserID)
	go client.WritePump()

	session, err := h.hub.EnterChat(ctx, chatID, client)
	if err != nil {
		client.CloseWith(closeFor(err))
		helpers.LogSocketFailure("ChatSocketHandler", err, map[string]any{"chat_id": chatID, "user_id": p.UserID})
		return
	}
	defer session.Leave()

	client.ReadPump(func(raw []byte) error {
		err := session.Handle(ctx, raw)
		if errors.Is(err, realtime.ErrMalformedFrame) {
			client.CloseWith(websocket.CloseUnsupportedData, "malformed payload")
		}
		return err
	})
}
