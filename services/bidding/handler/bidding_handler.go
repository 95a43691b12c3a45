package handler

import (
	"context"
	"net/http"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/models"
	"auction-engine/internal/money"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

type BiddingServiceInterface interface {
	PlaceBid(ctx context.Context, auctionID, userID string, amount money.Amount) (bidding.Result, error)
	BuyNow(ctx context.Context, auctionID, userID string) (bidding.Result, error)
	UpdateBid(ctx context.Context, bidID, userID string, amount money.Amount) (bidding.Result, error)
	GetBidsForAuction(ctx context.Context, auctionID string) ([]models.Bid, error)
	GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error)
}

type BiddingHandler struct {
	service BiddingServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// RecordBidHandler handles POST /bids
func (h *BiddingHandler) RecordBidHandler(c *gin.Context) {
	p, ok := helpers.MustPrincipal(c, "RecordBidHandler")
	if !ok {
		return
	}
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RecordBidHandler", err)
		return
	}

	res, err := h.service.PlaceBid(c.Request.Context(), req.AuctionID, p.UserID, req.Amount)
	if err != nil {
		helpers.RespondError(c, "RecordBidHandler", err, map[string]any{
			"auction_id": req.AuctionID,
			"user_id":    p.UserID,
			"amount":     req.Amount.String(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewBidResponse(res.Bid, res.CurrentPrice, res.Payment), "bid recorded successfully")
	helpers.LogSuccess("RecordBidHandler", "bid recorded successfully", map[string]any{
		"bid_id":     res.Bid.BidID,
		"auction_id": res.Bid.AuctionID,
		"user_id":    p.UserID,
		"amount":     res.Bid.Amount.String(),
	})
}

// BuyNowHandler handles POST /bids/buy_now
func (h *BiddingHandler) BuyNowHandler(c *gin.Context) {
	p, ok := helpers.MustPrincipal(c, "BuyNowHandler")
	if !ok {
		return
	}
	var req helpers.BuyNowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "BuyNowHandler", err)
		return
	}

	res, err := h.service.BuyNow(c.Request.Context(), req.AuctionID, p.UserID)
	if err != nil {
		helpers.RespondError(c, "BuyNowHandler", err, map[string]any{"auction_id": req.AuctionID, "user_id": p.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewBidResponse(res.Bid, res.CurrentPrice, res.Payment), "auction bought successfully")
	helpers.LogSuccess("BuyNowHandler", "auction bought", map[string]any{
		"auction_id": req.AuctionID,
		"user_id":    p.UserID,
		"amount":     res.Bid.Amount.String(),
	})
}

// UpdateBidHandler handles PUT /bids/:bid_id
func (h *BiddingHandler) UpdateBidHandler(c *gin.Context) {
	p, ok := helpers.MustPrincipal(c, "UpdateBidHandler")
	if !ok {
		return
	}
	var req helpers.UpdateBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "UpdateBidHandler", err)
		return
	}

	bidID := c.Param("bid_id")
	res, err := h.service.UpdateBid(c.Request.Context(), bidID, p.UserID, req.Amount)
	if err != nil {
		helpers.RespondError(c, "UpdateBidHandler", err, map[string]any{"bid_id": bidID, "user_id": p.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponse(res.Bid, res.CurrentPrice, res.Payment), "bid updated successfully")
	helpers.LogSuccess("UpdateBidHandler", "bid updated successfully", map[string]any{
		"bid_id": bidID,
		"amount": res.Bid.Amount.String(),
	})
}

// GetBidsByAuctionHandler handles GET /auctions/:auction_id/bids
func (h *BiddingHandler) GetBidsByAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bids, err := h.service.GetBidsForAuction(c.Request.Context(), auctionID)
	if err != nil && !helpers.IsNoBids(err) {
		helpers.RespondError(c, "GetBidsByAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	resp := make([]helpers.BidResponse, 0, len(bids))
	for _, b := range bids {
		resp = append(resp, helpers.NewBidResponse(b, 0, nil))
	}

	utils.JSONResponse(c, http.StatusOK, resp, "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByAuctionHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(resp),
	})
}

// GetWinningBidHandler handles GET /auctions/:auction_id/winning
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bid, err := h.service.GetWinningBid(c.Request.Context(), auctionID)
	if err != nil {
		if helpers.IsNoBids(err) {
			utils.JSONError(c, http.StatusNotFound, "no winning bid found", "NoBids")
			utils.Info("GetWinningBidHandler: no winning bid found", map[string]any{"auction_id": auctionID})
			return
		}
		helpers.RespondError(c, "GetWinningBidHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponse(bid, 0, nil), "winning bid retrieved successfully")
	helpers.LogSuccess("GetWinningBidHandler", "winning bid retrieved successfully", map[string]any{
		"bid_id":     bid.BidID,
		"auction_id": auctionID,
		"user_id":    bid.UserID,
		"amount":     bid.Amount.String(),
	})
}
