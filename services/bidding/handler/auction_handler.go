package handler

import (
	"context"
	"net/http"

	"auction-engine/internal/auctions"
	"auction-engine/internal/auth"
	"auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

type AuctionServiceInterface interface {
	Create(ctx context.Context, actor auth.Principal, in auctions.CreateInput) (models.Auction, error)
	Get(ctx context.Context, viewer repository.Viewer, auctionID string) (models.Auction, error)
	List(ctx context.Context, f repository.AuctionFilter, p repository.Page) (auctions.Listing, error)
	Search(ctx context.Context, term string, viewer repository.Viewer, p repository.Page) (auctions.Listing, error)
	Update(ctx context.Context, actor auth.Principal, auctionID string, in auctions.UpdateInput) (models.Auction, error)
	Cancel(ctx context.Context, actor auth.Principal, auctionID string) error
}

type AuctionHandler struct {
	service AuctionServiceInterface
}

func NewAuctionHandler(service AuctionServiceInterface) *AuctionHandler {
	return &AuctionHandler{service: service}
}

// CreateAuctionHandler handles POST /auctions
func (h *AuctionHandler) CreateAuctionHandler(c *gin.Context) {
	p, ok := helpers.MustPrincipal(c, "CreateAuctionHandler")
	if !ok {
		return
	}
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	a, err := h.service.Create(c.Request.Context(), p, req.Input())
	if err != nil {
		helpers.RespondError(c, "CreateAuctionHandler", err, map[string]any{"user_id": p.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, a, "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created", map[string]any{
		"auction_id": a.AuctionID,
		"seller_id":  a.SellerID,
		"private":    a.Private,
	})
}

// ListAuctionsHandler handles GET /auctions. A non-empty search parameter
// switches to a full-text search over item names and descriptions.
func (h *AuctionHandler) ListAuctionsHandler(c *gin.Context) {
	var q helpers.AuctionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		helpers.HandleBindError(c, "ListAuctionsHandler", err)
		return
	}
	page, err := helpers.PageFromQuery(c)
	if err != nil {
		helpers.RespondError(c, "ListAuctionsHandler", err, nil)
		return
	}
	viewer := helpers.Viewer(c)

	var listing auctions.Listing
	if q.Search != "" {
		listing, err = h.service.Search(c.Request.Context(), q.Search, viewer, page)
	} else {
		f, ferr := q.Filter(viewer)
		if ferr != nil {
			helpers.RespondError(c, "ListAuctionsHandler", ferr, nil)
			return
		}
		listing, err = h.service.List(c.Request.Context(), f, page)
	}
	if err != nil {
		helpers.RespondError(c, "ListAuctionsHandler", err, map[string]any{"search": q.Search})
		return
	}

	utils.JSONResponse(c, http.StatusOK, listing, "auctions retrieved successfully")
	helpers.LogSuccess("ListAuctionsHandler", "auctions retrieved successfully", map[string]any{
		"total": listing.Total,
		"page":  listing.Page,
	})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *AuctionHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	a, err := h.service.Get(c.Request.Context(), helpers.Viewer(c), auctionID)
	if err != nil {
		helpers.RespondError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, a, "auction retrieved successfully")
}

// UpdateAuctionHandler handles PUT /auctions/:auction_id
func (h *AuctionHandler) UpdateAuctionHandler(c *gin.Context) {
	p, ok := helpers.MustPrincipal(c, "UpdateAuctionHandler")
	if !ok {
		return
	}
	var req helpers.UpdateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "UpdateAuctionHandler", err)
		return
	}

	auctionID := c.Param("auction_id")
	a, err := h.service.Update(c.Request.Context(), p, auctionID, req.Input())
	if err != nil {
		helpers.RespondError(c, "UpdateAuctionHandler", err, map[string]any{"auction_id": auctionID, "user_id": p.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, a, "auction updated successfully")
	helpers.LogSuccess("UpdateAuctionHandler", "auction updated", map[string]any{"auction_id": auctionID})
}

// CancelAuctionHandler handles DELETE /auctions/:auction_id
func (h *AuctionHandler) CancelAuctionHandler(c *gin.Context) {
	p, ok := helpers.MustPrincipal(c, "CancelAuctionHandler")
	if !ok {
		return
	}
	auctionID := c.Param("auction_id")
	if err := h.service.Cancel(c.Request.Context(), p, auctionID); err != nil {
		helpers.RespondError(c, "CancelAuctionHandler", err, map[string]any{"auction_id": auctionID, "user_id": p.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, gin.H{"auction_id": auctionID}, "auction cancelled successfully")
	helpers.LogSuccess("CancelAuctionHandler", "auction cancelled", map[string]any{"auction_id": auctionID})
}
