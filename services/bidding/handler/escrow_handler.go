package handler

import (
	"context"
	"net/http"

	"auction-engine/internal/models"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

type EscrowServiceInterface interface {
	MarkInspecting(ctx context.Context, auctionID, actorID string) (models.Payment, error)
	Finalize(ctx context.Context, auctionID, actorID string) (models.Payment, error)
	RequestRefund(ctx context.Context, auctionID, actorID string) (models.Payment, error)
	ConfirmRefund(ctx context.Context, auctionID, actorID string) (models.Payment, error)
	PaymentForAuction(ctx context.Context, auctionID, actorID string) (models.Payment, error)
}

type EscrowHandler struct {
	service EscrowServiceInterface
}

func NewEscrowHandler(service EscrowServiceInterface) *EscrowHandler {
	return &EscrowHandler{service: service}
}

type escrowAction func(ctx context.Context, auctionID, actorID string) (models.Payment, error)

// transition runs one escrow action for the caller on the auction in the path.
func (h *EscrowHandler) transition(c *gin.Context, handlerName string, action escrowAction, okMessage string) {
	p, ok := helpers.MustPrincipal(c, handlerName)
	if !ok {
		return
	}
	auctionID := c.Param("auction_id")
	payment, err := action(c.Request.Context(), auctionID, p.UserID)
	if err != nil {
		helpers.RespondError(c, handlerName, err, map[string]any{"auction_id": auctionID, "user_id": p.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, payment, okMessage)
	helpers.LogSuccess(handlerName, okMessage, map[string]any{
		"auction_id": auctionID,
		"payment_id": payment.PaymentID,
		"status":     payment.Status,
	})
}

// FinalizeHandler handles GET /auctions/finalize/:auction_id
func (h *EscrowHandler) FinalizeHandler(c *gin.Context) {
	h.transition(c, "FinalizeHandler", h.service.Finalize, "payment finalized successfully")
}

// SetInspectingHandler handles PUT /auctions/set_inspecting/:auction_id
func (h *EscrowHandler) SetInspectingHandler(c *gin.Context) {
	h.transition(c, "SetInspectingHandler", h.service.MarkInspecting, "payment marked as inspecting")
}

// RequestRefundHandler handles POST /auctions/refund/:auction_id
func (h *EscrowHandler) RequestRefundHandler(c *gin.Context) {
	h.transition(c, "RequestRefundHandler", h.service.RequestRefund, "refund requested successfully")
}

// CompleteRefundHandler handles POST /auctions/complete_refund/:auction_id
func (h *EscrowHandler) CompleteRefundHandler(c *gin.Context) {
	h.transition(c, "CompleteRefundHandler", h.service.ConfirmRefund, "refund completed successfully")
}

// GetPaymentHandler handles GET /auctions/:auction_id/payment
func (h *EscrowHandler) GetPaymentHandler(c *gin.Context) {
	h.transition(c, "GetPaymentHandler", h.service.PaymentForAuction, "payment retrieved successfully")
}
