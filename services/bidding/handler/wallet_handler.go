package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/gateway"
	"auction-engine/internal/models"
	"auction-engine/internal/money"
	"auction-engine/internal/repository"
	"auction-engine/internal/wallet"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

type WalletServiceInterface interface {
	InitFunding(ctx context.Context, userID string, amount money.Amount) (wallet.Checkout, error)
	VerifyFunding(ctx context.Context, userID, reference string) (models.LedgerEntry, error)
	HandleWebhook(ctx context.Context, body []byte, signature, remoteIP string) error
	Withdraw(ctx context.Context, userID string, amount money.Amount) (models.LedgerEntry, error)
	History(ctx context.Context, userID string, page repository.Page) ([]models.LedgerEntry, error)
}

type WalletHandler struct {
	service WalletServiceInterface
}

func NewWalletHandler(service WalletServiceInterface) *WalletHandler {
	return &WalletHandler{service: service}
}

// InitFundingHandler handles GET /transactions/init?amount=N
func (h *WalletHandler) InitFundingHandler(c *gin.Context) {
	p, ok := helpers.MustPrincipal(c, "InitFundingHandler")
	if !ok {
		return
	}
	amount, err := money.Parse(c.Query("amount"))
	if err != nil {
		helpers.RespondError(c, "InitFundingHandler", fmt.Errorf("%w - amount: %v", biddingerrors.ErrValidation, err), nil)
		return
	}

	checkout, err := h.service.InitFunding(c.Request.Context(), p.UserID, amount)
	if err != nil {
		helpers.RespondError(c, "InitFundingHandler", err, map[string]any{"user_id": p.UserID, "amount": amount.String()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, checkout, "funding initialized successfully")
	helpers.LogSuccess("InitFundingHandler", "funding initialized", map[string]any{
		"user_id":   p.UserID,
		"reference": checkout.Reference,
		"amount":    amount.String(),
	})
}

// VerifyFundingHandler handles POST /transactions/verify
func (h *WalletHandler) VerifyFundingHandler(c *gin.Context) {
	p, ok := helpers.MustPrincipal(c, "VerifyFundingHandler")
	if !ok {
		return
	}
	var req helpers.VerifyFundingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "VerifyFundingHandler", err)
		return
	}

	entry, err := h.service.VerifyFunding(c.Request.Context(), p.UserID, req.ReferenceID)
	if err != nil {
		helpers.RespondError(c, "VerifyFundingHandler", err, map[string]any{"user_id": p.UserID, "reference": req.ReferenceID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, entry, "funding verified")
	helpers.LogSuccess("VerifyFundingHandler", "funding verified", map[string]any{
		"reference": entry.Reference,
		"status":    entry.Status,
	})
}

// WebhookHandler handles POST /transactions/paystack/webhook. The signature
// covers the raw body, so it is read before any decoding.
func (h *WalletHandler) WebhookHandler(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		helpers.RespondError(c, "WebhookHandler", fmt.Errorf("%w - read body: %v", biddingerrors.ErrValidation, err), nil)
		return
	}

	ip := c.ClientIP()
	if err := h.service.HandleWebhook(c.Request.Context(), body, c.GetHeader(gateway.SignatureHeader), ip); err != nil {
		helpers.RespondError(c, "WebhookHandler", err, map[string]any{"remote_ip": ip})
		return
	}

	utils.JSONResponse(c, http.StatusOK, nil, "webhook processed")
	helpers.LogSuccess("WebhookHandler", "webhook processed", map[string]any{"remote_ip": ip})
}

// WithdrawHandler handles POST /transactions/withdraw
func (h *WalletHandler) WithdrawHandler(c *gin.Context) {
	p, ok := helpers.MustPrincipal(c, "WithdrawHandler")
	if !ok {
		return
	}
	var req helpers.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "WithdrawHandler", err)
		return
	}

	entry, err := h.service.Withdraw(c.Request.Context(), p.UserID, req.Amount)
	if err != nil {
		helpers.RespondError(c, "WithdrawHandler", err, map[string]any{"user_id": p.UserID, "amount": req.Amount.String()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, entry, "withdrawal completed")
	helpers.LogSuccess("WithdrawHandler", "withdrawal completed", map[string]any{
		"user_id":   p.UserID,
		"reference": entry.Reference,
		"amount":    entry.Amount.String(),
	})
}

// HistoryHandler handles GET /transactions
func (h *WalletHandler) HistoryHandler(c *gin.Context) {
	p, ok := helpers.MustPrincipal(c, "HistoryHandler")
	if !ok {
		return
	}
	page, err := helpers.PageFromQuery(c)
	if err != nil {
		helpers.RespondError(c, "HistoryHandler", err, nil)
		return
	}

	entries, err := h.service.History(c.Request.Context(), p.UserID, page)
	if err != nil {
		helpers.RespondError(c, "HistoryHandler", err, map[string]any{"user_id": p.UserID})
		return
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}

	utils.JSONResponse(c, http.StatusOK, entries, "transactions retrieved successfully")
}
