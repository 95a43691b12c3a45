package server

import (
	"net/http"

	"auction-engine/internal/auth"
	"auction-engine/internal/metrics"
	handler "auction-engine/services/bidding/handler"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Verifier    *auth.Verifier
	Bids        handler.BiddingServiceInterface
	Auctions    handler.AuctionServiceInterface
	Escrow      handler.EscrowServiceInterface
	Wallet      handler.WalletServiceInterface
	Hub         handler.Hub
	Watchers    handler.WatcherRecorder
	BidLimiter  *helpers.KeyedLimiter
	CORSAllowed []string
	// nil trusts no proxy, so ClientIP is the peer address
	TrustedProxies []string
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(d Deps) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging
	if err := router.SetTrustedProxies(d.TrustedProxies); err != nil {
		utils.Error("invalid trusted proxies, trusting none", map[string]any{"proxies": d.TrustedProxies, "error": err.Error()})
		_ = router.SetTrustedProxies(nil)
	}

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging
	router.Use(metrics.Middleware)
	router.Use(CORSMiddleware(d.CORSAllowed))

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	biddingHandler := handler.NewBiddingHandler(d.Bids)
	auctionHandler := handler.NewAuctionHandler(d.Auctions)
	escrowHandler := handler.NewEscrowHandler(d.Escrow)
	walletHandler := handler.NewWalletHandler(d.Wallet)
	wsHandler := handler.NewWSHandler(d.Hub, d.Verifier, d.Auctions, d.Bids, d.Watchers, d.BidLimiter, d.CORSAllowed)

	api := router.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		utils.JSONResponse(c, http.StatusOK, gin.H{"status": "ok"}, "healthy")
	})

	// the bid socket carries its token in the path
	api.GET("/auctions/bids/ws/:auction_id/:token", wsHandler.BidSocketHandler)

	api.Use(Authenticate(d.Verifier))

	bids := api.Group("/bids", RequireAuth)
	if d.BidLimiter != nil {
		bids.Use(RateLimitMiddleware(d.BidLimiter))
	}
	{
		bids.POST("", biddingHandler.RecordBidHandler)
		bids.POST("/buy_now", biddingHandler.BuyNowHandler)
		bids.PUT("/:bid_id", biddingHandler.UpdateBidHandler)
	}

	auctions := api.Group("/auctions")
	{
		auctions.GET("", auctionHandler.ListAuctionsHandler)
		auctions.GET("/:auction_id", auctionHandler.GetAuctionHandler)
		auctions.GET("/:auction_id/bids", biddingHandler.GetBidsByAuctionHandler)
		auctions.GET("/:auction_id/winning", biddingHandler.GetWinningBidHandler)
	}
	owned := auctions.Group("", RequireAuth)
	{
		owned.POST("", auctionHandler.CreateAuctionHandler)
		owned.PUT("/:auction_id", auctionHandler.UpdateAuctionHandler)
		owned.DELETE("/:auction_id", auctionHandler.CancelAuctionHandler)

		owned.GET("/:auction_id/payment", escrowHandler.GetPaymentHandler)
		owned.GET("/finalize/:auction_id", escrowHandler.FinalizeHandler)
		owned.PUT("/set_inspecting/:auction_id", escrowHandler.SetInspectingHandler)
		owned.POST("/refund/:auction_id", escrowHandler.RequestRefundHandler)
		owned.POST("/complete_refund/:auction_id", escrowHandler.CompleteRefundHandler)
	}

	transactions := api.Group("/transactions")
	{
		// authenticated by signature and source IP instead of a token
		transactions.POST("/paystack/webhook", walletHandler.WebhookHandler)
	}
	wallet := transactions.Group("", RequireAuth)
	{
		wallet.GET("", walletHandler.HistoryHandler)
		wallet.GET("/init", walletHandler.InitFundingHandler)
		wallet.POST("/verify", walletHandler.VerifyFundingHandler)
		wallet.POST("/withdraw", walletHandler.WithdrawHandler)
	}

	api.GET("/chats/ws/:chat_id", RequireAuth, wsHandler.ChatSocketHandler)

	return router
}
