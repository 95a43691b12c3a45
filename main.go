package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-engine/internal/auctions"
	"auction-engine/internal/auth"
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/cache"
	"auction-engine/internal/config"
	"auction-engine/internal/escrow"
	"auction-engine/internal/events"
	"auction-engine/internal/gateway"
	"auction-engine/internal/lifecycle"
	"auction-engine/internal/metrics"
	"auction-engine/internal/realtime"
	"auction-engine/internal/repository"
	"auction-engine/internal/server"
	"auction-engine/internal/wallet"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	bidRatePerSecond = 2
	bidBurst         = 5
	shutdownTimeout  = 10 * time.Second
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	utils.ConfigureLogger(cfg.LogLevel)
	metrics.Init()
	helpers.ScrubInternalErrors(cfg.IsProduction())
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		utils.Error("server exited with error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var rdb *redis.Client
	var pub events.Publisher
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		pub = events.NewRedisPublisher(rdb)
	} else {
		mem := events.NewMemoryBus()
		go logEvents(ctx, mem)
		pub = mem
		utils.Warn("REDIS_URL not set, events stay in process", nil)
	}
	bus := events.NewBus(pub)

	secret := cfg.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		utils.Warn("JWT_SECRET_KEY not set, using a throwaway secret", nil)
	}
	verifier, err := auth.NewVerifier(secret, cfg.JWTAlgorithm)
	if err != nil {
		return err
	}

	hub := realtime.NewHub(store, cache.New(rdb, cache.DefaultSize, cache.DefaultTTL))
	go hub.Run(ctx)

	escrowMgr := escrow.NewManager(store, bus, escrow.Options{
		PaymentDue:       cfg.PaymentDue,
		InspectionWindow: cfg.InspectionWindow,
		RefundWindow:     cfg.RefundWindow,
		FrontendURL:      cfg.FrontendURL,
	})
	biddingSvc := bidding.NewBiddingService(store, escrowMgr, hub, bus)
	auctionSvc := auctions.NewService(store, bus, cfg.FrontendURL)
	walletSvc := wallet.NewService(store, gateway.NewClient(cfg.Paystack.URL, cfg.Paystack.SecretKey), bus, wallet.Options{
		WebhookSecret: cfg.Paystack.SecretKey,
		Allowlist:     gateway.ParseAllowlist(cfg.Paystack.IPAllow),
		CallbackURL:   cfg.FrontendURL + "/wallet/verify",
	})

	driver := lifecycle.NewDriver(store, escrowMgr, hub, lifecycle.Config{
		AdvanceInterval: cfg.AdvanceInterval,
		SweepInterval:   cfg.SweepInterval,
		BatchBudget:     cfg.BatchBudget,
	})
	go driver.Run(ctx)

	limiter := helpers.NewKeyedLimiter(bidRatePerSecond, bidBurst)
	go limiter.RunSweeper(ctx)

	if mem, ok := store.(*repository.MemoryRepo); ok {
		if err := seedDevData(mem, verifier, cfg.AccessTokenTTL); err != nil {
			return err
		}
	}

	router := server.SetupRouter(server.Deps{
		Verifier:       verifier,
		Bids:           biddingSvc,
		Auctions:       auctionSvc,
		Escrow:         escrowMgr,
		Wallet:         walletSvc,
		Hub:            hub,
		Watchers:       store,
		BidLimiter:     limiter,
		CORSAllowed:    cfg.CORSAllowed,
		TrustedProxies: cfg.TrustedProxies,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       20 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.Info("starting auction server", map[string]any{"addr": srv.Addr, "env": cfg.Env})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	utils.Info("shutdown signal received, shutting down server", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	utils.Info("server exited gracefully", nil)
	return nil
}

// openStore connects to Postgres when DATABASE_URL is set and falls back to
// the in-memory store otherwise.
func openStore(ctx context.Context, cfg config.Config) (repository.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		utils.Warn("DATABASE_URL not set, using in-memory store", nil)
		return repository.NewMemoryRepo(), func() {}, nil
	}
	pg, err := repository.OpenPG(cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := pg.Close(); err != nil {
			utils.Warn("close database", map[string]any{"error": err.Error()})
		}
	}
	if err := pg.Ping(ctx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	if err := repository.Migrate(ctx, pg.DB(), cfg.DBSchema); err != nil {
		closeFn()
		return nil, nil, err
	}
	return pg, closeFn, nil
}

// logEvents stands in for the mail worker when no broker is configured.
func logEvents(ctx context.Context, bus *events.MemoryBus) {
	for msg := range bus.Subscribe(ctx) {
		utils.Debug("event", map[string]any{"topic": msg.Topic, "payload": string(msg.Payload)})
	}
}
