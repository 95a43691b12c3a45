// Command mailworker subscribes to every event topic and sends one email per
// event through the configured SMTP relay.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"auction-engine/internal/config"
	"auction-engine/internal/events"
	"auction-engine/internal/mail"
	"auction-engine/utils"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	utils.ConfigureLogger(cfg.LogLevel)

	if cfg.RedisURL == "" || cfg.Mail.Server == "" {
		utils.Fatal("mailworker needs REDIS_URL and MAIL_SERVER", nil)
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		utils.Fatal("parse redis url", map[string]any{"error": err.Error()})
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	utils.Info("mailworker starting", map[string]any{"smtp": cfg.Mail.Server, "topics": len(events.AllTopics)})
	if err := events.Subscribe(ctx, rdb, mail.Handler(mail.NewSMTPSender(cfg.Mail)), events.AllTopics...); err != nil {
		utils.Error("mailworker stopped", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	utils.Info("mailworker stopped", nil)
}
