package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/linesync/inventory/internal/config"
	"github.com/linesync/inventory/internal/domain/ledger"
	"github.com/linesync/inventory/internal/domain/signals"
	"github.com/linesync/inventory/internal/infra/db"
	httpx "github.com/linesync/inventory/internal/infra/http"
	"github.com/linesync/inventory/internal/infra/logger"
	"github.com/linesync/inventory/internal/infra/notify"
	"github.com/linesync/inventory/internal/infra/vision"
	"github.com/linesync/inventory/internal/service"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

func runMigrations(dsn string) error {
	sqlDB, err := goose.OpenDBWithDriver("postgres", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	return goose.Up(sqlDB, "migrations")
}

func main() {
	cfg, err := config.Load("config/example.yaml")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)

	if err := runMigrations(cfg.Postgres.DSN); err != nil {
		log.Error("migrations failed", "err", err)
		return
	}
	log.Info("migrations applied")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Error("db connect failed", "err", err)
		return
	}
	defer pool.Close()
	log.Info("db connected")

	var notifier service.Notifier
	if cfg.Telegram.Token != "" && cfg.Telegram.AdminChatID != 0 {
		tg, err := notify.NewTelegram(log, cfg.Telegram.Token, cfg.Telegram.AdminChatID)
		if err != nil {
			log.Error("telegram notifier disabled", "err", err)
		} else {
			notifier = tg
			log.Info("telegram notifier enabled", "chat_id", cfg.Telegram.AdminChatID)
		}
	}

	svc := service.New(log,
		ledger.NewRepo(pool), signals.NewRepo(pool), notifier,
		service.Options{
			ReorderPoint:   cfg.Inventory.ReorderPoint,
			ReorderQty:     cfg.Inventory.ReorderQty,
			DebounceWindow: time.Duration(cfg.Inventory.DebounceSeconds) * time.Second,
			DefaultStation: cfg.Inventory.DefaultStation,
		})

	var slips httpx.SlipParser
	if cfg.Vision.Endpoint != "" {
		slips = vision.NewClient(log, cfg.Vision.Endpoint, cfg.Vision.Token, cfg.Vision.Model)
	}

	api := httpx.NewAPI(log, svc, slips, pool, cfg.App.Version)
	srv := httpx.New(cfg.HTTP.Addr, cfg.Metrics.Enabled, api)
	go func() {
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("graceful shutdown complete")
}
