// Command veillebot is the website-change-monitoring engine daemon.
//
// Usage:
//
//	veillebot -config veillebot.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazyhaar/veillebot/breaker"
	"github.com/hazyhaar/veillebot/channels"
	"github.com/hazyhaar/veillebot/config"
	"github.com/hazyhaar/veillebot/engine"
	"github.com/hazyhaar/veillebot/fetch"
	"github.com/hazyhaar/veillebot/governor"
	"github.com/hazyhaar/veillebot/health"
	"github.com/hazyhaar/veillebot/notify"
	"github.com/hazyhaar/veillebot/patrol"
	"github.com/hazyhaar/veillebot/store"
)

func main() {
	configPath := flag.String("config", "", "path to veillebot.yaml config file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath); err != nil {
		logger.Error("veillebot: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	st, err := store.Open(cfg.DBPath, store.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	breakers := breaker.New()
	if doc := st.Snapshot(); len(doc.Breakers) > 0 {
		saved := make(map[string]breaker.PersistedState, len(doc.Breakers))
		for host, ps := range doc.Breakers {
			saved[host] = breaker.PersistedState{State: breaker.State(ps.State), Failures: ps.Failures, LastFailure: ps.LastFailure}
		}
		breakers.Restore(saved)
	}

	ch := channels.NewTelegramChannel("telegram", channels.TelegramConfig{BotToken: cfg.TelegramToken})
	notifier := notify.New(ch, logger)

	gov := governor.New(notifier, logger)

	fetcher := fetch.New(gov, breakers,
		fetch.WithLogger(logger),
		fetch.WithCooldownHandler(func(host string) {
			if err := gov.Enqueue(ctx, governor.Notification{ChatID: cfg.AdminID, Msg: notify.CooldownMessage(host)}); err != nil {
				logger.Warn("veillebot: cooldown notification enqueue failed", "host", host, "error", err)
			}
		}),
	)

	patrolEngine := patrol.New(st, gov, fetcher, breakers, cfg.PatrolInterval, patrol.WithLogger(logger))

	var healthSrv *health.Server
	if cfg.Port != "" {
		healthSrv = health.New(":"+cfg.Port, st, gov, breakers, logger)
	}

	eng := engine.New(engine.Deps{
		Store:    st,
		Governor: gov,
		Breakers: breakers,
		Fetcher:  fetcher,
		Patrol:   patrolEngine,
		Notifier: notifier,
		Health:   healthSrv,
		Defaults: cfg.Defaults,
		Logger:   logger,
	})

	eng.Start(ctx)
	logger.Info("veillebot: started", "db_path", cfg.DBPath, "patrol_interval", cfg.PatrolInterval)

	<-ctx.Done()
	logger.Info("veillebot: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return eng.Stop(shutdownCtx)
}
