package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/yabodle/sitescan/internal/api"
	"github.com/yabodle/sitescan/internal/config"
	"github.com/yabodle/sitescan/internal/db"
	"github.com/yabodle/sitescan/internal/geocode"
	"github.com/yabodle/sitescan/internal/logging"
	"github.com/yabodle/sitescan/internal/notify"
	"github.com/yabodle/sitescan/internal/scan"
	"github.com/yabodle/sitescan/internal/scoring"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional; env vars override)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, log); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	scan.InitMetrics()
	notify.InitMetrics()

	registry, err := scan.LoadRegistry()
	if err != nil {
		log.Fatal("source registry invalid", zap.Error(err))
	}

	adapters, err := scan.BuildAdapters(registry, log)
	if err != nil {
		log.Fatal("adapter construction failed", zap.Error(err))
	}

	store := db.NewStore(pool)

	var notifier scan.Notifier
	if cfg.Alerts.Enabled {
		var senders []notify.Sender
		if cfg.Alerts.EmailEnabled && cfg.SMTP.Host != "" {
			senders = append(senders, notify.NewEmailSender(notify.SMTPConfig{
				Host:     cfg.SMTP.Host,
				Port:     cfg.SMTP.Port,
				Username: cfg.SMTP.Username,
				Password: cfg.SMTP.Password,
				From:     cfg.SMTP.From,
			}))
		}
		if cfg.Alerts.SMSEnabled && cfg.Twilio.AccountSID != "" {
			senders = append(senders, notify.NewTwilioSender(notify.TwilioConfig{
				AccountSID: cfg.Twilio.AccountSID,
				AuthToken:  cfg.Twilio.AuthToken,
				FromNumber: cfg.Twilio.FromNumber,
			}))
		}
		if len(senders) > 0 {
			notifier = notify.NewService(store, senders, scoring.DefaultProfile(), log)
		}
	}

	orchestrator := scan.NewOrchestrator(
		registry,
		adapters,
		store,
		store,
		store,
		scoring.DefaultProfile(),
		geocode.NewResolver(log),
		notifier,
		log,
		scan.Options{SourceTimeout: cfg.SourceTimeout()},
	)

	go runScheduler(ctx, orchestrator, cfg.ScanInterval(), log)

	srv := api.NewServer(pool, orchestrator, cfg.Server.CORSOrigins, log)
	log.Info("server starting", zap.Int("port", cfg.Server.Port))
	if err := srv.Start(fmt.Sprintf("%d", cfg.Server.Port)); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

// runScheduler triggers a scan on startup and then on a fixed cadence. A tick
// that lands while a scan is still running is dropped, not queued.
func runScheduler(ctx context.Context, orchestrator *scan.Orchestrator, interval time.Duration, log *zap.Logger) {
	runOnce := func() {
		_, err := orchestrator.Trigger(ctx, nil)
		if errors.Is(err, scan.ErrAlreadyRunning) {
			log.Info("scheduled scan skipped; previous scan still running")
			return
		}
		if err != nil {
			log.Error("scheduled scan failed", zap.Error(err))
		}
	}

	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
