package main

import (
	"context"
	"errors"
	"os"
	"time"
	_ "time/tzdata"

	"golang.org/x/sync/errgroup"

	"finanzas/internal/amqp"
	"finanzas/internal/cache"
	"finanzas/internal/cli"
	"finanzas/internal/ledger"
	applog "finanzas/internal/log"
	"finanzas/internal/reminders"
	"finanzas/internal/sheets"
	gsheet "finanzas/internal/sheets/google"
	"finanzas/internal/sheets/memory"
	"finanzas/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting finanzas-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid reminder timezone", applog.FieldError, err, "timezone", cfg.ReminderTimezone)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res := cli.OpenStore(ctx, logger, cfg)
	engine := ledger.New(res.Store, ledger.WithLogger(logger.WithComponent(applog.ComponentLedger).Slog()))

	caches := cache.NewManager(logger.WithComponent(applog.ComponentCache).Slog())
	if res.Cache != nil {
		caches.Register("store", res.Cache)
	}

	var writer sheets.TransactionWriter
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		}, logger.WithComponent(applog.ComponentSheets).Slog())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
			os.Exit(1)
		}
		caches.Register("sheet-rows", client.RowCache())
		writer = client
		logger.Info("Google Sheets mirror enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		writer = memory.New()
		logger.Info("Google Sheets disabled, mirroring in memory")
	}
	caches.StartCleanup(time.Minute)
	defer caches.Stop()

	table := reminders.NewTable(nil, logger.WithComponent(applog.ComponentReminders).Slog())
	defer table.Stop()

	mirror := worker.NewMirrorWorker(engine, writer, table,
		worker.WithLocation(loc),
		worker.WithLogger(logger.WithComponent(applog.ComponentWorker).Slog()))

	client, err := amqp.NewClient(amqp.Config{
		URL:           cfg.AMQPURL,
		Exchange:      cfg.AMQPExchange,
		EventQueue:    cfg.AMQPQueue,
		ReminderQueue: cfg.AMQPReminderQueue,
	}, logger.Slog())
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	logger.Info("Performing startup sync check...")
	if err := mirror.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", applog.FieldError, err)
	}
	if n, err := mirror.RestoreReminders(ctx); err != nil {
		logger.Error("Failed to restore reminders", applog.FieldError, err)
	} else {
		logger.Info("Reminders restored", "count", n)
	}

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		cancel()
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.ConsumeEvents(gctx, mirror.HandleTransactionEvent)
	})
	g.Go(func() error {
		return client.ConsumeReminders(gctx, mirror.HandleReminderMessage)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", applog.FieldError, err)
		if err := res.Cleanup(); err != nil {
			logger.Error("Failed to close store", applog.FieldError, err)
		}
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	if err := res.Cleanup(); err != nil {
		logger.Error("Failed to close store", applog.FieldError, err)
	}
	logger.Info("Worker stopped gracefully")
}
