package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"
	_ "time/tzdata"

	"finanzas/internal/amqp"
	"finanzas/internal/backup"
	"finanzas/internal/cache"
	"finanzas/internal/cli"
	apphttp "finanzas/internal/http"
	"finanzas/internal/ledger"
	applog "finanzas/internal/log"
	"finanzas/internal/middleware/ratelimit"
	"finanzas/internal/reminders"
	"finanzas/internal/services"
	"finanzas/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid reminder timezone", applog.FieldError, err, "timezone", cfg.ReminderTimezone)
		os.Exit(1)
	}

	ctx := context.Background()
	res := cli.OpenStore(ctx, logger, cfg)

	engine := ledger.New(res.Store, ledger.WithLogger(logger.WithComponent(applog.ComponentLedger).Slog()))
	if _, created, err := engine.EnsureDefaultAccount(ctx); err != nil {
		logger.Error("Failed to initialise default account", applog.FieldError, err)
		os.Exit(1)
	} else if created {
		logger.Info("Created default cash account", applog.FieldAccountID, ledger.DefaultAccountID)
	}

	caches := cache.NewManager(logger.WithComponent(applog.ComponentCache).Slog())
	if res.Cache != nil {
		caches.Register("store", res.Cache)
	}
	var serverOpts []apphttp.ServerOption
	if cfg.RateLimitPerMinute > 0 {
		limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute})
		caches.Register("rate-limit", limiter)
		serverOpts = append(serverOpts, apphttp.WithRateLimiter(limiter))
	}
	caches.StartCleanup(time.Minute)

	opts := []services.Option{
		services.WithLocation(loc),
		services.WithLogger(logger.Slog()),
	}

	// With a broker, events and reminders go to the worker. Without one,
	// reminders run on in-process timers.
	var table *reminders.Table
	if cfg.AMQPURL != "" {
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
		opts = append(opts, services.WithPublisher(client), services.WithScheduler(client))
		logger.Info("AMQP publishing enabled", "exchange", cfg.AMQPExchange)
	} else {
		table = reminders.NewTable(nil, logger.WithComponent(applog.ComponentReminders).Slog())
		opts = append(opts, services.WithScheduler(table))
		logger.Info("AMQP disabled, reminders scheduled in process")

		restorer := worker.NewMirrorWorker(engine, nil, table,
			worker.WithLocation(loc),
			worker.WithLogger(logger.WithComponent(applog.ComponentReminders).Slog()))
		if _, err := restorer.RestoreReminders(ctx); err != nil {
			logger.Error("Failed to restore reminders", applog.FieldError, err)
		}
	}

	svc := services.NewLedgerService(engine, opts...)
	codec := backup.NewCodec(res.Store, backup.WithLogger(logger.WithComponent(applog.ComponentBackup).Slog()))
	srv := apphttp.NewServer(":"+cfg.Port, svc, codec, logger, serverOpts...)
	srv.MaxHeaderBytes = 1 << 16

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if table != nil {
			table.Stop()
		}
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close publisher", applog.FieldError, err)
		}
		caches.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Error("Failed to close store", applog.FieldError, err)
		}
	})

	logger.Info("Starting finanzas server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"environment", cfg.Environment)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
