// Package main is the entry point of the background worker.
//
// The worker owns the periodic side of the engine:
//   - zeroing the daily, weekly and monthly point counters at calendar
//     boundaries in the configured timezone
//   - recomputing impact scores that have gone stale
//
// It also relays domain events between instances when Redis is configured.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fiberfriends/companion-engine/config"
	"github.com/fiberfriends/companion-engine/internal/bootstrap"
	"github.com/fiberfriends/companion-engine/internal/domain/shared"
	"github.com/fiberfriends/companion-engine/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGER
	// ─────────────────────────────────────────────────────────────────────────
	log := bootstrap.NewLogger(cfg).With(logger.Component("worker"))
	defer func() { _ = log.Sync() }()

	log.Info("starting companion worker",
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Timezone),
		logger.String("store", string(cfg.Store.Backend)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORES, CACHE, EVENT BUS, HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	app, err := bootstrap.New(ctx, cfg, log, bootstrap.Options{})
	if err != nil {
		if shared.IsUnavailable(err) {
			log.Error("backing store unreachable", logger.Err(err))
		}
		return fmt.Errorf("failed to wire engine: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := bootstrap.ShutdownContext(cfg)
		defer cancel()
		if err := app.Close(shutdownCtx); err != nil {
			log.Warn("error while closing resources", logger.Err(err))
		}
	}()

	if err := app.EventBus.SubscribeAll(eventLogger(log)); err != nil {
		return fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler disabled, worker only relays events")
		<-ctx.Done()
		log.Info("received shutdown signal")
		return nil
	}

	sched, err := app.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to build scheduler: %w", err)
	}
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	for _, j := range sched.ListJobs() {
		log.Info("job scheduled",
			logger.String("job", j.Name),
			logger.String("schedule", j.Schedule),
			logger.Time("next_run", j.NextRun),
		)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("received shutdown signal, stopping scheduler")

	if err := sched.Stop(); err != nil {
		log.Warn("scheduler stop failed", logger.Err(err))
	}

	log.Info("shutdown completed")
	return nil
}

// eventLogger writes every domain event to the log at debug level.
func eventLogger(log *logger.Logger) shared.EventHandler {
	return func(event shared.Event) error {
		log.Debug("domain event",
			logger.String("event_type", string(event.EventType())),
			logger.String("aggregate_id", event.AggregateID()),
		)
		return nil
	}
}
