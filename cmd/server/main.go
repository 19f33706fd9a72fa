package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/state-hub/state-hub/internal/api/http"
	"github.com/state-hub/state-hub/internal/application/definition"
	appJournal "github.com/state-hub/state-hub/internal/application/journal"
	"github.com/state-hub/state-hub/internal/application/orchestrator"
	"github.com/state-hub/state-hub/internal/config"
	"github.com/state-hub/state-hub/internal/domain/machine"
	"github.com/state-hub/state-hub/internal/infrastructure/postgres"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()

	// The journal is optional; without a database the hub runs in-memory only.
	var orchOpts []orchestrator.Option
	var journalSvc *appJournal.Service
	if cfg.JournalEnable {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db error: %v", err)
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
			log.Fatalf("migration error: %v", err)
		}

		journalSvc = appJournal.NewService(postgres.NewJournalRepository(pool), logger)
		defer journalSvc.Close()
		orchOpts = append(orchOpts, orchestrator.WithRecorder(journalSvc))
	}

	orch := orchestrator.New(cfg.OrchestratorOptions(), logger, orchOpts...)
	defer orch.Close()

	registry := newRegistry(logger)
	apiServer := httpapi.NewServer(orch, registry, logger)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}

// newRegistry wires the built-in actions and services available to uploaded
// definitions. Deployments extend this set before building.
func newRegistry(logger zerolog.Logger) *definition.Registry {
	reg := definition.NewRegistry()

	reg.RegisterAction("log", func(ac machine.ActionContext, ev machine.Event) error {
		logger.Info().
			Str("machine_id", ac.MachineID()).
			Str("event", ev.Name).
			Interface("payload", ev.Payload).
			Msg("machine log action")
		return nil
	})

	reg.RegisterService("sleep", func(ctx context.Context, input map[string]any, ev machine.Event) (any, error) {
		d := 100 * time.Millisecond
		if ms, ok := input["sleepMs"].(float64); ok && ms > 0 {
			d = time.Duration(ms) * time.Millisecond
		}
		select {
		case <-time.After(d):
			return map[string]any{"sleptMs": d.Milliseconds()}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	return reg
}
