/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Caisse Spéciale / Crédit Spéciale engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (file, then CAISSE_* environment variables)
  2. Configure logging
  3. Initialize SQLite store (migrations run on open)
  4. Load the rate book
  5. Connect the event publisher (NATS when configured, always logged)
  6. Create API handler, router and lateness sweep scheduler
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Optional YAML/JSON/TOML config file

ENVIRONMENT:
  CAISSE_SERVER_PORT, CAISSE_DATABASE_PATH, CAISSE_NATS_URL, CAISSE_RATES_FILE,
  CAISSE_SWEEP_INTERVAL, CAISSE_LOG_LEVEL, ... (see config/config.go)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the sweep scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close NATS and database connections

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration keys and defaults
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/entraide/caisse-engine/api"
	"github.com/entraide/caisse-engine/config"
	"github.com/entraide/caisse-engine/factory"
	"github.com/entraide/caisse-engine/generic"
	"github.com/entraide/caisse-engine/notify"
	"github.com/entraide/caisse-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	cfg.ConfigureLogging()

	// Initialize store
	store, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer store.Close()

	rates, err := factory.NewFactory().LoadRateBook(cfg.RatesFile)
	if err != nil {
		log.WithError(err).Fatal("Failed to load rate book")
	}
	log.WithFields(log.Fields{
		"file":      cfg.RatesFile,
		"schedules": len(rates.Schedules()),
	}).Info("Rate book loaded")

	// Event publishing
	publisher := notify.Fanout{notify.NewLogPublisher(log.StandardLogger())}
	if cfg.NATSURL != "" {
		natsPub := notify.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := natsPub.Connect(ctx)
		cancel()
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to NATS")
		}
		defer natsPub.Close()
		publisher = append(publisher, natsPub)
	}

	handler := api.NewHandler(store, rates, generic.SystemClock{}, publisher)
	handler.Sweep.Parallelism = cfg.SweepParallelism
	router := api.NewRouter(handler)

	scheduler := api.NewSweepScheduler(handler.Sweep)
	scheduler.Interval = cfg.SweepInterval
	scheduler.Enabled = cfg.SweepEnabled
	scheduler.Start()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server stopped")
}
