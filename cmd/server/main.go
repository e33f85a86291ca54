/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave workflow engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load environment configuration, apply flag overrides
  2. Initialize SQLite store
  3. Wire domain services (hierarchy, ledger, workflow engine)
  4. Configure HTTP router
  5. Start server with graceful shutdown

CONFIGURATION:
  Environment variables (flags override):
    PORT       HTTP server port (default: 8080)
    DB_PATH    SQLite database path (default: leave.db)
               Use ":memory:" for an in-memory database
    LOG_LEVEL  zerolog level: trace/debug/info/warn/error (default: info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/leave.db"

  # Run with in-memory database
  DB_PATH=":memory:" ./server

  # Run on different port
  PORT=3000 ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/balance"
	"github.com/warp/leave-engine/hierarchy"
	"github.com/warp/leave-engine/store/sqlite"
	"github.com/warp/leave-engine/workflow"
)

type config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	DBPath   string `env:"DB_PATH" envDefault:"leave.db"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to parse environment")
	}

	// Flags override environment.
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	logLevel := flag.String("log-level", cfg.LogLevel, "log level (trace/debug/info/warn/error)")
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		log.Fatal().Err(err).Str("level", *logLevel).Msg("unknown log level")
	}
	log = log.Level(level)

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", *dbPath).Msg("failed to initialize database")
	}
	defer store.Close()

	// Wire domain services
	chains := hierarchy.NewService(store)
	ledger := balance.NewLedger(store)
	engine := workflow.NewEngine(store, chains, ledger, nil, log)

	handler := api.NewHandler(engine, chains, ledger, log)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", *port).Str("db", *dbPath).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
