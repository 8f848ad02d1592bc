package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nkkko/verse/internal/config"
	"github.com/nkkko/verse/internal/engine"
	"github.com/nkkko/verse/internal/logging"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var (
		configFile = flag.String("config", "", "Path to a YAML configuration file")
		baseURL    = flag.String("base-url", "", "Platform API base URL")
		token      = flag.String("token", "", "Session token to sign in with")
		dataDir    = flag.String("data-dir", "", "Directory for membership snapshots")
		addr       = flag.String("addr", "", "Listen address of the status API")
		logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile, config.Overrides{
		BaseURL:    *baseURL,
		Token:      *token,
		DataDir:    *dataDir,
		ServerAddr: *addr,
		LogLevel:   *logLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Setup(cfg.ToLoggingConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	e, err := engine.CreateEngine(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := e.Start(ctx)
	if runErr != nil {
		log.Error().Err(runErr).Msg("Engine stopped with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown incomplete")
		os.Exit(1)
	}
	if runErr != nil {
		os.Exit(1)
	}
}
