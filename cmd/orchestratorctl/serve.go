package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/orcaweaver/internal/httpapi"
)

// runServe is the `serve` subcommand: boot the full process, start the
// orchestrator and scheduler, and serve the HTTP adapter until interrupted.
// Grounded on cmd/quaero/serve.go's runServe: same signal-wait idiom
// (os.Interrupt / SIGTERM), same "ready, press Ctrl+C" log line.
func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var configFiles configPaths
	fs.Var(&configFiles, "config", "configuration file path (repeatable)")
	fs.Var(&configFiles, "c", "configuration file path (shorthand)")
	port := fs.Int("port", 0, "HTTP server port (overrides config)")
	host := fs.String("host", "", "HTTP server host (overrides config)")
	fs.Parse(args)

	cfg, err := loadConfig(configFiles, *port, *host)
	if err != nil {
		fmt.Fprintf(os.Stderr, "orchestratorctl: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := buildLogger(cfg)

	p, err := boot(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to boot orchestration process")
	}
	defer p.close()

	ctx, cancelBoot := context.WithCancel(context.Background())
	defer cancelBoot()
	if err := p.start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start orchestrator")
	}

	srv := httpapi.New(p.facade, p.deps, logger, cfg.Server.Host, cfg.Server.Port)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)).
		Msg("orchestratorctl ready - press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown failed")
	}
	logger.Info().Msg("stopped")
}
