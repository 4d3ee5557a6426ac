package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"chronos-api/internal/app"
	"chronos-api/internal/config"
	"chronos-api/pkg/logger"
)

// Set at build time with -ldflags "-X main.version=..."
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	rootCmd := newRootCmd(os.Stdout, openApp)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openApp builds the engine from the same configuration as the server.
// Logs go to stderr so command output stays parseable.
func openApp(ctx context.Context, verbose bool) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.Logging.Output = "stdout"
	log := logger.New(cfg.Logging)
	log.SetOutput(os.Stderr)
	if !verbose {
		log.SetLevel(logrus.WarnLevel)
	}

	return app.New(ctx, cfg, log, version)
}
