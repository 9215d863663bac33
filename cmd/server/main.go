// Veilpool compliance sidecar - risk screening and transaction monitoring
package main

import (
	"context"
	"os"

	"github.com/veilpool/compliance/internal/config"
	"github.com/veilpool/compliance/internal/logging"
	"github.com/veilpool/compliance/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")

	logger.Info("starting compliance sidecar",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"max_risk_score", cfg.MaxRiskScore,
		"cache_enabled", cfg.CacheEnabled,
		"flush_delay", cfg.FlushDelay,
	)

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
