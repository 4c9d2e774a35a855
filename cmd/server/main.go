// Guardian - risk assessment and voice guidance backend for SafeWalk
package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/safewalk/guardian/internal/config"
	"github.com/safewalk/guardian/internal/logging"
	"github.com/safewalk/guardian/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Bootstrap logger until the configured one exists
	logger := logging.New("info", "text")

	logger.Info("starting guardian",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("configuration loaded",
		"env", cfg.Env,
		"port", cfg.Port,
		"openai_model", cfg.OpenAIModel,
		"memory_file", cfg.MemoryFile,
		"rate_limit_max", cfg.RateLimitMax,
		"rate_limit_window", cfg.RateLimitWindow.String(),
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	srv, err := server.New(cfg,
		server.WithLogger(logger),
		server.WithVersion(Version),
	)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(context.Background()); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
