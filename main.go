package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/eddielth/edge-nodes/config"
	"github.com/eddielth/edge-nodes/logger"
)

// configEnv overrides the default configuration file path.
const configEnv = "EDGE_NODE_CONFIG"

func main() {
	// 配置文件路径
	configPath := "config.yaml"
	if p := os.Getenv(configEnv); p != "" {
		configPath = p
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	if err := logger.InitFromConfig(cfg.Logger.Level, cfg.Logger.FilePath, cfg.Logger.MaxSize, cfg.Logger.MaxBackups, cfg.Logger.Console); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	logger.Info("starting %s endpoint (config %s)", cfg.Role, configPath)
	err = run(ctx, configPath, cfg)
	stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("%s endpoint stopped: %v", cfg.Role, err)
		logger.Close()
		os.Exit(1)
	}

	logger.Info("%s endpoint stopped", cfg.Role)
	logger.Close()
}

// run dispatches to the role's entry point.
func run(ctx context.Context, configPath string, cfg *config.Config) error {
	switch cfg.Role {
	case config.RoleTelemetry:
		return runTelemetry(ctx, configPath, cfg)
	case config.RoleSwitch:
		return runSwitch(ctx, configPath, cfg)
	case config.RoleCollector:
		return runCollector(ctx, configPath, cfg)
	default:
		// LoadConfig already rejects unknown roles.
		return errors.New("unknown role " + cfg.Role)
	}
}
