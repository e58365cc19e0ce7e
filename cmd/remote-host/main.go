package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/AgentOS/remote/internal/config"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/owner"
	"github.com/GriffinCanCode/AgentOS/remote/internal/sandbox"
	"github.com/GriffinCanCode/AgentOS/remote/internal/server"
)

//go:embed host.js
var demoHost string

const statsInterval = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "TOML or YAML config file")
	scriptPath := flag.String("script", "", "Host script (defaults to the bundled demo)")
	port := flag.String("port", "", "Server port (overrides config)")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.FromConfig(cfg.Logging))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	name, src := "host.js", demoHost
	if *scriptPath != "" {
		data, err := os.ReadFile(*scriptPath)
		if err != nil {
			logger.Fatal("Failed to read host script", zap.String("path", *scriptPath), zap.Error(err))
		}
		name, src = *scriptPath, string(data)
	}

	if err := run(cfg, logger, name, src); err != nil {
		logger.Fatal("Host failed", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func run(cfg *config.Config, logger *logging.Logger, name, src string) error {
	// Fail fast on a broken script instead of on the first connection.
	if _, err := owner.LoadScriptHost(goja.New(), name, src); err != nil {
		return err
	}

	metrics := monitoring.NewMetrics()
	pool, err := sandbox.NewPool(sandbox.ConfigFrom(cfg.Sandbox), cfg.Sandbox.PoolSize, logger.Component("sandbox"))
	if err != nil {
		return fmt.Errorf("failed to create sandbox pool: %w", err)
	}
	defer pool.Close()

	hosts := func(vm *goja.Runtime) (owner.Host, error) {
		return owner.LoadScriptHost(vm, name, src)
	}
	srv := server.New(cfg, pool, hosts, logger.Logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				stats := pool.Stats()
				logger.Debug("Host stats",
					zap.Int64("sessions", srv.Sessions()),
					zap.Int("sandboxes_in_use", stats.InUse),
					zap.Int("sandboxes_available", stats.Available))
			}
		}
	})

	logger.Info("Remote host started",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.String("path", cfg.Server.Path),
		zap.String("script", name))

	err = g.Wait()
	logger.Info("Remote host stopped")
	return err
}
