// Command kafcored is the thin process wrapper around kafka.Engine: it
// loads a YAML config, builds the driver factory and Engine, and runs
// until SIGINT/SIGTERM (spec §10).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"github.com/kafcore/kafcore/internal/appconfig"
	"github.com/kafcore/kafcore/internal/kdriver"
	"github.com/kafcore/kafcore/internal/metrics"
	"github.com/kafcore/kafcore/kafka"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "kafcored",
		Short: "Run the kafcore consumer process",
		RunE:  runServer,
	}
	root.Flags().StringVar(&configPath, "config", "kafcore.yaml", "path to the YAML configuration file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runServer wires a logger, loads configPath, resolves it against the
// application's registered topic wiring, and runs the Engine until the
// process receives SIGINT/SIGTERM. Applications embedding kafcore
// provide their own main that calls appconfig.Resolve with their own
// consumer factories; this binary serves deployments that configure
// everything through KafcoreWiring's package-level registry.
func runServer(cmd *cobra.Command, args []string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("kafcored: build logger: %w", err)
	}
	defer logger.Sync()

	raw, err := appconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("kafcored: load config: %w", err)
	}

	cfg, brokers, err := appconfig.Resolve(raw, Wiring, logger)
	if err != nil {
		return fmt.Errorf("kafcored: resolve config: %w", err)
	}

	scope, closeScope := tally.NewRootScope(tally.ScopeOptions{Prefix: "kafcore"}, time.Second)
	defer closeScope.Close()
	cfg.MetricsScope = scope

	monitor := kafka.NewMonitor()
	metrics.Subscribe(monitor, scope, logger)
	factory := kdriver.NewFactory(brokers, cfg.ClientID, logger)

	engine, err := kafka.NewEngine(cfg, factory, monitor)
	if err != nil {
		return fmt.Errorf("kafcored: build engine: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("kafcored starting", zap.String("config", configPath))
	engine.Run(ctx)
	logger.Info("kafcored stopped")
	return nil
}
