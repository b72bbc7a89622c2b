package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daybreaklabs/daybreak/pkg/api"
	"github.com/daybreaklabs/daybreak/pkg/clock"
	"github.com/daybreaklabs/daybreak/pkg/config"
	"github.com/daybreaklabs/daybreak/pkg/engine"
	"github.com/daybreaklabs/daybreak/pkg/events"
	"github.com/daybreaklabs/daybreak/pkg/log"
	"github.com/daybreaklabs/daybreak/pkg/metrics"
	"github.com/daybreaklabs/daybreak/pkg/notify"
	"github.com/daybreaklabs/daybreak/pkg/payment"
	"github.com/daybreaklabs/daybreak/pkg/storage"
	"github.com/daybreaklabs/daybreak/pkg/sweep"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the challenge engine and HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		return runServe(configPath)
	},
}

func init() {
	serveCmd.Flags().String("config", "", "Path to YAML config file")
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	logger := log.WithComponent("serve")

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	clk := clock.NewSystem()
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	notifier := notify.NewEnqueuer(store, clk)

	provider, err := buildProvider(cfg.Settlement.Provider)
	if err != nil {
		return err
	}

	settler := payment.NewSettler(store, provider, clk, notifier, broker, payment.Config{
		MaxRetries:  cfg.Settlement.MaxRetries,
		BackoffBase: cfg.Settlement.BackoffBase,
		BackoffCap:  cfg.Settlement.BackoffCap,
	})

	eng := engine.New(store, clk, settler, notifier, broker)

	expiry := sweep.NewExpiryReconciler(store, eng, clk, cfg.Sweep.ExpiryInterval)
	expiry.Start()
	defer expiry.Stop()

	retry := sweep.NewRetrySweeper(store, eng, clk, cfg.Sweep.RetryInterval)
	retry.Start()
	defer retry.Stop()

	dispatcher := notify.NewDispatcher(store, notify.LogSender{}, clk, cfg.Sweep.NotifyInterval)
	dispatcher.Start()
	defer dispatcher.Stop()

	collector := metrics.NewCollector(store)
	collector.Start()
	defer collector.Stop()

	server := api.NewServer(eng, clk, broker, expiry, retry)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.ListenAddr)
	}()

	logger.Info().
		Str("listen_addr", cfg.ListenAddr).
		Str("data_dir", cfg.DataDir).
		Dur("expiry_interval", cfg.Sweep.ExpiryInterval).
		Dur("retry_interval", cfg.Sweep.RetryInterval).
		Msg("daybreak engine running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Stop(ctx)
}

func buildProvider(name string) (payment.Provider, error) {
	switch name {
	case "", "stub":
		return payment.StubProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown payment provider: %s", name)
	}
}
