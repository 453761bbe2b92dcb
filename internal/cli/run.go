package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0xmhha/btcwatcher/internal/api"
	"github.com/0xmhha/btcwatcher/internal/bitcoin"
	"github.com/0xmhha/btcwatcher/internal/broadcast"
	"github.com/0xmhha/btcwatcher/internal/config"
	"github.com/0xmhha/btcwatcher/internal/consumer"
	"github.com/0xmhha/btcwatcher/internal/metrics"
	"github.com/0xmhha/btcwatcher/internal/shutdown"
	"github.com/0xmhha/btcwatcher/internal/watcher"
	"github.com/0xmhha/btcwatcher/pkg/logger"
)

// NewRunCommand creates the run command
func NewRunCommand(opts *rootOptions, log *logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start watching in the foreground",
		Long: `Start the chain state, block stats and fee pollers and their consumers.
Runs until interrupted with SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Debug("loading config", zap.String("path", opts.configFile()))
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			runLog, err := newRunLogger(cfg)
			if err != nil {
				return err
			}
			defer runLog.Sync()

			var reloads <-chan *config.Config
			if _, err := os.Stat(opts.configFile()); err == nil {
				cw, err := config.NewWatcher(opts.configFile(), cmd.Flags(), runLog)
				if err != nil {
					runLog.Warn("config hot reload disabled", zap.Error(err))
				} else {
					cw.Start()
					defer cw.Stop()
					reloads = cw.Updates()
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			source := newDataSource(cfg, runLog)
			return runWatcher(ctx, cfg, source, reloads, runLog)
		},
	}

	f := cmd.Flags()
	f.String("rpc-url", "", "Bitcoin node JSON-RPC URL")
	f.String("rpc-user", "", "Bitcoin node RPC user")
	f.String("rpc-password", "", "Bitcoin node RPC password")
	f.String("fee-api-url", config.DefaultFeeAPIURL, "Fee estimate endpoint")
	f.Duration("chain-poll-interval", config.DefaultChainPollInterval, "Chain state poll interval")
	f.Duration("block-stats-poll-interval", config.DefaultBlockStatsPollInterval, "Block stats poll interval")
	f.Duration("fee-poll-interval", config.DefaultFeePollInterval, "Fee estimate poll interval")
	f.Bool("metrics-enabled", true, "Serve Prometheus metrics")
	f.Int("metrics-port", config.DefaultMetricsPort, "Metrics port")
	f.Bool("api-enabled", false, "Serve the HTTP API")
	f.String("api-host", config.DefaultAPIHost, "API listen host")
	f.Int("api-port", config.DefaultAPIPort, "API port")

	return cmd
}

// newRunLogger builds the process logger from the loaded configuration.
func newRunLogger(cfg *config.Config) (*logger.Logger, error) {
	log, err := logger.New(cfg.ColorLogs, cfg.DisableLogs, cfg.TimeFormatLogs)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return log, nil
}

// newDataSource builds the node and fee API client, wrapped in a Guard
// when rate limiting or the circuit breaker is enabled.
func newDataSource(cfg *config.Config, log *logger.Logger) watcher.DataSource {
	client := bitcoin.NewClient(cfg, log)
	if cfg.RateLimitRPS <= 0 && !cfg.BreakerEnabled {
		return client
	}
	return bitcoin.NewGuard(client, cfg, log)
}

// runWatcher runs the pollers, consumers and optional servers until ctx
// ends, then shuts everything down. Configs received on reloads have their
// log level applied live.
func runWatcher(ctx context.Context, cfg *config.Config, source watcher.DataSource, reloads <-chan *config.Config, log *logger.Logger) error {
	collector := metrics.NewCollector()
	sd := shutdown.New(context.Background(), log)

	w := watcher.New(source, cfg, log, watcher.WithObserver(collector))
	store := consumer.NewStore(cfg.BroadcastCapacity, broadcast.WithDropHook(collector.DropHook("events")))
	sink := consumer.NewSink(store, log)

	// Subscribe before the pollers start so the first values are seen.
	chainStates := w.ChainStates().Subscribe()
	blockStats := w.BlockStats().Subscribe()
	sd.Go("chain_state_consumer", func(ctx context.Context) { sink.ConsumeChainStates(ctx, chainStates) })
	sd.Go("block_stats_consumer", func(ctx context.Context) { sink.ConsumeBlockStats(ctx, blockStats) })
	sd.Go("fee_consumer", func(ctx context.Context) { sink.ConsumeFees(ctx, w.Fees()) })

	if cfg.MetricsEnabled {
		exporter := metrics.NewExporter(collector, "", cfg.MetricsPort, cfg.MetricsPath, log)
		if err := exporter.Start(); err != nil {
			return abort(sd, w, store, fmt.Errorf("failed to start metrics exporter: %w", err))
		}
		defer exporter.Stop()
	}

	if cfg.APIEnabled {
		server := api.NewServer(cfg, store, Version, log)
		defer server.Stop()
		if err := server.Start(); err != nil {
			return abort(sd, w, store, fmt.Errorf("failed to start API server: %w", err))
		}
	}

	if err := w.Start(sd); err != nil {
		return abort(sd, w, store, err)
	}
	log.Info("btcwatcher running", zap.String("rpc_url", cfg.RPCURL), zap.String("fee_api_url", cfg.FeeAPIURL))

	for waiting := true; waiting; {
		select {
		case <-ctx.Done():
			log.Info("interrupt received, shutting down")
			waiting = false

		case next, ok := <-reloads:
			if !ok {
				reloads = nil
				continue
			}
			applyReload(log, cfg, next)
		}
	}

	return stopAll(sd, w, store, cfg)
}

// applyReload applies the settings that can change at runtime.
func applyReload(log *logger.Logger, current, next *config.Config) {
	if next.LogLevel == current.LogLevel {
		return
	}
	if err := log.SetLevel(next.LogLevel); err != nil {
		log.Warn("ignoring reloaded log level", zap.Error(err))
		return
	}
	log.Info("log level changed", zap.String("from", current.LogLevel), zap.String("to", next.LogLevel))
	current.LogLevel = next.LogLevel
}

// stopAll triggers shutdown, waits up to the grace period for every loop,
// then closes the streams.
func stopAll(sd *shutdown.Coordinator, w *watcher.Watcher, store *consumer.Store, cfg *config.Config) error {
	sd.Trigger()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	err := sd.Join(ctx)

	w.Close()
	store.Close()
	return err
}

func abort(sd *shutdown.Coordinator, w *watcher.Watcher, store *consumer.Store, cause error) error {
	sd.Trigger()
	// Only consumers are running here and they exit on the trigger.
	_ = sd.Join(context.Background())
	w.Close()
	store.Close()
	return cause
}
