package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/nulln0ne/cpamm/internal/asset"
	"github.com/nulln0ne/cpamm/internal/chain"
	"github.com/nulln0ne/cpamm/internal/config"
	"github.com/nulln0ne/cpamm/internal/events"
	"github.com/nulln0ne/cpamm/internal/handler"
	"github.com/nulln0ne/cpamm/internal/logging"
	"github.com/nulln0ne/cpamm/internal/metrics"
	"github.com/nulln0ne/cpamm/internal/pool"
	"github.com/nulln0ne/cpamm/internal/registry"
	"github.com/nulln0ne/cpamm/internal/service"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 3 * time.Second

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := config.New()
	var configFile string

	cmd := &cobra.Command{
		Use:          "cpamm",
		Short:        "Constant-product AMM with liquidity pools and staking rewards",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()

			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "path to a config file (yaml, toml or json)")
	flags.String("addr", "", "listen address")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("eth-rpc-url", "", "Ethereum node used for on-chain estimates")
	flags.String("factory-address", "", "UniswapV2Factory used to resolve on-chain pairs")
	flags.String("database-url", "", "Postgres URL for the event store")
	bindFlags(v, cmd, map[string]string{
		"addr":            "addr",
		"log-level":       "log_level",
		"eth-rpc-url":     "eth_rpc_url",
		"factory-address": "factory_address",
		"database-url":    "database_url",
	})
	return cmd
}

// bindFlags makes explicitly set flags override config files and the
// environment.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for flag, key := range keys {
		_ = v.BindPFlag(key, cmd.Flags().Lookup(flag))
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.NewLogger(cfg.LogLevel)

	eventLog := events.NewLog(cfg.EventLogSize)
	collector := metrics.NewDefault()
	sinks := []events.Sink{eventLog, collector}
	var reader events.Reader = eventLog

	if cfg.DatabaseURL != "" {
		store, err := events.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open event store: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to prepare event store: %w", err)
		}
		sinks = append(sinks, store)
		reader = store
	}
	dispatcher := events.NewDispatcher(logger, cfg.EventBuffer, sinks...)

	var (
		pairs     *chain.PairReader
		directory registry.Directory
	)
	if cfg.RPCEndpoint != "" {
		client, err := chain.Dial(ctx, cfg.RPCEndpoint)
		if err != nil {
			return fmt.Errorf("failed to connect to Ethereum node: %w", err)
		}
		defer client.Close()
		pairs = chain.NewPairReader(logger, client)
		if cfg.FactoryAddress != "" {
			directory = chain.NewFactoryDirectory(client, common.HexToAddress(cfg.FactoryAddress), common.HexToAddress(cfg.WrappedNative))
		}
	}

	exchange := service.NewExchange(logger, asset.NewBank(cfg.NativeSymbol), registry.NewMemory(),
		pool.Config{
			Owner:            common.HexToAddress(cfg.Owner),
			FeeRecipient:     common.HexToAddress(cfg.FeeRecipient),
			TradingFeeBps:    cfg.TradingFeeBps,
			DevFeeBps:        cfg.DevFeeBps,
			MinimumLiquidity: cfg.MinimumLiquidity,
		},
		service.WithPublisher(dispatcher),
		service.WithEventReader(reader),
		service.WithReserveObserver(collector),
	)
	estimateService := service.NewEstimateService(logger, exchange, pairs, directory)

	app := handler.NewApp(logger,
		handler.NewEstimateHandler(logger, estimateService),
		handler.NewPoolHandler(logger, exchange),
		handler.NewFarmHandler(logger, exchange),
		handler.NewTokenHandler(logger, exchange),
		handler.NewMetricsHandler(collector.Handler()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Addr).Msg("listening")
		if err := app.Listen(cfg.Addr); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Uint64("dropped_events", dispatcher.Dropped()).Msg("stopped")
	return nil
}
