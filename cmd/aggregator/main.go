package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nemonetwork/dex-aggregator/internal/cache"
	"github.com/nemonetwork/dex-aggregator/internal/chainadapter"
	"github.com/nemonetwork/dex-aggregator/internal/config"
	"github.com/nemonetwork/dex-aggregator/internal/discovery"
	"github.com/nemonetwork/dex-aggregator/internal/httpapi"
	"github.com/nemonetwork/dex-aggregator/internal/multicall"
	"github.com/nemonetwork/dex-aggregator/internal/poolcontroller"
	"github.com/nemonetwork/dex-aggregator/internal/scheduler"
	"github.com/nemonetwork/dex-aggregator/internal/snapshot"
	"github.com/nemonetwork/dex-aggregator/internal/storage"
	"github.com/nemonetwork/dex-aggregator/internal/tokenlist"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "aggregator",
		Short: "DEX price aggregator freshness engine",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to an optional YAML config overlay")
	root.AddCommand(serveCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the background refresh pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
}

func run(ctx context.Context) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	store, err := storage.New(cfg.StorageDir, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	sharedCache, err := cache.New(cfg.CacheCapacity)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	controller := poolcontroller.New()
	discoveryMgr := discovery.New(store, controller, cfg.DiscoveryRetryWindow, logger)

	var chainConfigs []snapshot.ChainConfig
	var schedulerChains []scheduler.Chain

	for _, chainCfg := range cfg.Chains {
		adapters, err := buildAdapters(chainCfg, logger)
		if err != nil {
			logger.Warn("chain adapter unavailable; using mock", zap.String("chain", chainCfg.Name), zap.Error(err))
			adapters = []chainadapter.Adapter{chainadapter.NewMockAdapter(chainCfg.Name, chainCfg.ChainID, 1.0)}
		}

		engine := multicall.New(adapters, cfg.MaxBatchWeight, logger)
		schedulerChains = append(schedulerChains, scheduler.Chain{ID: chainCfg.ChainID, Engine: engine})

		tokens := tokenlist.New(chainCfg.StaticTokens, chainCfg.TokenListURL, logger)
		tokens.Refresh(ctx)

		baseTokens := make([]discovery.BaseToken, 0, len(chainCfg.BaseTokens))
		for _, addr := range chainCfg.BaseTokens {
			baseTokens = append(baseTokens, discovery.BaseToken{Address: addr})
		}

		chainConfigs = append(chainConfigs, snapshot.ChainConfig{
			Name:          chainCfg.Name,
			ID:            chainCfg.ChainID,
			Adapter:       adapters[0],
			Tokens:        tokens,
			StableAddress: chainCfg.StableAddress,
			BaseTokens:    baseTokens,
		})
	}

	snapshotSvc := snapshot.New(chainConfigs, store, sharedCache, controller, discoveryMgr, logger)

	sched := scheduler.New(cfg.SchedulerPeriod, controller, store, sharedCache, schedulerChains, logger)
	sched.Start(ctx)
	defer sched.Stop(cfg.ShutdownGrace)

	router := httpapi.NewRouter(snapshotSvc, logger)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped unexpectedly", zap.Error(err))
		}
	}()

	<-shutdownCtx.Done()
	logger.Info("shutting down")

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := snapshotSvc.Shutdown(drainCtx); err != nil {
		logger.Warn("discovery jobs did not drain within shutdown grace", zap.Error(err))
	}
	return server.Shutdown(drainCtx)
}

func buildAdapters(chainCfg config.ChainConfig, logger *zap.Logger) ([]chainadapter.Adapter, error) {
	if len(chainCfg.RPCURLs) == 0 {
		return nil, fmt.Errorf("no RPC URLs configured for chain %s", chainCfg.Name)
	}

	adapters := make([]chainadapter.Adapter, 0, len(chainCfg.RPCURLs))
	for _, url := range chainCfg.RPCURLs {
		client, err := ethclient.Dial(url)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		adapter := chainadapter.NewEVMAdapter(
			chainCfg.Name,
			chainCfg.ChainID,
			client,
			common.HexToAddress(chainCfg.V3FactoryAddr),
			common.HexToAddress(chainCfg.V2FactoryAddr),
			logger,
		)
		adapters = append(adapters, adapter)
	}
	return adapters, nil
}
