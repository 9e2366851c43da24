// Package main runs the AMM analytics indexer: the sync worker and the query API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/amm-analytics/internal/adapter"
	"github.com/amm-analytics/internal/api"
	"github.com/amm-analytics/internal/config"
	"github.com/amm-analytics/internal/ledger"
	"github.com/amm-analytics/internal/logging"
	"github.com/amm-analytics/internal/pricing"
	"github.com/amm-analytics/internal/service"
	"github.com/amm-analytics/internal/storage"
	"github.com/amm-analytics/internal/types"
	"github.com/amm-analytics/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Fatalf("Failed to load configuration: %v", err)
	}
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.Chain.FactoryAddress == "" || cfg.Chain.RPCURL == "" {
		logger.Fatal("FACTORY_ADDRESS and RPC_URL are required")
	}

	ctx, cancel := context.WithCancel(logging.WithLogger(context.Background(), logger))
	defer cancel()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Fatalf("Failed to open %s store: %v", cfg.Store.Backend, err)
	}
	defer closeStore()

	sink, closeSink, err := openSink(cfg)
	if err != nil {
		logger.Fatalf("Failed to connect to ClickHouse: %v", err)
	}
	defer closeSink()

	pool, err := adapter.NewRPCPool(ctx, &adapter.RPCPoolConfig{
		Endpoints: adapter.SplitEndpoints(cfg.Chain.RPCURL),
	})
	if err != nil {
		logger.Fatalf("Failed to connect to RPC: %v", err)
	}
	defer pool.Close()

	staticTokens, err := adapter.ParseStaticTokens(cfg.Chain.StaticTokens)
	if err != nil {
		logger.Fatalf("Invalid static token definitions: %v", err)
	}

	factory := common.HexToAddress(cfg.Chain.FactoryAddress)
	chain, err := adapter.NewChainClient(&adapter.ChainClientConfig{
		Pool:         pool,
		Factory:      factory,
		RateLimit:    cfg.Chain.RPCRateLimit,
		Burst:        cfg.Chain.RPCBurst,
		StaticTokens: staticTokens,
	})
	if err != nil {
		logger.Fatalf("Failed to create chain client: %v", err)
	}

	pricingCfg, err := pricing.FromSettings(cfg.Pricing)
	if err != nil {
		logger.Fatalf("Invalid pricing configuration: %v", err)
	}
	nativePrice, err := nativePriceSource(cfg.Pricing)
	if err != nil {
		logger.Fatalf("Invalid native price configuration: %v", err)
	}

	deps := service.EngineDeps{
		Store:       store,
		Pricing:     pricingCfg,
		Locator:     chain,
		Balances:    chain,
		Tokens:      chain,
		NativePrice: nativePrice,
		FactoryID:   types.AddressID(factory),
		Logger:      logger,
	}
	if sink != nil {
		deps.Sink = sink
	}
	engine := service.NewEngine(deps)

	syncWorker, err := worker.NewSyncWorker(&worker.SyncWorkerConfig{
		Source:           chain,
		Engine:           engine,
		Store:            store,
		Factory:          factory,
		StartBlock:       cfg.Chain.StartBlock,
		PollInterval:     cfg.Sync.PollInterval,
		MaxBlocksPerPoll: cfg.Sync.MaxBlocksPerPoll,
		MaxRetries:       cfg.Sync.MaxRetries,
		Logger:           logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create sync worker: %v", err)
	}

	server := api.NewServer(api.DefaultServerConfig(cfg.Server.Host, cfg.Server.Port), api.ServerDeps{
		Store:     store,
		FactoryID: types.AddressID(factory),
		Engine:    engine,
		Worker:    syncWorker,
		Breaker:   chain.Breaker(),
		Logger:    logger,
	})

	if err := syncWorker.Start(ctx); err != nil {
		logger.Fatalf("Failed to start sync worker: %v", err)
	}

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"factory":   types.AddressID(factory),
		"store":     cfg.Store.Backend,
		"endpoints": pool.EndpointCount(),
		"sink":      sink != nil,
	}).Info("Indexer started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("API server forced to shutdown")
	}
	if err := syncWorker.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Error stopping sync worker")
	}
	cancel()

	stats := engine.Stats()
	logger.WithFields(map[string]interface{}{
		"applied":    stats.Applied,
		"duplicates": stats.Duplicates,
		"lastCursor": stats.LastCursor.String(),
	}).Info("Indexer stopped")
}

// openStore connects the configured ledger backend
func openStore(cfg *config.Config) (ledger.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		db, err := storage.NewPostgresDB(&cfg.Database.Postgres)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewPostgresStore(db), db.Close, nil

	case config.StoreRedis:
		client, err := storage.NewRedisClient(&cfg.Database.Redis)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedisStore(client, ""), func() {
			if err := client.Close(); err != nil {
				logging.WithError(err).Warn("Error closing Redis connection")
			}
		}, nil

	case config.StoreMemory:
		logging.Warn("Using the in-memory store; the ledger is lost on restart")
		return ledger.NewMemoryStore(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// openSink connects the ClickHouse record sink, or returns nil when it is not configured
func openSink(cfg *config.Config) (*storage.ClickHouseRecordSink, func(), error) {
	if cfg.Database.ClickHouse.Host == "" {
		return nil, func() {}, nil
	}
	db, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		return nil, nil, err
	}
	return storage.NewClickHouseRecordSink(db), func() {
		if err := db.Close(); err != nil {
			logging.WithError(err).Warn("Error closing ClickHouse connection")
		}
	}, nil
}

// nativePriceSource prefers the stablecoin pairs and falls back to the fixed price
func nativePriceSource(p config.PricingConfig) (pricing.NativePriceSource, error) {
	if len(p.StablePairs) > 0 {
		pairs := make([]string, len(p.StablePairs))
		for i, pair := range p.StablePairs {
			pairs[i] = strings.ToLower(pair)
		}
		return pricing.NewStablePairPrice(strings.ToLower(p.NativeToken), pairs), nil
	}
	price, err := decimal.NewFromString(p.NativePriceUSD)
	if err != nil {
		return nil, err
	}
	return pricing.FixedPrice{Price: price}, nil
}
