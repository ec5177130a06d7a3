package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/0xmhha/quest-indexer/api"
	"github.com/0xmhha/quest-indexer/client"
	"github.com/0xmhha/quest-indexer/contract"
	"github.com/0xmhha/quest-indexer/events"
	"github.com/0xmhha/quest-indexer/indexer"
	"github.com/0xmhha/quest-indexer/internal/config"
	"github.com/0xmhha/quest-indexer/internal/logger"
	"github.com/0xmhha/quest-indexer/retry"
	"github.com/0xmhha/quest-indexer/storage"
)

var (
	// Version information (injected at build time)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to configuration file (YAML)")
		showVersion = flag.Bool("version", false, "Show version information and exit")
		rpcEndpoint = flag.String("rpc", "", "Ethereum RPC endpoint URL")
		dbPath      = flag.String("db", "", "Database path")
		contractHex = flag.String("contract", "", "Quest contract address")
		deployBlock = flag.Uint64("deployment-block", 0, "Block the quest contract was deployed at")
		batchSize   = flag.Uint64("batch-size", 0, "Number of blocks per batch")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		logFormat   = flag.String("log-format", "", "Log format (json, console)")
		noPolling   = flag.Bool("no-polling", false, "Run catch-up once and exit without polling")

		enableAPI = flag.Bool("api", false, "Enable API server")
		apiHost   = flag.String("api-host", "", "API server host")
		apiPort   = flag.Int("api-port", 0, "API server port")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("quest-indexer version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", buildTime)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	applyFlags(cfg, *rpcEndpoint, *dbPath, *contractHex, *deployBlock, *batchSize, *logLevel, *logFormat)
	applyAPIFlags(cfg, *enableAPI, *apiHost, *apiPort)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting quest indexer",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_time", buildTime),
		zap.String("rpc_endpoint", cfg.RPC.Endpoint),
		zap.String("db_path", cfg.Database.Path),
		zap.String("contract", cfg.Indexer.ContractAddress),
		zap.Uint64("deployment_block", cfg.Indexer.DeploymentBlock),
		zap.Uint64("batch_size", cfg.Indexer.BatchSize),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ethClient, err := client.NewClient(&client.Config{
		Endpoint: cfg.RPC.Endpoint,
		Timeout:  cfg.RPC.Timeout,
		Logger:   log,
	})
	if err != nil {
		log.Fatal("Failed to create Ethereum client", zap.Error(err))
	}
	defer ethClient.Close()

	chainID, err := ethClient.GetChainID(ctx)
	if err != nil {
		log.Fatal("Failed to get chain ID", zap.Error(err))
	}
	log.Info("Connected to chain", zap.String("chain_id", chainID.String()))

	storageConfig := storage.DefaultConfig(cfg.Database.Path)
	storageConfig.ReadOnly = cfg.Database.ReadOnly
	store, err := storage.NewPebbleStorage(storageConfig)
	if err != nil {
		log.Fatal("Failed to create storage", zap.Error(err))
	}
	store.SetLogger(log)
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Failed to close storage", zap.Error(err))
		}
	}()

	log.Info("Storage initialized", zap.String("path", cfg.Database.Path))

	contractAddress := cfg.Indexer.Address()
	reader := contract.NewReader(ethClient, contractAddress, log)
	handler := events.NewHandler(store, reader, log)

	indexerConfig := &indexer.Config{
		ContractAddress: contractAddress,
		DeploymentBlock: cfg.Indexer.DeploymentBlock,
		BatchSize:       cfg.Indexer.BatchSize,
		PollInterval:    cfg.Indexer.PollInterval,
		Retry: retry.Config{
			MaxAttempts: cfg.Indexer.Retry.MaxAttempts,
			BaseDelay:   cfg.Indexer.Retry.BaseDelay,
			MaxDelay:    cfg.Indexer.Retry.MaxDelay,
		},
	}

	svc, err := indexer.New(ethClient, store, handler, indexerConfig, log)
	if err != nil {
		log.Fatal("Failed to create indexer", zap.Error(err))
	}

	if err := svc.Initialize(ctx); err != nil {
		log.Fatal("Failed to initialize indexer", zap.Error(err))
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiConfig := api.DefaultConfig()
		apiConfig.Host = cfg.API.Host
		apiConfig.Port = cfg.API.Port
		apiConfig.EnableCORS = cfg.API.EnableCORS
		apiConfig.AllowedOrigins = cfg.API.AllowedOrigins
		apiConfig.EnableRateLimit = cfg.API.EnableRateLimit
		apiConfig.RateLimitPerSecond = cfg.API.RateLimitPerSecond
		apiConfig.RateLimitBurst = cfg.API.RateLimitBurst

		apiServer, err = api.NewServer(apiConfig, log, store, svc)
		if err != nil {
			log.Fatal("Failed to create API server", zap.Error(err))
		}

		go func() {
			if err := apiServer.Start(); err != nil {
				log.Error("API server failed", zap.Error(err))
			}
		}()

		log.Info("API server started", zap.String("address", apiConfig.Address()))
	}

	// One-shot catch-up before the poll timer starts.
	errChan := make(chan error, 1)
	go func() {
		if err := svc.CatchUp(ctx); err != nil {
			errChan <- err
			return
		}
		if *noPolling {
			errChan <- nil
			return
		}
		svc.StartPolling(ctx, cfg.Indexer.PollInterval)
	}()

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Catch-up stopped with error", zap.Error(err))
		} else if *noPolling {
			log.Info("Catch-up complete, polling disabled")
		}
	}

	log.Info("Shutting down gracefully...")

	svc.StopPolling()
	cancel()

	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := apiServer.Stop(shutdownCtx); err != nil {
			log.Error("Failed to stop API server gracefully", zap.Error(err))
		}
	}

	if cursor, err := store.GetCursor(context.Background()); err == nil {
		log.Info("Final statistics", zap.Uint64("last_processed_block", cursor.LastProcessedBlock))
	}

	log.Info("Quest indexer stopped")
}

// loadConfig loads configuration from file and environment variables
func loadConfig(configFile string) (*config.Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads environment variables from a .env file if it exists.
func loadDotEnv() error {
	info, err := os.Stat(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat .env: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(".env exists but is a directory")
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// applyFlags applies command-line flags to configuration
func applyFlags(cfg *config.Config, rpcEndpoint, dbPath, contractHex string, deployBlock, batchSize uint64, logLevel, logFormat string) {
	if rpcEndpoint != "" {
		cfg.RPC.Endpoint = rpcEndpoint
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if contractHex != "" {
		cfg.Indexer.ContractAddress = contractHex
	}
	if deployBlock > 0 {
		cfg.Indexer.DeploymentBlock = deployBlock
	}
	if batchSize > 0 {
		cfg.Indexer.BatchSize = batchSize
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
}

// applyAPIFlags applies API-related command-line flags to configuration
func applyAPIFlags(cfg *config.Config, enableAPI bool, apiHost string, apiPort int) {
	if enableAPI {
		cfg.API.Enabled = true
	}
	if apiHost != "" {
		cfg.API.Host = apiHost
	}
	if apiPort > 0 {
		cfg.API.Port = apiPort
	}
}
