package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nftmarket/config"
	"nftmarket/core"
	"nftmarket/core/events"
	"nftmarket/indexer"
	"nftmarket/native/marketplace"
	"nftmarket/observability/logging"
	"nftmarket/observability/metrics"
	telemetry "nftmarket/observability/otel"
	"nftmarket/oracle"
	"nftmarket/rpc"
	"nftmarket/storage"
	"nftmarket/storage/journal"
)

func main() {
	configFile := flag.String("config", "./marketd.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup("marketd", cfg.Environment, logging.ParseLevel(cfg.Log.Level), logging.FileConfig{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("marketd terminated", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "marketd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	program, err := cfg.Program()
	if err != nil {
		return err
	}

	db, err := storage.NewLevelDB(cfg.StatePath())
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer db.Close()
	store, err := journal.Open(cfg.JournalPath())
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer store.Close()

	authenticity, err := loadOracle(cfg.Oracle)
	if err != nil {
		return err
	}

	emitters := events.Multi{metrics.Market()}
	var catalog rpc.Catalog
	if cfg.Indexer.Enabled {
		gdb, err := indexer.Open(cfg.Indexer.DSN)
		if err != nil {
			return err
		}
		idx, err := indexer.New(gdb, logger)
		if err != nil {
			return err
		}
		emitters = append(emitters, idx)
		catalog = idx
		logger.Info("indexer enabled")
	}

	ledger, err := core.NewLedger(db, store, core.Options{
		Program: program,
		Oracle:  authenticity,
		Emitter: emitters,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	genesis, err := genesisFromConfig(cfg.Genesis)
	if err != nil {
		return err
	}
	if receipt, err := ledger.ApplyGenesis(ctx, genesis); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	} else if receipt != nil {
		logger.Info("genesis applied", slog.String("root", receipt.StateRoot))
	}

	var auth *rpc.OperatorAuth
	if env := strings.TrimSpace(cfg.RPC.JWTSecretEnv); env != "" {
		auth = rpc.NewOperatorAuth(os.Getenv(env), cfg.RPC.JWTIssuer)
		if auth == nil {
			return fmt.Errorf("operator auth enabled but %s is empty", env)
		}
	}
	server, err := rpc.NewServer(ledger, catalog, rpc.ServerConfig{
		MaxBodyBytes:       cfg.RPC.MaxBodyBytes,
		SignatureTTL:       time.Duration(cfg.RPC.SignatureTTLSeconds) * time.Second,
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		RateLimitBurst:     cfg.RPC.RateLimitBurst,
		OperatorAuth:       auth,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.RPC.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: time.Duration(cfg.RPC.ReadHeaderTimeoutSeconds) * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	height, root := ledger.Head()
	logger.Info("marketd running",
		slog.String("listen", cfg.RPC.ListenAddress),
		slog.String("program", ledger.Program().String()),
		slog.Uint64("height", height),
		slog.String("root", root.Hex()))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("rpc server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func loadOracle(cfg config.Oracle) (marketplace.AuthenticityOracle, error) {
	registry := oracle.NewRegistry()
	if path := strings.TrimSpace(cfg.RegistryFile); path != "" {
		loaded, err := oracle.LoadRegistry(path)
		if err != nil {
			return nil, err
		}
		registry = loaded
	}
	return oracle.NewCached(registry, time.Duration(cfg.CacheTTLSeconds)*time.Second), nil
}
