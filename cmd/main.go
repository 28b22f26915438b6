package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/dotrep/internal/adapters/chain"
	"github.com/okian/dotrep/internal/adapters/chain/fixture"
	"github.com/okian/dotrep/internal/adapters/chain/indexer"
	"github.com/okian/dotrep/internal/adapters/chain/substrate"
	"github.com/okian/dotrep/internal/adapters/http/api"
	app "github.com/okian/dotrep/internal/app"
	"github.com/okian/dotrep/internal/config"
	"github.com/okian/dotrep/internal/domain/address"
	"github.com/okian/dotrep/pkg/logger"
	"github.com/okian/dotrep/pkg/metrics"
	"github.com/okian/dotrep/pkg/tracing"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 60 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> .env -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger is configured from cfg, so it is not available yet.
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal(ctx, "dotrep failed", logger.Error(err))
	}
}

// run wires the service from cfg and serves HTTP until ctx is canceled.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	shutdownTracing, err := tracing.Init(ctx, cfg.OTLPEndpoint, log.Named("tracing"))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn(ctx, "tracing shutdown failed", logger.Error(err))
		}
	}()

	svc, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	// Runs after the HTTP server has drained, so in-flight batches finish.
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewServer(svc, svc).Handler(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// buildService creates the activity source and transfer scanners named by cfg
// and returns an unstarted service.
func buildService(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Service, error) {
	opts := []app.Option{
		app.WithLogger(log.Named("service")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithMaxBatchSize(cfg.MaxBatchSize),
		app.WithDefaultNetwork(cfg.DefaultNetwork),
		app.WithScoringOptions(cfg.ScoringOptions()...),
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	if provider != nil {
		opts = append(opts, app.WithProvider(provider))
	} else {
		log.Warn(ctx, "no activity source configured; only POST /score is usable")
	}

	for network, endpoint := range cfg.RPCEndpoints {
		if _, ok := address.NetworkPrefix(network); !ok {
			return nil, fmt.Errorf("%w: rpc_endpoints.%s", chain.ErrUnsupportedNetwork, network)
		}
		transfer, ok := substrate.TransferEventFor(network)
		if !ok {
			return nil, fmt.Errorf("%w: rpc_endpoints.%s: no known balances.Transfer index", chain.ErrUnsupportedNetwork, network)
		}
		scanner := substrate.NewScanner(endpoint,
			substrate.WithBlocks(cfg.BlocksToScan),
			substrate.WithTimeout(cfg.RPCTimeout()),
			substrate.WithTransferEvent(transfer),
			substrate.WithLogger(log.Named("substrate").Named(network)),
		)
		opts = append(opts, app.WithTransferScanner(network, scanner))
		log.Info(ctx, "scanning recent blocks for transfers",
			logger.String("network", network),
			logger.String("endpoint", endpoint),
			logger.Int("blocks", cfg.BlocksToScan),
			logger.String("transfer_event", transfer.String()),
		)
	}

	return app.New(opts...), nil
}

// newProvider prefers fixtures over the indexer. It returns nil when neither
// is configured.
func newProvider(cfg *config.Config) (chain.Provider, error) {
	switch {
	case cfg.FixturesPath != "":
		p, err := fixture.Load(cfg.FixturesPath)
		if err != nil {
			return nil, err
		}
		return p, nil
	case cfg.IndexerURL != "":
		c, err := indexer.New(cfg.IndexerURL, indexer.WithTimeout(cfg.IndexerTimeout()))
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, nil
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
