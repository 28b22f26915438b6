// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/dotrep/internal/adapters/chain"
	workerpool "github.com/okian/dotrep/internal/adapters/mq/worker"
	"github.com/okian/dotrep/internal/domain/address"
	"github.com/okian/dotrep/internal/domain/model"
	"github.com/okian/dotrep/internal/domain/scoring"
	"github.com/okian/dotrep/internal/domain/types"
	"github.com/okian/dotrep/pkg/logger"
	"github.com/okian/dotrep/pkg/metrics"
	"github.com/okian/dotrep/pkg/tracing"
)

// Service scores wallets from chain data and inline snapshots.
type Service struct {
	mu sync.RWMutex

	// Core components
	provider   chain.Provider
	scanners   map[string]chain.TransferScanner
	engine     *scoring.Engine
	workerPool *workerpool.Pool

	// Configuration
	workerCount    int
	maxBatchSize   int
	defaultNetwork string
	engineOpts     []scoring.Option
	clock          func() time.Time

	// State
	started   bool
	startedAt time.Time
	scored    atomic.Int64
	failed    atomic.Int64

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of batch workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithMaxBatchSize caps the addresses accepted by ScoreBatch.
func WithMaxBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

// WithDefaultNetwork sets the network used when a request names none.
func WithDefaultNetwork(network string) Option {
	return func(s *Service) {
		if network != "" {
			s.defaultNetwork = strings.ToLower(network)
		}
	}
}

// WithProvider sets the activity source.
func WithProvider(p chain.Provider) Option {
	return func(s *Service) {
		if p != nil {
			s.provider = p
		}
	}
}

// WithTransferScanner sets the recent-transfer source for a network. Its
// findings are reported next to the score and never change it.
func WithTransferScanner(network string, sc chain.TransferScanner) Option {
	return func(s *Service) {
		if sc != nil && network != "" {
			s.scanners[strings.ToLower(network)] = sc
		}
	}
}

// WithScoringOptions configures the scoring engine.
func WithScoringOptions(opts ...scoring.Option) Option {
	return func(s *Service) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// WithClock replaces the evaluation time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		scanners:       make(map[string]chain.TransferScanner),
		workerCount:    runtime.NumCPU() * 2,
		maxBatchSize:   100,
		defaultNetwork: "polkadot",
		clock:          time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.engine = scoring.NewEngine(s.engineOpts...)

	return s
}

// Start starts the batch worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting reputation service...")

	s.workerPool = workerpool.NewPool(s.workerCount, s)
	s.workerPool.Start(ctx)

	s.started = true
	s.startedAt = s.clock()

	provider := "none"
	if s.provider != nil {
		provider = s.provider.Name()
	}
	s.logger.Info(ctx, "reputation service started",
		logger.Int("workers", s.workerCount),
		logger.Int("maxBatchSize", s.maxBatchSize),
		logger.String("provider", provider),
		logger.Int("transferScanners", len(s.scanners)),
	)
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping reputation service...")

	if s.workerPool != nil {
		s.workerPool.Stop()
	}

	for network, sc := range s.scanners {
		if closer, ok := sc.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				s.logger.Warn(context.Background(), "closing transfer scanner",
					logger.String("network", network), logger.Error(err))
			}
		}
	}

	s.started = false
	s.logger.Info(context.Background(), "reputation service stopped")
}

// ScoreActivity scores an inline snapshot as of at, or as of now when at is
// zero. It never fails.
func (s *Service) ScoreActivity(ctx context.Context, activity model.WalletActivity, at time.Time) types.Report { //nolint:gocritic // snapshot is passed by value
	if at.IsZero() {
		at = s.clock()
	}
	return s.evaluate(ctx, &activity, at)
}

// ScoreAddress fetches the activity of addr on network and scores it as of
// now. An empty network selects the default one.
func (s *Service) ScoreAddress(ctx context.Context, addr, network string) (types.Report, error) {
	network = s.network(network)
	ctx, span := tracing.StartSpan(ctx, "service.ScoreAddress", tracing.Address(addr), tracing.Network(network))
	defer span.End()

	report, err := s.scoreAddress(ctx, addr, network)
	if err != nil {
		s.failed.Add(1)
		span.RecordError(err)
		return types.Report{}, err
	}
	span.SetAttributes(tracing.Score(report.Score))
	return report, nil
}

func (s *Service) scoreAddress(ctx context.Context, addr, network string) (types.Report, error) {
	addr = strings.TrimSpace(addr)
	id, prefix, err := address.Decode(addr)
	if err != nil {
		return types.Report{}, err
	}
	if _, ok := address.NetworkPrefix(network); !ok {
		return types.Report{}, fmt.Errorf("%w: %s", chain.ErrUnsupportedNetwork, network)
	}
	if !address.MatchesNetwork(prefix, network) {
		return types.Report{}, fmt.Errorf("%w: %w: prefix %d on %s", address.ErrInvalidAddress, address.ErrNetworkMismatch, prefix, network)
	}
	if s.provider == nil {
		return types.Report{}, ErrNoProvider
	}

	activity, err := s.fetch(ctx, addr, network)
	if err != nil {
		return types.Report{}, err
	}

	report := s.evaluate(ctx, &activity, s.clock())
	report.Address = addr
	report.Network = network
	if sc, ok := s.scanners[network]; ok {
		report.RecentTransfers = s.scanTransfers(ctx, sc, id)
	}
	return report, nil
}

func (s *Service) fetch(ctx context.Context, addr, network string) (model.WalletActivity, error) {
	source := s.provider.Name()
	ctx, span := tracing.StartSpan(ctx, "provider.Activity", tracing.Source(source))
	defer span.End()

	start := time.Now()
	activity, err := s.provider.Activity(ctx, addr, network)
	metrics.RecordProviderFetch(source, float64(time.Since(start).Milliseconds()))
	if err != nil {
		span.RecordError(err)
		metrics.RecordProviderError(source, errorKind(err))
		metrics.RecordErrorByComponent("provider", errorKind(err))
		if !errors.Is(err, chain.ErrWalletNotFound) {
			s.logger.Warn(ctx, "activity fetch failed",
				logger.String("source", source),
				logger.String("address", addr),
				logger.Error(err),
			)
		}
		return model.WalletActivity{}, err
	}
	return activity, nil
}

// scanTransfers returns nil when the scan fails; the score stands without it.
func (s *Service) scanTransfers(ctx context.Context, sc chain.TransferScanner, id address.AccountID) *types.RecentTransfers {
	source := sc.Name()
	ctx, span := tracing.StartSpan(ctx, "scanner.RecentTransfers", tracing.Source(source))
	defer span.End()

	start := time.Now()
	scan, err := sc.RecentTransfers(ctx, id)
	metrics.RecordProviderFetch(source, float64(time.Since(start).Milliseconds()))
	if err != nil {
		span.RecordError(err)
		metrics.RecordProviderError(source, errorKind(err))
		metrics.RecordErrorByComponent("scanner", errorKind(err))
		s.logger.Warn(ctx, "transfer scan failed",
			logger.String("source", source),
			logger.String("account", id.String()),
			logger.Error(err),
		)
		return nil
	}
	return describeTransfers(scan)
}

func (s *Service) evaluate(ctx context.Context, activity *model.WalletActivity, at time.Time) types.Report {
	start := time.Now()
	res := s.engine.Evaluate(*activity, at)
	events := describeEvents(s.engine, activity, at)
	metrics.RecordScoringLatency(float64(time.Since(start).Microseconds()) / 1000)
	metrics.RecordScore(string(res.Tier), res.Score, res.Raw)
	metrics.RecordEventsEvaluated(len(events))
	s.scored.Add(1)

	s.logger.Debug(ctx, "scored wallet activity",
		logger.Int("score", res.Score),
		logger.Float64("raw", res.Raw),
		logger.Int("events", len(events)),
	)

	return types.Report{
		Score:       res.Score,
		Tier:        res.Tier,
		Raw:         res.Raw,
		Factors:     res.Factors,
		Events:      events,
		EventCount:  len(events),
		EvaluatedAt: at.UTC(),
	}
}

// ScoreBatch scores many addresses on one network using the worker pool.
// Per-address failures are reported in the result, not as an error.
func (s *Service) ScoreBatch(ctx context.Context, addresses []string, network string) (types.BatchReport, error) {
	network = s.network(network)
	if len(addresses) == 0 {
		return types.BatchReport{}, ErrEmptyBatch
	}
	if len(addresses) > s.maxBatchSize {
		return types.BatchReport{}, fmt.Errorf("%w: %d addresses, limit %d", ErrBatchTooLarge, len(addresses), s.maxBatchSize)
	}

	s.mu.RLock()
	pool, started := s.workerPool, s.started
	s.mu.RUnlock()
	if !started {
		return types.BatchReport{}, ErrNotStarted
	}

	ctx, span := tracing.StartSpan(ctx, "service.ScoreBatch", tracing.Network(network), tracing.BatchSize(len(addresses)))
	defer span.End()
	metrics.RecordBatchSize(len(addresses))

	out := types.BatchReport{Network: network, Results: make([]types.BatchItem, 0, len(addresses))}
	for _, r := range pool.ScoreAll(ctx, addresses, network) {
		item := types.BatchItem{Address: r.Address}
		if r.Err != nil {
			item.Error = r.Err.Error()
		} else {
			report := r.Report
			item.Report = &report
		}
		out.Add(item)
	}
	return out, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	networks := make([]string, 0, len(s.scanners))
	for n := range s.scanners {
		networks = append(networks, n)
	}

	stats := map[string]any{
		"started":        s.started,
		"workerCount":    s.workerCount,
		"maxBatchSize":   s.maxBatchSize,
		"defaultNetwork": s.defaultNetwork,
		"scored":         s.scored.Load(),
		"failed":         s.failed.Load(),
		"scanNetworks":   networks,
	}
	if s.provider != nil {
		stats["provider"] = s.provider.Name()
	}
	if s.started {
		stats["uptimeSeconds"] = int64(s.clock().Sub(s.startedAt).Seconds())
		stats["batchJobs"] = s.workerPool.Processed()
	}
	return stats
}

// MaxBatchSize returns the batch limit.
func (s *Service) MaxBatchSize() int {
	return s.maxBatchSize
}

func (s *Service) network(network string) string {
	network = strings.ToLower(strings.TrimSpace(network))
	if network == "" {
		return s.defaultNetwork
	}
	return network
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, chain.ErrWalletNotFound):
		return "not_found"
	case errors.Is(err, chain.ErrUpstream):
		return "upstream"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}
