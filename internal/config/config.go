// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() builds a Config with defaults; Load layers files and env on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/okian/dotrep/internal/domain/scoring"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DefaultNetwork is used when a request names no network.
	DefaultNetwork string `koanf:"default_network"`

	// WorkerCount sets the number of batch scoring workers.
	WorkerCount int `koanf:"worker_count"`

	// MaxBatchSize caps the addresses accepted by POST /score/batch.
	MaxBatchSize int `koanf:"max_batch_size"`

	// Weights overrides category weights by name, e.g. loan_repaid: 120.
	Weights map[string]float64 `koanf:"weights"`

	// AssumedMaxRaw is the raw score mapped to the top of the range.
	AssumedMaxRaw float64 `koanf:"assumed_max_raw"`

	// FullWeightDays and ZeroWeightDays bound the linear decay window.
	FullWeightDays float64 `koanf:"full_weight_days"`
	ZeroWeightDays float64 `koanf:"zero_weight_days"`

	// FixturesPath points at a YAML file of wallet snapshots. When set, it is
	// the activity source.
	FixturesPath string `koanf:"fixtures_path"`

	// IndexerURL is the base URL of the activity indexer.
	IndexerURL       string `koanf:"indexer_url"`
	IndexerTimeoutMS int    `koanf:"indexer_timeout_ms"`

	// RPCEndpoints maps network names to substrate websocket endpoints scanned
	// for recent balance transfers.
	RPCEndpoints map[string]string `koanf:"rpc_endpoints"`

	// BlocksToScan is how many recent blocks are inspected per wallet.
	BlocksToScan int `koanf:"blocks_to_scan"`
	RPCTimeoutMS int `koanf:"rpc_timeout_ms"`

	// OTLPEndpoint enables tracing when non-empty (host:port).
	OTLPEndpoint string `koanf:"otlp_endpoint"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		DefaultNetwork:   "polkadot",
		WorkerCount:      runtime.NumCPU() * 2,
		MaxBatchSize:     100,
		Weights:          map[string]float64{},
		AssumedMaxRaw:    scoring.DefaultAssumedMaxRaw,
		FullWeightDays:   scoring.DefaultFullWeightDays,
		ZeroWeightDays:   scoring.DefaultZeroWeightDays,
		IndexerTimeoutMS: 5_000,
		RPCEndpoints:     map[string]string{},
		BlocksToScan:     100,
		RPCTimeoutMS:     10_000,
	}
}

// Validate checks values that would otherwise be silently ignored.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("%w: worker_count must be positive, got %d", ErrInvalidConfig, c.WorkerCount)
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("%w: max_batch_size must be positive, got %d", ErrInvalidConfig, c.MaxBatchSize)
	}
	if !(c.AssumedMaxRaw > 0) || math.IsInf(c.AssumedMaxRaw, 0) {
		return fmt.Errorf("%w: assumed_max_raw must be positive, got %v", ErrInvalidConfig, c.AssumedMaxRaw)
	}
	if c.FullWeightDays < 0 || c.ZeroWeightDays <= c.FullWeightDays {
		return fmt.Errorf("%w: decay window requires 0 <= full_weight_days < zero_weight_days, got %v/%v",
			ErrInvalidConfig, c.FullWeightDays, c.ZeroWeightDays)
	}
	if _, err := scoring.WeightsFromMap(c.Weights); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if len(c.RPCEndpoints) > 0 && c.BlocksToScan <= 0 {
		return fmt.Errorf("%w: blocks_to_scan must be positive, got %d", ErrInvalidConfig, c.BlocksToScan)
	}
	return nil
}

// ScoringOptions translates the scoring section into engine options. Call it
// on a validated config.
func (c *Config) ScoringOptions() []scoring.Option {
	w, err := scoring.WeightsFromMap(c.Weights)
	if err != nil {
		w = scoring.DefaultWeights()
	}
	return []scoring.Option{
		scoring.WithWeights(w),
		scoring.WithAssumedMaxRaw(c.AssumedMaxRaw),
		scoring.WithDecayWindow(c.FullWeightDays, c.ZeroWeightDays),
	}
}

// IndexerTimeout returns the indexer HTTP timeout.
func (c *Config) IndexerTimeout() time.Duration {
	return time.Duration(c.IndexerTimeoutMS) * time.Millisecond
}

// RPCTimeout returns the per-call substrate RPC timeout.
func (c *Config) RPCTimeout() time.Duration {
	return time.Duration(c.RPCTimeoutMS) * time.Millisecond
}
