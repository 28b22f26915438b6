// Package scoring computes wallet reputation scores from categorized on-chain
// activity.
//
// The engine is a pure function of its input and an explicit evaluation time:
// each event contributes weight * magnitude * decay, wallet age and recent
// transaction count contribute linearly, and the raw sum is rescaled onto the
// credit-score-like range [MinScore, MaxScore].
package scoring

import (
	"math"
	"time"

	"github.com/okian/dotrep/internal/domain/model"
)

// Score range and normalization defaults.
const (
	MinScore = 300
	MaxScore = 850

	// DefaultAssumedMaxRaw is the raw score of a hypothetical maximally
	// reputable wallet. It is a heuristic ceiling, not a fitted value; very
	// active wallets saturate at MaxScore.
	DefaultAssumedMaxRaw = 1500.0

	// DefaultFullWeightDays is the age up to which an event keeps full weight.
	DefaultFullWeightDays = 180.0
	// DefaultZeroWeightDays is the age from which an event contributes nothing.
	DefaultZeroWeightDays = 730.0

	hoursPerDay = 24
	daysPerYear = 365
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithWeights replaces the category weight table.
func WithWeights(w Weights) Option {
	return func(e *Engine) {
		e.weights = w
	}
}

// WithAssumedMaxRaw sets the raw score that maps to MaxScore. Non-positive,
// NaN and infinite values are ignored.
func WithAssumedMaxRaw(v float64) Option {
	return func(e *Engine) {
		if v > 0 && !math.IsInf(v, 0) {
			e.assumedMaxRaw = v
		}
	}
}

// WithDecayWindow sets the linear decay window in days. The window is ignored
// unless 0 <= fullDays < zeroDays.
func WithDecayWindow(fullDays, zeroDays float64) Option {
	return func(e *Engine) {
		if fullDays >= 0 && zeroDays > fullDays && !math.IsInf(zeroDays, 0) {
			e.fullWeightDays = fullDays
			e.zeroWeightDays = zeroDays
		}
	}
}

// Engine evaluates wallet activity snapshots. It is immutable after
// construction and safe for concurrent use.
type Engine struct {
	weights        Weights
	assumedMaxRaw  float64
	fullWeightDays float64
	zeroWeightDays float64
}

// NewEngine creates an engine with the default weights, decay window and
// normalization ceiling, then applies opts.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		weights:        DefaultWeights(),
		assumedMaxRaw:  DefaultAssumedMaxRaw,
		fullWeightDays: DefaultFullWeightDays,
		zeroWeightDays: DefaultZeroWeightDays,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEngine = NewEngine()

// Factor is the contribution of one category or scalar factor to the raw
// score.
type Factor struct {
	Category model.Category `json:"category"`
	Weight   float64        `json:"weight"`
	// Count is the number of events, or the transaction count for TxCount.
	Count int `json:"count"`
	// Quantity is the decayed magnitude sum for events, years for WalletAge
	// and transactions for TxCount.
	Quantity     float64 `json:"quantity"`
	Contribution float64 `json:"contribution"`
}

// Result is the outcome of one evaluation.
type Result struct {
	Score   int      `json:"score"`
	Raw     float64  `json:"raw"`
	Tier    Tier     `json:"tier"`
	Factors []Factor `json:"factors"`
}

// ComputeReputationScore scores activity at the given evaluation time with the
// default engine.
func ComputeReputationScore(activity model.WalletActivity, now time.Time) int { //nolint:gocritic // snapshot is passed by value
	return defaultEngine.Evaluate(activity, now).Score
}

// Evaluate scores activity as of now. It never fails; categories without
// events contribute nothing.
//
// Summation order is wallet age, transaction count, then the event categories
// in model.Categories order, event by event.
func (e *Engine) Evaluate(activity model.WalletActivity, now time.Time) Result { //nolint:gocritic // snapshot is passed by value
	factors := make([]Factor, 0, len(model.Categories())+2)
	var raw float64

	years := WalletAgeYears(activity.Generic.WalletCreationDate, now)
	ageWeight := e.weights.Weight(model.WalletAge)
	age := Factor{
		Category:     model.WalletAge,
		Weight:       ageWeight,
		Quantity:     years,
		Contribution: years * ageWeight,
	}
	raw += age.Contribution
	factors = append(factors, age)

	txs := activity.Generic.TransactionCountLastMonth
	txWeight := e.weights.Weight(model.TxCount)
	tx := Factor{
		Category:     model.TxCount,
		Weight:       txWeight,
		Count:        txs,
		Quantity:     float64(txs),
		Contribution: float64(txs) * txWeight,
	}
	raw += tx.Contribution
	factors = append(factors, tx)

	for _, c := range model.Categories() {
		events := activity.Events(c)
		f := Factor{Category: c, Weight: e.weights.Weight(c), Count: len(events)}
		for _, ev := range events {
			q := ev.Magnitude() * e.Decay(ev.Timestamp, now)
			contribution := f.Weight * q
			raw += contribution
			f.Quantity += q
			f.Contribution += contribution
		}
		factors = append(factors, f)
	}

	score := e.Normalize(raw)
	return Result{
		Score:   score,
		Raw:     raw,
		Tier:    TierFor(score),
		Factors: factors,
	}
}

// Decay returns the weight factor in [0, 1] retained by an event that occurred
// at ts, evaluated at now. Events up to the full-weight age keep 1.0, events
// past the zero-weight age keep 0.0, and the factor falls linearly in between.
// Future events clamp to 1.0.
func (e *Engine) Decay(ts, now time.Time) float64 {
	days := now.Sub(ts).Hours() / hoursPerDay
	f := 1 - (days-e.fullWeightDays)/(e.zeroWeightDays-e.fullWeightDays)
	return clamp(f, 0, 1)
}

// Decay evaluates the default 180/730 day window.
func Decay(ts, now time.Time) float64 {
	return defaultEngine.Decay(ts, now)
}

// Normalize maps a raw score onto [MinScore, MaxScore]: a linear rescale by
// the assumed maximum raw score, rounded half away from zero, then clamped.
func (e *Engine) Normalize(raw float64) int {
	if math.IsNaN(raw) {
		return MinScore
	}
	final := MinScore + (raw/e.assumedMaxRaw)*(MaxScore-MinScore)
	return int(clamp(math.Round(final), MinScore, MaxScore))
}

// Normalize rescales with DefaultAssumedMaxRaw.
func Normalize(raw float64) int {
	return defaultEngine.Normalize(raw)
}

// WalletAgeYears returns the elapsed time since created in fixed 365-day
// years. A zero created time means the creation date is unknown and yields 0.
// Creation dates in the future yield a negative age.
func WalletAgeYears(created, now time.Time) float64 {
	if created.IsZero() {
		return 0
	}
	return now.Sub(created).Hours() / (hoursPerDay * daysPerYear)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
