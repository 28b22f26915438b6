package scoring

import (
	"fmt"
	"sort"

	"github.com/okian/dotrep/internal/domain/model"
)

// Weights holds the signed points per unit value for each category, before
// decay. Liquidation is penalized three times harder than repayment is
// rewarded.
type Weights struct {
	LoanRepaid      float64
	LoanLiquidated  float64
	LiquidityAdded  float64
	StakingJoined   float64
	GovernanceVoted float64
	IdentitySet     float64
	// WalletAgeYear is awarded per 365-day year of wallet age.
	WalletAgeYear float64
	// TxCount is awarded per transaction in the recent window.
	TxCount float64
}

// DefaultWeights returns the reference weight table.
func DefaultWeights() Weights {
	return Weights{
		LoanRepaid:      100,
		LoanLiquidated:  -300,
		LiquidityAdded:  50,
		StakingJoined:   50,
		GovernanceVoted: 25,
		IdentitySet:     25,
		WalletAgeYear:   50,
		TxCount:         1,
	}
}

// Weight returns the weight of category c, or 0 for unknown categories.
func (w Weights) Weight(c model.Category) float64 {
	switch c {
	case model.LoanRepaid:
		return w.LoanRepaid
	case model.LoanLiquidated:
		return w.LoanLiquidated
	case model.LiquidityAdded:
		return w.LiquidityAdded
	case model.StakingJoined:
		return w.StakingJoined
	case model.GovernanceVoted:
		return w.GovernanceVoted
	case model.IdentitySet:
		return w.IdentitySet
	case model.WalletAge:
		return w.WalletAgeYear
	case model.TxCount:
		return w.TxCount
	default:
		return 0
	}
}

func (w *Weights) set(c model.Category, v float64) {
	switch c {
	case model.LoanRepaid:
		w.LoanRepaid = v
	case model.LoanLiquidated:
		w.LoanLiquidated = v
	case model.LiquidityAdded:
		w.LiquidityAdded = v
	case model.StakingJoined:
		w.StakingJoined = v
	case model.GovernanceVoted:
		w.GovernanceVoted = v
	case model.IdentitySet:
		w.IdentitySet = v
	case model.WalletAge:
		w.WalletAgeYear = v
	case model.TxCount:
		w.TxCount = v
	}
}

// WeightsFromMap overlays overrides keyed by category name onto the default
// table. Unknown names are rejected so a typo in configuration cannot silently
// drop a weight.
func WeightsFromMap(overrides map[string]float64) (Weights, error) {
	w := DefaultWeights()
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := model.Category(name)
		if !c.Valid() {
			return Weights{}, fmt.Errorf("%w: %q", ErrUnknownCategory, name)
		}
		w.set(c, overrides[name])
	}
	return w, nil
}
