// Package model contains domain models passed between layers.
package model

import (
	"math"
	"time"
)

// Category identifies one recognized on-chain action type.
type Category string

// Event categories. The declaration order is the summation order used by the
// scoring engine.
const (
	LoanRepaid      Category = "loan_repaid"
	LoanLiquidated  Category = "loan_liquidated"
	LiquidityAdded  Category = "liquidity_added"
	StakingJoined   Category = "staking_joined"
	GovernanceVoted Category = "governance_voted"
	IdentitySet     Category = "identity_set"
)

// Scalar factors that carry a weight but are not event categories.
const (
	WalletAge Category = "wallet_age"
	TxCount   Category = "tx_count"
)

var categories = []Category{
	LoanRepaid,
	LoanLiquidated,
	LiquidityAdded,
	StakingJoined,
	GovernanceVoted,
	IdentitySet,
}

// Categories returns the event categories in their fixed order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// IsEvent reports whether c is a time-decayed event category.
func (c Category) IsEvent() bool {
	for _, k := range categories {
		if k == c {
			return true
		}
	}
	return false
}

// Valid reports whether c is an event category or a scalar factor.
func (c Category) Valid() bool {
	return c.IsEvent() || c == WalletAge || c == TxCount
}

// WireName returns the dotted JSON path of the category in WalletActivity.
func (c Category) WireName() string {
	switch c {
	case LoanRepaid:
		return "acala.loanRepaid"
	case LoanLiquidated:
		return "acala.loanLiquidated"
	case LiquidityAdded:
		return "hydraDx.omnipoolLpAdded"
	case StakingJoined:
		return "bifrost.stakingJoined"
	case GovernanceVoted:
		return "moonbeam.governanceVoted"
	case IdentitySet:
		return "polkadotRelay.identitySet"
	case WalletAge:
		return "generic.walletCreationDate"
	case TxCount:
		return "generic.transactionCountLastMonth"
	default:
		return string(c)
	}
}

// Event is a single on-chain occurrence relevant to scoring.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	// Value is an optional magnitude, e.g. a loan amount. Zero means absent.
	Value float64 `json:"value,omitempty"`
}

// Magnitude returns the event value, defaulting to 1 when absent.
func (e Event) Magnitude() float64 {
	if e.Value == 0 || math.IsNaN(e.Value) {
		return 1
	}
	return e.Value
}

// Acala groups debt management events.
type Acala struct {
	LoanRepaid     []Event `json:"loanRepaid"`
	LoanLiquidated []Event `json:"loanLiquidated"`
}

// HydraDX groups liquidity pooling events.
type HydraDX struct {
	OmnipoolLpAdded []Event `json:"omnipoolLpAdded"`
}

// Bifrost groups staking events.
type Bifrost struct {
	StakingJoined []Event `json:"stakingJoined"`
}

// Moonbeam groups governance events.
type Moonbeam struct {
	GovernanceVoted []Event `json:"governanceVoted"`
}

// PolkadotRelay groups identity events.
type PolkadotRelay struct {
	IdentitySet []Event `json:"identitySet"`
}

// Generic holds account metadata outside the event-list model.
type Generic struct {
	WalletCreationDate        time.Time `json:"walletCreationDate"`
	TransactionCountLastMonth int       `json:"transactionCountLastMonth"`
}

// WalletActivity is the complete input to one scoring invocation.
// Field names mirror the wire format consumed by existing clients.
type WalletActivity struct {
	Acala         Acala         `json:"acala"`
	HydraDX       HydraDX       `json:"hydraDx"`
	Bifrost       Bifrost       `json:"bifrost"`
	Moonbeam      Moonbeam      `json:"moonbeam"`
	PolkadotRelay PolkadotRelay `json:"polkadotRelay"`
	Generic       Generic       `json:"generic"`
}

// Events returns the events recorded for category c. Unknown categories and
// scalar factors yield nil.
func (w *WalletActivity) Events(c Category) []Event {
	switch c {
	case LoanRepaid:
		return w.Acala.LoanRepaid
	case LoanLiquidated:
		return w.Acala.LoanLiquidated
	case LiquidityAdded:
		return w.HydraDX.OmnipoolLpAdded
	case StakingJoined:
		return w.Bifrost.StakingJoined
	case GovernanceVoted:
		return w.Moonbeam.GovernanceVoted
	case IdentitySet:
		return w.PolkadotRelay.IdentitySet
	default:
		return nil
	}
}

// Add appends events to category c. Scalar factors are ignored.
func (w *WalletActivity) Add(c Category, events ...Event) {
	switch c {
	case LoanRepaid:
		w.Acala.LoanRepaid = append(w.Acala.LoanRepaid, events...)
	case LoanLiquidated:
		w.Acala.LoanLiquidated = append(w.Acala.LoanLiquidated, events...)
	case LiquidityAdded:
		w.HydraDX.OmnipoolLpAdded = append(w.HydraDX.OmnipoolLpAdded, events...)
	case StakingJoined:
		w.Bifrost.StakingJoined = append(w.Bifrost.StakingJoined, events...)
	case GovernanceVoted:
		w.Moonbeam.GovernanceVoted = append(w.Moonbeam.GovernanceVoted, events...)
	case IdentitySet:
		w.PolkadotRelay.IdentitySet = append(w.PolkadotRelay.IdentitySet, events...)
	}
}

// EventCount returns the total number of categorized events.
func (w *WalletActivity) EventCount() int {
	n := 0
	for _, c := range categories {
		n += len(w.Events(c))
	}
	return n
}
