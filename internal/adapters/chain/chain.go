// Package chain defines the collaborators that supply on-chain activity to the
// scoring service.
package chain

import (
	"context"

	"github.com/okian/dotrep/internal/domain/address"
	"github.com/okian/dotrep/internal/domain/model"
)

// Provider returns the categorized activity snapshot of a wallet.
type Provider interface {
	// Name identifies the source in logs and metrics.
	Name() string
	Activity(ctx context.Context, addr, network string) (model.WalletActivity, error)
}

// Transfer directions, seen from the scanned account.
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// Transfer is one balances transfer that moved funds from or to an account.
type Transfer struct {
	Block     uint64 `json:"block"`
	Direction string `json:"direction"`

	// Amount in the chain's smallest unit, in decimal.
	Amount string `json:"amount"`
}

// TransferScan lists the transfers found in the latest Blocks blocks, newest
// first.
type TransferScan struct {
	Blocks    int
	Transfers []Transfer
}

// TransferScanner finds the recent balance transfers of an account.
type TransferScanner interface {
	Name() string
	RecentTransfers(ctx context.Context, account address.AccountID) (TransferScan, error)
}
