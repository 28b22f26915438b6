package chain

import "errors"

// Sentinel error kinds shared by all providers.
var (
	ErrWalletNotFound     = errors.New("wallet not found")
	ErrUnsupportedNetwork = errors.New("unsupported network")
	ErrUpstream           = errors.New("upstream failure")
)
