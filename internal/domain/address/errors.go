package address

import "errors"

// Sentinel kinds for address errors.
var (
	ErrInvalidAddress  = errors.New("invalid ss58 address")
	ErrChecksum        = errors.New("ss58 checksum mismatch")
	ErrNetworkMismatch = errors.New("address encoded for another network")
)
