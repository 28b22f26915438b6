package types

import "errors"

// Batch bounds shared by the service and its transports.
var (
	ErrEmptyBatch    = errors.New("batch has no addresses")
	ErrBatchTooLarge = errors.New("batch too large")
)
