package service

import (
	"errors"

	"github.com/okian/dotrep/internal/domain/types"
)

// Sentinel errors returned by the service.
var (
	ErrNotStarted    = errors.New("service not started")
	ErrNoProvider    = errors.New("no activity provider configured")
	ErrEmptyBatch    = types.ErrEmptyBatch
	ErrBatchTooLarge = types.ErrBatchTooLarge
)
