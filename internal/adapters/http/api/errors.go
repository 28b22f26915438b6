package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/dotrep/internal/adapters/chain"
	"github.com/okian/dotrep/internal/domain/address"
	"github.com/okian/dotrep/internal/domain/types"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrEmptyBatch    = types.ErrEmptyBatch
	ErrBatchTooLarge = types.ErrBatchTooLarge
)

// Error is an operation-tagged error. Kind is a sentinel that decides the
// HTTP status; Err carries the detail.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Kind != nil {
		msg += ": " + e.Kind.Error()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both Kind and Err to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// NewKind returns an error of the given kind without further detail.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind tags err with op and kind.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap tags err with op, keeping whatever kind err already carries.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// statusFor maps an error to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBatchTooLarge):
		return http.StatusBadRequest, "batch_too_large"
	case errors.Is(err, ErrEmptyBatch):
		return http.StatusBadRequest, "empty_batch"
	case errors.Is(err, address.ErrInvalidAddress):
		return http.StatusBadRequest, "invalid_address"
	case errors.Is(err, chain.ErrUnsupportedNetwork):
		return http.StatusBadRequest, "unsupported_network"
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, chain.ErrWalletNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, chain.ErrUpstream):
		return http.StatusBadGateway, "upstream_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
