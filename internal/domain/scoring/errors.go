package scoring

import "errors"

// Sentinel kinds for scoring configuration errors.
var (
	ErrUnknownCategory = errors.New("unknown scoring category")
)
