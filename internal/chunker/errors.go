package chunker

import "errors"

var (
	// ErrMaxTokensTooSmall is returned when the configured size bound is
	// below the smallest indivisible unit the tokenizer can produce.
	ErrMaxTokensTooSmall = errors.New("max tokens must be at least 1")

	// ErrOverlapOutOfRange is returned when the overlap fraction falls
	// outside [0, 1).
	ErrOverlapOutOfRange = errors.New("overlap fraction must be in [0, 1)")
)
