package pipeline

import "errors"

var (
	// ErrStoreRequired is returned when no corpus store is provided.
	ErrStoreRequired = errors.New("corpus store required")

	// ErrIndexHandleRequired is returned when no index handle is provided.
	ErrIndexHandleRequired = errors.New("index handle required")
)
