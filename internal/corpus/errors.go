package corpus

import "errors"

var (
	// ErrDocumentNotFound is returned when no forest exists for a doc id.
	ErrDocumentNotFound = errors.New("document not found")
)
