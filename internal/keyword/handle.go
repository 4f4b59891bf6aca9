package keyword

import "sync/atomic"

// Handle is the process-wide owner of the "current" index: an explicitly
// swappable reference rather than a singleton mutated in place. Readers
// always observe a self-consistent snapshot; Swap publishes a fully built
// index in one step.
type Handle struct {
	cur atomic.Pointer[Index]
}

// NewHandle returns an empty handle. Searching before the first Swap returns
// empty results.
func NewHandle() *Handle {
	return &Handle{}
}

// Swap publishes idx as the current index and returns the previous one.
func (h *Handle) Swap(idx *Index) *Index {
	return h.cur.Swap(idx)
}

// Current returns the current index snapshot, which may be nil.
func (h *Handle) Current() *Index {
	return h.cur.Load()
}

// Search queries the current snapshot. Safe for concurrent use with Swap.
func (h *Handle) Search(query string, topK int) []Result {
	return h.cur.Load().Search(query, topK)
}
