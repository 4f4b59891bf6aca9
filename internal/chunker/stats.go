package chunker

import "github.com/mlindstrom/docforge/internal/doc"

// ForestStats summarizes a chunk forest for reporting. Leaf sizes are in the
// unit the forest was chunked with: tokens or characters.
type ForestStats struct {
	TotalChunks int     `json:"total_chunks"`
	Parents     int     `json:"parents"`
	Leaves      int     `json:"leaves"`
	Oversized   int     `json:"oversized"`
	MinLeafSize int     `json:"min_leaf_size"`
	MaxLeafSize int     `json:"max_leaf_size"`
	AvgLeafSize float64 `json:"avg_leaf_size"`
	PageStart   int     `json:"page_start"`
	PageEnd     int     `json:"page_end"`
}

// Stats computes summary statistics over a forest's leaves, measuring sizes
// in the unit cfg selects.
func Stats(f *doc.Forest, cfg Config) ForestStats {
	size := func(c doc.Chunk) int { return c.TokenCount }
	if !cfg.UseTokenCounting {
		size = func(c doc.Chunk) int { return c.CharCount }
	}

	s := ForestStats{
		TotalChunks: len(f.Parents) + len(f.Leaves),
		Parents:     len(f.Parents),
		Leaves:      len(f.Leaves),
	}
	if len(f.Leaves) == 0 {
		return s
	}
	total := 0
	s.MinLeafSize = size(f.Leaves[0])
	for _, c := range f.Leaves {
		if c.Oversized {
			s.Oversized++
		}
		n := size(c)
		total += n
		if n < s.MinLeafSize {
			s.MinLeafSize = n
		}
		if n > s.MaxLeafSize {
			s.MaxLeafSize = n
		}
	}
	s.AvgLeafSize = float64(total) / float64(len(f.Leaves))
	s.PageStart, s.PageEnd = f.PageSpan()
	return s
}
