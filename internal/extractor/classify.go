package extractor

import (
	"math"
	"regexp"

	"github.com/mlindstrom/docforge/internal/doc"
)

// listPrefix matches bulleted and numbered list markers at the start of a
// block, e.g. "- item", "• item", "3) item", "12. item".
var listPrefix = regexp.MustCompile(`^\s*(?:[-•*‣]|\d{1,3}[.)])\s+`)

// classify assigns a structural role to each block from its font size
// relative to the page's body-text size. The body size is the most frequent
// font size on the page, which makes classification robust against pages
// dominated by a single large title.
func (e *Extractor) classify(blocks []doc.TextBlock) {
	body := bodyFontSize(blocks)

	for i := range blocks {
		b := &blocks[i]
		if b.Role == doc.RoleTableCell {
			continue
		}
		if b.FontSize <= 0 {
			b.Role = doc.RoleUnknown
			continue
		}
		if body > 0 {
			switch {
			case b.FontSize > body*e.cfg.Heading1Ratio:
				b.Role = doc.RoleHeading1
				continue
			case b.FontSize > body*e.cfg.Heading2Ratio:
				b.Role = doc.RoleHeading2
				continue
			case b.FontSize > body*e.cfg.Heading3Ratio:
				b.Role = doc.RoleHeading3
				continue
			}
		}
		if listPrefix.MatchString(b.Text) {
			b.Role = doc.RoleListItem
			continue
		}
		b.Role = doc.RoleParagraph
	}
}

// bodyFontSize returns the most frequent font size among the blocks, rounded
// to half a point to absorb rasterization jitter. Zero when no block carries
// font metrics.
func bodyFontSize(blocks []doc.TextBlock) float64 {
	counts := make(map[float64]int)
	for _, b := range blocks {
		if b.FontSize > 0 {
			counts[roundHalf(b.FontSize)]++
		}
	}
	var best float64
	bestN := 0
	for size, n := range counts {
		// Prefer the smaller size on a tie: body text over decoration.
		if n > bestN || (n == bestN && size < best) {
			best, bestN = size, n
		}
	}
	return best
}

func roundHalf(v float64) float64 {
	return math.Round(v*2) / 2
}
