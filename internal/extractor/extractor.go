// Package extractor reconstructs reading order and logical structure from
// raw positioned text fragments of a single page.
package extractor

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/mlindstrom/docforge/internal/doc"
)

// Config holds the geometric tolerances driving reading-order reconstruction.
// Optimal values are corpus-dependent; these defaults were tuned on technical
// PDFs and are deliberately configuration, not constants.
type Config struct {
	LineTolerance  float64 // top-coordinate delta treated as the same line
	LineAdvanceMax float64 // largest top delta still counting as the next line
	ParagraphGap   float64 // vertical gap that starts a new block
	FontTolerance  float64 // font-size delta that starts a new block
	ColumnGap      float64 // same-line x-gap treated as a table column break
	AlignTolerance float64 // left-edge delta treated as same alignment

	// Font-size ratios relative to the page's body size for heading tiers.
	Heading1Ratio float64
	Heading2Ratio float64
	Heading3Ratio float64
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		LineTolerance:  5.0,
		LineAdvanceMax: 18.0,
		ParagraphGap:   12.0,
		FontTolerance:  1.5,
		ColumnGap:      48.0,
		AlignTolerance: 8.0,
		Heading1Ratio:  1.30,
		Heading2Ratio:  1.15,
		Heading3Ratio:  1.05,
	}
}

// Extractor turns a page's fragments into an ordered block sequence.
type Extractor struct {
	cfg Config
}

// New creates an extractor. Zero or negative tolerances fall back to defaults.
func New(cfg Config) *Extractor {
	def := DefaultConfig()
	if cfg.LineTolerance <= 0 {
		cfg.LineTolerance = def.LineTolerance
	}
	if cfg.LineAdvanceMax <= 0 {
		cfg.LineAdvanceMax = def.LineAdvanceMax
	}
	if cfg.ParagraphGap <= 0 {
		cfg.ParagraphGap = def.ParagraphGap
	}
	if cfg.FontTolerance <= 0 {
		cfg.FontTolerance = def.FontTolerance
	}
	if cfg.ColumnGap <= 0 {
		cfg.ColumnGap = def.ColumnGap
	}
	if cfg.AlignTolerance <= 0 {
		cfg.AlignTolerance = def.AlignTolerance
	}
	if cfg.Heading1Ratio <= 0 {
		cfg.Heading1Ratio = def.Heading1Ratio
	}
	if cfg.Heading2Ratio <= 0 {
		cfg.Heading2Ratio = def.Heading2Ratio
	}
	if cfg.Heading3Ratio <= 0 {
		cfg.Heading3Ratio = def.Heading3Ratio
	}
	return &Extractor{cfg: cfg}
}

// NormalizeRotation rounds an arbitrary rotation value to the nearest of
// 0, 90, 180, 270.
func NormalizeRotation(deg int) int {
	d := ((deg % 360) + 360) % 360
	r := int(math.Round(float64(d)/90.0)) * 90
	if r == 360 {
		r = 0
	}
	return r
}

// ExtractPage produces the ordered block sequence for one page and echoes the
// page's rotation (normalized to a right angle). The rotation is carried as a
// value for downstream geometry transforms; fragment coordinates are never
// rewritten. An empty fragment list yields an empty block list.
func (e *Extractor) ExtractPage(frags []doc.TextFragment, rotation int) ([]doc.TextBlock, int) {
	rot := NormalizeRotation(rotation)
	clean := sanitize(frags)
	if len(clean) == 0 {
		return nil, rot
	}

	ordered := e.sortReadingOrder(clean)
	repaired := e.repairHyphenation(ordered)
	// Merged spans may change apparent vertical order.
	ordered = e.sortReadingOrder(repaired)

	blocks := e.mergeIntoBlocks(ordered, rot)
	e.classify(blocks)
	return blocks, rot
}

// sanitize drops empty fragments and repairs degenerate bounding boxes.
// Input fragments are copied, never mutated.
func sanitize(frags []doc.TextFragment) []doc.TextFragment {
	out := make([]doc.TextFragment, 0, len(frags))
	for _, f := range frags {
		if strings.TrimSpace(f.Text) == "" {
			continue
		}
		f.BBox = f.BBox.Clamp()
		out = append(out, f)
	}
	return out
}

// sortReadingOrder orders fragments top-to-bottom, left-to-right. Tops are
// bucketed by LineTolerance so fragments on the same visual line sort by
// their left edge.
func (e *Extractor) sortReadingOrder(frags []doc.TextFragment) []doc.TextFragment {
	out := make([]doc.TextFragment, len(frags))
	copy(out, frags)
	bucket := func(y float64) int {
		return int(math.Round(y / e.cfg.LineTolerance))
	}
	sort.SliceStable(out, func(i, j int) bool {
		bi, bj := bucket(out[i].BBox.Y0), bucket(out[j].BBox.Y0)
		if bi != bj {
			return bi < bj
		}
		return out[i].BBox.X0 < out[j].BBox.X0
	})
	return out
}

// repairHyphenation merges words broken across lines. Mark-and-filter: a
// fresh slice is produced, consumed fragments are skipped, and no fragment is
// merged into more than one result.
func (e *Extractor) repairHyphenation(frags []doc.TextFragment) []doc.TextFragment {
	out := make([]doc.TextFragment, 0, len(frags))
	consumed := make([]bool, len(frags))

	for i := range frags {
		if consumed[i] {
			continue
		}
		f := frags[i]
		text := strings.TrimSpace(f.Text)
		if strings.HasSuffix(text, "-") && i+1 < len(frags) && !consumed[i+1] &&
			e.isContinuation(f, frags[i+1]) {
			next := frags[i+1]
			merged := f
			merged.Text = strings.TrimSuffix(text, "-") + strings.TrimSpace(next.Text)
			merged.BBox = f.BBox.Union(next.BBox)
			consumed[i+1] = true
			out = append(out, merged)
			continue
		}
		out = append(out, f)
	}
	return out
}

// isContinuation reports whether next carries the remainder of a word
// hyphenated at the end of f: next sits on the following line with a similar
// left edge, and starts with a lowercase letter. All-caps text split mid-word
// (section labels, title lines) continues with an uppercase letter instead.
func (e *Extractor) isContinuation(f, next doc.TextFragment) bool {
	dy := next.BBox.Y0 - f.BBox.Y0
	if dy <= e.cfg.LineTolerance || dy > f.BBox.Height()+e.cfg.LineAdvanceMax {
		return false
	}
	if math.Abs(next.BBox.X0-f.BBox.X0) > e.cfg.AlignTolerance {
		return false
	}
	rest := strings.TrimSpace(next.Text)
	if rest == "" {
		return false
	}
	first := []rune(rest)[0]
	if !unicode.IsLetter(first) {
		return false
	}
	if unicode.IsLower(first) {
		return true
	}
	return isAllUpper(f.Text) && unicode.IsUpper(first)
}

func isAllUpper(s string) bool {
	seen := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			seen = true
		}
	}
	return seen
}

// blockBuilder accumulates fragments belonging to one logical block.
type blockBuilder struct {
	texts    []string
	seps     []string // separator preceding texts[i] (seps[0] unused)
	bbox     doc.BBox
	fontSize float64
	page     int
	rotation int
	columnar bool
	lastY0   float64
	lastY1   float64
	lastX1   float64
}

func (b *blockBuilder) build() doc.TextBlock {
	var sb strings.Builder
	for i, t := range b.texts {
		if i > 0 {
			sb.WriteString(b.seps[i])
		}
		sb.WriteString(t)
	}
	role := doc.RoleParagraph
	if b.columnar {
		role = doc.RoleTableCell
	}
	return doc.TextBlock{
		Text:     sb.String(),
		BBox:     b.bbox,
		FontSize: b.fontSize,
		Role:     role, // refined by classify
		Page:     b.page,
		Rotation: b.rotation,
	}
}

// mergeIntoBlocks groups consecutive fragments sharing line/paragraph signals
// into blocks. A new block starts when the vertical gap exceeds ParagraphGap
// or the font size changes beyond FontTolerance.
func (e *Extractor) mergeIntoBlocks(frags []doc.TextFragment, rotation int) []doc.TextBlock {
	var blocks []doc.TextBlock
	var cur *blockBuilder

	flush := func() {
		if cur != nil {
			blocks = append(blocks, cur.build())
			cur = nil
		}
	}

	for _, f := range frags {
		text := strings.TrimSpace(f.Text)
		if cur == nil {
			cur = newBuilder(f, text, rotation)
			continue
		}

		sameLine := math.Abs(f.BBox.Y0-cur.lastY0) <= e.cfg.LineTolerance
		gap := f.BBox.Y0 - cur.lastY1
		fontBreak := cur.fontSize > 0 && f.FontSize > 0 &&
			math.Abs(f.FontSize-cur.fontSize) > e.cfg.FontTolerance

		if !sameLine && (gap > e.cfg.ParagraphGap || fontBreak) {
			flush()
			cur = newBuilder(f, text, rotation)
			continue
		}
		if sameLine && fontBreak {
			flush()
			cur = newBuilder(f, text, rotation)
			continue
		}

		sep := "\n"
		if sameLine {
			sep = " "
			if f.BBox.X0-cur.lastX1 > e.cfg.ColumnGap {
				sep = "\t"
				cur.columnar = true
			}
		}
		cur.texts = append(cur.texts, text)
		cur.seps = append(cur.seps, sep)
		cur.bbox = cur.bbox.Union(f.BBox)
		if !sameLine {
			cur.lastY0 = f.BBox.Y0
		}
		cur.lastY1 = math.Max(cur.lastY1, f.BBox.Y1)
		cur.lastX1 = f.BBox.X1
	}
	flush()
	return blocks
}

func newBuilder(f doc.TextFragment, text string, rotation int) *blockBuilder {
	return &blockBuilder{
		texts:    []string{text},
		seps:     []string{""},
		bbox:     f.BBox,
		fontSize: f.FontSize,
		page:     f.Page,
		rotation: rotation,
		lastY0:   f.BBox.Y0,
		lastY1:   f.BBox.Y1,
		lastX1:   f.BBox.X1,
	}
}
