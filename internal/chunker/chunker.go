// Package chunker splits an ordered, role-tagged block sequence into a
// hierarchy of size-bounded retrieval chunks that preserve heading context.
package chunker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mlindstrom/docforge/internal/doc"
)

// Config controls chunking behavior.
type Config struct {
	MaxTokens        int     // size bound for leaf chunks
	OverlapFraction  float64 // fraction of MaxTokens carried into the next leaf
	UseTokenCounting bool    // token counting when true, character counting otherwise
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:        1000,
		OverlapFraction:  0.1,
		UseTokenCounting: true,
	}
}

// Validate rejects configurations that cannot produce a valid forest. It runs
// at configuration time, before any document is processed.
func (c Config) Validate() error {
	if c.MaxTokens < 1 {
		return fmt.Errorf("%w: got %d", ErrMaxTokensTooSmall, c.MaxTokens)
	}
	if c.OverlapFraction < 0 || c.OverlapFraction >= 1 {
		return fmt.Errorf("%w: got %g", ErrOverlapOutOfRange, c.OverlapFraction)
	}
	return nil
}

// segment is a maximal run of content blocks under one heading path.
type segment struct {
	path   []string
	blocks []doc.TextBlock
}

// unit is an indivisible piece of a segment: a whole block, or a sentence or
// word split out of an oversized block. Units keep the provenance of the
// block they came from.
type unit struct {
	text     string
	size     int
	page     int
	bbox     doc.BBox
	blockIdx int
}

// ChunkBlocks produces the chunk forest for one document from its full
// ordered block sequence (all pages concatenated in page order).
func ChunkBlocks(docID string, blocks []doc.TextBlock, cfg Config) (*doc.Forest, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	count := cfg.counter()

	var parents, leaves []doc.Chunk
	var warnings []string
	seq := 0

	for _, seg := range segmentByHeadings(blocks) {
		big := buildParent(docID, &seq, seg)
		parents = append(parents, big)

		units := explode(seg.blocks, cfg.MaxTokens, count)
		for _, leaf := range pack(units, cfg, count, &warnings) {
			c := leaf.toChunk(docID, &seq, count)
			c.HeadingPath = copyPath(seg.path)
			c.ParentID = big.ID
			c.Level = big.Level + 1
			leaves = append(leaves, c)
		}
	}

	return doc.NewForest(docID, parents, leaves, warnings), nil
}

// segmentByHeadings walks the block sequence maintaining an explicit
// heading-path stack. Every heading block opens a new segment at its tier;
// content before the first heading forms a preamble segment with an empty
// path. Empty segments are discarded; they produce no chunk.
func segmentByHeadings(blocks []doc.TextBlock) []segment {
	type entry struct {
		title string
		tier  int
	}
	var stack []entry
	var segs []segment
	cur := segment{}

	flush := func() {
		if len(cur.blocks) > 0 {
			segs = append(segs, cur)
		}
	}

	for _, b := range blocks {
		if tier := b.Role.HeadingTier(); tier > 0 {
			flush()
			for len(stack) > 0 && stack[len(stack)-1].tier >= tier {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, entry{title: normalizeSpace(b.Text), tier: tier})
			path := make([]string, len(stack))
			for i, e := range stack {
				path[i] = e.title
			}
			cur = segment{path: path}
			continue
		}
		if strings.TrimSpace(b.Text) == "" {
			continue
		}
		cur.blocks = append(cur.blocks, b)
	}
	flush()
	return segs
}

// buildParent creates the big chunk for a segment: the full section text
// between one heading and the next of equal-or-higher tier, any size.
func buildParent(docID string, seq *int, seg segment) doc.Chunk {
	texts := make([]string, len(seg.blocks))
	for i, b := range seg.blocks {
		texts[i] = b.Text
	}
	text := strings.Join(texts, "\n")

	c := doc.Chunk{
		ID:          nextChunkID(docID, seq),
		DocID:       docID,
		Text:        text,
		TokenCount:  CountTokens(text),
		CharCount:   CountChars(text),
		HeadingPath: copyPath(seg.path),
		Level:       len(seg.path),
		Index:       *seq - 1,
	}
	for _, b := range seg.blocks {
		c.Pages = appendPage(c.Pages, b.Page)
		c.BBoxes = append(c.BBoxes, doc.PageBBox{Page: b.Page, BBox: b.BBox})
	}
	return c
}

// explode reduces a segment's blocks to units no larger than max: whole
// blocks when they fit, sentences from oversized blocks, single words from
// oversized sentences. A lone word above the limit stays one unit and is
// flagged downstream.
func explode(blocks []doc.TextBlock, max int, count func(string) int) []unit {
	var units []unit
	for idx, b := range blocks {
		if n := count(b.Text); n <= max {
			units = append(units, unit{text: b.Text, size: n, page: b.Page, bbox: b.BBox, blockIdx: idx})
			continue
		}
		for _, sent := range splitSentences(b.Text) {
			if n := count(sent); n <= max {
				units = append(units, unit{text: sent, size: n, page: b.Page, bbox: b.BBox, blockIdx: idx})
				continue
			}
			for _, word := range strings.Fields(sent) {
				units = append(units, unit{text: word, size: count(word), page: b.Page, bbox: b.BBox, blockIdx: idx})
			}
		}
	}
	return units
}

// leafAccum accumulates units for one leaf chunk.
type leafAccum struct {
	units     []unit
	size      int
	seed      string // overlap text carried from the previous leaf
	seedSize  int
	seedPage  int
	seedBBox  doc.BBox
	oversized bool
}

func (l *leafAccum) text() string {
	var sb strings.Builder
	if l.seed != "" {
		sb.WriteString(l.seed)
	}
	last := -1
	for i, u := range l.units {
		if sb.Len() > 0 {
			// Units from the same source block read as one flow; block
			// boundaries keep their line break.
			if i > 0 && u.blockIdx == last {
				sb.WriteString(" ")
			} else if i > 0 {
				sb.WriteString("\n")
			} else {
				sb.WriteString(" ")
			}
		}
		sb.WriteString(u.text)
		last = u.blockIdx
	}
	return sb.String()
}

func (l *leafAccum) toChunk(docID string, seq *int, count func(string) int) doc.Chunk {
	text := l.text()
	c := doc.Chunk{
		ID:         nextChunkID(docID, seq),
		DocID:      docID,
		Text:       text,
		TokenCount: CountTokens(text),
		CharCount:  CountChars(text),
		Index:      *seq - 1,
		Oversized:  l.oversized,
	}
	if l.seed != "" {
		c.Pages = appendPage(c.Pages, l.seedPage)
		c.BBoxes = appendBBox(c.BBoxes, doc.PageBBox{Page: l.seedPage, BBox: l.seedBBox})
	}
	for _, u := range l.units {
		c.Pages = appendPage(c.Pages, u.page)
		c.BBoxes = appendBBox(c.BBoxes, doc.PageBBox{Page: u.page, BBox: u.bbox})
	}
	return c
}

// pack groups units into leaves no larger than MaxTokens, seeding each new
// leaf with the trailing OverlapFraction of the previous leaf. An indivisible
// unit above the limit becomes its own flagged leaf and a warning, never a
// document failure. Seeding is skipped when it would push the new leaf over
// the limit: the size bound wins over overlap.
func pack(units []unit, cfg Config, count func(string) int, warnings *[]string) []leafAccum {
	overlap := int(cfg.OverlapFraction * float64(cfg.MaxTokens))
	var leaves []leafAccum
	cur := leafAccum{}

	// In character-counting mode the joining separator is one character of
	// the final text and must be charged to the budget. Token counting splits
	// on whitespace, so separators are free there.
	sep := 0
	if !cfg.UseTokenCounting {
		sep = 1
	}
	cost := func(u unit) int {
		if len(cur.units) == 0 && cur.seed == "" {
			return u.size
		}
		return u.size + sep
	}

	flush := func() {
		if len(cur.units) > 0 {
			leaves = append(leaves, cur)
		}
		cur = leafAccum{}
	}

	for _, u := range units {
		if u.size > cfg.MaxTokens {
			flush()
			*warnings = append(*warnings, fmt.Sprintf(
				"indivisible unit of %d exceeds limit %d, emitted oversized", u.size, cfg.MaxTokens))
			leaves = append(leaves, leafAccum{units: []unit{u}, size: u.size, oversized: true})
			continue
		}
		if cur.size+cost(u) > cfg.MaxTokens && len(cur.units) > 0 {
			prev := cur
			flush()
			if overlap > 0 {
				tail, tailSize := overlapTail(prev.text(), overlap, count)
				if tail != "" && tailSize+sep+u.size <= cfg.MaxTokens {
					src := prev.units[len(prev.units)-1]
					cur.seed = tail
					cur.seedSize = tailSize
					cur.seedPage = src.page
					cur.seedBBox = src.bbox
					cur.size = tailSize
				}
			}
		}
		cur.size += cost(u)
		cur.units = append(cur.units, u)
	}
	flush()
	return leaves
}

func nextChunkID(docID string, seq *int) string {
	id := fmt.Sprintf("%s_chunk_%04d", docID, *seq)
	*seq++
	return id
}

func copyPath(path []string) []string {
	if len(path) == 0 {
		return nil
	}
	out := make([]string, len(path))
	copy(out, path)
	return out
}

func appendPage(pages []int, p int) []int {
	i := sort.SearchInts(pages, p)
	if i < len(pages) && pages[i] == p {
		return pages
	}
	pages = append(pages, 0)
	copy(pages[i+1:], pages[i:])
	pages[i] = p
	return pages
}

func appendBBox(boxes []doc.PageBBox, b doc.PageBBox) []doc.PageBBox {
	if len(boxes) > 0 && boxes[len(boxes)-1] == b {
		return boxes
	}
	return append(boxes, b)
}

// splitSentences does basic sentence splitting on terminal punctuation
// followed by whitespace.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && isSpaceRune(runes[i+1]) {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isSpaceRune(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
