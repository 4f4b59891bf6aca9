// Package doc holds the shared data model for the ingestion pipeline:
// positioned text fragments, reading-order blocks, and retrieval chunks.
// It contains no behavior beyond small geometric and lookup helpers.
package doc

import "sort"

// Role classifies the structural function of a text block.
type Role string

const (
	RoleHeading1  Role = "heading1"
	RoleHeading2  Role = "heading2"
	RoleHeading3  Role = "heading3"
	RoleParagraph Role = "paragraph"
	RoleListItem  Role = "list_item"
	RoleTableCell Role = "table_cell"
	RoleUnknown   Role = "unknown"
)

// HeadingTier returns 1, 2 or 3 for heading roles and 0 otherwise.
func (r Role) HeadingTier() int {
	switch r {
	case RoleHeading1:
		return 1
	case RoleHeading2:
		return 2
	case RoleHeading3:
		return 3
	}
	return 0
}

// IsHeading reports whether the role is one of the heading tiers.
func (r Role) IsHeading() bool { return r.HeadingTier() > 0 }

// BBox is an axis-aligned rectangle in page coordinates.
// X grows rightward, Y grows downward (top-left origin).
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

func (b BBox) Width() float64  { return b.X1 - b.X0 }
func (b BBox) Height() float64 { return b.Y1 - b.Y0 }
func (b BBox) Area() float64   { return b.Width() * b.Height() }

// Union returns the smallest box covering both b and o.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		X0: min(b.X0, o.X0),
		Y0: min(b.Y0, o.Y0),
		X1: max(b.X1, o.X1),
		Y1: max(b.Y1, o.Y1),
	}
}

// Clamp repairs a degenerate box by swapping inverted edges.
// Zero-area boxes are left as-is; they are valid anchors for citations.
func (b BBox) Clamp() BBox {
	if b.X1 < b.X0 {
		b.X0, b.X1 = b.X1, b.X0
	}
	if b.Y1 < b.Y0 {
		b.Y0, b.Y1 = b.Y1, b.Y0
	}
	return b
}

// TextFragment is a single positioned run of text as reported by the page
// parser. Fragments are owned by the extraction caller and treated as
// immutable: extraction produces fresh values, never patches these in place.
type TextFragment struct {
	Text     string
	BBox     BBox
	FontName string
	FontSize float64
	Rotation int // page rotation in degrees, carried alongside, never applied
	Page     int // 0-based page index
}

// TextBlock is a reading-order-normalized unit assembled from one or more
// fragments, with an inferred structural role. Created once by the extractor;
// the external normalizer may rewrite Text in place between extraction and
// chunking but block count and order never change.
type TextBlock struct {
	Text     string  `json:"text"`
	BBox     BBox    `json:"bbox"`
	FontSize float64 `json:"font_size"`
	Role     Role    `json:"role"`
	Page     int     `json:"page"`
	Rotation int     `json:"rotation"`
}

// Page is one page of extraction input: the page's fragments plus its
// rotation value.
type Page struct {
	Fragments []TextFragment
	Rotation  int
}

// PageBBox ties a bounding box to the page it appears on, for citation and
// highlighting downstream.
type PageBBox struct {
	Page int  `json:"page"`
	BBox BBox `json:"bbox"`
}

// Chunk is a retrieval unit of bounded size with provenance and heading
// ancestry. Chunks are created once by the chunker and replaced wholesale on
// re-ingestion; ParentID is a relation only, children are discovered through
// the forest's lookup table.
type Chunk struct {
	ID          string     `json:"chunk_id"`
	DocID       string     `json:"doc_id"`
	Text        string     `json:"text"`
	Pages       []int      `json:"pages"`
	TokenCount  int        `json:"token_count"`
	CharCount   int        `json:"char_count"`
	HeadingPath []string   `json:"heading_path,omitempty"`
	ParentID    string     `json:"parent_chunk_id,omitempty"`
	Level       int        `json:"level"`
	Index       int        `json:"chunk_index"`
	Oversized   bool       `json:"oversized,omitempty"`
	BBoxes      []PageBBox `json:"bboxes,omitempty"`
}

// Forest is the chunk hierarchy for one document: big parent chunks and the
// size-bounded leaves under them. Immutable once built.
type Forest struct {
	DocID    string   `json:"doc_id"`
	Parents  []Chunk  `json:"parents"`
	Leaves   []Chunk  `json:"leaves"`
	Warnings []string `json:"warnings,omitempty"`

	children map[string][]string
}

// NewForest builds a forest and its parent→children lookup table. The table
// is derived once here so parents never hold pointers back to children.
func NewForest(docID string, parents, leaves []Chunk, warnings []string) *Forest {
	f := &Forest{
		DocID:    docID,
		Parents:  parents,
		Leaves:   leaves,
		Warnings: warnings,
		children: make(map[string][]string),
	}
	for _, leaf := range leaves {
		if leaf.ParentID != "" {
			f.children[leaf.ParentID] = append(f.children[leaf.ParentID], leaf.ID)
		}
	}
	return f
}

// Children returns the leaf chunk IDs under a parent chunk, in creation order.
func (f *Forest) Children(parentID string) []string {
	return f.children[parentID]
}

// AllChunks returns parents followed by leaves, each in creation order.
func (f *Forest) AllChunks() []Chunk {
	out := make([]Chunk, 0, len(f.Parents)+len(f.Leaves))
	out = append(out, f.Parents...)
	out = append(out, f.Leaves...)
	return out
}

// PageSpan returns the lowest and highest page index covered by the forest,
// or (0, 0) for an empty forest.
func (f *Forest) PageSpan() (int, int) {
	var pages []int
	for _, c := range f.AllChunks() {
		pages = append(pages, c.Pages...)
	}
	if len(pages) == 0 {
		return 0, 0
	}
	sort.Ints(pages)
	return pages[0], pages[len(pages)-1]
}
