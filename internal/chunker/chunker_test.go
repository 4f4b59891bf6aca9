package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlindstrom/docforge/internal/doc"
)

func para(text string, page int) doc.TextBlock {
	return doc.TextBlock{Text: text, Role: doc.RoleParagraph, Page: page}
}

func heading(text string, tier int) doc.TextBlock {
	roles := map[int]doc.Role{1: doc.RoleHeading1, 2: doc.RoleHeading2, 3: doc.RoleHeading3}
	return doc.TextBlock{Text: text, Role: roles[tier]}
}

// words produces n distinct single-token words "w001 w002 ...".
func words(n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("w%03d", i+1)
	}
	return strings.Join(out, " ")
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	err := Config{MaxTokens: 0, OverlapFraction: 0.1}.Validate()
	assert.ErrorIs(t, err, ErrMaxTokensTooSmall)

	err = Config{MaxTokens: 100, OverlapFraction: 1.0}.Validate()
	assert.ErrorIs(t, err, ErrOverlapOutOfRange)

	err = Config{MaxTokens: 100, OverlapFraction: -0.1}.Validate()
	assert.ErrorIs(t, err, ErrOverlapOutOfRange)
}

func TestChunkBlocks_RejectsBadConfig(t *testing.T) {
	_, err := ChunkBlocks("doc", []doc.TextBlock{para("x", 0)}, Config{MaxTokens: 0})
	assert.ErrorIs(t, err, ErrMaxTokensTooSmall)
}

func TestChunkBlocks_HeadingPath(t *testing.T) {
	blocks := []doc.TextBlock{
		heading("1. SITE DATA", 1),
		heading("1.1 Elevation", 2),
		para("The site sits at 1200 meters above sea level.", 0),
		para("Barometric pressure is correspondingly reduced.", 0),
		para("All equipment ratings account for the altitude.", 0),
	}
	forest, err := ChunkBlocks("site", blocks, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, forest.Parents, 1)
	parent := forest.Parents[0]
	assert.Equal(t, []string{"1. SITE DATA", "1.1 Elevation"}, parent.HeadingPath)
	assert.Equal(t, 2, parent.Level)
	assert.Equal(t,
		"The site sits at 1200 meters above sea level.\n"+
			"Barometric pressure is correspondingly reduced.\n"+
			"All equipment ratings account for the altitude.",
		parent.Text)

	require.NotEmpty(t, forest.Leaves)
	for _, leaf := range forest.Leaves {
		assert.Equal(t, parent.HeadingPath, leaf.HeadingPath)
		assert.Equal(t, parent.ID, leaf.ParentID)
		assert.Equal(t, 3, leaf.Level)
	}
}

func TestChunkBlocks_HeadingStackPops(t *testing.T) {
	blocks := []doc.TextBlock{
		heading("Alpha", 1),
		para("alpha body", 0),
		heading("Alpha Sub", 2),
		para("sub body", 0),
		heading("Beta", 1),
		para("beta body", 0),
	}
	forest, err := ChunkBlocks("doc", blocks, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, forest.Parents, 3)
	assert.Equal(t, []string{"Alpha"}, forest.Parents[0].HeadingPath)
	assert.Equal(t, []string{"Alpha", "Alpha Sub"}, forest.Parents[1].HeadingPath)
	assert.Equal(t, []string{"Beta"}, forest.Parents[2].HeadingPath)
}

func TestChunkBlocks_PreambleHasEmptyPath(t *testing.T) {
	blocks := []doc.TextBlock{
		para("Cover page text before any heading.", 0),
		heading("Introduction", 1),
		para("intro body", 0),
	}
	forest, err := ChunkBlocks("doc", blocks, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, forest.Parents, 2)
	assert.Empty(t, forest.Parents[0].HeadingPath)
	assert.Equal(t, 0, forest.Parents[0].Level)
	assert.Equal(t, []string{"Introduction"}, forest.Parents[1].HeadingPath)
}

func TestChunkBlocks_OverlapSeeding(t *testing.T) {
	cfg := Config{MaxTokens: 50, OverlapFraction: 0.2, UseTokenCounting: true}
	blocks := []doc.TextBlock{para(words(120), 0)}

	forest, err := ChunkBlocks("doc", blocks, cfg)
	require.NoError(t, err)
	require.Len(t, forest.Leaves, 3)

	l1 := strings.Fields(forest.Leaves[0].Text)
	l2 := strings.Fields(forest.Leaves[1].Text)
	l3 := strings.Fields(forest.Leaves[2].Text)

	assert.Len(t, l1, 50)
	assert.Len(t, l2, 50)
	assert.Len(t, l3, 40)

	// Each follow-up leaf starts with the last 10 tokens of its predecessor.
	assert.Equal(t, l1[40:], l2[:10])
	assert.Equal(t, l2[40:], l3[:10])

	for _, leaf := range forest.Leaves {
		assert.LessOrEqual(t, leaf.TokenCount, cfg.MaxTokens)
		assert.False(t, leaf.Oversized)
	}
}

func TestChunkBlocks_LeafBound(t *testing.T) {
	cfg := Config{MaxTokens: 20, OverlapFraction: 0.1, UseTokenCounting: true}
	blocks := []doc.TextBlock{
		heading("Section", 1),
		para("One short sentence here. Another one follows it. A third closes the paragraph.", 0),
		para(words(45), 0),
		para("Tail paragraph with a few more words in it.", 1),
	}
	forest, err := ChunkBlocks("doc", blocks, cfg)
	require.NoError(t, err)

	for _, leaf := range forest.Leaves {
		if !leaf.Oversized {
			assert.LessOrEqual(t, leaf.TokenCount, cfg.MaxTokens, "leaf %s", leaf.ID)
		}
	}
}

func TestChunkBlocks_OversizedUnitFlagged(t *testing.T) {
	cfg := Config{MaxTokens: 10, OverlapFraction: 0, UseTokenCounting: false}
	blocks := []doc.TextBlock{para("Pneumonoultramicroscopicsilicovolcanoconiosis", 0)}

	forest, err := ChunkBlocks("doc", blocks, cfg)
	require.NoError(t, err)
	require.Len(t, forest.Leaves, 1)
	assert.True(t, forest.Leaves[0].Oversized)
	assert.Greater(t, forest.Leaves[0].CharCount, cfg.MaxTokens)
	require.Len(t, forest.Warnings, 1)
	assert.Contains(t, forest.Warnings[0], "oversized")
}

func TestChunkBlocks_ZeroOverlapReconstructs(t *testing.T) {
	cfg := Config{MaxTokens: 12, OverlapFraction: 0, UseTokenCounting: true}
	blocks := []doc.TextBlock{
		para("The first paragraph has exactly these words in it. It continues with a second sentence.", 0),
		para("A second paragraph follows the first one here.", 0),
		para(words(30), 1),
	}
	forest, err := ChunkBlocks("doc", blocks, cfg)
	require.NoError(t, err)
	require.Greater(t, len(forest.Leaves), 1)

	var original, rebuilt []string
	for _, b := range blocks {
		original = append(original, strings.Fields(b.Text)...)
	}
	for _, leaf := range forest.Leaves {
		rebuilt = append(rebuilt, strings.Fields(leaf.Text)...)
	}
	assert.Equal(t, original, rebuilt)
}

func TestChunkBlocks_ChildrenLookup(t *testing.T) {
	cfg := Config{MaxTokens: 10, OverlapFraction: 0, UseTokenCounting: true}
	blocks := []doc.TextBlock{
		heading("Section", 1),
		para(words(25), 0),
	}
	forest, err := ChunkBlocks("doc", blocks, cfg)
	require.NoError(t, err)
	require.Len(t, forest.Parents, 1)
	require.Len(t, forest.Leaves, 3)

	children := forest.Children(forest.Parents[0].ID)
	require.Len(t, children, 3)
	for i, leaf := range forest.Leaves {
		assert.Equal(t, leaf.ID, children[i])
	}
	assert.Empty(t, forest.Children("missing"))
}

func TestChunkBlocks_SequentialIDs(t *testing.T) {
	blocks := []doc.TextBlock{
		heading("A", 1),
		para("first section", 0),
		heading("B", 1),
		para("second section", 0),
	}
	forest, err := ChunkBlocks("mydoc", blocks, DefaultConfig())
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, c := range forest.AllChunks() {
		assert.True(t, strings.HasPrefix(c.ID, "mydoc_chunk_"), "id %s", c.ID)
		assert.False(t, seen[c.ID], "duplicate id %s", c.ID)
		seen[c.ID] = true
	}
	assert.Equal(t, "mydoc_chunk_0000", forest.Parents[0].ID)
}

func TestChunkBlocks_PageProvenance(t *testing.T) {
	blocks := []doc.TextBlock{
		heading("Section", 1),
		para("text on page zero", 0),
		para("text on page two", 2),
	}
	forest, err := ChunkBlocks("doc", blocks, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, forest.Parents, 1)
	assert.Equal(t, []int{0, 2}, forest.Parents[0].Pages)

	lo, hi := forest.PageSpan()
	assert.Equal(t, 0, lo)
	assert.Equal(t, 2, hi)
}

func TestChunkBlocks_CharBoundIncludesSeparators(t *testing.T) {
	// Two blocks of exactly half the budget: joining them adds a newline,
	// so both cannot share one leaf.
	cfg := Config{MaxTokens: 40, OverlapFraction: 0, UseTokenCounting: false}
	blocks := []doc.TextBlock{
		para(strings.Repeat("a", 20), 0),
		para(strings.Repeat("b", 20), 0),
	}
	forest, err := ChunkBlocks("doc", blocks, cfg)
	require.NoError(t, err)

	require.Len(t, forest.Leaves, 2)
	for _, leaf := range forest.Leaves {
		assert.LessOrEqual(t, leaf.CharCount, cfg.MaxTokens, "leaf %s", leaf.ID)
		assert.False(t, leaf.Oversized)
	}

	// A budget wide enough for both plus the separator keeps them together.
	cfg.MaxTokens = 41
	forest, err = ChunkBlocks("doc", blocks, cfg)
	require.NoError(t, err)
	require.Len(t, forest.Leaves, 1)
	assert.Equal(t, 41, forest.Leaves[0].CharCount)
}

func TestChunkBlocks_CharCounting(t *testing.T) {
	cfg := Config{MaxTokens: 40, OverlapFraction: 0, UseTokenCounting: false}
	blocks := []doc.TextBlock{
		para("Short sentence one. Short sentence two. Short sentence three here.", 0),
	}
	forest, err := ChunkBlocks("doc", blocks, cfg)
	require.NoError(t, err)
	for _, leaf := range forest.Leaves {
		if !leaf.Oversized {
			assert.LessOrEqual(t, leaf.CharCount, cfg.MaxTokens)
		}
	}
}

func TestChunkBlocks_EmptyInput(t *testing.T) {
	forest, err := ChunkBlocks("doc", nil, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, forest.Parents)
	assert.Empty(t, forest.Leaves)
}

func TestStats(t *testing.T) {
	cfg := Config{MaxTokens: 10, OverlapFraction: 0, UseTokenCounting: true}
	blocks := []doc.TextBlock{
		heading("Section", 1),
		para(words(25), 1),
	}
	forest, err := ChunkBlocks("doc", blocks, cfg)
	require.NoError(t, err)

	s := Stats(forest, cfg)
	assert.Equal(t, 1, s.Parents)
	assert.Equal(t, 3, s.Leaves)
	assert.Equal(t, 4, s.TotalChunks)
	assert.Equal(t, 0, s.Oversized)
	assert.Equal(t, 5, s.MinLeafSize)
	assert.Equal(t, 10, s.MaxLeafSize)
	assert.InDelta(t, 25.0/3.0, s.AvgLeafSize, 1e-9)
	assert.Equal(t, 1, s.PageStart)
	assert.Equal(t, 1, s.PageEnd)

	empty := Stats(doc.NewForest("d", nil, nil, nil), cfg)
	assert.Zero(t, empty.TotalChunks)
}

func TestStats_CharCounting(t *testing.T) {
	cfg := Config{MaxTokens: 40, OverlapFraction: 0, UseTokenCounting: false}
	blocks := []doc.TextBlock{
		para(strings.Repeat("a", 20), 0),
		para(strings.Repeat("b", 30), 0),
	}
	forest, err := ChunkBlocks("doc", blocks, cfg)
	require.NoError(t, err)
	require.Len(t, forest.Leaves, 2)

	s := Stats(forest, cfg)
	assert.Equal(t, 20, s.MinLeafSize)
	assert.Equal(t, 30, s.MaxLeafSize)
	assert.InDelta(t, 25.0, s.AvgLeafSize, 1e-9)
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("First one. Second one! Third one? Trailing fragment")
	assert.Equal(t, []string{"First one.", "Second one!", "Third one?", "Trailing fragment"}, got)

	assert.Equal(t, []string{"Rated 3.5 GPM at 60 Hz."},
		splitSentences("Rated 3.5 GPM at 60 Hz."),
		"decimal points do not split")
}

func TestOverlapTail(t *testing.T) {
	count := CountTokens

	tail, size := overlapTail("one two three four five six", 2, count)
	assert.Equal(t, "five six", tail)
	assert.Equal(t, 2, size)

	tail, size = overlapTail("one two", 5, count)
	assert.Equal(t, "", tail)
	assert.Equal(t, 0, size)

	tail, _ = overlapTail("lonely", 1, count)
	assert.Equal(t, "", tail, "seed never duplicates the whole text")
}
