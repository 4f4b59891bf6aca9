package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlindstrom/docforge/internal/chunker"
	"github.com/mlindstrom/docforge/internal/corpus"
	"github.com/mlindstrom/docforge/internal/doc"
	"github.com/mlindstrom/docforge/internal/extractor"
	"github.com/mlindstrom/docforge/internal/keyword"
)

func newTestPipeline(t *testing.T, opts ...Option) (*Pipeline, *corpus.Store, *keyword.Handle) {
	t.Helper()
	store, err := corpus.Open("", true)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	handle := keyword.NewHandle()
	pipe, err := New(store, handle, extractor.Config{}, chunker.DefaultConfig(), opts...)
	require.NoError(t, err)
	t.Cleanup(pipe.Release)
	return pipe, store, handle
}

func textPage(lines ...string) doc.Page {
	frags := make([]doc.TextFragment, len(lines))
	for i, line := range lines {
		y := 72 + float64(i)*40
		frags[i] = doc.TextFragment{
			Text:     line,
			FontSize: 10,
			BBox:     doc.BBox{X0: 72, Y0: y, X1: 400, Y1: y + 10},
		}
	}
	return doc.Page{Fragments: frags}
}

func TestNew_Validation(t *testing.T) {
	store, err := corpus.Open("", true)
	require.NoError(t, err)
	defer store.Close()
	handle := keyword.NewHandle()

	_, err = New(nil, handle, extractor.Config{}, chunker.DefaultConfig())
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = New(store, nil, extractor.Config{}, chunker.DefaultConfig())
	assert.ErrorIs(t, err, ErrIndexHandleRequired)

	_, err = New(store, handle, extractor.Config{}, chunker.Config{MaxTokens: 0})
	assert.ErrorIs(t, err, chunker.ErrMaxTokensTooSmall)

	_, err = New(store, handle, extractor.Config{}, chunker.Config{MaxTokens: 100, OverlapFraction: 2})
	assert.ErrorIs(t, err, chunker.ErrOverlapOutOfRange)
}

func TestDocumentID(t *testing.T) {
	a := DocumentID("manual.pdf", "body text")
	assert.Len(t, a, 16)
	assert.Equal(t, a, DocumentID("manual.pdf", "body text"))
	assert.NotEqual(t, a, DocumentID("manual.pdf", "other text"))
	assert.NotEqual(t, a, DocumentID("other.pdf", "body text"))
}

func TestIngestDocument(t *testing.T) {
	pipe, store, _ := newTestPipeline(t)

	d := Document{
		Name: "manual.pdf",
		Pages: []doc.Page{
			textPage("The pump station houses three centrifugal pumps.",
				"Each pump is rated for 95 GPM at 60 Hz."),
		},
	}
	forest, err := pipe.IngestDocument(context.Background(), d)
	require.NoError(t, err)
	require.NotEmpty(t, forest.Leaves)

	stored, err := store.GetForest(forest.DocID)
	require.NoError(t, err)
	assert.Equal(t, forest.Leaves, stored.Leaves)

	// Same content maps to the same document id.
	again, err := pipe.IngestDocument(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, forest.DocID, again.DocID)

	ids, err := store.ListDocuments()
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestIngestDocument_CancelledContext(t *testing.T) {
	pipe, _, _ := newTestPipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pipe.IngestDocument(ctx, Document{Name: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIngestDocument_NormalizerRuns(t *testing.T) {
	normalize := func(blocks []doc.TextBlock) {
		for i := range blocks {
			blocks[i].Text = strings.ToUpper(blocks[i].Text)
		}
	}
	pipe, _, _ := newTestPipeline(t, WithNormalizer(normalize))

	forest, err := pipe.IngestDocument(context.Background(), Document{
		Name:  "n.pdf",
		Pages: []doc.Page{textPage("lowercase body text here.")},
	})
	require.NoError(t, err)
	require.NotEmpty(t, forest.Leaves)
	assert.Equal(t, "LOWERCASE BODY TEXT HERE.", forest.Leaves[0].Text)
}

func TestIngestBatchAndRebuild(t *testing.T) {
	pipe, _, handle := newTestPipeline(t, WithPoolSize(2))

	docs := []Document{
		{Name: "pumps.pdf", Pages: []doc.Page{textPage("Centrifugal pump impeller inspection schedule.")}},
		{Name: "valves.pdf", Pages: []doc.Page{textPage("Discharge valve isolation procedure for maintenance.")}},
		{Name: "panels.pdf", Pages: []doc.Page{textPage("Electrical panel ratings for outdoor installation.")}},
	}
	require.NoError(t, pipe.IngestBatch(context.Background(), docs))

	idx, err := pipe.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Size())
	assert.Same(t, idx, handle.Current())

	results := handle.Search("impeller inspection", 5)
	require.NotEmpty(t, results)
	rec, ok := idx.Record(results[0].ChunkID)
	require.True(t, ok)
	assert.Contains(t, rec.Text, "impeller")
}

func TestIngestMarkdown(t *testing.T) {
	pipe, store, _ := newTestPipeline(t)

	src := []byte("# Overview\n\nMarkdown body paragraph.\n")
	forest, err := pipe.IngestMarkdown(context.Background(), "notes.md", src)
	require.NoError(t, err)
	require.Len(t, forest.Parents, 1)
	assert.Equal(t, []string{"Overview"}, forest.Parents[0].HeadingPath)

	_, err = store.GetForest(forest.DocID)
	assert.NoError(t, err)
}

func TestRebuild_EmptyCorpus(t *testing.T) {
	pipe, _, handle := newTestPipeline(t)

	idx, err := pipe.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Size())
	assert.Empty(t, handle.Search("anything", 5))
}
