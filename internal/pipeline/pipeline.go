// Package pipeline orchestrates ingestion: pages of positioned fragments are
// extracted into ordered blocks, chunked into a forest, stored, and indexed.
// Documents are processed in parallel; within one document the stages run
// strictly in sequence, each on the complete output of the previous one.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/mlindstrom/docforge/internal/chunker"
	"github.com/mlindstrom/docforge/internal/corpus"
	"github.com/mlindstrom/docforge/internal/doc"
	"github.com/mlindstrom/docforge/internal/extractor"
	"github.com/mlindstrom/docforge/internal/keyword"
)

// Document is one ingestion input: a source name plus its pages of
// positioned fragments. Each document is owned exclusively by the worker
// task processing it.
type Document struct {
	Name  string
	Pages []doc.Page
}

// Normalizer rewrites block text in place between extraction and chunking.
// It must not change block count or order.
type Normalizer func(blocks []doc.TextBlock)

// Pipeline wires extractor, chunker, corpus store and keyword index.
type Pipeline struct {
	extractor  *extractor.Extractor
	chunkCfg   chunker.Config
	store      *corpus.Store
	index      *keyword.Handle
	tokenizer  *keyword.Tokenizer
	params     keyword.Params
	normalizer Normalizer
	pool       *ants.Pool
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the number of documents processed concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithNormalizer installs the external text-normalization stage, run on the
// ordered blocks before chunking.
func WithNormalizer(n Normalizer) Option {
	return func(p *Pipeline) error {
		p.normalizer = n
		return nil
	}
}

// WithIndexParams overrides the BM25 parameters used on rebuild.
func WithIndexParams(params keyword.Params) Option {
	return func(p *Pipeline) error {
		p.params = params
		return nil
	}
}

// WithTokenizer overrides the index tokenizer.
func WithTokenizer(tok *keyword.Tokenizer) Option {
	return func(p *Pipeline) error {
		p.tokenizer = tok
		return nil
	}
}

// New creates a pipeline. The chunker configuration is validated here, before
// any document is processed.
func New(store *corpus.Store, index *keyword.Handle, extCfg extractor.Config, chunkCfg chunker.Config, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if index == nil {
		return nil, ErrIndexHandleRequired
	}
	if err := chunkCfg.Validate(); err != nil {
		return nil, err
	}

	size := runtime.NumCPU() / 2
	if size < 1 {
		size = 1
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		extractor: extractor.New(extCfg),
		chunkCfg:  chunkCfg,
		store:     store,
		index:     index,
		tokenizer: keyword.NewTokenizer(nil, 0),
		params:    keyword.DefaultParams(),
		pool:      pool,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}
	return p, nil
}

// Release shuts down the worker pool.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// IngestDocument runs the full sequential pipeline for one document and
// stores the resulting forest. Chunker warnings are logged, never fatal.
func (p *Pipeline) IngestDocument(ctx context.Context, d Document) (*doc.Forest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := p.logger.With("name", d.Name)

	var blocks []doc.TextBlock
	for _, page := range d.Pages {
		pageBlocks, _ := p.extractor.ExtractPage(page.Fragments, page.Rotation)
		blocks = append(blocks, pageBlocks...)
	}
	if p.normalizer != nil {
		p.normalizer(blocks)
	}

	docID := DocumentID(d.Name, flattenText(blocks))
	forest, err := chunker.ChunkBlocks(docID, blocks, p.chunkCfg)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", d.Name, err)
	}
	for _, w := range forest.Warnings {
		log.Warn("chunking warning", "doc_id", docID, "warning", w)
	}

	if err := p.store.PutForest(forest); err != nil {
		return nil, fmt.Errorf("store %s: %w", d.Name, err)
	}
	log.Info("ingested document",
		"doc_id", docID,
		"pages", len(d.Pages),
		"blocks", len(blocks),
		"parents", len(forest.Parents),
		"leaves", len(forest.Leaves))
	return forest, nil
}

// IngestMarkdown ingests a Markdown document through the same chunking path.
func (p *Pipeline) IngestMarkdown(ctx context.Context, name string, src []byte) (*doc.Forest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	blocks := chunker.BlocksFromMarkdown(src)
	if p.normalizer != nil {
		p.normalizer(blocks)
	}
	docID := DocumentID(name, flattenText(blocks))
	forest, err := chunker.ChunkBlocks(docID, blocks, p.chunkCfg)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", name, err)
	}
	if err := p.store.PutForest(forest); err != nil {
		return nil, fmt.Errorf("store %s: %w", name, err)
	}
	p.logger.Info("ingested markdown", "name", name, "doc_id", docID, "leaves", len(forest.Leaves))
	return forest, nil
}

// IngestBatch processes documents concurrently on the worker pool. All
// documents are attempted; the first error is returned. Tasks share no
// mutable state, as each document's fragments are owned by its task.
func (p *Pipeline) IngestBatch(ctx context.Context, docs []Document) error {
	var wg sync.WaitGroup
	errs := make([]error, len(docs))

	for i, d := range docs {
		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()
			_, errs[i] = p.IngestDocument(ctx, d)
		})
		if submitErr != nil {
			wg.Done()
			errs[i] = submitErr
		}
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("ingest %s: %w", docs[i].Name, err)
		}
	}
	return nil
}

// Rebuild constructs a fresh keyword index from every stored leaf chunk and
// publishes it on the handle in one atomic step.
func (p *Pipeline) Rebuild(ctx context.Context) (*keyword.Index, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	leaves, err := p.store.AllLeaves()
	if err != nil {
		return nil, fmt.Errorf("collect leaves: %w", err)
	}
	idx := keyword.Build(leaves, p.tokenizer, p.params)
	p.index.Swap(idx)
	p.logger.Info("rebuilt keyword index", "chunks", idx.Size())
	return idx, nil
}

func flattenText(blocks []doc.TextBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(b.Text)
	}
	return sb.String()
}
