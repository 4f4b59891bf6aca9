package keyword

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mlindstrom/docforge/internal/doc"
)

// Persisted index directory layout.
const (
	manifestFile  = "manifest.json"
	postingsFile  = "postings.json"
	tokenizedFile = "tokenized.json"
	documentsFile = "documents.json"
)

var (
	// ErrTokenizerVersion is returned when a persisted index was built with
	// a different tokenization scheme than this binary uses.
	ErrTokenizerVersion = errors.New("tokenizer version mismatch")

	// ErrCorruptIndex is returned when a persisted artifact cannot be
	// decoded or is inconsistent with the manifest.
	ErrCorruptIndex = errors.New("corrupt index artifact")
)

// manifest records everything needed to detect an incompatible or stale
// index before deserializing the heavier artifacts.
type manifest struct {
	TokenizerVersion string   `json:"tokenizer_version"`
	Params           Params   `json:"params"`
	MinTokenLength   int      `json:"min_token_length"`
	Stopwords        []string `json:"stopwords"`
	NumDocs          int      `json:"num_documents"`
	BuiltAt          string   `json:"built_at"`
}

// postingsArtifact holds the postings and statistics needed to recompute
// scores. IDF is rederived on load; it is a pure function of these fields.
type postingsArtifact struct {
	Postings map[string][]posting `json:"postings"`
	DocLen   []int                `json:"doc_len"`
	AvgDL    float64              `json:"avgdl"`
}

// Save persists the index into dir: manifest, postings/statistics, tokenized
// corpus, and the full chunk records in insertion order. The write goes to a
// temporary sibling directory first and is swapped into place at the end, so
// a crash mid-save never corrupts a previously persisted index.
func (idx *Index) Save(dir string) error {
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create index parent dir: %w", err)
	}
	tmp, err := os.MkdirTemp(parent, ".keyword-*")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	m := manifest{
		TokenizerVersion: TokenizerVersion,
		Params:           idx.params,
		MinTokenLength:   idx.tok.MinTokenLength(),
		Stopwords:        idx.tok.Stopwords(),
		NumDocs:          len(idx.records),
		BuiltAt:          time.Now().UTC().Format(time.RFC3339),
	}
	art := postingsArtifact{
		Postings: idx.postings,
		DocLen:   idx.docLen,
		AvgDL:    idx.avgdl,
	}

	if err := writeJSON(filepath.Join(tmp, manifestFile), m); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(tmp, postingsFile), art); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(tmp, tokenizedFile), idx.tokenized); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(tmp, documentsFile), idx.records); err != nil {
		return err
	}

	return swapDir(tmp, dir)
}

// Load restores a persisted index. The manifest is read and validated before
// any other artifact is touched; a version mismatch or corrupt artifact is a
// load failure and the caller's current in-memory index stays usable.
func Load(dir string) (*Index, error) {
	var m manifest
	if err := readJSON(filepath.Join(dir, manifestFile), &m); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if m.TokenizerVersion != TokenizerVersion {
		return nil, fmt.Errorf("%w: index has %q, binary has %q",
			ErrTokenizerVersion, m.TokenizerVersion, TokenizerVersion)
	}

	var art postingsArtifact
	if err := readJSON(filepath.Join(dir, postingsFile), &art); err != nil {
		return nil, err
	}
	var tokenized [][]string
	if err := readJSON(filepath.Join(dir, tokenizedFile), &tokenized); err != nil {
		return nil, err
	}
	var records []doc.Chunk
	if err := readJSON(filepath.Join(dir, documentsFile), &records); err != nil {
		return nil, err
	}

	if len(records) != m.NumDocs || len(tokenized) != m.NumDocs || len(art.DocLen) != m.NumDocs {
		return nil, fmt.Errorf("%w: artifact sizes disagree with manifest (%d docs)",
			ErrCorruptIndex, m.NumDocs)
	}

	idx := &Index{
		params:    m.Params,
		tok:       NewTokenizer(m.Stopwords, m.MinTokenLength),
		records:   records,
		tokenized: tokenized,
		docLen:    art.DocLen,
		avgdl:     art.AvgDL,
		postings:  art.Postings,
	}
	if idx.postings == nil {
		idx.postings = make(map[string][]posting)
	}
	idx.computeIDF()
	return idx, nil
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptIndex, filepath.Base(path), err)
	}
	return nil
}

// swapDir replaces dst with src. The previous directory is moved aside
// before the final rename and removed only after the swap succeeds.
func swapDir(src, dst string) error {
	old := dst + ".old"
	_ = os.RemoveAll(old)
	if _, err := os.Stat(dst); err == nil {
		if err := os.Rename(dst, old); err != nil {
			return fmt.Errorf("stage old index: %w", err)
		}
	}
	if err := os.Rename(src, dst); err != nil {
		// Try to put the previous index back.
		_ = os.Rename(old, dst)
		return fmt.Errorf("publish index: %w", err)
	}
	_ = os.RemoveAll(old)
	return nil
}
