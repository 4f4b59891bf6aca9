package keyword

import (
	"math"
	"sort"

	"github.com/mlindstrom/docforge/internal/doc"
)

// Params are the BM25-Okapi ranking parameters.
type Params struct {
	K1      float64 `json:"k1"`      // term-frequency saturation
	B       float64 `json:"b"`       // length normalization
	Epsilon float64 `json:"epsilon"` // floor factor for negative IDF
}

// DefaultParams returns the standard Okapi parameters.
func DefaultParams() Params {
	return Params{K1: 1.2, B: 0.75, Epsilon: 0.25}
}

// posting records one chunk's occurrence data for a term.
type posting struct {
	Doc  int `json:"doc"` // position in insertion order
	Freq int `json:"tf"`
}

// Metadata is the per-hit payload returned with search results.
type Metadata struct {
	DocID       string   `json:"doc_id"`
	Pages       []int    `json:"pages,omitempty"`
	HeadingPath []string `json:"heading_path,omitempty"`
	ParentID    string   `json:"parent_chunk_id,omitempty"`
	Level       int      `json:"level"`
}

// Result is one ranked search hit.
type Result struct {
	ChunkID string
	Score   float64
	Meta    Metadata
}

// Index is an immutable inverted index over a chunk batch. Build a fresh
// Index and publish it through a Handle; postings are never mutated in place.
type Index struct {
	params    Params
	tok       *Tokenizer
	records   []doc.Chunk // insertion order; the stable tie-break authority
	tokenized [][]string
	docLen    []int
	avgdl     float64
	postings  map[string][]posting
	idf       map[string]float64
}

// Build constructs an index from a chunk batch. A zero-chunk batch produces a
// valid, empty, persistable index.
func Build(chunks []doc.Chunk, tok *Tokenizer, params Params) *Index {
	if tok == nil {
		tok = NewTokenizer(nil, 0)
	}
	idx := &Index{
		params:    params,
		tok:       tok,
		records:   append([]doc.Chunk(nil), chunks...),
		tokenized: make([][]string, len(chunks)),
		docLen:    make([]int, len(chunks)),
		postings:  make(map[string][]posting),
	}

	totalLen := 0
	for i, c := range chunks {
		tokens := tok.Tokenize(c.Text)
		idx.tokenized[i] = tokens
		idx.docLen[i] = len(tokens)
		totalLen += len(tokens)

		freqs := make(map[string]int, len(tokens))
		for _, t := range tokens {
			freqs[t]++
		}
		for term, tf := range freqs {
			idx.postings[term] = append(idx.postings[term], posting{Doc: i, Freq: tf})
		}
	}
	if len(chunks) > 0 {
		idx.avgdl = float64(totalLen) / float64(len(chunks))
	}
	idx.computeIDF()
	return idx
}

// computeIDF derives per-term inverse document frequency from the postings.
// Negative IDFs (terms in more than half the corpus) are floored at
// Epsilon × mean IDF, following Okapi practice.
func (idx *Index) computeIDF() {
	idx.idf = make(map[string]float64, len(idx.postings))
	n := float64(len(idx.records))
	if n == 0 {
		return
	}

	var sum float64
	var negative []string
	for term, plist := range idx.postings {
		df := float64(len(plist))
		v := math.Log((n - df + 0.5) / (df + 0.5))
		idx.idf[term] = v
		sum += v
		if v < 0 {
			negative = append(negative, term)
		}
	}
	if len(idx.idf) == 0 {
		return
	}
	floor := idx.params.Epsilon * (sum / float64(len(idx.idf)))
	for _, term := range negative {
		idx.idf[term] = floor
	}
}

// Size returns the number of indexed chunks.
func (idx *Index) Size() int {
	if idx == nil {
		return 0
	}
	return len(idx.records)
}

// Search returns up to topK chunks ranked by BM25 score, descending, with
// ties broken by chunk insertion order. Querying a nil or empty index returns
// an empty result list. Only strictly positive scores rank.
func (idx *Index) Search(query string, topK int) []Result {
	if idx == nil || len(idx.records) == 0 || topK <= 0 {
		return []Result{}
	}

	scores := make([]float64, len(idx.records))
	k1, b := idx.params.K1, idx.params.B
	for _, term := range idx.tok.Tokenize(query) {
		weight := idx.idf[term]
		if weight == 0 {
			continue
		}
		for _, p := range idx.postings[term] {
			tf := float64(p.Freq)
			norm := 1 - b + b*float64(idx.docLen[p.Doc])/idx.avgdl
			scores[p.Doc] += weight * tf * (k1 + 1) / (tf + k1*norm)
		}
	}

	hits := make([]int, 0, len(scores))
	for i, s := range scores {
		if s > 0 {
			hits = append(hits, i)
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if scores[hits[i]] != scores[hits[j]] {
			return scores[hits[i]] > scores[hits[j]]
		}
		return hits[i] < hits[j]
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		c := idx.records[h]
		results[i] = Result{
			ChunkID: c.ID,
			Score:   scores[h],
			Meta: Metadata{
				DocID:       c.DocID,
				Pages:       c.Pages,
				HeadingPath: c.HeadingPath,
				ParentID:    c.ParentID,
				Level:       c.Level,
			},
		}
	}
	return results
}

// Record returns the full chunk record for a chunk id, for callers resolving
// hits back to text and provenance.
func (idx *Index) Record(chunkID string) (doc.Chunk, bool) {
	if idx == nil {
		return doc.Chunk{}, false
	}
	for _, c := range idx.records {
		if c.ID == chunkID {
			return c, true
		}
	}
	return doc.Chunk{}, false
}
