// Package keyword provides an inverted-index keyword store over chunks with
// BM25 ranking, directory persistence, and an atomically swappable handle for
// concurrent readers.
package keyword

import (
	"sort"
	"strings"
	"unicode"
)

// TokenizerVersion identifies the tokenization scheme. It is persisted in the
// index manifest and validated on load: build-time and query-time
// tokenization must be the same function.
const TokenizerVersion = "bm25-tokenizer/1"

// DefaultStopwords is the default filter set for English technical text.
var DefaultStopwords = []string{
	"the", "a", "an", "be", "is", "are", "was", "to", "of", "and", "in",
	"that", "have", "it", "for", "not", "on", "with", "as", "you", "do",
	"at", "this", "but", "by", "from",
}

// DefaultMinTokenLength drops fragments like unit abbreviations and list
// markers that pollute postings.
const DefaultMinTokenLength = 3

// Tokenizer lowercases, splits on non-alphanumeric boundaries, and drops
// stopwords and short tokens. Instances are immutable and safe for
// concurrent use.
type Tokenizer struct {
	stopwords map[string]bool
	minLen    int
}

// NewTokenizer builds a tokenizer. Nil stopwords selects DefaultStopwords;
// minLen < 1 selects DefaultMinTokenLength.
func NewTokenizer(stopwords []string, minLen int) *Tokenizer {
	if stopwords == nil {
		stopwords = DefaultStopwords
	}
	if minLen < 1 {
		minLen = DefaultMinTokenLength
	}
	set := make(map[string]bool, len(stopwords))
	for _, w := range stopwords {
		set[strings.ToLower(w)] = true
	}
	return &Tokenizer{stopwords: set, minLen: minLen}
}

// Tokenize splits text into index terms.
func (t *Tokenizer) Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) < t.minLen || t.stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// MinTokenLength returns the configured minimum token length.
func (t *Tokenizer) MinTokenLength() int { return t.minLen }

// Stopwords returns the stopword set in sorted order, for the manifest.
func (t *Tokenizer) Stopwords() []string {
	out := make([]string, 0, len(t.stopwords))
	for w := range t.stopwords {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}
