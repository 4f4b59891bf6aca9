package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Tokens splits text into maximal alphanumeric runs. The splitter is
// deterministic and versioned through the keyword index manifest, so token
// counts are reproducible across builds and machines.
func Tokens(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// CountTokens returns the number of tokens in text.
func CountTokens(text string) int {
	return len(Tokens(text))
}

// CountChars returns the size of text in runes.
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// counter returns the size function selected by the configuration: token
// counting or character counting, always in the same unit as the size bound.
func (c Config) counter() func(string) int {
	if c.UseTokenCounting {
		return CountTokens
	}
	return CountChars
}

// overlapTail returns the trailing words of text whose size is at least n in
// the configured unit, along with that size. Returns "" when the text is not
// longer than the requested tail.
func overlapTail(text string, n int, count func(string) int) (string, int) {
	if n <= 0 {
		return "", 0
	}
	words := strings.Fields(text)
	size := 0
	start := len(words)
	for start > 0 {
		tail := strings.Join(words[start-1:], " ")
		size = count(tail)
		if size >= n {
			break
		}
		start--
	}
	if start <= 1 {
		// The tail would cover the whole text; seeding it would duplicate
		// the entire previous leaf.
		return "", 0
	}
	return strings.Join(words[start-1:], " "), size
}
