package pipeline

import (
	"encoding/hex"

	"github.com/go-crypt/x/blake2b"
)

// DocumentID derives a stable document id from the source name and extracted
// text using BLAKE2b-64. Identical content yields identical ids, so
// re-ingesting an unchanged document replaces its own forest rather than
// accumulating duplicates.
func DocumentID(name, text string) string {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
