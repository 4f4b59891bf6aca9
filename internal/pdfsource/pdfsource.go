// Package pdfsource loads PDF files into pages of positioned text fragments.
package pdfsource

import (
	"fmt"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/mlindstrom/docforge/internal/doc"
)

// Load reads every page of the PDF at path and returns its positioned
// fragments. PDF coordinates grow upward from the bottom-left corner; they
// are flipped here so Y0 grows downward from the top of the page, matching
// reading order.
func Load(path string) ([]doc.Page, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	pages := make([]doc.Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, doc.Page{})
			continue
		}
		pages = append(pages, loadPage(page, i-1))
	}
	return pages, nil
}

func loadPage(page pdflib.Page, pageIdx int) doc.Page {
	mediaH := mediaBoxHeight(page.V)
	rotation := int(inheritedKey(page.V, "Rotate").Int64())

	content := page.Content()
	frags := make([]doc.TextFragment, 0, len(content.Text))
	for _, t := range content.Text {
		if t.S == "" {
			continue
		}
		frags = append(frags, doc.TextFragment{
			Text:     t.S,
			FontName: t.Font,
			FontSize: t.FontSize,
			Rotation: rotation,
			Page:     pageIdx,
			BBox: doc.BBox{
				X0: t.X,
				Y0: mediaH - t.Y - t.FontSize,
				X1: t.X + t.W,
				Y1: mediaH - t.Y,
			},
		})
	}
	return doc.Page{Fragments: frags, Rotation: rotation}
}

// inheritedKey resolves key on the page dictionary, walking up the page tree
// for attributes like Rotate and MediaBox that may live on an ancestor.
func inheritedKey(v pdflib.Value, key string) pdflib.Value {
	for !v.IsNull() {
		if r := v.Key(key); !r.IsNull() {
			return r
		}
		v = v.Key("Parent")
	}
	return pdflib.Value{}
}

func mediaBoxHeight(v pdflib.Value) float64 {
	box := inheritedKey(v, "MediaBox")
	if box.IsNull() || box.Len() < 4 {
		// US Letter height in points.
		return 792
	}
	return box.Index(3).Float64() - box.Index(1).Float64()
}
