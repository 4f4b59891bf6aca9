package chunker

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/mlindstrom/docforge/internal/doc"
)

// pageMarker matches the page comments the extraction-to-markdown converter
// emits, e.g. "<!-- Page 3 -->". Page numbers in markers are 1-based.
var pageMarker = regexp.MustCompile(`<!--\s*Page\s+(\d+)`)

// BlocksFromMarkdown parses a Markdown document into role-tagged blocks so
// markdown sources flow through the same chunking path as extracted PDFs.
// Heading levels deeper than 3 clamp to heading3. Blocks carry no geometry;
// page indices come from page-marker comments when present.
func BlocksFromMarkdown(src []byte) []doc.TextBlock {
	md := goldmark.New()
	reader := text.NewReader(src)
	root := md.Parser().Parse(reader)

	var blocks []doc.TextBlock
	page := 0

	appendBlock := func(content string, role doc.Role) {
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		blocks = append(blocks, doc.TextBlock{
			Text: content,
			Role: role,
			Page: page,
		})
	}

	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			role := doc.RoleHeading3
			switch node.Level {
			case 1:
				role = doc.RoleHeading1
			case 2:
				role = doc.RoleHeading2
			}
			appendBlock(string(node.Text(src)), role)
		case *ast.List:
			for item := node.FirstChild(); item != nil; item = item.NextSibling() {
				appendBlock(string(item.Text(src)), doc.RoleListItem)
			}
		case *ast.HTMLBlock:
			raw := rawLines(node, src)
			if m := pageMarker.FindStringSubmatch(raw); m != nil {
				if p, err := strconv.Atoi(m[1]); err == nil && p > 0 {
					page = p - 1
				}
			}
		default:
			appendBlock(string(n.Text(src)), doc.RoleParagraph)
		}
	}
	return blocks
}

// ChunkMarkdown chunks a Markdown document through the block path.
func ChunkMarkdown(docID string, src []byte, cfg Config) (*doc.Forest, error) {
	return ChunkBlocks(docID, BlocksFromMarkdown(src), cfg)
}

func rawLines(n ast.Node, src []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	return sb.String()
}
