package structure

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// BlocksFromMarkdown converts markdown source into the flat block stream the
// builder consumes. Heading levels come straight from the markdown heading
// depth; body content before the first heading lands in an untitled level-1
// block.
func BlocksFromMarkdown(src []byte) []Block {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	var blocks []Block
	current := -1 // index into blocks; -1 = no open block yet

	appendContent := func(t string) {
		if t == "" {
			return
		}
		if current == -1 {
			blocks = append(blocks, Block{Level: 1})
			current = len(blocks) - 1
		}
		blocks[current].Content = append(blocks[current].Content, t)
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			blocks = append(blocks, Block{
				Heading: string(nodeText(h, src)),
				Level:   h.Level,
			})
			current = len(blocks) - 1
			continue
		}
		appendContent(nodeText(n, src))
	}

	return blocks
}

// nodeText extracts the plain text of a goldmark AST node. Blocks that own
// source lines (headings, paragraphs) are read from the raw segments; other
// blocks (lists, quotes) recurse into their children.
func nodeText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		if n.Type() == ast.TypeBlock {
			if lines := n.Lines(); lines.Len() > 0 {
				for i := 0; i < lines.Len(); i++ {
					if buf.Len() > 0 && i == 0 {
						buf.WriteByte('\n')
					}
					seg := lines.At(i)
					buf.Write(seg.Value(src))
				}
				return
			}
		}
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(buf.String())
}
