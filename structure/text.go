package structure

import (
	"bufio"
	"strings"
	"unicode"
)

// maxHeadingLen bounds how long a line can be and still pass the heading
// heuristics for unstructured text.
const maxHeadingLen = 80

// BlocksFromText converts unstructured plain text into the flat block
// stream the builder consumes. There is no real formatting signal, so a
// heuristic classifier promotes likely headings — all-caps lines, short
// lines ending in ':', and short numbered lines — to level-1 blocks.
// Everything else accumulates as body paragraphs of the current block.
func BlocksFromText(text string) []Block {
	var blocks []Block
	current := -1
	var para strings.Builder

	flushPara := func() {
		t := strings.TrimSpace(para.String())
		para.Reset()
		if t == "" {
			return
		}
		if current == -1 {
			blocks = append(blocks, Block{Level: 1})
			current = len(blocks) - 1
		}
		blocks[current].Content = append(blocks[current].Content, t)
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			flushPara()
		case isHeadingLine(line):
			flushPara()
			blocks = append(blocks, Block{Heading: line, Level: 1})
			current = len(blocks) - 1
		default:
			if para.Len() > 0 {
				para.WriteByte('\n')
			}
			para.WriteString(line)
		}
	}
	flushPara()

	return blocks
}

// isHeadingLine reports whether a trimmed, non-empty line looks like a
// heading in unstructured text.
func isHeadingLine(line string) bool {
	if isAllCaps(line) {
		return true
	}
	if len(line) > maxHeadingLen {
		return false
	}
	if strings.HasSuffix(line, ":") {
		return true
	}
	return ExtractNumber(line) != ""
}

// isAllCaps reports whether the line contains letters and none of them are
// lowercase ("GOVERNING LAW", "ARTICLE IV").
func isAllCaps(line string) bool {
	hasLetter := false
	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}
