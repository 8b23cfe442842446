package structure

import (
	"strings"
	"testing"
)

func TestBlocksFromMarkdown(t *testing.T) {
	src := []byte(`Preamble paragraph before any heading.

# 1. Services

Provider shall perform the services.

## 1.1 Scope

The scope includes support.
And maintenance.

# 2. Payment

Fees are due monthly.
`)

	blocks := BlocksFromMarkdown(src)
	if len(blocks) != 4 {
		t.Fatalf("blocks = %d, want 4: %+v", len(blocks), blocks)
	}

	preamble := blocks[0]
	if preamble.Heading != "" || preamble.Level != 1 {
		t.Fatalf("preamble block = %+v", preamble)
	}
	if len(preamble.Content) != 1 || preamble.Content[0] != "Preamble paragraph before any heading." {
		t.Fatalf("preamble content = %v", preamble.Content)
	}

	if blocks[1].Heading != "1. Services" || blocks[1].Level != 1 {
		t.Fatalf("block 1 = %+v", blocks[1])
	}
	if blocks[2].Heading != "1.1 Scope" || blocks[2].Level != 2 {
		t.Fatalf("block 2 = %+v", blocks[2])
	}
	if len(blocks[2].Content) != 1 || !strings.Contains(blocks[2].Content[0], "And maintenance.") {
		t.Fatalf("block 2 content = %v", blocks[2].Content)
	}
	if blocks[3].Heading != "2. Payment" {
		t.Fatalf("block 3 = %+v", blocks[3])
	}
}

func TestBlocksFromMarkdownList(t *testing.T) {
	src := []byte("# Obligations\n\n- deliver reports\n- maintain records\n")

	blocks := BlocksFromMarkdown(src)
	if len(blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(blocks))
	}
	if len(blocks[0].Content) != 1 {
		t.Fatalf("content = %v", blocks[0].Content)
	}
	got := blocks[0].Content[0]
	if !strings.Contains(got, "deliver reports") || !strings.Contains(got, "maintain records") {
		t.Fatalf("list text = %q", got)
	}
}

func TestBlocksFromHTML(t *testing.T) {
	src := `<html><head><style>p{color:red}</style></head><body>
<nav><p>skip me</p></nav>
<h1>1. Services</h1>
<p>Provider shall perform the services.</p>
<h2>1.1 Scope</h2>
<p>The scope includes support.</p>
<ul><li>deliver reports</li></ul>
<script>alert("skip")</script>
<h1>2. Payment</h1>
<p>Fees are due monthly.</p>
</body></html>`

	blocks, err := BlocksFromHTML(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 3 {
		t.Fatalf("blocks = %d, want 3: %+v", len(blocks), blocks)
	}

	if blocks[0].Heading != "1. Services" || blocks[0].Level != 1 {
		t.Fatalf("block 0 = %+v", blocks[0])
	}
	if blocks[1].Heading != "1.1 Scope" || blocks[1].Level != 2 {
		t.Fatalf("block 1 = %+v", blocks[1])
	}
	if len(blocks[1].Content) != 2 || blocks[1].Content[1] != "deliver reports" {
		t.Fatalf("block 1 content = %v", blocks[1].Content)
	}

	for _, b := range blocks {
		for _, c := range b.Content {
			if strings.Contains(c, "skip") {
				t.Fatalf("nav/script content leaked into blocks: %q", c)
			}
		}
	}
}

func TestBlocksFromText(t *testing.T) {
	src := `MASTER SERVICES AGREEMENT

This agreement is made between the parties below.

1. Services

Provider shall perform the services
described in the statement of work.

Definitions:

Confidential Information means any non-public information.
`

	blocks := BlocksFromText(src)
	if len(blocks) != 3 {
		t.Fatalf("blocks = %d, want 3: %+v", len(blocks), blocks)
	}

	if blocks[0].Heading != "MASTER SERVICES AGREEMENT" {
		t.Fatalf("block 0 = %+v", blocks[0])
	}
	if len(blocks[0].Content) != 1 {
		t.Fatalf("block 0 content = %v", blocks[0].Content)
	}

	if blocks[1].Heading != "1. Services" {
		t.Fatalf("block 1 = %+v", blocks[1])
	}
	if len(blocks[1].Content) != 1 || !strings.Contains(blocks[1].Content[0], "statement of work") {
		t.Fatalf("block 1 content = %v", blocks[1].Content)
	}

	if blocks[2].Heading != "Definitions:" {
		t.Fatalf("block 2 = %+v", blocks[2])
	}
}

func TestBlocksFromTextBodyOnly(t *testing.T) {
	blocks := BlocksFromText("just a plain paragraph with no headings at all, and it is lowercase so nothing promotes it")
	if len(blocks) != 1 || blocks[0].Heading != "" || len(blocks[0].Content) != 1 {
		t.Fatalf("blocks = %+v", blocks)
	}
}
