// Package structure reconstructs a hierarchical section tree from the flat
// block stream produced by document normalization.
//
// The builder assigns stable sequential section ids, extracts leading
// numbering labels, estimates page anchors, and detects tables, exhibits,
// and document-level metadata (parties, effective date, governing law).
// Hierarchy is rebuilt in a single linear pass with an explicit stack of
// open sections, which guarantees that every child's level is strictly
// greater than its parent's and that pre-order traversal preserves the
// original document order.
//
// Malformed or empty input yields an empty tree, never an error: downstream
// stages must treat zero sections as a valid, if degenerate, result.
package structure

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/veritract/veritract/idgen"
)

// Block is one unit of the flat normalized stream: a heading (possibly
// empty), its body paragraphs, and a coarse level inferred from source
// formatting.
type Block struct {
	Heading string   `json:"heading"`
	Content []string `json:"content"`
	Level   int      `json:"level"`
}

// Normalized is the upstream artifact consumed by the builder.
type Normalized struct {
	DocumentType string  `json:"document_type"`
	Sections     []Block `json:"sections"`
}

// Section is a node in the reconstructed tree.
type Section struct {
	ID         string     `json:"id"`
	Heading    string     `json:"heading"`
	Number     string     `json:"number,omitempty"`
	Text       string     `json:"text"`
	Level      int        `json:"level"`
	PageFrom   int        `json:"page_from,omitempty"`
	PageTo     int        `json:"page_to,omitempty"`
	OrderIndex int        `json:"order_index"`
	ParentID   string     `json:"parent_id,omitempty"`
	Children   []*Section `json:"children"`
}

// PageAnchor points at a section from the page navigation index.
type PageAnchor struct {
	SectionID string `json:"section_id"`
	Heading   string `json:"heading"`
	Number    string `json:"number,omitempty"`
}

// Ref locates a detected table or exhibit.
type Ref struct {
	SectionID string `json:"section_id"`
	Heading   string `json:"heading"`
	Location  string `json:"location"`
}

// DocMeta is coarse document-level metadata scanned from the leading
// top-level sections.
type DocMeta struct {
	Parties       []string `json:"parties"`
	EffectiveDate string   `json:"effective_date,omitempty"`
	GoverningLaw  string   `json:"governing_law,omitempty"`
}

// Metadata summarizes a built tree.
type Metadata struct {
	TotalSections int                     `json:"total_sections"`
	MaxDepth      int                     `json:"max_depth"`
	HasNumbering  bool                    `json:"has_numbering"`
	PageAnchors   map[string][]PageAnchor `json:"page_anchors"`
	Tables        []Ref                   `json:"tables"`
	Exhibits      []Ref                   `json:"exhibits"`
	Extracted     DocMeta                 `json:"extracted_metadata"`
}

// Tree is the structure artifact written for a document version.
type Tree struct {
	DocumentType string     `json:"document_type"`
	Sections     []*Section `json:"sections"`
	Metadata     Metadata   `json:"metadata"`
}

// Config configures the Builder.
type Config struct {
	// WordsPerPage drives the page-estimate heuristic when the source has no
	// real page mapping. Explicitly approximate. Default: 500.
	WordsPerPage int `json:"words_per_page" yaml:"words_per_page"`

	// MetadataSections is how many leading top-level sections are scanned
	// for parties/date/governing-law. Default: 5.
	MetadataSections int `json:"metadata_sections" yaml:"metadata_sections"`

	// Logger for debug messages. Defaults to slog.Default().
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.WordsPerPage <= 0 {
		c.WordsPerPage = 500
	}
	if c.MetadataSections <= 0 {
		c.MetadataSections = 5
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Builder turns flat blocks into a section tree.
type Builder struct {
	cfg Config
}

// NewBuilder creates a Builder with the given configuration.
func NewBuilder(cfg Config) *Builder {
	cfg.defaults()
	return &Builder{cfg: cfg}
}

// Build constructs the tree for one document. Identical input always yields
// an identical tree with identical ids, so re-runs fully replace the prior
// artifact without drift.
func (b *Builder) Build(n Normalized) *Tree {
	newID := idgen.Sequential("sec_")

	flat := make([]*Section, 0, len(n.Sections))
	for i, blk := range n.Sections {
		text := strings.Join(blk.Content, "\n")
		level := blk.Level
		if level < 1 {
			level = 1
		}
		page := b.estimatePage(text)
		flat = append(flat, &Section{
			ID:         newID(),
			Heading:    blk.Heading,
			Number:     ExtractNumber(blk.Heading),
			Text:       text,
			Level:      level,
			PageFrom:   page,
			PageTo:     page,
			OrderIndex: i + 1,
		})
	}

	roots := buildHierarchy(flat)

	tree := &Tree{
		DocumentType: n.DocumentType,
		Sections:     roots,
		Metadata: Metadata{
			TotalSections: len(flat),
			MaxDepth:      maxLevel(flat),
			HasNumbering:  hasNumbering(flat),
			PageAnchors:   pageAnchors(flat),
			Tables:        detectTables(flat),
			Exhibits:      detectExhibits(flat),
			Extracted:     extractDocMeta(roots, b.cfg.MetadataSections),
		},
	}

	b.cfg.Logger.Debug("structure built",
		"sections", len(flat),
		"roots", len(roots),
		"max_depth", tree.Metadata.MaxDepth,
		"tables", len(tree.Metadata.Tables),
		"exhibits", len(tree.Metadata.Exhibits))

	return tree
}

// buildHierarchy attaches each section under the nearest preceding section
// with a smaller level, using a stack of open sections. One linear pass.
func buildHierarchy(flat []*Section) []*Section {
	var roots []*Section
	var stack []*Section

	for _, s := range flat {
		for len(stack) > 0 && stack[len(stack)-1].Level >= s.Level {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			s.ParentID = parent.ID
			parent.Children = append(parent.Children, s)
		} else {
			roots = append(roots, s)
		}
		stack = append(stack, s)
	}
	return roots
}

// estimatePage approximates a page number from word count. Returns 0 for
// empty text (unknown).
func (b *Builder) estimatePage(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return max(1, words/b.cfg.WordsPerPage)
}

func maxLevel(flat []*Section) int {
	depth := 0
	for _, s := range flat {
		if s.Level > depth {
			depth = s.Level
		}
	}
	return depth
}

func hasNumbering(flat []*Section) bool {
	for _, s := range flat {
		if s.Number != "" {
			return true
		}
	}
	return false
}

func pageAnchors(flat []*Section) map[string][]PageAnchor {
	anchors := make(map[string][]PageAnchor)
	for _, s := range flat {
		if s.PageFrom == 0 {
			continue
		}
		key := strconv.Itoa(s.PageFrom)
		anchors[key] = append(anchors[key], PageAnchor{
			SectionID: s.ID,
			Heading:   s.Heading,
			Number:    s.Number,
		})
	}
	return anchors
}

// Leaves returns all sections with no children and non-empty text, in
// pre-order (document) order. These are the matchable units.
func (t *Tree) Leaves() []*Section {
	var leaves []*Section
	t.Walk(func(s *Section) {
		if len(s.Children) == 0 && strings.TrimSpace(s.Text) != "" {
			leaves = append(leaves, s)
		}
	})
	return leaves
}

// Walk visits every section in pre-order.
func (t *Tree) Walk(fn func(*Section)) {
	var visit func(ss []*Section)
	visit = func(ss []*Section) {
		for _, s := range ss {
			fn(s)
			visit(s.Children)
		}
	}
	visit(t.Sections)
}
