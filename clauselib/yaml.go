package clauselib

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlFile is the authoring format: a single document with a clauses list.
type yamlFile struct {
	Clauses []Clause `yaml:"clauses"`
}

// YAMLSource loads clauses from an authored YAML file on every List call, so
// edits to the file are picked up without a restart.
type YAMLSource struct {
	Path string
}

// NewYAMLSource returns a Source backed by the YAML file at path.
func NewYAMLSource(path string) *YAMLSource {
	return &YAMLSource{Path: path}
}

// List implements Source.
func (s *YAMLSource) List(ctx context.Context) ([]Clause, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read clause library: %w", err)
	}

	var f yamlFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse clause library %s: %w", s.Path, err)
	}

	for i, c := range f.Clauses {
		if c.ID == "" || c.Text == "" {
			return nil, fmt.Errorf("clause library %s: entry %d missing id or text", s.Path, i)
		}
	}
	return f.Clauses, nil
}

// ParseYAML parses an in-memory clause library document.
func ParseYAML(raw []byte) ([]Clause, error) {
	var f yamlFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse clause library: %w", err)
	}
	return f.Clauses, nil
}
