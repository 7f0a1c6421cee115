// Package catalog loads guidance definitions from YAML.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/volumeplan/volumeplan/internal/forecast"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// File is the on-disk catalog layout.
type File struct {
	Guidance []Entry `yaml:"guidance"`
}

// Entry is one guidance definition as written in YAML.
type Entry struct {
	ID          string `yaml:"id"`
	Label       string `yaml:"label"`
	Sublabel    string `yaml:"sublabel"`
	Calculation string `yaml:"calculation"`
	Value       Value  `yaml:"value"`
}

// Value is either a plain expression string or a numerator/denominator pair.
type Value struct {
	Expr        string
	Numerator   string
	Denominator string
}

// UnmarshalYAML accepts both value shapes.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		v.Expr = node.Value
		return nil
	case yaml.MappingNode:
		var raw struct {
			Numerator   string `yaml:"numerator"`
			Denominator string `yaml:"denominator"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		v.Numerator = raw.Numerator
		v.Denominator = raw.Denominator
		return nil
	default:
		return fmt.Errorf("line %d: value must be a string or a numerator/denominator mapping", node.Line)
	}
}

// Definition parses the entry's expression.
func (e Entry) Definition() (forecast.Definition, error) {
	calc := forecast.Calculation(strings.ToLower(strings.TrimSpace(e.Calculation)))
	value := e.Value.Expr
	if e.Value.Numerator != "" {
		value = e.Value.Numerator
	}
	expr, err := forecast.NewExpression(calc, value, e.Value.Denominator)
	if err != nil {
		return forecast.Definition{}, err
	}
	return forecast.Definition{
		ID:       strings.TrimSpace(e.ID),
		Label:    e.Label,
		Sublabel: e.Sublabel,
		Expr:     expr,
	}, nil
}

// Parse decodes a YAML catalog. Unknown keys and malformed entries are errors.
func Parse(data []byte) (*forecast.GuidanceCatalog, error) {
	var file File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}

	defs := make([]forecast.Definition, 0, len(file.Guidance))
	for i, entry := range file.Guidance {
		def, err := entry.Definition()
		if err != nil {
			return nil, fmt.Errorf("catalog: entry %d (%s): %w", i, entry.ID, err)
		}
		defs = append(defs, def)
	}
	cat, err := forecast.NewGuidanceCatalog(defs...)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return cat, nil
}

// Default returns the built-in catalog.
func Default() (*forecast.GuidanceCatalog, error) {
	return Parse(defaultCatalog)
}

// Load reads the catalog at path, or the built-in one when path is empty.
func Load(path string) (*forecast.GuidanceCatalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}
