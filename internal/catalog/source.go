package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/slashy.yaml
var builtinSlashy []byte

// document is the mapping form of a catalog source
type document struct {
	Application string   `yaml:"application,omitempty"`
	URL         string   `yaml:"url,omitempty"`
	Shortcuts   []Record `yaml:"shortcuts"`
}

// LoadFile reads a YAML or JSON catalog source from disk
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cat, nil
}

// Parse decodes a catalog source. The document is either a list of records
// or a mapping with application, url and shortcuts keys. JSON is accepted
// as it is a subset of YAML.
func Parse(data []byte) (*Catalog, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, fmt.Errorf("parse catalog: empty document")
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	switch root.Content[0].Kind {
	case yaml.SequenceNode:
		var records []Record
		if err := dec.Decode(&records); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse catalog: %w", err)
		}
		return Load(records)
	case yaml.MappingNode:
		var doc document
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse catalog: %w", err)
		}
		return LoadWithMeta(Meta{Application: doc.Application, URL: doc.URL}, doc.Shortcuts)
	default:
		return nil, fmt.Errorf("parse catalog: expected a list of shortcuts or a mapping with a shortcuts key")
	}
}

// Builtin returns the bundled Slashy Mail catalog
func Builtin() *Catalog {
	cat, err := Parse(builtinSlashy)
	if err != nil {
		panic(fmt.Sprintf("builtin catalog: %v", err))
	}
	return cat
}

// Marshal encodes c back into the mapping source form
func Marshal(c *Catalog) ([]byte, error) {
	doc := document{
		Application: c.meta.Application,
		URL:         c.meta.URL,
		Shortcuts:   c.Records(),
	}
	return yaml.Marshal(doc)
}
