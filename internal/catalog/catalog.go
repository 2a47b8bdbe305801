package catalog

import (
	"iter"
	"strings"
)

// Record is one entry of a catalog source
type Record struct {
	KeyCombination string `yaml:"keyCombination" json:"keyCombination"`
	Category       string `yaml:"category" json:"category"`
	Context        string `yaml:"context" json:"context"`
	ExpectedEffect string `yaml:"expectedEffect" json:"expectedEffect"`
	Description    string `yaml:"description,omitempty" json:"description,omitempty"`
	Group          string `yaml:"group,omitempty" json:"group,omitempty"`
}

// Meta describes the application a catalog targets
type Meta struct {
	Application string `yaml:"application,omitempty" json:"application,omitempty"`
	URL         string `yaml:"url,omitempty" json:"url,omitempty"`
}

// Catalog is an ordered, read-only registry of shortcut definitions
type Catalog struct {
	meta  Meta
	defs  []Definition
	index map[string]int
}

// Load validates records and builds a catalog in declaration order.
// It returns *InvalidDefinitionError or *DuplicateDefinitionError on the
// first bad record and never a partially built catalog.
func Load(records []Record) (*Catalog, error) {
	return LoadWithMeta(Meta{}, records)
}

// LoadWithMeta is Load with application metadata attached
func LoadWithMeta(meta Meta, records []Record) (*Catalog, error) {
	c := &Catalog{
		meta:  meta,
		defs:  make([]Definition, 0, len(records)),
		index: make(map[string]int, len(records)),
	}
	for i, rec := range records {
		def, err := buildDefinition(i, rec)
		if err != nil {
			return nil, err
		}
		if first, dup := c.index[def.id]; dup {
			return nil, &DuplicateDefinitionError{ID: def.id, FirstIdx: first, SecondIdx: i}
		}
		c.index[def.id] = len(c.defs)
		c.defs = append(c.defs, def)
	}
	return c, nil
}

// NewDefinition validates a single record outside of a catalog
func NewDefinition(rec Record) (Definition, error) {
	return buildDefinition(0, rec)
}

func buildDefinition(idx int, rec Record) (Definition, error) {
	invalid := func(field, value, reason string) error {
		return &InvalidDefinitionError{Index: idx, Field: field, Value: value, Reason: reason}
	}

	if strings.TrimSpace(rec.KeyCombination) == "" {
		return Definition{}, invalid("keyCombination", "", "is required")
	}
	if strings.TrimSpace(rec.Category) == "" {
		return Definition{}, invalid("category", "", "is required")
	}
	if strings.TrimSpace(rec.Context) == "" {
		return Definition{}, invalid("context", "", "is required")
	}
	if strings.TrimSpace(rec.ExpectedEffect) == "" {
		return Definition{}, invalid("expectedEffect", "", "is required")
	}

	keys, err := ParseKeyCombination(rec.KeyCombination)
	if err != nil {
		return Definition{}, invalid("keyCombination", rec.KeyCombination, err.Error())
	}
	cat, err := ParseCategory(rec.Category)
	if err != nil {
		return Definition{}, invalid("category", rec.Category, err.Error())
	}
	context := strings.TrimSpace(rec.Context)
	if slug(context) == "" {
		return Definition{}, invalid("context", rec.Context, "must contain a letter or digit")
	}

	return Definition{
		id:             DefinitionID(keys, context),
		keys:           keys,
		category:       cat,
		context:        context,
		expectedEffect: strings.TrimSpace(rec.ExpectedEffect),
		description:    strings.TrimSpace(rec.Description),
		group:          strings.TrimSpace(rec.Group),
	}, nil
}

// Meta returns the application metadata of the source
func (c *Catalog) Meta() Meta { return c.meta }

// Len returns the number of definitions
func (c *Catalog) Len() int { return len(c.defs) }

// Entries yields definitions in declaration order. The sequence can be
// ranged over any number of times.
func (c *Catalog) Entries() iter.Seq[Definition] {
	return func(yield func(Definition) bool) {
		for _, d := range c.defs {
			if !yield(d) {
				return
			}
		}
	}
}

// Find looks a definition up by id; case and modifier order are ignored
func (c *Catalog) Find(id string) (Definition, error) {
	if i, ok := c.index[id]; ok {
		return c.defs[i], nil
	}
	if i, ok := c.index[NormalizeID(id)]; ok {
		return c.defs[i], nil
	}
	return Definition{}, &NotFoundError{ID: id}
}

// Contains reports whether id names a definition of c
func (c *Catalog) Contains(id string) bool {
	_, err := c.Find(id)
	return err == nil
}

// Records returns the catalog as source records
func (c *Catalog) Records() []Record {
	out := make([]Record, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d.Record())
	}
	return out
}
