// Package knowledgebase is the static concept catalog used as the fallback knowledge
// source when the graph store and the embedding table have nothing to say.
package knowledgebase

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"algomind/src/core/model"
	"algomind/src/fsutil"
)

var ErrInvalidCatalog = errors.New("invalid knowledge catalog")

//go:embed default_catalog.yaml
var defaultCatalog []byte

// Concept is one entry of the catalog
type Concept struct {
	Name       string           `yaml:"name" json:"name"`
	Aliases    []string         `yaml:"aliases" json:"aliases,omitempty"`
	Type       model.EntityType `yaml:"type" json:"type"`
	Definition string           `yaml:"definition" json:"definition"`
	Principles []string         `yaml:"principles" json:"principles,omitempty"`
	Examples   []string         `yaml:"examples" json:"examples,omitempty"`
	Complexity string           `yaml:"complexity" json:"complexity,omitempty"`
	Related    []string         `yaml:"related" json:"related,omitempty"`
}

// Names returns the canonical name followed by every alias
func (c Concept) Names() []string {
	return append([]string{c.Name}, c.Aliases...)
}

type catalogFile struct {
	Concepts []Concept `yaml:"concepts"`
}

// Catalog is immutable after construction
type Catalog struct {
	concepts []Concept
	byKey    map[string]int
}

// NewCatalog indexes concepts by lower-cased name and alias. Later duplicates of a
// name already taken are rejected.
func NewCatalog(concepts []Concept) (*Catalog, error) {
	c := &Catalog{
		concepts: make([]Concept, 0, len(concepts)),
		byKey:    make(map[string]int),
	}
	for _, concept := range concepts {
		concept.Name = strings.TrimSpace(concept.Name)
		if concept.Name == "" {
			return nil, fmt.Errorf("%w: concept with empty name", ErrInvalidCatalog)
		}
		concept.Type = model.ParseEntityType(string(concept.Type))
		idx := len(c.concepts)
		for _, name := range concept.Names() {
			key := normalize(name)
			if key == "" {
				continue
			}
			if prev, dup := c.byKey[key]; dup && prev != idx {
				return nil, fmt.Errorf("%w: %q is defined twice", ErrInvalidCatalog, name)
			}
			c.byKey[key] = idx
		}
		c.concepts = append(c.concepts, concept)
	}
	return c, nil
}

// Default returns the built-in catalog
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("built-in knowledge catalog: %v", err))
	}
	return c
}

// Parse decodes a YAML catalog
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return NewCatalog(f.Concepts)
}

// Load reads a YAML catalog from path. An empty path yields the built-in catalog.
func Load(store fsutil.FileStore, path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := store.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge catalog: %w", err)
	}
	return Parse(data)
}

// Lookup finds a concept by name or alias, ignoring case and surrounding space
func (c *Catalog) Lookup(name string) (Concept, bool) {
	if c == nil {
		return Concept{}, false
	}
	idx, ok := c.byKey[normalize(name)]
	if !ok {
		return Concept{}, false
	}
	return c.concepts[idx], true
}

// Entries returns every concept in catalog order
func (c *Catalog) Entries() []Concept {
	if c == nil {
		return nil
	}
	return c.concepts
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
