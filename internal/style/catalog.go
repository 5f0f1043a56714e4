package style

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

//go:embed styles.toml
var builtinStyles []byte

// Catalog is an ordered, read-only list of styles keyed by id.
type Catalog struct {
	styles []Spec
	byID   map[string]int
}

type catalogFile struct {
	Styles []Spec `toml:"styles"`
}

// Builtin returns the catalog shipped with the booth.
func Builtin() *Catalog {
	c, err := Parse(bytes.NewReader(builtinStyles))
	if err != nil {
		panic(fmt.Sprintf("builtin style catalog: %v", err))
	}
	return c
}

// Parse decodes a TOML document containing [[styles]] tables.
func Parse(r io.Reader) (*Catalog, error) {
	var file catalogFile
	if err := toml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("parse style catalog: %w", err)
	}
	return New(file.Styles...)
}

// New builds a catalog, rejecting invalid and duplicate styles.
func New(styles ...Spec) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]int, len(styles))}
	for _, s := range styles {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate style id %q", s.ID)
		}
		c.byID[s.ID] = len(c.styles)
		c.styles = append(c.styles, s)
	}
	return c, nil
}

// Merge returns a catalog with extra styles appended. Styles whose id already
// exists replace the original in place.
func (c *Catalog) Merge(extra ...Spec) (*Catalog, error) {
	merged := make([]Spec, len(c.styles))
	copy(merged, c.styles)
	for _, s := range extra {
		if i, ok := c.byID[s.ID]; ok {
			merged[i] = s
			continue
		}
		merged = append(merged, s)
	}
	return New(merged...)
}

// All returns the styles in catalog order.
func (c *Catalog) All() []Spec {
	out := make([]Spec, len(c.styles))
	copy(out, c.styles)
	return out
}

// Default returns the first style in the catalog.
func (c *Catalog) Default() Spec {
	if len(c.styles) == 0 {
		return Spec{}
	}
	return c.styles[0]
}

// Lookup returns the style with the given id.
func (c *Catalog) Lookup(id string) (Spec, error) {
	i, ok := c.byID[id]
	if !ok {
		ids := make([]string, 0, len(c.byID))
		for k := range c.byID {
			ids = append(ids, k)
		}
		sort.Strings(ids)
		return Spec{}, fmt.Errorf("unknown style %q (available: %v)", id, ids)
	}
	return c.styles[i], nil
}
