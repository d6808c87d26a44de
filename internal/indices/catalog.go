package indices

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog holds the indices available to a Calculator, keyed by upper-case name.
type Catalog struct {
	indices map[string]Index
}

func NewCatalog() *Catalog {
	c := &Catalog{indices: make(map[string]Index)}
	for _, idx := range builtins() {
		c.indices[idx.Name] = idx
	}
	return c
}

// Add registers idx, replacing any index of the same name.
func (c *Catalog) Add(idx Index) error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if idx.Fn == nil && idx.prepare == nil {
		return fmt.Errorf("index %s has no function", idx.Name)
	}
	idx.Name = strings.ToUpper(idx.Name)
	c.indices[idx.Name] = idx
	return nil
}

// AddExpression compiles and registers a custom index.
func (c *Catalog) AddExpression(name, expression, description string) error {
	idx, err := Expression(name, expression)
	if err != nil {
		return err
	}
	idx.Description = description
	return c.Add(idx)
}

func (c *Catalog) Get(name string) (Index, error) {
	idx, ok := c.indices[strings.ToUpper(name)]
	if !ok {
		return Index{}, fmt.Errorf("%s: %w", name, ErrUnknownIndex)
	}
	return idx, nil
}

func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.indices))
	for n := range c.indices {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Supported lists the indices whose common-name bands the sensor provides.
func (c *Catalog) Supported(s Sensor) []string {
	var names []string
	for _, n := range c.Names() {
		ok := true
		for _, b := range c.indices[n].Bands {
			if isCommonName(b) && !s.Has(b) {
				ok = false
				break
			}
		}
		if ok {
			names = append(names, n)
		}
	}
	return names
}

var commonNames = map[string]bool{
	"coastal": true, "blue": true, "green": true, "red": true,
	"rededge1": true, "rededge2": true, "rededge3": true,
	"nir": true, "nir08": true, "swir1": true, "swir2": true,
}

func isCommonName(b string) bool {
	return commonNames[strings.ToLower(b)]
}

// CustomIndex is the YAML form of a user-defined index.
type CustomIndex struct {
	Name        string `yaml:"name"`
	Expression  string `yaml:"expression"`
	Description string `yaml:"description"`
}

type catalogFile struct {
	Indices []CustomIndex `yaml:"indices"`
}

// LoadYAML reads custom indices from r and adds them to the catalog.
func (c *Catalog) LoadYAML(r io.Reader) error {
	var f catalogFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return fmt.Errorf("failed to decode index catalog: %w", err)
	}
	for _, ci := range f.Indices {
		if ci.Name == "" {
			return fmt.Errorf("index with expression %q has no name", ci.Expression)
		}
		if err := c.AddExpression(ci.Name, ci.Expression, ci.Description); err != nil {
			return err
		}
	}
	return nil
}
