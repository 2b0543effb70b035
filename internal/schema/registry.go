package schema

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v2"
)

//go:embed registry.yaml
var defaultRegistry []byte

// Type is the semantic type of a column
type Type string

const (
	TypeDate        Type = "date"
	TypeCategorical Type = "categorical"
	TypeString      Type = "string"
	TypePopulation  Type = "population" // floating population count
	TypeInteger     Type = "integer"
	TypeRatio       Type = "ratio"
)

// Canonical column names
const (
	ColDate                = "date"
	ColRegionCode          = "region_code"
	ColPlaceID             = "place_id"
	ColPlaceName           = "place_name"
	ColPlaceType           = "place_type"
	ColEpidemiologicalWeek = "epidemiological_week"
	ColNewConfirmed        = "new_confirmed"
	ColCumulativeConfirmed = "cumulative_confirmed"
	ColNewDeaths           = "new_deaths"
	ColCumulativeDeaths    = "cumulative_deaths"
	ColPopulationEstimate  = "population_estimate"
	ColMortalityRate       = "mortality_rate"
)

// Column declares one column of the dataset
type Column struct {
	Name      string `yaml:"name"`
	Source    string `yaml:"source"`
	Type      Type   `yaml:"type"`
	Required  bool   `yaml:"required"`  // must be present in the raw input
	Nullable  bool   `yaml:"nullable"`  // missing literals are accepted
	Derived   bool   `yaml:"derived"`   // computed, never read from the source
	Canonical bool   `yaml:"canonical"` // persisted in the canonical dataset
}

// Registry is the single column registry shared by every stage
type Registry struct {
	Version       int      `yaml:"version"`
	MissingValues []string `yaml:"missing_values"`
	Columns       []Column `yaml:"columns"`

	byName  map[string]int
	missing map[string]struct{}
}

// Load returns the embedded default registry.
func Load() (*Registry, error) {
	return Parse(defaultRegistry)
}

// MustLoad is Load for package initialisation and tests.
func MustLoad() *Registry {
	r, err := Load()
	if err != nil {
		panic(err)
	}
	return r
}

// Parse decodes and validates a registry document.
func Parse(data []byte) (*Registry, error) {
	var r Registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode schema registry: %w", err)
	}
	if err := r.index(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Registry) index() error {
	if len(r.Columns) == 0 {
		return fmt.Errorf("schema registry v%d declares no columns", r.Version)
	}

	r.byName = make(map[string]int, len(r.Columns))
	for i, c := range r.Columns {
		if c.Name == "" {
			return fmt.Errorf("schema registry column %d has no name", i)
		}
		if _, dup := r.byName[c.Name]; dup {
			return fmt.Errorf("schema registry column %q declared twice", c.Name)
		}
		switch c.Type {
		case TypeDate, TypeCategorical, TypeString, TypePopulation, TypeInteger, TypeRatio:
		default:
			return fmt.Errorf("schema registry column %q has unknown type %q", c.Name, c.Type)
		}
		if c.Derived && c.Source != "" {
			return fmt.Errorf("derived column %q must not declare a source", c.Name)
		}
		if !c.Derived && c.Source == "" {
			return fmt.Errorf("column %q needs a source column", c.Name)
		}
		r.byName[c.Name] = i
	}

	r.missing = make(map[string]struct{}, len(r.MissingValues))
	for _, m := range r.MissingValues {
		r.missing[m] = struct{}{}
	}
	return nil
}

// Column looks up a column by canonical name.
func (r *Registry) Column(name string) (Column, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Column{}, false
	}
	return r.Columns[i], true
}

// Sourced returns the columns read from the raw input.
func (r *Registry) Sourced() []Column {
	var out []Column
	for _, c := range r.Columns {
		if !c.Derived {
			out = append(out, c)
		}
	}
	return out
}

// Required returns the columns that must be present in the raw input.
func (r *Registry) Required() []Column {
	var out []Column
	for _, c := range r.Columns {
		if c.Required {
			out = append(out, c)
		}
	}
	return out
}

// Canonical returns the persisted column set in declaration order.
func (r *Registry) Canonical() []Column {
	var out []Column
	for _, c := range r.Columns {
		if c.Canonical {
			out = append(out, c)
		}
	}
	return out
}

// IsMissing reports whether a raw value is one of the missing-value literals.
func (r *Registry) IsMissing(raw string) bool {
	_, ok := r.missing[strings.TrimSpace(raw)]
	return ok
}
