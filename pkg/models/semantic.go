package models

// ============================================================================
// Semantic model (cube) metadata
// ============================================================================

// DataSource is a named, queryable backend exposing one or more entity sets.
// Config holds the engine-specific connection options (host, port, ...).
type DataSource struct {
	Name       string                `yaml:"name" json:"name"`
	Type       string                `yaml:"type" json:"type"`
	Config     map[string]any        `yaml:"config" json:"-"`
	EntitySets map[string]*EntitySet `yaml:"entity_sets" json:"entity_sets"`
}

// EntitySet is a named dataset (cube or table) with its resolved schema.
type EntitySet struct {
	Name       string      `yaml:"name" json:"name"`
	Caption    string      `yaml:"caption,omitempty" json:"caption,omitempty"`
	EntityType *EntityType `yaml:"entity_type" json:"entity_type"`
}

// EntityType is the schema of an entity set. It is read-only once resolved.
type EntityType struct {
	Name       string       `yaml:"name" json:"name"`
	Caption    string       `yaml:"caption,omitempty" json:"caption,omitempty"`
	Table      string       `yaml:"table" json:"table"`
	Dimensions []*Dimension `yaml:"dimensions" json:"dimensions"`
	Measures   []*Measure   `yaml:"measures" json:"measures"`
	Variables  []*Variable  `yaml:"variables,omitempty" json:"variables,omitempty"`
}

// Dimension is a categorical attribute usable for grouping and filtering.
// A dimension without declared hierarchies has an implicit hierarchy named
// after the dimension itself.
type Dimension struct {
	Name             string       `yaml:"name" json:"name"`
	Caption          string       `yaml:"caption,omitempty" json:"caption,omitempty"`
	Aliases          []string     `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Column           string       `yaml:"column,omitempty" json:"column,omitempty"`
	Semantic         string       `yaml:"semantic,omitempty" json:"semantic,omitempty"` // "time" for calendar dimensions
	DefaultHierarchy string       `yaml:"default_hierarchy,omitempty" json:"default_hierarchy,omitempty"`
	Hierarchies      []*Hierarchy `yaml:"hierarchies,omitempty" json:"hierarchies,omitempty"`
}

// Hierarchy groups ordered levels of a dimension, coarsest first.
type Hierarchy struct {
	Name    string   `yaml:"name" json:"name"`
	Caption string   `yaml:"caption,omitempty" json:"caption,omitempty"`
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Levels  []*Level `yaml:"levels,omitempty" json:"levels,omitempty"`
}

// Level is one grain of a hierarchy backed by a column.
type Level struct {
	Name    string   `yaml:"name" json:"name"`
	Caption string   `yaml:"caption,omitempty" json:"caption,omitempty"`
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Column  string   `yaml:"column" json:"column"`
}

// Measure is a numeric, aggregable attribute.
type Measure struct {
	Name       string   `yaml:"name" json:"name"`
	Caption    string   `yaml:"caption,omitempty" json:"caption,omitempty"`
	Aliases    []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Column     string   `yaml:"column,omitempty" json:"column,omitempty"`
	Aggregator string   `yaml:"aggregator,omitempty" json:"aggregator,omitempty"` // sum, count, avg, min, max, distinct-count
	Unit       string   `yaml:"unit,omitempty" json:"unit,omitempty"`
}

// Variable is a cube parameter that filters a referenced dimension.
type Variable struct {
	Name               string   `yaml:"name" json:"name"`
	Caption            string   `yaml:"caption,omitempty" json:"caption,omitempty"`
	Aliases            []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	ReferenceDimension string   `yaml:"reference_dimension" json:"reference_dimension"`
	ReferenceHierarchy string   `yaml:"reference_hierarchy,omitempty" json:"reference_hierarchy,omitempty"`
	Mandatory          bool     `yaml:"mandatory,omitempty" json:"mandatory,omitempty"`
}

// Measure aggregators.
const (
	AggregatorSum           = "sum"
	AggregatorCount         = "count"
	AggregatorAvg           = "avg"
	AggregatorMin           = "min"
	AggregatorMax           = "max"
	AggregatorDistinctCount = "distinct-count"
)

// DimensionSemanticTime marks a calendar dimension.
const DimensionSemanticTime = "time"

// GetHierarchies returns the declared hierarchies or the implicit one.
func (d *Dimension) GetHierarchies() []*Hierarchy {
	if len(d.Hierarchies) > 0 {
		return d.Hierarchies
	}
	return []*Hierarchy{{Name: d.Name, Caption: d.Caption}}
}

// GetDefaultHierarchy returns the hierarchy used when none is requested.
func (d *Dimension) GetDefaultHierarchy() *Hierarchy {
	hierarchies := d.GetHierarchies()
	if d.DefaultHierarchy != "" {
		for _, h := range hierarchies {
			if h.Name == d.DefaultHierarchy {
				return h
			}
		}
	}
	return hierarchies[0]
}

// GetColumn returns the column backing the dimension itself.
func (d *Dimension) GetColumn() string {
	if d.Column != "" {
		return d.Column
	}
	return d.Name
}

// IsTime reports whether the dimension is a calendar dimension.
func (d *Dimension) IsTime() bool {
	return d.Semantic == DimensionSemanticTime
}

// GetAggregator returns the aggregator, defaulting to sum.
func (m *Measure) GetAggregator() string {
	if m.Aggregator == "" {
		return AggregatorSum
	}
	return m.Aggregator
}

// GetColumn returns the column backing the measure.
func (m *Measure) GetColumn() string {
	if m.Column != "" {
		return m.Column
	}
	return m.Name
}

// FindDimension returns the dimension with the exact name, or nil.
func (e *EntityType) FindDimension(name string) *Dimension {
	for _, d := range e.Dimensions {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// FindHierarchy returns the exactly named hierarchy of the dimension, or nil.
func (d *Dimension) FindHierarchy(name string) *Hierarchy {
	for _, h := range d.GetHierarchies() {
		if h.Name == name {
			return h
		}
	}
	return nil
}

// FindLevel returns the exactly named level of the hierarchy, or nil.
func (h *Hierarchy) FindLevel(name string) *Level {
	for _, l := range h.Levels {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// FindMeasure returns the measure with the exact name, or nil.
func (e *EntityType) FindMeasure(name string) *Measure {
	for _, m := range e.Measures {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// DimensionNames lists dimension names in declaration order.
func (e *EntityType) DimensionNames() []string {
	names := make([]string, len(e.Dimensions))
	for i, d := range e.Dimensions {
		names[i] = d.Name
	}
	return names
}

// MeasureNames lists measure names in declaration order.
func (e *EntityType) MeasureNames() []string {
	names := make([]string, len(e.Measures))
	for i, m := range e.Measures {
		names[i] = m.Name
	}
	return names
}

// VariableNames lists variable names in declaration order.
func (e *EntityType) VariableNames() []string {
	names := make([]string, len(e.Variables))
	for i, v := range e.Variables {
		names[i] = v.Name
	}
	return names
}
