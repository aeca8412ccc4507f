package models

import (
	"time"
)

// ============================================================================
// Canonical chart request (produced only by intent repair)
// ============================================================================

// ChartDimension is a dimension reference resolved against an EntityType.
// Hierarchy is always set; Level is empty when the whole hierarchy is meant.
type ChartDimension struct {
	Dimension string `json:"dimension"`
	Hierarchy string `json:"hierarchy"`
	Level     string `json:"level,omitempty"`
	Role      string `json:"role,omitempty"`
}

// ChartMeasure is a measure reference resolved against an EntityType.
type ChartMeasure struct {
	Measure string `json:"measure"`
	Caption string `json:"caption,omitempty"`
	Role    string `json:"role,omitempty"`
}

// ChartAnnotation is the schema-valid description of what to chart.
type ChartAnnotation struct {
	ChartType  string           `json:"chartType"`
	Dimensions []ChartDimension `json:"dimensions"`
	Measures   []ChartMeasure   `json:"measures"`
}

// CategoryDimension returns the dimension used as chart category: the first
// one with a Category or Time role, otherwise the first dimension.
func (a *ChartAnnotation) CategoryDimension() *ChartDimension {
	for i := range a.Dimensions {
		if a.Dimensions[i].Role == "Category" || a.Dimensions[i].Role == "Time" {
			return &a.Dimensions[i]
		}
	}
	if len(a.Dimensions) == 0 {
		return nil
	}
	return &a.Dimensions[0]
}

// SlicerSource records where a canonical slicer came from.
type SlicerSource string

const (
	SlicerSourceVariable SlicerSource = "variable"
	SlicerSourceExplicit SlicerSource = "explicit"
	SlicerSourceTime     SlicerSource = "time"
)

// DateRange is a half-open [From, To) interval.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Slicer is a canonical filter over one dimension of the EntityType. Exactly
// one of Members and Ranges is set. Ranges are disjoint, sorted, and match
// when any one of them contains the value.
type Slicer struct {
	Dimension ChartDimension `json:"dimension"`
	Variable  string         `json:"variable,omitempty"`
	Members   []Member       `json:"members,omitempty"`
	Exclude   bool           `json:"exclude,omitempty"`
	Ranges    []DateRange    `json:"ranges,omitempty"`
	Source    SlicerSource   `json:"source"`
}

// MemberKeys returns the member keys in order.
func (s *Slicer) MemberKeys() []string {
	keys := make([]string, len(s.Members))
	for i, m := range s.Members {
		keys[i] = m.Key
	}
	return keys
}

// ChartOrder sorts by a resolved dimension hierarchy or measure name.
type ChartOrder struct {
	By         string `json:"by"`
	Descending bool   `json:"descending,omitempty"`
}

// ChartQuery is the immutable request handed to a data engine.
type ChartQuery struct {
	DataSource string           `json:"dataSource"`
	EntitySet  string           `json:"entitySet"`
	EntityType *EntityType      `json:"-"`
	Annotation *ChartAnnotation `json:"annotation"`
	Slicers    []Slicer         `json:"slicers,omitempty"`
	Orders     []ChartOrder     `json:"orders,omitempty"`
	Top        int              `json:"top,omitempty"`
}

// QueryResult carries either rows or an engine error message, never both.
type QueryResult struct {
	Data  []map[string]any `json:"data,omitempty"`
	Error string           `json:"error,omitempty"`
}

// Failed reports whether the engine returned an error.
func (r *QueryResult) Failed() bool {
	return r.Error != ""
}

// ============================================================================
// Render payload (chart card)
// ============================================================================

// RenderPayload is the interactive chart card published to a conversation.
type RenderPayload struct {
	Header   CardHeader    `json:"header"`
	Elements []CardElement `json:"elements"`
}

// CardHeader titles the card.
type CardHeader struct {
	Template string    `json:"template,omitempty"`
	Title    CardTitle `json:"title"`
}

// CardTitle is a plain-text title.
type CardTitle struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

// CardElement is one card block. Chart blocks use Tag "chart".
type CardElement struct {
	Tag       string     `json:"tag"`
	ChartSpec *ChartSpec `json:"chart_spec,omitempty"`
}

// ChartSpec is the renderable chart. Cartesian charts use XField/YField,
// pie charts use CategoryField/ValueField.
type ChartSpec struct {
	Type          string        `json:"type"`
	Title         ChartSpecText `json:"title"`
	Data          ChartData     `json:"data"`
	XField        string        `json:"xField,omitempty"`
	YField        string        `json:"yField,omitempty"`
	CategoryField string        `json:"categoryField,omitempty"`
	ValueField    string        `json:"valueField,omitempty"`
	Direction     string        `json:"direction,omitempty"`
}

// ChartSpecText is the chart title block.
type ChartSpecText struct {
	Text string `json:"text"`
}

// ChartData holds the raw row values.
type ChartData struct {
	Values []map[string]any `json:"values"`
}

// Chart returns the first chart block of the card, or nil.
func (p *RenderPayload) Chart() *ChartSpec {
	for _, e := range p.Elements {
		if e.Tag == "chart" && e.ChartSpec != nil {
			return e.ChartSpec
		}
	}
	return nil
}
