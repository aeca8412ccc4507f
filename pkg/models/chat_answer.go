package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/jsonutil"
)

// ============================================================================
// Chat answer (model-emitted chart intent)
// ============================================================================

// Chart types accepted from the model.
const (
	ChartTypeColumn = "Column"
	ChartTypeLine   = "Line"
	ChartTypePie    = "Pie"
	ChartTypeBar    = "Bar"
)

// ChatAnswer is the structured argument of the answerQuestion tool.
// Every field except Preface is optional; a missing ChartType means no chart
// was requested.
type ChatAnswer struct {
	Preface      string                `json:"preface" validate:"required"`
	DataSettings *DataSettings         `json:"dataSettings,omitempty" validate:"omitempty"`
	ChartType    *ChartType            `json:"chartType,omitempty" validate:"omitempty"`
	Dimensions   []DimensionSpec       `json:"dimensions,omitempty" validate:"omitempty,dive"`
	Measures     []MeasureSpec         `json:"measures,omitempty" validate:"omitempty,dive"`
	Orders       []OrderBy             `json:"orders,omitempty" validate:"omitempty,dive"`
	Top          *jsonutil.FlexibleInt `json:"top,omitempty" validate:"omitempty,gt=0,lte=1000"`
	Slicers      []SlicerSpec          `json:"slicers,omitempty" validate:"omitempty,dive"`
	TimeSlicers  []TimeRangesSlicer    `json:"timeSlicers,omitempty" validate:"omitempty,dive"`
	Variables    []SlicerSpec          `json:"variables,omitempty" validate:"omitempty,dive"`
	Conclusion   string                `json:"conclusion,omitempty"`
}

// DataSettings references the entity set a chart is drawn from.
type DataSettings struct {
	DataSource string `json:"dataSource" validate:"required"`
	EntitySet  string `json:"entitySet" validate:"required"`
}

// ChartType selects the chart kind.
type ChartType struct {
	Type string `json:"type" validate:"required,oneof=Column Line Pie Bar"`
}

// DimensionSpec is a dimension reference as emitted by the model. Hierarchy
// and level may be missing or only loosely match the schema.
type DimensionSpec struct {
	Dimension string `json:"dimension" validate:"required"`
	Hierarchy string `json:"hierarchy,omitempty"`
	Level     string `json:"level,omitempty"`
	Role      string `json:"role,omitempty" validate:"omitempty,oneof=Category Category2 Group Stacked Time"`
}

// MeasureSpec is a measure reference as emitted by the model.
type MeasureSpec struct {
	Measure string `json:"measure" validate:"required"`
	Caption string `json:"caption,omitempty"`
	Role    string `json:"role,omitempty" validate:"omitempty,oneof=Axis1 Axis2"`
}

// OrderBy sorts the result by a dimension or measure name.
type OrderBy struct {
	By    string `json:"by" validate:"required"`
	Order string `json:"order,omitempty" validate:"omitempty,oneof=ASC DESC asc desc"`
}

// SlicerDimension addresses the dimension (or variable, via Parameter) a
// slicer filters.
type SlicerDimension struct {
	Dimension string `json:"dimension,omitempty" validate:"required_without=Parameter"`
	Hierarchy string `json:"hierarchy,omitempty"`
	Level     string `json:"level,omitempty"`
	Parameter string `json:"parameter,omitempty" validate:"required_without=Dimension"`
}

// SlicerSpec is a member filter as emitted by the model. Variables use the
// same shape with Dimension.Parameter naming the cube variable.
type SlicerSpec struct {
	Dimension SlicerDimension `json:"dimension"`
	Members   []Member        `json:"members" validate:"required,min=1,dive"`
	Exclude   bool            `json:"exclude,omitempty"`
}

// Member is one dimension member. Keys arrive as strings or numbers.
type Member struct {
	Key     string `json:"key" validate:"required"`
	Caption string `json:"caption,omitempty"`
}

// UnmarshalJSON accepts numeric and boolean keys as well as strings, and a
// bare value in place of the member object.
func (m *Member) UnmarshalJSON(data []byte) error {
	var raw struct {
		Key     json.RawMessage `json:"key"`
		Value   json.RawMessage `json:"value"`
		Caption json.RawMessage `json:"caption"`
		Label   json.RawMessage `json:"label"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		m.Key = jsonutil.FlexibleStringValue(data)
		m.Caption = ""
		return nil
	}
	m.Key = jsonutil.FlexibleStringValue(raw.Key)
	if m.Key == "" {
		m.Key = jsonutil.FlexibleStringValue(raw.Value)
	}
	m.Caption = jsonutil.FlexibleStringValue(raw.Caption)
	if m.Caption == "" {
		m.Caption = jsonutil.FlexibleStringValue(raw.Label)
	}
	return nil
}

// Time range kinds and granularities.
const (
	TimeRangeStandard = "Standard"
	TimeRangeOffset   = "Offset"

	GranularityYear    = "Year"
	GranularityQuarter = "Quarter"
	GranularityMonth   = "Month"
	GranularityWeek    = "Week"
	GranularityDay     = "Day"
)

// TimeRangesSlicer restricts a calendar dimension to one or more ranges.
// CurrentDate is "TODAY", "SYSTEMTIME" or an explicit YYYY-MM-DD date.
type TimeRangesSlicer struct {
	Dimension   SlicerDimension `json:"dimension"`
	CurrentDate string          `json:"currentDate,omitempty"`
	Ranges      []TimeRange     `json:"ranges" validate:"required,min=1,dive"`
}

// TimeRange is either a Standard range with explicit Start/End dates or an
// Offset range of Lookback/Lookahead granularity units around the current date.
type TimeRange struct {
	Type        string `json:"type" validate:"required,oneof=Standard Offset"`
	Granularity string `json:"granularity" validate:"required,oneof=Year Quarter Month Week Day"`
	Start       string `json:"start,omitempty"`
	End         string `json:"end,omitempty"`
	Lookback    int    `json:"lookBack,omitempty" validate:"gte=0"`
	Lookahead   int    `json:"lookAhead,omitempty" validate:"gte=0"`
}

// HasChart reports whether the answer asks for a chart.
func (a *ChatAnswer) HasChart() bool {
	return a.ChartType != nil
}

// ============================================================================
// Validation
// ============================================================================

var answerValidate = validator.New()

// FieldError describes one failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// ValidationError lists every rule a ChatAnswer failed. It unwraps to
// apperrors.ErrInvalidAnswer.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		if f.Param != "" {
			parts[i] = fmt.Sprintf("%s failed %s=%s", f.Field, f.Rule, f.Param)
		} else {
			parts[i] = fmt.Sprintf("%s failed %s", f.Field, f.Rule)
		}
	}
	return fmt.Sprintf("%v: %s", apperrors.ErrInvalidAnswer, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidAnswer
}

// Validate checks the answer against its schema. It never mutates the answer.
func (a *ChatAnswer) Validate() error {
	err := answerValidate.Struct(a)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidAnswer, err)
	}

	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field: strings.TrimPrefix(fe.Namespace(), "ChatAnswer."),
			Rule:  fe.Tag(),
			Param: fe.Param(),
		})
	}
	return out
}

// DecodeChatAnswer parses and validates a tool argument payload.
func DecodeChatAnswer(raw []byte) (*ChatAnswer, error) {
	var answer ChatAnswer
	if err := json.Unmarshal(raw, &answer); err != nil {
		return nil, fmt.Errorf("%w: malformed arguments: %v", apperrors.ErrInvalidAnswer, err)
	}
	if err := answer.Validate(); err != nil {
		return nil, err
	}
	return &answer, nil
}
