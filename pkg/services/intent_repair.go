package services

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
	sqlcheck "github.com/ekaya-inc/ekaya-chatbi/pkg/sql"
)

// IntentRepairer reconciles model-emitted chart intent with a resolved
// EntityType. It is the only producer of ChartAnnotation and Slicer values,
// so everything it returns names dimensions, hierarchies and measures that
// exist in the EntityType. Inputs are never modified.
type IntentRepairer struct {
	now    func() time.Time
	logger *zap.Logger
}

// NewIntentRepairer creates a repairer using the wall clock for relative time
// ranges.
func NewIntentRepairer(logger *zap.Logger) *IntentRepairer {
	return &IntentRepairer{
		now:    time.Now,
		logger: logger.Named("intent-repair"),
	}
}

// Repair turns a chart answer into an immutable chart query against et.
// Slicers are ordered variables first, then explicit slicers, then time
// ranges.
func (r *IntentRepairer) Repair(answer *models.ChatAnswer, settings models.DataSettings, et *models.EntityType) (*models.ChartQuery, error) {
	if et == nil {
		return nil, fmt.Errorf("%w: no entity type to chart", apperrors.ErrMetadataUnavailable)
	}

	annotation := &models.ChartAnnotation{
		Dimensions: make([]models.ChartDimension, 0, len(answer.Dimensions)),
		Measures:   make([]models.ChartMeasure, 0, len(answer.Measures)),
	}
	if answer.ChartType != nil {
		annotation.ChartType = answer.ChartType.Type
	}

	// Output columns are keyed by hierarchy and measure name.
	columns := make(map[string]string)
	for _, spec := range answer.Dimensions {
		d, err := r.RepairDimension(spec, et)
		if err != nil {
			return nil, err
		}
		ref := d.Dimension + "/" + d.Hierarchy + "/" + d.Level
		if prev, ok := columns[d.Hierarchy]; ok {
			if prev == ref {
				continue
			}
			return nil, fmt.Errorf("%w: %q and %q both chart hierarchy %q; use one level per hierarchy",
				apperrors.ErrUnresolvableDimension, displayRef(prev), displayRef(ref), d.Hierarchy)
		}
		columns[d.Hierarchy] = ref
		annotation.Dimensions = append(annotation.Dimensions, d)
	}
	for _, spec := range answer.Measures {
		m, err := r.RepairMeasure(spec, et)
		if err != nil {
			return nil, err
		}
		if prev, ok := columns[m.Measure]; ok {
			if prev == m.Measure {
				continue
			}
			return nil, fmt.Errorf("%w: measure %q has the same name as charted hierarchy %q",
				apperrors.ErrUnresolvableMeasure, m.Measure, m.Measure)
		}
		columns[m.Measure] = m.Measure
		annotation.Measures = append(annotation.Measures, m)
	}
	if len(annotation.Measures) == 0 {
		return nil, fmt.Errorf("%w: a chart needs at least one measure (available: %s)",
			apperrors.ErrUnresolvableMeasure, strings.Join(et.MeasureNames(), ", "))
	}
	if annotation.CategoryDimension() == nil {
		return nil, fmt.Errorf("%w: the chart needs a category dimension (available: %s)",
			apperrors.ErrUnresolvableDimension, strings.Join(et.DimensionNames(), ", "))
	}

	slicers, err := r.RepairSlicers(answer, et)
	if err != nil {
		return nil, err
	}

	q := &models.ChartQuery{
		DataSource: settings.DataSource,
		EntitySet:  settings.EntitySet,
		EntityType: et,
		Annotation: annotation,
		Slicers:    slicers,
		Orders:     r.repairOrders(answer.Orders, annotation),
	}
	if answer.Top != nil {
		q.Top = answer.Top.Int()
	}
	return q, nil
}

// RepairSlicers repairs variables, explicit slicers and time slicers and
// merges them in that order.
func (r *IntentRepairer) RepairSlicers(answer *models.ChatAnswer, et *models.EntityType) ([]models.Slicer, error) {
	slicers := make([]models.Slicer, 0, len(answer.Variables)+len(answer.Slicers)+len(answer.TimeSlicers))

	for _, spec := range answer.Variables {
		s, err := r.RepairVariableSlicer(spec, et)
		if err != nil {
			return nil, err
		}
		slicers = append(slicers, s)
	}
	for _, spec := range answer.Slicers {
		s, err := r.RepairSlicer(spec, et)
		if err != nil {
			return nil, err
		}
		slicers = append(slicers, s)
	}
	for _, spec := range answer.TimeSlicers {
		s, err := r.RepairTimeSlicer(spec, et)
		if err != nil {
			return nil, err
		}
		slicers = append(slicers, s)
	}
	return slicers, nil
}

// RepairDimension resolves a dimension reference, defaulting the hierarchy
// and dropping levels that do not exist.
func (r *IntentRepairer) RepairDimension(spec models.DimensionSpec, et *models.EntityType) (models.ChartDimension, error) {
	ref, err := resolveDimensionRef(et, spec.Dimension, spec.Hierarchy, spec.Level)
	if err != nil {
		return models.ChartDimension{}, err
	}
	ref.Role = spec.Role
	return ref, nil
}

// RepairMeasure resolves a measure reference.
func (r *IntentRepairer) RepairMeasure(spec models.MeasureSpec, et *models.EntityType) (models.ChartMeasure, error) {
	i := matchName(spec.Measure, measureKeys(et.Measures))
	if i < 0 {
		return models.ChartMeasure{}, apperrors.NewResolutionError(apperrors.ErrUnresolvableMeasure, spec.Measure, et.MeasureNames())
	}

	m := et.Measures[i]
	caption := spec.Caption
	if caption == "" {
		caption = m.Caption
	}
	return models.ChartMeasure{Measure: m.Name, Caption: caption, Role: spec.Role}, nil
}

// RepairSlicer resolves an explicit member slicer. A slicer that addresses a
// variable instead of a dimension is repaired as a variable slicer but keeps
// its position.
func (r *IntentRepairer) RepairSlicer(spec models.SlicerSpec, et *models.EntityType) (models.Slicer, error) {
	if spec.Dimension.Dimension == "" && spec.Dimension.Parameter != "" {
		return r.RepairVariableSlicer(spec, et)
	}

	ref, err := resolveDimensionRef(et, spec.Dimension.Dimension, spec.Dimension.Hierarchy, spec.Dimension.Level)
	if err != nil {
		return models.Slicer{}, apperrors.NewResolutionError(apperrors.ErrUnresolvableSlicer, spec.Dimension.Dimension, et.DimensionNames())
	}

	members, err := screenMembers(ref.Dimension, spec.Members)
	if err != nil {
		return models.Slicer{}, err
	}

	return models.Slicer{
		Dimension: ref,
		Members:   members,
		Exclude:   spec.Exclude,
		Source:    models.SlicerSourceExplicit,
	}, nil
}

// RepairVariableSlicer binds a slicer to a cube variable, filtering the
// variable's reference dimension. Names that match no variable are retried as
// dimensions.
func (r *IntentRepairer) RepairVariableSlicer(spec models.SlicerSpec, et *models.EntityType) (models.Slicer, error) {
	name := spec.Dimension.Parameter
	if name == "" {
		name = spec.Dimension.Dimension
	}

	var (
		ref      models.ChartDimension
		variable string
		err      error
	)
	if i := matchName(name, variableKeys(et.Variables)); i >= 0 {
		v := et.Variables[i]
		variable = v.Name
		ref, err = resolveDimensionRef(et, v.ReferenceDimension, v.ReferenceHierarchy, "")
		if err != nil {
			return models.Slicer{}, fmt.Errorf("%w: variable %q references %q: %v",
				apperrors.ErrUnresolvableSlicer, v.Name, v.ReferenceDimension, err)
		}
	} else {
		ref, err = resolveDimensionRef(et, name, spec.Dimension.Hierarchy, spec.Dimension.Level)
		if err != nil {
			candidates := append(et.VariableNames(), et.DimensionNames()...)
			return models.Slicer{}, apperrors.NewResolutionError(apperrors.ErrUnresolvableSlicer, name, candidates)
		}
		r.logger.Debug("Variable slicer matched a dimension instead",
			zap.String("name", name),
			zap.String("dimension", ref.Dimension),
		)
	}

	members, err := screenMembers(ref.Dimension, spec.Members)
	if err != nil {
		return models.Slicer{}, err
	}

	return models.Slicer{
		Dimension: ref,
		Variable:  variable,
		Members:   members,
		Exclude:   spec.Exclude,
		Source:    models.SlicerSourceVariable,
	}, nil
}

// RepairTimeSlicer turns a time-ranges slicer into a date-range slicer on the
// dimension's own column. Without a dimension the first calendar dimension of
// the EntityType is used.
func (r *IntentRepairer) RepairTimeSlicer(spec models.TimeRangesSlicer, et *models.EntityType) (models.Slicer, error) {
	var (
		ref models.ChartDimension
		err error
	)
	if spec.Dimension.Dimension == "" {
		dim := firstTimeDimension(et)
		if dim == nil {
			return models.Slicer{}, fmt.Errorf("%w: time slicer has no dimension and %s has no calendar dimension",
				apperrors.ErrUnresolvableSlicer, et.Name)
		}
		ref = models.ChartDimension{Dimension: dim.Name, Hierarchy: dim.GetDefaultHierarchy().Name}
	} else {
		ref, err = resolveDimensionRef(et, spec.Dimension.Dimension, spec.Dimension.Hierarchy, "")
		if err != nil {
			return models.Slicer{}, apperrors.NewResolutionError(apperrors.ErrUnresolvableSlicer, spec.Dimension.Dimension, et.DimensionNames())
		}
	}

	current, err := parseCurrentDate(spec.CurrentDate, r.now())
	if err != nil {
		return models.Slicer{}, fmt.Errorf("%w: %v", apperrors.ErrUnresolvableSlicer, err)
	}
	ranges, err := sliceRanges(spec.Ranges, current)
	if err != nil {
		return models.Slicer{}, fmt.Errorf("%w: time slicer on %q: %v", apperrors.ErrUnresolvableSlicer, ref.Dimension, err)
	}

	return models.Slicer{
		Dimension: ref,
		Ranges:    ranges,
		Source:    models.SlicerSourceTime,
	}, nil
}

// displayRef trims the empty trailing level of a dimension/hierarchy/level key.
func displayRef(ref string) string {
	return strings.TrimSuffix(ref, "/")
}

// repairOrders keeps orders that name a charted hierarchy, dimension or
// measure and rewrites them to the output column name.
func (r *IntentRepairer) repairOrders(orders []models.OrderBy, a *models.ChartAnnotation) []models.ChartOrder {
	if len(orders) == 0 {
		return nil
	}

	keys := make([]nameKeys, 0, len(a.Dimensions)+len(a.Measures))
	outputs := make([]string, 0, cap(keys))
	for _, d := range a.Dimensions {
		keys = append(keys, nameKeys{Name: d.Hierarchy, Aliases: []string{d.Dimension, d.Level}})
		outputs = append(outputs, d.Hierarchy)
	}
	for _, m := range a.Measures {
		keys = append(keys, nameKeys{Name: m.Measure, Caption: m.Caption})
		outputs = append(outputs, m.Measure)
	}

	var out []models.ChartOrder
	for _, o := range orders {
		i := matchName(o.By, keys)
		if i < 0 {
			r.logger.Debug("Dropping order on uncharted field", zap.String("by", o.By))
			continue
		}
		out = append(out, models.ChartOrder{
			By:         outputs[i],
			Descending: strings.EqualFold(o.Order, "DESC"),
		})
	}
	return out
}

// resolveDimensionRef maps a loose dimension/hierarchy/level triple onto the
// EntityType. A name that is no dimension is tried as a hierarchy and then as
// a level anywhere in the EntityType.
func resolveDimensionRef(et *models.EntityType, dimension, hierarchy, level string) (models.ChartDimension, error) {
	if segments := splitUniqueName(dimension); len(segments) > 0 {
		dimension = segments[0]
		if hierarchy == "" && len(segments) > 1 {
			hierarchy = segments[1]
		}
		if level == "" && len(segments) > 2 {
			level = segments[2]
		}
	}

	var (
		dim *models.Dimension
		h   *models.Hierarchy
	)
	if i := matchName(dimension, dimensionKeys(et.Dimensions)); i >= 0 {
		dim = et.Dimensions[i]
	} else if d, hh := findHierarchy(et, dimension); d != nil {
		dim, h = d, hh
	} else if d, hh, l := findLevel(et, dimension); d != nil {
		dim, h = d, hh
		if level == "" {
			level = l.Name
		}
	} else {
		return models.ChartDimension{}, apperrors.NewResolutionError(apperrors.ErrUnresolvableDimension, dimension, et.DimensionNames())
	}

	hierarchies := dim.GetHierarchies()
	if h == nil {
		h = dim.GetDefaultHierarchy()
		if hierarchy != "" {
			if i := matchName(hierarchy, hierarchyKeys(hierarchies)); i >= 0 {
				h = hierarchies[i]
			} else if hh, l := findLevelIn(hierarchies, hierarchy); hh != nil {
				h = hh
				if level == "" {
					level = l.Name
				}
			}
		}
	}

	ref := models.ChartDimension{Dimension: dim.Name, Hierarchy: h.Name}
	if level != "" {
		if i := matchName(level, levelKeys(h.Levels)); i >= 0 {
			ref.Level = h.Levels[i].Name
		} else if hh, l := findLevelIn(hierarchies, level); hh != nil {
			ref.Hierarchy, ref.Level = hh.Name, l.Name
		}
	}
	return ref, nil
}

func findHierarchy(et *models.EntityType, name string) (*models.Dimension, *models.Hierarchy) {
	for _, d := range et.Dimensions {
		if i := matchName(name, hierarchyKeys(d.Hierarchies)); i >= 0 {
			return d, d.Hierarchies[i]
		}
	}
	return nil, nil
}

func findLevel(et *models.EntityType, name string) (*models.Dimension, *models.Hierarchy, *models.Level) {
	for _, d := range et.Dimensions {
		if h, l := findLevelIn(d.Hierarchies, name); h != nil {
			return d, h, l
		}
	}
	return nil, nil, nil
}

func findLevelIn(hierarchies []*models.Hierarchy, name string) (*models.Hierarchy, *models.Level) {
	for _, h := range hierarchies {
		if i := matchName(name, levelKeys(h.Levels)); i >= 0 {
			return h, h.Levels[i]
		}
	}
	return nil, nil
}

func firstTimeDimension(et *models.EntityType) *models.Dimension {
	for _, d := range et.Dimensions {
		if d.IsTime() {
			return d
		}
	}
	return nil
}

// screenMembers normalizes member keys (trimming, unwrapping "[dim].[key]"
// unique names, dropping duplicates) and rejects values libinjection flags.
func screenMembers(dimension string, members []models.Member) ([]models.Member, error) {
	out := make([]models.Member, 0, len(members))
	seen := make(map[string]bool, len(members))

	for _, m := range members {
		key := strings.TrimSpace(m.Key)
		if segments := splitUniqueName(key); len(segments) > 0 {
			key = segments[len(segments)-1]
		}
		if key == "" {
			return nil, fmt.Errorf("%w: empty member key for %q", apperrors.ErrUnresolvableSlicer, dimension)
		}
		if hit := sqlcheck.CheckMembers(dimension, key, m.Caption); hit != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrUnresolvableSlicer, hit)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, models.Member{Key: key, Caption: m.Caption})
	}
	return out, nil
}

func dimensionKeys(dims []*models.Dimension) []nameKeys {
	keys := make([]nameKeys, len(dims))
	for i, d := range dims {
		keys[i] = nameKeys{Name: d.Name, Caption: d.Caption, Aliases: d.Aliases}
	}
	return keys
}

func hierarchyKeys(hierarchies []*models.Hierarchy) []nameKeys {
	keys := make([]nameKeys, len(hierarchies))
	for i, h := range hierarchies {
		keys[i] = nameKeys{Name: h.Name, Caption: h.Caption, Aliases: h.Aliases}
	}
	return keys
}

func levelKeys(levels []*models.Level) []nameKeys {
	keys := make([]nameKeys, len(levels))
	for i, l := range levels {
		keys[i] = nameKeys{Name: l.Name, Caption: l.Caption, Aliases: l.Aliases}
	}
	return keys
}

func measureKeys(measures []*models.Measure) []nameKeys {
	keys := make([]nameKeys, len(measures))
	for i, m := range measures {
		keys[i] = nameKeys{Name: m.Name, Caption: m.Caption, Aliases: m.Aliases}
	}
	return keys
}

func variableKeys(variables []*models.Variable) []nameKeys {
	keys := make([]nameKeys, len(variables))
	for i, v := range variables {
		keys[i] = nameKeys{Name: v.Name, Caption: v.Caption, Aliases: v.Aliases}
	}
	return keys
}
