package datasource

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
)

// Dialect captures the SQL differences between engines.
type Dialect interface {
	// QuoteIdentifier quotes a single identifier.
	QuoteIdentifier(name string) string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string
	// TopClause is inserted after SELECT (SQL Server TOP).
	TopClause(limit int) string
	// LimitClause is appended to the statement (LIMIT n).
	LimitClause(limit int) string
}

// ChartSQL is a rendered chart statement and its bind arguments.
type ChartSQL struct {
	SQL  string
	Args []any
	// Aliases lists the output columns in select order.
	Aliases []string
}

// QuoteTable quotes a possibly schema-qualified table name.
func QuoteTable(d Dialect, table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = d.QuoteIdentifier(strings.Trim(p, `"[]`))
	}
	return strings.Join(parts, ".")
}

// DimensionColumn returns the column a resolved dimension reference groups
// by: the level's column, else the first (coarsest) level of the hierarchy,
// else the dimension's own column.
func DimensionColumn(dim *models.Dimension, hierarchy, level string) string {
	h := dim.FindHierarchy(hierarchy)
	if h == nil {
		h = dim.GetDefaultHierarchy()
	}
	if level != "" {
		if l := h.FindLevel(level); l != nil {
			return l.Column
		}
	}
	if len(h.Levels) > 0 {
		return h.Levels[0].Column
	}
	return dim.GetColumn()
}

// slicerColumn filters on the named level, or on the dimension's own column.
func slicerColumn(dim *models.Dimension, hierarchy, level string) string {
	if level != "" {
		return DimensionColumn(dim, hierarchy, level)
	}
	return dim.GetColumn()
}

func aggregate(d Dialect, m *models.Measure) string {
	col := d.QuoteIdentifier(m.GetColumn())
	switch m.GetAggregator() {
	case models.AggregatorCount:
		return "COUNT(" + col + ")"
	case models.AggregatorDistinctCount:
		return "COUNT(DISTINCT " + col + ")"
	case models.AggregatorAvg:
		return "AVG(" + col + ")"
	case models.AggregatorMin:
		return "MIN(" + col + ")"
	case models.AggregatorMax:
		return "MAX(" + col + ")"
	default:
		return "SUM(" + col + ")"
	}
}

// BuildChartSQL renders a grouped aggregate statement for a chart query.
// Every dimension and measure must exist in q.EntityType.
func BuildChartSQL(d Dialect, q *models.ChartQuery) (*ChartSQL, error) {
	et := q.EntityType
	if et == nil || q.Annotation == nil {
		return nil, fmt.Errorf("chart query missing entity type or annotation")
	}
	if et.Table == "" {
		return nil, fmt.Errorf("entity type %s has no backing table", et.Name)
	}

	var (
		selects []string
		groups  []string
		aliases []string
		seen    = make(map[string]bool)
	)

	for _, cd := range q.Annotation.Dimensions {
		dim := et.FindDimension(cd.Dimension)
		if dim == nil {
			return nil, fmt.Errorf("dimension %q not in entity type %s", cd.Dimension, et.Name)
		}
		if seen[cd.Hierarchy] {
			return nil, fmt.Errorf("duplicate output column %q", cd.Hierarchy)
		}
		seen[cd.Hierarchy] = true

		col := d.QuoteIdentifier(DimensionColumn(dim, cd.Hierarchy, cd.Level))
		selects = append(selects, col+" AS "+d.QuoteIdentifier(cd.Hierarchy))
		groups = append(groups, col)
		aliases = append(aliases, cd.Hierarchy)
	}

	for _, cm := range q.Annotation.Measures {
		m := et.FindMeasure(cm.Measure)
		if m == nil {
			return nil, fmt.Errorf("measure %q not in entity type %s", cm.Measure, et.Name)
		}
		if seen[cm.Measure] {
			return nil, fmt.Errorf("duplicate output column %q", cm.Measure)
		}
		seen[cm.Measure] = true

		selects = append(selects, aggregate(d, m)+" AS "+d.QuoteIdentifier(cm.Measure))
		aliases = append(aliases, cm.Measure)
	}

	if len(selects) == 0 {
		return nil, fmt.Errorf("chart query selects nothing")
	}

	var (
		where []string
		args  []any
	)
	bind := func(v any) string {
		args = append(args, v)
		return d.Placeholder(len(args))
	}

	for _, s := range q.Slicers {
		dim := et.FindDimension(s.Dimension.Dimension)
		if dim == nil {
			return nil, fmt.Errorf("slicer dimension %q not in entity type %s", s.Dimension.Dimension, et.Name)
		}
		col := d.QuoteIdentifier(slicerColumn(dim, s.Dimension.Hierarchy, s.Dimension.Level))

		if len(s.Ranges) > 0 {
			spans := make([]string, len(s.Ranges))
			for i, rng := range s.Ranges {
				spans[i] = fmt.Sprintf("(%s >= %s AND %s < %s)", col, bind(rng.From), col, bind(rng.To))
			}
			if len(spans) == 1 {
				where = append(where, spans[0])
			} else {
				where = append(where, "("+strings.Join(spans, " OR ")+")")
			}
			continue
		}
		if len(s.Members) == 0 {
			continue
		}
		marks := make([]string, len(s.Members))
		for i, member := range s.Members {
			marks[i] = bind(member.Key)
		}
		op := "IN"
		if s.Exclude {
			op = "NOT IN"
		}
		where = append(where, fmt.Sprintf("%s %s (%s)", col, op, strings.Join(marks, ", ")))
	}

	limit := q.Top
	if limit <= 0 || limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(d.TopClause(limit))
	sb.WriteString(strings.Join(selects, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(QuoteTable(d, et.Table))
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	if len(groups) > 0 && len(q.Annotation.Measures) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(groups, ", "))
	}

	orders := orderClause(d, q, aliases)
	if orders != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(orders)
	}
	sb.WriteString(d.LimitClause(limit))

	return &ChartSQL{SQL: sb.String(), Args: args, Aliases: aliases}, nil
}

// orderClause sorts by the requested output columns, or by the first
// dimension when nothing usable was requested.
func orderClause(d Dialect, q *models.ChartQuery, aliases []string) string {
	known := make(map[string]bool, len(aliases))
	for _, a := range aliases {
		known[a] = true
	}

	var parts []string
	for _, o := range q.Orders {
		if !known[o.By] {
			continue
		}
		dir := "ASC"
		if o.Descending {
			dir = "DESC"
		}
		parts = append(parts, d.QuoteIdentifier(o.By)+" "+dir)
	}
	if len(parts) == 0 && len(q.Annotation.Dimensions) > 0 {
		parts = append(parts, d.QuoteIdentifier(q.Annotation.Dimensions[0].Hierarchy)+" ASC")
	}
	return strings.Join(parts, ", ")
}
