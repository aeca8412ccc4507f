package services

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
)

var (
	quarterPattern = regexp.MustCompile(`(?i)^(\d{4})\s*[-/ ]?\s*Q([1-4])$`)
	weekPattern    = regexp.MustCompile(`(?i)^(\d{4})\s*-?\s*W(\d{1,2})$`)
)

// parseCurrentDate resolves "TODAY", "SYSTEMTIME" or an explicit date to a
// UTC midnight.
func parseCurrentDate(s string, now time.Time) (time.Time, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "TODAY", "SYSTEMTIME", "NOW":
		return truncateDay(now), nil
	}
	t, err := parseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid current date %q", s)
	}
	return t, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "20060102", "2006/01/02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not a date: %q", s)
}

// periodStart truncates t to the start of its period. Weeks start on Monday.
func periodStart(t time.Time, granularity string) time.Time {
	t = truncateDay(t)
	switch granularity {
	case models.GranularityYear:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	case models.GranularityQuarter:
		month := time.Month((int(t.Month())-1)/3*3 + 1)
		return time.Date(t.Year(), month, 1, 0, 0, 0, 0, time.UTC)
	case models.GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case models.GranularityWeek:
		offset := (int(t.Weekday()) + 6) % 7
		return t.AddDate(0, 0, -offset)
	default:
		return t
	}
}

// addPeriods moves a period start by n periods.
func addPeriods(t time.Time, granularity string, n int) time.Time {
	switch granularity {
	case models.GranularityYear:
		return t.AddDate(n, 0, 0)
	case models.GranularityQuarter:
		return t.AddDate(0, 3*n, 0)
	case models.GranularityMonth:
		return t.AddDate(0, n, 0)
	case models.GranularityWeek:
		return t.AddDate(0, 0, 7*n)
	default:
		return t.AddDate(0, 0, n)
	}
}

// parsePeriod parses a period label at the given granularity ("2024",
// "2024-Q2", "2024-05", "2024-W07", "2024-05-17") and returns its start. A
// full date is accepted at every granularity.
func parsePeriod(s, granularity string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := parseDate(s); err == nil {
		return periodStart(t, granularity), nil
	}

	switch granularity {
	case models.GranularityYear:
		if t, err := time.Parse("2006", s); err == nil {
			return t, nil
		}
	case models.GranularityQuarter:
		if m := quarterPattern.FindStringSubmatch(s); m != nil {
			year, _ := strconv.Atoi(m[1])
			q, _ := strconv.Atoi(m[2])
			return time.Date(year, time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC), nil
		}
	case models.GranularityMonth:
		for _, layout := range []string{"2006-01", "200601", "2006/01"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
	case models.GranularityWeek:
		if m := weekPattern.FindStringSubmatch(s); m != nil {
			year, _ := strconv.Atoi(m[1])
			week, _ := strconv.Atoi(m[2])
			if week >= 1 && week <= 53 {
				// ISO week 1 contains January 4th.
				jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
				return periodStart(jan4, models.GranularityWeek).AddDate(0, 0, 7*(week-1)), nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a %s", s, strings.ToLower(granularity))
}

// timeRangeBounds returns the half-open interval one range covers.
func timeRangeBounds(r models.TimeRange, current time.Time) (*models.DateRange, error) {
	switch r.Type {
	case models.TimeRangeOffset:
		base := periodStart(current, r.Granularity)
		return &models.DateRange{
			From: addPeriods(base, r.Granularity, -r.Lookback),
			To:   addPeriods(base, r.Granularity, r.Lookahead+1),
		}, nil

	case models.TimeRangeStandard:
		if r.Start == "" {
			return nil, fmt.Errorf("standard range needs a start")
		}
		from, err := parsePeriod(r.Start, r.Granularity)
		if err != nil {
			return nil, err
		}
		last := from
		if r.End != "" {
			if last, err = parsePeriod(r.End, r.Granularity); err != nil {
				return nil, err
			}
		}
		to := addPeriods(last, r.Granularity, 1)
		if !to.After(from) {
			return nil, fmt.Errorf("range %s..%s is empty", r.Start, r.End)
		}
		return &models.DateRange{From: from, To: to}, nil

	default:
		return nil, fmt.Errorf("unknown range type %q", r.Type)
	}
}

// sliceRanges resolves the ranges of a slicer to their union: sorted,
// with overlapping or touching intervals joined and gaps kept.
func sliceRanges(ranges []models.TimeRange, current time.Time) ([]models.DateRange, error) {
	if len(ranges) == 0 {
		return nil, fmt.Errorf("no ranges")
	}
	bounds := make([]models.DateRange, 0, len(ranges))
	for _, r := range ranges {
		b, err := timeRangeBounds(r, current)
		if err != nil {
			return nil, err
		}
		bounds = append(bounds, *b)
	}
	slices.SortFunc(bounds, func(a, b models.DateRange) int {
		return a.From.Compare(b.From)
	})

	out := []models.DateRange{bounds[0]}
	for _, b := range bounds[1:] {
		last := &out[len(out)-1]
		if b.From.After(last.To) {
			out = append(out, b)
			continue
		}
		if b.To.After(last.To) {
			last.To = b.To
		}
	}
	return out, nil
}
