package datasource

import (
	"strconv"
	"time"
)

// NormalizeValue converts driver values into JSON-friendly scalars: dates
// without a time part become "YYYY-MM-DD", other times RFC 3339, and byte
// slices (SQL Server DECIMAL, MONEY) numbers when they parse as one.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format(time.RFC3339)
	case []byte:
		s := string(val)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	default:
		return v
	}
}
