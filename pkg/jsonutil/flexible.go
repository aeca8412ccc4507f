// Package jsonutil decodes loosely typed JSON produced by language models.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleStringValue renders a scalar JSON value as a string. Models often
// emit member keys as numbers or booleans; those are formatted without
// exponent so "2024" stays "2024". Null and empty input yield "". Objects and
// arrays are returned verbatim.
func FlexibleStringValue(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return strconv.FormatBool(b)
		}
	case '{', '[':
		return trimmed
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			if i, err := n.Int64(); err == nil {
				return strconv.FormatInt(i, 10)
			}
			if f, err := n.Float64(); err == nil {
				return strconv.FormatFloat(f, 'f', -1, 64)
			}
			return n.String()
		}
	}
	return trimmed
}

// FlexibleInt is an int that also decodes from a numeric string ("10") or a
// whole float (10.0).
type FlexibleInt int

func (f *FlexibleInt) UnmarshalJSON(data []byte) error {
	s := FlexibleStringValue(data)
	if s == "" {
		*f = 0
		return nil
	}
	if i, err := strconv.Atoi(s); err == nil {
		*f = FlexibleInt(i)
		return nil
	}
	fl, err := strconv.ParseFloat(s, 64)
	if err != nil || fl != float64(int(fl)) {
		return fmt.Errorf("jsonutil: %s is not an integer", s)
	}
	*f = FlexibleInt(int(fl))
	return nil
}

// Int returns the plain int value.
func (f FlexibleInt) Int() int {
	return int(f)
}
