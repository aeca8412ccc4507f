package services

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// nameKeys are the names a schema element answers to.
type nameKeys struct {
	Name    string
	Caption string
	Aliases []string
}

// matchPass reports whether query matches keys under one precedence rule.
type matchPass func(query string, keys nameKeys) bool

// matchPasses run in order; the first pass with any hit decides, and within
// a pass the first element in declaration order wins.
var matchPasses = []matchPass{
	func(q string, k nameKeys) bool { return k.Name == q },
	func(q string, k nameKeys) bool { return strings.EqualFold(k.Name, q) },
	func(q string, k nameKeys) bool { return k.Caption != "" && k.Caption == q },
	func(q string, k nameKeys) bool { return k.Caption != "" && strings.EqualFold(k.Caption, q) },
	func(q string, k nameKeys) bool {
		for _, alias := range k.Aliases {
			if strings.EqualFold(alias, q) {
				return true
			}
		}
		return false
	},
	func(q string, k nameKeys) bool {
		return inflection.Singular(strings.ToLower(k.Name)) == inflection.Singular(strings.ToLower(q))
	},
}

// matchName returns the index of the element of keys that query names, or -1.
// Bracketed unique names such as "[Measures].[revenue]" are retried on their
// last segment.
func matchName(query string, keys []nameKeys) int {
	query = strings.TrimSpace(query)
	if query == "" {
		return -1
	}

	for _, pass := range matchPasses {
		for i, k := range keys {
			if pass(query, k) {
				return i
			}
		}
	}

	if segments := splitUniqueName(query); len(segments) > 0 {
		last := segments[len(segments)-1]
		if last != query {
			return matchName(last, keys)
		}
	}
	return -1
}

// splitUniqueName splits "[Time].[Calendar].[Month]" into its segments.
// Names without brackets yield nil.
func splitUniqueName(name string) []string {
	name = strings.TrimSpace(name)
	if !strings.HasPrefix(name, "[") || !strings.HasSuffix(name, "]") {
		return nil
	}

	var segments []string
	for _, part := range strings.Split(name[1:len(name)-1], "].[") {
		part = strings.TrimSpace(part)
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}
