// Package utils holds small helpers shared by the HTTP layer.
package utils

import "strconv"

// AtoiDefault parses s as a base-10 int, returning def when s is empty or
// not a valid integer. No whitespace is trimmed.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampInt bounds v to [lo, hi]. A hi below lo leaves only the lower bound.
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if hi >= lo && v > hi {
		return hi
	}
	return v
}

// QueryInt parses a query value with AtoiDefault and clamps the result.
func QueryInt(s string, def, lo, hi int) int {
	return ClampInt(AtoiDefault(s, def), lo, hi)
}
