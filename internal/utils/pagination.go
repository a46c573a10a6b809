// Package utils provides small helpers shared across layers: numeric query
// parameter parsing and the display formatters used by the mobile client.
package utils

import "strconv"

// AtoiDefault parses s as an int, returning def when s is empty or not a
// plain integer. Used for page/page_size query parameters, where anything
// unparseable should silently fall back to the default rather than fail the
// request.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
