// Package enums holds the closed string sets shared by the API, the
// session state and the upstream wire types.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

// parse matches value case-insensitively, ignoring surrounding space.
func parse[T ~string](kind string, valid []T, value string) (T, error) {
	norm := strings.ToLower(strings.TrimSpace(value))
	if i := slices.IndexFunc(valid, func(v T) bool { return string(v) == norm }); i >= 0 {
		return valid[i], nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, value)
}
