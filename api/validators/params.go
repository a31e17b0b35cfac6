package validators

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

// QueryInt reads an integer query parameter bounded to [min, max]. A missing
// parameter yields def.
func QueryInt(r *http.Request, key string, def, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, queryError(key, "must be an integer", nil)
	}
	if n < min || n > max {
		return 0, queryError(key, "out of range", map[string]any{"min": min, "max": max})
	}
	return n, nil
}

// QueryBool reads a boolean query parameter in any strconv.ParseBool form.
func QueryBool(r *http.Request, key string, def bool) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, queryError(key, "must be true or false", nil)
	}
	return b, nil
}

func queryError(key, problem string, extra map[string]any) error {
	details := map[string]any{"field": key}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.Newf(pkgerrors.CodeValidation, "query parameter %s %s", key, problem).WithDetails(details)
}

// Clean trims s and keeps at most maxRunes runes. Zero means no limit.
func Clean(s string, maxRunes int) string {
	s = strings.TrimSpace(s)
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	cut := 0
	for i := range s {
		if maxRunes == 0 {
			cut = i
			break
		}
		maxRunes--
	}
	return strings.TrimSpace(s[:cut])
}
