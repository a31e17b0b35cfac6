package pricing

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// Table is a variant price table keyed by a size/color composite. Values may
// be JSON numbers or numeric strings.
type Table map[string]json.RawMessage

var separators = []string{"|", "-", "_", ":"}

// ResolvePrice returns the unit price for the size/color selection, falling
// back to base when no usable table entry matches.
func ResolvePrice(base decimal.Decimal, table Table, size, color string) decimal.Decimal {
	if len(table) == 0 {
		return base
	}
	for _, key := range candidateKeys(normalize(size), normalize(color)) {
		if price, ok := lookup(table, key); ok {
			return price
		}
	}
	return base
}

// InStock reports whether any units are available.
func InStock(stockQuantity int) bool {
	return stockQuantity > 0
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func candidateKeys(size, color string) []string {
	var keys []string
	if size != "" && color != "" {
		for _, sep := range separators {
			keys = append(keys, size+sep+color)
		}
	}
	if size != "" && color == "" {
		keys = append(keys, size)
	}
	if color != "" && size == "" {
		keys = append(keys, color)
	}
	return keys
}

func lookup(table Table, key string) (decimal.Decimal, bool) {
	if raw, ok := table[key]; ok {
		if price, ok := parse(raw); ok {
			return price, true
		}
	}
	// Keys that differ only by case resolve in sorted order.
	for _, k := range slices.Sorted(maps.Keys(table)) {
		if k == key || !strings.EqualFold(strings.TrimSpace(k), key) {
			continue
		}
		if price, ok := parse(table[k]); ok {
			return price, true
		}
	}
	return decimal.Decimal{}, false
}

func parse(raw json.RawMessage) (decimal.Decimal, bool) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return decimal.Decimal{}, false
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Decimal{}, false
		}
		text = strings.TrimSpace(s)
	}
	price, err := decimal.NewFromString(text)
	if err != nil || price.IsNegative() {
		return decimal.Decimal{}, false
	}
	return price, true
}
