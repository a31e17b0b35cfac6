package cart

import (
	"sort"
	"strings"
)

const (
	attrSize  = "size"
	attrColor = "color"
)

// Variant is the shopper's attribute selection for a line. Custom carries
// any axes beyond size and color.
type Variant struct {
	Size   string            `json:"size,omitempty"`
	Color  string            `json:"color,omitempty"`
	Custom map[string]string `json:"custom,omitempty"`
}

// Signature is the order-independent identity of the selection: trimmed,
// lowercased name=value pairs, blanks dropped, sorted and joined with ";".
func (v Variant) Signature() string {
	pairs := make([]string, 0, 2+len(v.Custom))
	add := func(name, value string) {
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.ToLower(strings.TrimSpace(value))
		if name == "" || value == "" {
			return
		}
		pairs = append(pairs, name+"="+value)
	}
	add(attrSize, v.Size)
	add(attrColor, v.Color)
	for name, value := range v.Custom {
		if n := strings.ToLower(strings.TrimSpace(name)); n == attrSize || n == attrColor {
			continue
		}
		add(name, value)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ";")
}

func (v Variant) IsZero() bool {
	return v.Signature() == ""
}

// Attributes flattens the selection into a single map.
func (v Variant) Attributes() map[string]string {
	if v.IsZero() {
		return nil
	}
	out := make(map[string]string, 2+len(v.Custom))
	for k, val := range v.Custom {
		if strings.TrimSpace(val) != "" {
			out[k] = val
		}
	}
	if s := strings.TrimSpace(v.Size); s != "" {
		out[attrSize] = s
	}
	if c := strings.TrimSpace(v.Color); c != "" {
		out[attrColor] = c
	}
	return out
}

func (v Variant) clone() Variant {
	out := Variant{Size: v.Size, Color: v.Color}
	if len(v.Custom) > 0 {
		out.Custom = make(map[string]string, len(v.Custom))
		for k, val := range v.Custom {
			out.Custom[k] = val
		}
	}
	return out
}
