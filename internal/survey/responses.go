package survey

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ResponseSet maps question id to an answer. Canonical value shapes are
// int (rating), string (single choice and text) and []string (checkbox,
// multi_select). Values are stored as given; shape checks belong to the
// validator.
type ResponseSet map[string]any

// Clone returns a copy that shares no slices with rs.
func (rs ResponseSet) Clone() ResponseSet {
	out := make(ResponseSet, len(rs))
	for k, v := range rs {
		if ss, ok := v.([]string); ok {
			cp := make([]string, len(ss))
			copy(cp, ss)
			v = cp
		}
		out[k] = v
	}
	return out
}

// UnmarshalJSON decodes a JSON object and normalizes its values.
func (rs *ResponseSet) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*rs = nil
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*rs = NormalizeResponses(raw)
	return nil
}

// NormalizeResponses converts values produced by a generic JSON decoder
// (float64, json.Number, []any) into the canonical shapes, so that a
// ResponseSet survives an encode/decode round trip unchanged.
func NormalizeResponses(in map[string]any) ResponseSet {
	if in == nil {
		return ResponseSet{}
	}
	out := make(ResponseSet, len(in))
	for k, v := range in {
		out[k] = NormalizeValue(v)
	}
	return out
}

// NormalizeValue converts one generically decoded JSON value into its
// canonical answer shape.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < math.MaxInt32 {
			return int(t)
		}
		return t
	case json.Number:
		if i, err := strconv.Atoi(t.String()); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		if ss, ok := toStringSlice(t); ok {
			return ss
		}
		return t
	}
	return v
}

// toStringSlice accepts []string or []interface{} holding only strings.
func toStringSlice(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			s, ok := x.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// IsEmpty reports whether v counts as "no answer": nil, a blank string,
// or an empty sequence.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}

// Toggle adds option to the sequence held in v, or removes it when
// already present. Order of the remaining entries is preserved.
func Toggle(v any, option string) []string {
	cur, _ := toStringSlice(v)
	out := make([]string, 0, len(cur)+1)
	found := false
	for _, s := range cur {
		if s == option {
			found = true
			continue
		}
		out = append(out, s)
	}
	if !found {
		out = append(out, option)
	}
	return out
}
