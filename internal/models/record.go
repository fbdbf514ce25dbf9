package models

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/golobby/cast"
)

// Record is one entity as it travels on the wire: field name to value.
// Values are strings, float64 numbers, []any id lists, or nil.
type Record map[string]any

// Clone returns a deep copy; id lists are copied so the clone never aliases r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies list values; scalars are returned as is.
func CloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		cp := make([]any, len(t))
		for i := range t {
			cp[i] = CloneValue(t[i])
		}
		return cp
	case []int64:
		cp := make([]int64, len(t))
		copy(cp, t)
		return cp
	case []string:
		cp := make([]string, len(t))
		copy(cp, t)
		return cp
	}
	return v
}

// ID returns the record's identity in textual form, or "" when unassigned.
func (r Record) ID(s *Schema) string {
	v, ok := r[s.IDField]
	if !ok || v == nil {
		return ""
	}
	return Text(v)
}

// Equal reports whether two records hold the same fields and values.
func (r Record) Equal(o Record) bool {
	return reflect.DeepEqual(normalize(r), normalize(o))
}

// Wire returns r as it would come back from the server: numbers as float64
// and id lists as []any. Values JSON cannot encode are kept as they are.
func (r Record) Wire() Record {
	if r == nil {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return r.Clone()
	}
	var out Record
	if err := json.Unmarshal(data, &out); err != nil {
		return r.Clone()
	}
	return out
}

// Covers reports whether r holds every field of sub with an equal value.
func (r Record) Covers(sub Record) bool {
	want := sub.Wire()
	have := Record{}
	for k := range want {
		v, ok := r[k]
		if !ok {
			return false
		}
		have[k] = v
	}
	return reflect.DeepEqual(have.Wire(), want)
}

func normalize(r Record) any {
	return map[string]any(r.Wire())
}

// Text renders a scalar value the way it appears on the wire.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = Text(e)
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprint(v)
}

var float64Type = reflect.TypeOf(float64(0))

// Float coerces v to a number. Blank strings and non-numeric text are not coercible.
func Float(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		out, err := cast.FromType(s, float64Type)
		if err != nil {
			return 0, false
		}
		f, ok := out.(float64)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Int coerces v to an integral id.
func Int(v any) (int64, bool) {
	f, ok := Float(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// List returns the elements of a list-valued field.
func List(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []int64:
		out := make([]any, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out, true
	case []string:
		out := make([]any, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out, true
	}
	return nil, false
}

// Blank reports whether v carries no usable value.
func Blank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	if l, ok := List(v); ok {
		return len(l) == 0
	}
	return false
}
