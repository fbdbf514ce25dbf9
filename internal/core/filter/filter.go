// Package filter applies field-level predicates to in-memory collections.
// Filtering is pure: input order is preserved and records are never mutated.
package filter

import (
	"strings"
	"time"

	"github.com/example/pm/internal/core/dateformat"
	"github.com/example/pm/internal/models"
)

// Kind selects the predicate a Criterion evaluates.
type Kind string

const (
	Contains       Kind = "contains"
	Equals         Kind = "equals"
	NumericEquals  Kind = "numericEquals"
	DateOnOrAfter  Kind = "dateOnOrAfter"
	DateOnOrBefore Kind = "dateOnOrBefore"
	SetMembership  Kind = "setMembership"
)

// Criterion is one field-level predicate. An empty value makes it inert.
type Criterion struct {
	Field string
	Kind  Kind
	Value any
}

// Inert reports whether the criterion matches everything.
func (c Criterion) Inert() bool {
	return c.Field == "" || models.Blank(c.Value)
}

// Set is an AND-combined list of criteria.
type Set []Criterion

// Active returns the non-inert criteria.
func (s Set) Active() Set {
	var out Set
	for _, c := range s {
		if !c.Inert() {
			out = append(out, c)
		}
	}
	return out
}

// With returns a copy of s with c appended.
func (s Set) With(c Criterion) Set {
	out := make(Set, 0, len(s)+1)
	out = append(out, s...)
	return append(out, c)
}

// Engine evaluates filter sets. OnFormatError, when set, receives every
// malformed date met during evaluation; such values never match.
type Engine struct {
	OnFormatError func(field string, err error)
}

// Apply returns the records matching every active criterion, in input order.
func Apply(records []models.Record, set Set) []models.Record {
	return Engine{}.Apply(records, set)
}

// Apply returns the records matching every active criterion, in input order.
func (e Engine) Apply(records []models.Record, set Set) []models.Record {
	active := set.Active()
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		if e.matchAll(r, active) {
			out = append(out, r)
		}
	}
	return out
}

func (e Engine) matchAll(r models.Record, active Set) bool {
	for _, c := range active {
		if !e.match(r, c) {
			return false
		}
	}
	return true
}

func (e Engine) match(r models.Record, c Criterion) bool {
	v, ok := r[c.Field]
	if !ok || v == nil {
		return false
	}

	switch c.Kind {
	case Contains:
		return strings.Contains(strings.ToLower(models.Text(v)), strings.ToLower(models.Text(c.Value)))
	case Equals:
		return models.Text(v) == models.Text(c.Value)
	case NumericEquals:
		a, okA := models.Float(v)
		b, okB := models.Float(c.Value)
		return okA && okB && a == b
	case DateOnOrAfter, DateOnOrBefore:
		return e.matchDate(c, v)
	case SetMembership:
		items, ok := models.List(v)
		if !ok {
			return false
		}
		for _, item := range items {
			if sameScalar(item, c.Value) {
				return true
			}
		}
		return false
	}
	return false
}

func (e Engine) matchDate(c Criterion, v any) bool {
	have, ok := e.day(c.Field, v)
	if !ok {
		return false
	}
	bound, ok := e.day(c.Field, c.Value)
	if !ok {
		return false
	}
	if c.Kind == DateOnOrAfter {
		return !have.Before(bound)
	}
	return !have.After(bound)
}

func (e Engine) day(field string, v any) (time.Time, bool) {
	if t, ok := v.(time.Time); ok {
		return dateformat.Day(t), true
	}
	t, err := dateformat.Parse(models.Text(v))
	if err != nil {
		if e.OnFormatError != nil {
			e.OnFormatError(field, err)
		}
		return time.Time{}, false
	}
	return dateformat.Day(t), true
}

// sameScalar compares numerically when both sides coerce, textually otherwise.
func sameScalar(a, b any) bool {
	fa, okA := models.Float(a)
	fb, okB := models.Float(b)
	if okA && okB {
		return fa == fb
	}
	return models.Text(a) == models.Text(b)
}
