package filter

import (
	"slices"
	"strings"

	"github.com/example/pm/internal/core/dateformat"
	"github.com/example/pm/internal/models"
)

// SortBy returns a stably sorted copy of records ordered by field.
// Dates compare chronologically, numbers numerically, everything else as
// case-insensitive text. Records missing the field sort last.
func SortBy(records []models.Record, field string, desc bool) []models.Record {
	out := slices.Clone(records)
	if field == "" {
		return out
	}
	slices.SortStableFunc(out, func(a, b models.Record) int {
		va, okA := a[field]
		vb, okB := b[field]
		okA = okA && va != nil
		okB = okB && vb != nil
		switch {
		case !okA && !okB:
			return 0
		case !okA:
			return 1
		case !okB:
			return -1
		}
		c := compare(va, vb)
		if desc {
			return -c
		}
		return c
	})
	return out
}

func compare(a, b any) int {
	if fa, ok := models.Float(a); ok {
		if fb, ok := models.Float(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	ta, tb := models.Text(a), models.Text(b)
	if da, err := dateformat.Parse(ta); err == nil {
		if db, err := dateformat.Parse(tb); err == nil {
			return da.Compare(db)
		}
	}
	return strings.Compare(strings.ToLower(ta), strings.ToLower(tb))
}
