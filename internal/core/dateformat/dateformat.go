// Package dateformat converts between the two textual date forms used by pm:
// the display/wire form dd-mm-yyyy and the input form yyyy-mm-dd.
// Parse normalises either form (and raw activity-log timestamps) to time.Time
// so comparisons happen on one internal type.
package dateformat

import (
	"strings"
	"time"

	"github.com/example/pm/internal/errs"
)

const (
	DisplayLayout = "dd-mm-yyyy"
	InputLayout   = "yyyy-mm-dd"

	displayGo = "02-01-2006"
	inputGo   = "2006-01-02"
)

// timestampLayouts are tried in order for values that carry a time part.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ToDisplay converts yyyy-mm-dd to dd-mm-yyyy.
func ToDisplay(input string) (string, error) {
	parts, ok := split(input)
	if !ok || len(parts[0]) != 4 {
		return "", &errs.FormatError{Value: input, Layout: InputLayout}
	}
	return parts[2] + "-" + parts[1] + "-" + parts[0], nil
}

// ToInputValue converts dd-mm-yyyy to yyyy-mm-dd.
func ToInputValue(display string) (string, error) {
	parts, ok := split(display)
	if !ok || len(parts[2]) != 4 {
		return "", &errs.FormatError{Value: display, Layout: DisplayLayout}
	}
	return parts[2] + "-" + parts[1] + "-" + parts[0], nil
}

// split requires exactly three non-empty all-digit segments.
func split(s string) ([]string, bool) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 {
		return nil, false
	}
	for _, p := range parts {
		if p == "" {
			return nil, false
		}
		for _, r := range p {
			if r < '0' || r > '9' {
				return nil, false
			}
		}
	}
	return parts, true
}

// IsDisplay reports whether s is shaped like dd-mm-yyyy.
func IsDisplay(s string) bool {
	parts, ok := split(s)
	return ok && len(parts[2]) == 4 && len(parts[0]) != 4
}

// IsInput reports whether s is shaped like yyyy-mm-dd.
func IsInput(s string) bool {
	parts, ok := split(s)
	return ok && len(parts[0]) == 4
}

// Parse reads a date in display form, input form, or as a server timestamp.
// Date-only values are returned at midnight UTC.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch {
	case IsDisplay(s):
		if t, err := time.Parse(displayGo, pad(s, false)); err == nil {
			return t, nil
		}
	case IsInput(s):
		if t, err := time.Parse(inputGo, pad(s, true)); err == nil {
			return t, nil
		}
	default:
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, &errs.FormatError{Value: s, Layout: DisplayLayout + " or " + InputLayout}
}

// pad zero-fills single-digit day and month segments so time.Parse accepts them.
func pad(s string, yearFirst bool) string {
	parts := strings.Split(s, "-")
	lo, hi := 0, 1
	if yearFirst {
		lo, hi = 1, 2
	}
	for _, i := range []int{lo, hi} {
		if len(parts[i]) == 1 {
			parts[i] = "0" + parts[i]
		}
	}
	return strings.Join(parts, "-")
}

// Day truncates t to its calendar date in its own location, returned as UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDisplay renders t as dd-mm-yyyy.
func FormatDisplay(t time.Time) string {
	return t.Format(displayGo)
}
