package filter

import (
	"fmt"
	"strings"

	"github.com/example/pm/internal/core/dateformat"
)

// operators in match order: two-character operators before their prefixes.
var operators = []struct {
	token string
	kind  Kind
}{
	{">=", DateOnOrAfter},
	{"<=", DateOnOrBefore},
	{"#=", NumericEquals},
	{"~", Contains},
	{"@", SetMembership},
	{"=", Equals},
}

// Parse reads a command-line filter expression such as "projectTitle~web".
//
//	field~text    contains (case-insensitive)
//	field=text    equals
//	field#=n      numeric equals
//	field>=date   on or after (dd-mm-yyyy or yyyy-mm-dd)
//	field<=date   on or before
//	field@id      list contains
func Parse(expr string) (Criterion, error) {
	best := -1
	var kind Kind
	var tok string
	for _, op := range operators {
		i := strings.Index(expr, op.token)
		if i <= 0 {
			continue
		}
		if best == -1 || i < best {
			best, kind, tok = i, op.kind, op.token
		}
	}
	if best == -1 {
		return Criterion{}, fmt.Errorf("invalid filter %q: expected field<op>value with op one of ~ = #= >= <= @", expr)
	}

	field := strings.TrimSpace(expr[:best])
	value := strings.TrimSpace(expr[best+len(tok):])
	c := Criterion{Field: field, Kind: kind, Value: value}

	if (kind == DateOnOrAfter || kind == DateOnOrBefore) && value != "" {
		if _, err := dateformat.Parse(value); err != nil {
			return Criterion{}, fmt.Errorf("invalid filter %q: %w", expr, err)
		}
	}
	return c, nil
}
