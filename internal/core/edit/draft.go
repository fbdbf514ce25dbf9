// Package edit contains the inline edit session: pure draft operations,
// guards over the edit state machine, and the Session that drives them.
package edit

import (
	"fmt"
	"slices"

	"github.com/example/pm/internal/core/dateformat"
	"github.com/example/pm/internal/errs"
	"github.com/example/pm/internal/models"
)

// Draft is a staged, private copy of one record's editable fields.
// EntityID is empty for a record that does not exist yet.
type Draft struct {
	EntityID string
	Fields   models.Record
}

// Clone returns a copy sharing nothing with d.
func (d Draft) Clone() Draft {
	return Draft{EntityID: d.EntityID, Fields: d.Fields.Clone()}
}

// NewDraft returns an empty draft for creating a record.
func NewDraft() Draft {
	return Draft{Fields: models.Record{}}
}

// BeginEdit snapshots the editable fields of r. Dates are converted to input form.
func BeginEdit(schema *models.Schema, r models.Record) (Draft, error) {
	d := Draft{EntityID: r.ID(schema), Fields: models.Record{}}
	for _, f := range schema.Fields {
		if f.ReadOnly {
			continue
		}
		v, ok := r[f.Name]
		if !ok {
			continue
		}
		if f.Type == models.FieldDate && !models.Blank(v) {
			in, err := dateformat.ToInputValue(models.Text(v))
			if err != nil {
				return Draft{}, fmt.Errorf("%s %s field %s: %w", schema.Name, d.EntityID, f.Name, err)
			}
			v = in
		}
		d.Fields[f.Name] = v
	}
	return d.Clone(), nil
}

// UpdateField returns a new draft with field set to value. Text for numeric
// and id-list fields is coerced; nothing else is validated here.
func UpdateField(schema *models.Schema, d Draft, field string, value any) (Draft, error) {
	if field == schema.IDField {
		return d, fmt.Errorf("%s is assigned by the server and cannot be edited", field)
	}
	f, ok := schema.Field(field)
	if !ok {
		return d, fmt.Errorf("%s has no field %q", schema.Name, field)
	}
	if f.ReadOnly {
		return d, fmt.Errorf("%s.%s is read-only", schema.Name, field)
	}
	if s, isText := value.(string); isText {
		parsed, err := schema.ParseValue(field, s)
		if err != nil {
			return d, err
		}
		value = parsed
	}

	out := d.Clone()
	if out.Fields == nil {
		out.Fields = models.Record{}
	}
	out.Fields[field] = value
	return out, nil
}

// Validate checks the draft against the schema's required fields and enum options.
// It returns nil or a *errs.ValidationError.
func Validate(schema *models.Schema, d Draft) error {
	var missing []string
	for _, f := range schema.Fields {
		if !f.Required || f.ReadOnly {
			continue
		}
		if models.Blank(d.Fields[f.Name]) {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		return &errs.ValidationError{Entity: schema.Name, Missing: missing}
	}

	for _, f := range schema.Fields {
		v, ok := d.Fields[f.Name]
		if !ok || models.Blank(v) {
			continue
		}
		switch f.Type {
		case models.FieldEnum:
			if len(f.Options) > 0 && !slices.Contains(f.Options, models.Text(v)) {
				return &errs.ValidationError{Entity: schema.Name, Reason: fmt.Sprintf("%s must be one of %v", f.Name, f.Options)}
			}
		case models.FieldDate:
			if _, err := dateformat.Parse(models.Text(v)); err != nil {
				return &errs.ValidationError{Entity: schema.Name, Reason: fmt.Sprintf("%s: %v", f.Name, err)}
			}
		case models.FieldRef:
			if _, ok := models.Int(v); !ok {
				return &errs.ValidationError{Entity: schema.Name, Reason: fmt.Sprintf("%s must be an id", f.Name)}
			}
		case models.FieldRefList:
			items, ok := models.List(v)
			if !ok {
				return &errs.ValidationError{Entity: schema.Name, Reason: fmt.Sprintf("%s must be a list of ids", f.Name)}
			}
			for _, item := range items {
				if _, ok := models.Int(item); !ok {
					return &errs.ValidationError{Entity: schema.Name, Reason: fmt.Sprintf("%s contains non-id %v", f.Name, item)}
				}
			}
		}
	}
	return nil
}

// Payload builds the wire record for a draft: dates in display form,
// relational ids as integers. The identity field is carried only for existing records.
func Payload(schema *models.Schema, d Draft) (models.Record, error) {
	out := models.Record{}
	if d.EntityID != "" {
		if n, ok := models.Int(d.EntityID); ok {
			out[schema.IDField] = n
		} else {
			out[schema.IDField] = d.EntityID
		}
	}

	for name, v := range d.Fields {
		f, ok := schema.Field(name)
		if !ok || f.ReadOnly {
			continue
		}
		switch f.Type {
		case models.FieldDate:
			s := models.Text(v)
			if models.Blank(s) {
				out[name] = s
				continue
			}
			// Whatever form was typed, the wire only ever carries dd-mm-yyyy.
			t, err := dateformat.Parse(s)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			out[name] = dateformat.FormatDisplay(dateformat.Day(t))
		case models.FieldRef:
			if models.Blank(v) {
				out[name] = nil
				continue
			}
			n, ok := models.Int(v)
			if !ok {
				return nil, fmt.Errorf("%s: %v is not an id", name, v)
			}
			out[name] = n
		case models.FieldRefList:
			items, _ := models.List(v)
			ids := make([]int64, 0, len(items))
			for _, item := range items {
				n, ok := models.Int(item)
				if !ok {
					return nil, fmt.Errorf("%s: %v is not an id", name, item)
				}
				ids = append(ids, n)
			}
			out[name] = ids
		case models.FieldNumber:
			if n, ok := models.Float(v); ok {
				out[name] = n
			} else {
				out[name] = v
			}
		default:
			out[name] = models.CloneValue(v)
		}
	}
	return out, nil
}
