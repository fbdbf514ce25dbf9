package models

import (
	"fmt"
	"strings"
)

// FieldType tells the generic screen how to treat a field's value.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate      // dd-mm-yyyy on the wire
	FieldTimestamp // raw server timestamp, never edited
	FieldNumber
	FieldRef     // single related-entity id
	FieldRefList // array of related-entity ids
)

func (t FieldType) String() string {
	switch t {
	case FieldText:
		return "text"
	case FieldEnum:
		return "enum"
	case FieldDate:
		return "date"
	case FieldTimestamp:
		return "timestamp"
	case FieldNumber:
		return "number"
	case FieldRef:
		return "ref"
	case FieldRefList:
		return "ref-list"
	}
	return "unknown"
}

// Field describes one wire field of an entity.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
	ReadOnly bool
	Options  []string // allowed values for enums
}

// Schema parameterises the generic collection screen for one entity.
type Schema struct {
	Name          string // display name, e.g. "Project"
	Command       string // CLI noun, e.g. "project"
	Resource      string // REST controller segment, e.g. "Project"
	IDField       string
	TitleField    string
	AssigneeField string // field used for "my assigned" scoping; empty if none
	Fields        []Field
}

// Field looks up a field by wire name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Columns returns the identity field followed by every declared field.
func (s *Schema) Columns() []string {
	cols := []string{s.IDField}
	for _, f := range s.Fields {
		cols = append(cols, f.Name)
	}
	return cols
}

// ParseValue converts raw command-line text into the field's wire value.
// Dates stay in the input form they were typed in; refs become numbers.
func (s *Schema) ParseValue(field, raw string) (any, error) {
	if field == s.IDField {
		return nil, fmt.Errorf("%s is assigned by the server and cannot be set", field)
	}
	f, ok := s.Field(field)
	if !ok {
		return nil, fmt.Errorf("%s has no field %q", s.Name, field)
	}
	raw = strings.TrimSpace(raw)

	switch f.Type {
	case FieldNumber, FieldRef:
		if raw == "" {
			return nil, nil
		}
		n, ok := Float(raw)
		if !ok {
			return nil, fmt.Errorf("%s: %q is not a number", field, raw)
		}
		return n, nil
	case FieldRefList:
		out := []any{}
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, ok := Float(part)
			if !ok {
				return nil, fmt.Errorf("%s: %q is not an id", field, part)
			}
			out = append(out, n)
		}
		return out, nil
	}
	return raw, nil
}

var (
	// ProjectSchema describes /api/Project.
	ProjectSchema = &Schema{
		Name:          "Project",
		Command:       "project",
		Resource:      "Project",
		IDField:       "projectId",
		TitleField:    "projectTitle",
		AssigneeField: "assignedUserIds",
		Fields: []Field{
			{Name: "projectTitle", Type: FieldText, Required: true},
			{Name: "projectDescription", Type: FieldText, Required: true},
			{Name: "projectStatus", Type: FieldEnum, Required: true, Options: []string{"Not Started", "In Progress", "Completed", "On Hold"}},
			{Name: "startDate", Type: FieldDate, Required: true},
			{Name: "endDate", Type: FieldDate, Required: true},
			{Name: "createdAt", Type: FieldDate, ReadOnly: true},
			{Name: "assignedUserIds", Type: FieldRefList, Required: true},
		},
	}

	// TaskSchema describes /api/TaskItem.
	TaskSchema = &Schema{
		Name:          "Task",
		Command:       "task",
		Resource:      "TaskItem",
		IDField:       "taskItemId",
		TitleField:    "taskTitle",
		AssigneeField: "assignedUserIds",
		Fields: []Field{
			{Name: "taskTitle", Type: FieldText, Required: true},
			{Name: "taskDescription", Type: FieldText, Required: true},
			{Name: "taskStatus", Type: FieldEnum, Required: true, Options: []string{"To Do", "In Progress", "Done"}},
			{Name: "priority", Type: FieldEnum, Options: []string{"Low", "Medium", "High"}},
			{Name: "dueDate", Type: FieldDate, Required: true},
			{Name: "projectId", Type: FieldRef, Required: true},
			{Name: "assignedUserIds", Type: FieldRefList, Required: true},
			{Name: "createdAt", Type: FieldDate, ReadOnly: true},
		},
	}

	// UserSchema describes /api/User.
	UserSchema = &Schema{
		Name:       "User",
		Command:    "user",
		Resource:   "User",
		IDField:    "userId",
		TitleField: "userName",
		Fields: []Field{
			{Name: "userName", Type: FieldText, Required: true},
			{Name: "email", Type: FieldText, Required: true},
			{Name: "role", Type: FieldEnum, Required: true, Options: []string{string(RoleAdmin), string(RoleProjectManager), string(RoleDeveloper)}},
			{Name: "createdAt", Type: FieldDate, ReadOnly: true},
		},
	}

	// CommentSchema describes /api/Comment.
	CommentSchema = &Schema{
		Name:          "Comment",
		Command:       "comment",
		Resource:      "Comment",
		IDField:       "commentId",
		TitleField:    "content",
		AssigneeField: "userId",
		Fields: []Field{
			{Name: "content", Type: FieldText, Required: true},
			{Name: "taskItemId", Type: FieldRef, Required: true},
			{Name: "userId", Type: FieldRef, Required: true},
			{Name: "createdAt", Type: FieldDate, ReadOnly: true},
		},
	}

	// ActivityLogSchema describes /api/ActivityLog.
	ActivityLogSchema = &Schema{
		Name:          "ActivityLog",
		Command:       "activity",
		Resource:      "ActivityLog",
		IDField:       "activityLogId",
		TitleField:    "action",
		AssigneeField: "userId",
		Fields: []Field{
			{Name: "action", Type: FieldText, Required: true},
			{Name: "description", Type: FieldText},
			{Name: "userId", Type: FieldRef, Required: true},
			{Name: "projectId", Type: FieldRef},
			{Name: "timestamp", Type: FieldTimestamp, ReadOnly: true},
		},
	}
)

// Schemas returns every built-in entity schema in CLI order.
func Schemas() []*Schema {
	return []*Schema{ProjectSchema, TaskSchema, UserSchema, CommentSchema, ActivityLogSchema}
}

// LookupSchema finds a schema by CLI noun or entity name (case-insensitive).
func LookupSchema(name string) (*Schema, bool) {
	for _, s := range Schemas() {
		if strings.EqualFold(s.Command, name) || strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return nil, false
}
