package jsondb

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/invopop/jsonschema"
	"github.com/tobsdb/jsondb/pkg"
	"github.com/tobsdb/jsondb/types"
)

// Record maps field names to canonical values.
type Record = pkg.Map[string, any]

type Field struct {
	Name string          `json:"name"`
	Type types.FieldType `json:"type"`
}

var valid_name = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

func validName(name string) bool { return valid_name.MatchString(name) }

// Schema declares the fields of a table and optionally which of them is
// the primary key.
type Schema struct {
	fields      *pkg.InsertSortMap[string, types.FieldType]
	primary_key string
}

// NewSchema builds a schema. primary_key may be empty; otherwise it must name
// one of fields.
func NewSchema(primary_key string, fields ...Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields declared", ErrInvalidSchema)
	}

	s := &Schema{fields: pkg.NewInsertSortMap[string, types.FieldType](), primary_key: primary_key}
	for _, f := range fields {
		if !validName(f.Name) {
			return nil, fmt.Errorf("%w: invalid field name %q", ErrInvalidSchema, f.Name)
		}
		if !f.Type.IsValid() {
			return nil, fmt.Errorf("%w: field %s has unknown type %q", ErrInvalidSchema, f.Name, f.Type)
		}
		if s.fields.Has(f.Name) {
			return nil, fmt.Errorf("%w: duplicate field %s", ErrInvalidSchema, f.Name)
		}
		s.fields.Push(f.Name, f.Type)
	}

	if primary_key != "" && !s.fields.Has(primary_key) {
		return nil, fmt.Errorf("%w: primary key %s is not a declared field", ErrInvalidSchema, primary_key)
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on error.
func MustSchema(primary_key string, fields ...Field) *Schema {
	s, err := NewSchema(primary_key, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) PrimaryKey() string { return s.primary_key }

// Fields returns the declared fields in declaration order.
func (s *Schema) Fields() []Field {
	res := make([]Field, 0, s.fields.Len())
	s.fields.Each(func(name string, t types.FieldType) bool {
		res = append(res, Field{name, t})
		return true
	})
	return res
}

func (s *Schema) FieldNames() []string { return slices.Clone(s.fields.Sorted) }

func (s *Schema) FieldType(name string) (types.FieldType, bool) {
	if !s.fields.Has(name) {
		return "", false
	}
	return s.fields.Get(name), true
}

func (s *Schema) HasField(name string) bool { return s.fields.Has(name) }

// Validate checks that record is conformant and returns a normalised deep
// copy of it. Missing fields are reported first, then mistyped fields, then
// undeclared fields.
func (s *Schema) Validate(record map[string]any) (Record, error) {
	return s.validate("", record)
}

func (s *Schema) validate(table string, record map[string]any) (Record, error) {
	for _, name := range s.fields.Sorted {
		if _, ok := record[name]; !ok {
			return nil, &SchemaValidationError{table, name, "missing required field"}
		}
	}

	res := make(Record, len(record))
	for _, name := range s.fields.Sorted {
		v, err := types.Check(s.fields.Get(name), record[name])
		if err != nil {
			return nil, &SchemaValidationError{table, name, err.Error()}
		}
		res[name] = v
	}

	if err := s.checkExtra(table, record); err != nil {
		return nil, err
	}
	return res, nil
}

// validateUpdates checks a partial record: every present field must be
// declared and well typed.
func (s *Schema) validateUpdates(table string, updates map[string]any) (Record, error) {
	res := make(Record, len(updates))
	for _, name := range s.fields.Sorted {
		raw, ok := updates[name]
		if !ok {
			continue
		}
		v, err := types.Check(s.fields.Get(name), raw)
		if err != nil {
			return nil, &SchemaValidationError{table, name, err.Error()}
		}
		res[name] = v
	}
	if err := s.checkExtra(table, updates); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Schema) checkExtra(table string, record map[string]any) error {
	extra := []string{}
	for name := range record {
		if !s.fields.Has(name) {
			extra = append(extra, name)
		}
	}
	if len(extra) == 0 {
		return nil
	}
	slices.Sort(extra)
	return &SchemaValidationError{table, extra[0], "field is not declared in the schema"}
}

func fieldJSONSchema(t types.FieldType) *jsonschema.Schema {
	switch t {
	case types.FieldTypeInt:
		return &jsonschema.Schema{Type: "integer"}
	case types.FieldTypeFloat:
		return &jsonschema.Schema{Type: "number"}
	case types.FieldTypeString:
		return &jsonschema.Schema{Type: "string"}
	case types.FieldTypeBool:
		return &jsonschema.Schema{Type: "boolean"}
	case types.FieldTypeList:
		return &jsonschema.Schema{Type: "array"}
	case types.FieldTypeMap:
		return &jsonschema.Schema{Type: "object"}
	}
	return &jsonschema.Schema{}
}

// JSONSchema describes the records of a table as a JSON Schema object.
func (s *Schema) JSONSchema(title string) *jsonschema.Schema {
	props := jsonschema.NewProperties()
	s.fields.Each(func(name string, t types.FieldType) bool {
		p := fieldJSONSchema(t)
		if name == s.primary_key {
			p.Description = "primary key"
		}
		props.Set(name, p)
		return true
	})
	return &jsonschema.Schema{
		Version:              jsonschema.Version,
		Title:                title,
		Type:                 "object",
		Properties:           props,
		Required:             s.FieldNames(),
		AdditionalProperties: jsonschema.FalseSchema,
	}
}
