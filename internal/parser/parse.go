package parser

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/tobsdb/jsondb"
)

// TableDef is one $TABLE block of a schema file.
type TableDef struct {
	Name    string
	Schema  *jsondb.Schema
	Indexes []string
}

type tableBuilder struct {
	name        string
	line        int
	fields      []jsondb.Field
	seen        map[string]bool
	primary_key string
	indexes     []string
}

// ParseSchema reads a schema file. Tables are returned in declaration order.
func ParseSchema(schema_data string) ([]*TableDef, error) {
	tables := []*TableDef{}
	names := map[string]bool{}

	scanner := bufio.NewScanner(strings.NewReader(schema_data))
	line_idx := 0

	var current *tableBuilder

	for scanner.Scan() {
		line_idx++
		line := strings.TrimSpace(scanner.Text())

		// Ignore empty lines & comments
		if len(line) == 0 || strings.HasPrefix(line, "//") {
			continue
		}

		state, data, err := LineParser(line)
		if err != nil {
			return nil, ParseLineError(line_idx, err.Error())
		}

		switch state {
		case ParserStateTableStart:
			if current != nil {
				return nil, ParseLineError(line_idx, fmt.Sprintf("Table %s is not closed", current.name))
			}
			if names[data.Name] {
				return nil, ParseLineError(line_idx, fmt.Sprintf("Duplicate table %s", data.Name))
			}
			names[data.Name] = true
			current = &tableBuilder{name: data.Name, line: line_idx, seen: map[string]bool{}}
		case ParserStateTableEnd:
			if current == nil {
				return nil, ParseLineError(line_idx, "Unexpected }")
			}
			def, err := current.build()
			if err != nil {
				return nil, ParseLineError(line_idx, err.Error())
			}
			tables = append(tables, def)
			current = nil
		case ParserStateNewField:
			if current == nil {
				return nil, ParseLineError(line_idx, "Field declared outside of a table")
			}
			if current.seen[data.Name] {
				return nil, ParseLineError(line_idx, fmt.Sprintf("Duplicate field %s", data.Name))
			}
			primary, indexed, err := fieldFlags(data.Properties)
			if err != nil {
				return nil, ParseLineError(line_idx, err.Error())
			}
			if primary && current.primary_key != "" {
				return nil, ParseLineError(line_idx, "Table can't have multiple primary keys")
			}

			current.seen[data.Name] = true
			current.fields = append(current.fields, jsondb.Field{Name: data.Name, Type: data.Builtin_type})
			if primary {
				current.primary_key = data.Name
			}
			if indexed {
				current.indexes = append(current.indexes, data.Name)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if current != nil {
		return nil, ParseLineError(current.line, fmt.Sprintf("Table %s is not closed", current.name))
	}

	return tables, nil
}

func (b *tableBuilder) build() (*TableDef, error) {
	schema, err := jsondb.NewSchema(b.primary_key, b.fields...)
	if err != nil {
		return nil, err
	}
	return &TableDef{Name: b.name, Schema: schema, Indexes: b.indexes}, nil
}

func ParseLineError(line int, reason string) error {
	return fmt.Errorf("Error parsing line %d: %s", line, reason)
}

// Apply creates every table that db does not already hold, with its indexes.
// Existing tables are left untouched.
func Apply(db *jsondb.JsonDatabase, tables []*TableDef) (created []string, err error) {
	err = db.Transaction(func() error {
		for _, def := range tables {
			if _, err := db.Schema(def.Name); err == nil {
				continue
			}
			if err := db.CreateTable(def.Name, def.Schema); err != nil {
				return err
			}
			for _, field := range def.Indexes {
				if err := db.CreateIndex(def.Name, field); err != nil {
					return err
				}
			}
			created = append(created, def.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
