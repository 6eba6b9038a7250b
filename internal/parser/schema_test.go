package parser_test

import (
	"testing"

	"github.com/tobsdb/jsondb"
	. "github.com/tobsdb/jsondb/internal/parser"
	"github.com/tobsdb/jsondb/internal/props"
	"github.com/tobsdb/jsondb/types"
	"gotest.tools/assert"
)

func TestLineParser(t *testing.T) {
	t.Run("table declaration", func(t *testing.T) {
		state, data, err := LineParser("$TABLE a {")

		assert.NilError(t, err)
		assert.Equal(t, state, ParserStateTableStart)
		assert.Equal(t, data.Name, "a")
	})

	t.Run("table missing name", func(t *testing.T) {
		state, _, err := LineParser("$TABLE {")

		assert.ErrorContains(t, err, "Invalid line")
		assert.Equal(t, state, ParserStateIdle)
	})

	t.Run("table declaration missing opening bracket", func(t *testing.T) {
		state, _, err := LineParser("$TABLE a")

		assert.ErrorContains(t, err, "Invalid line")
		assert.Equal(t, state, ParserStateIdle)
	})

	t.Run("table name with space", func(t *testing.T) {
		state, _, err := LineParser("$TABLE a b {")

		assert.ErrorContains(t, err, "Table name cannot include space")
		assert.Equal(t, state, ParserStateIdle)
	})

	t.Run("table name invalid character", func(t *testing.T) {
		state, _, err := LineParser("$TABLE a-b {")

		assert.ErrorContains(t, err, "Table name contains invalid characters")
		assert.Equal(t, state, ParserStateIdle)
	})

	t.Run("table declaration end", func(t *testing.T) {
		state, _, err := LineParser("}")

		assert.NilError(t, err)
		assert.Equal(t, state, ParserStateTableEnd)
	})

	t.Run("field declaration", func(t *testing.T) {
		state, data, err := LineParser("a Int key(primary) index(true)")

		assert.NilError(t, err)
		assert.Equal(t, state, ParserStateNewField)
		assert.Equal(t, data.Name, "a")
		assert.Equal(t, data.Builtin_type, types.FieldTypeInt)
		assert.DeepEqual(t, data.Properties, map[props.FieldProp]string{
			props.FieldPropKey:   "primary",
			props.FieldPropIndex: "true",
		})
	})

	t.Run("field name invalid character", func(t *testing.T) {
		state, _, err := LineParser("a-b Int")

		assert.ErrorContains(t, err, "Field name contains invalid characters")
		assert.Equal(t, state, ParserStateIdle)
	})

	t.Run("field declaration without type", func(t *testing.T) {
		state, _, err := LineParser("a")

		assert.ErrorContains(t, err, "Field a does not have a type")
		assert.Equal(t, state, ParserStateIdle)
	})

	t.Run("field declaration with unknown type", func(t *testing.T) {
		state, _, err := LineParser("a Number")

		assert.ErrorContains(t, err, "Invalid field type: Number")
		assert.Equal(t, state, ParserStateIdle)
	})

	t.Run("unknown field prop", func(t *testing.T) {
		state, _, err := LineParser("a Int x(true)")

		assert.ErrorContains(t, err, "Invalid field prop: x")
		assert.Equal(t, state, ParserStateIdle)
	})

	t.Run("field prop with no value", func(t *testing.T) {
		state, _, err := LineParser("a Int index()")

		assert.ErrorContains(t, err, "No value for prop: index")
		assert.Equal(t, state, ParserStateIdle)
	})
}

const users_schema = `
// application tables
$TABLE users {
    id Int key(primary)
    name String
    age Int index(true)
    tags List
}

$TABLE events {
    kind String index(true)
    payload Map
    weight Float index(false)
}
`

func TestParseSchema(t *testing.T) {
	defs, err := ParseSchema(users_schema)
	assert.NilError(t, err)
	assert.Equal(t, len(defs), 2)

	users := defs[0]
	assert.Equal(t, users.Name, "users")
	assert.Equal(t, users.Schema.PrimaryKey(), "id")
	assert.DeepEqual(t, users.Schema.FieldNames(), []string{"id", "name", "age", "tags"})
	assert.DeepEqual(t, users.Indexes, []string{"age"})

	events := defs[1]
	assert.Equal(t, events.Schema.PrimaryKey(), "")
	assert.DeepEqual(t, events.Indexes, []string{"kind"})
	ft, _ := events.Schema.FieldType("payload")
	assert.Equal(t, ft, types.FieldTypeMap)
}

func TestParseSchemaErrors(t *testing.T) {
	cases := map[string]struct {
		schema string
		err    string
	}{
		"duplicate table":  {"$TABLE a {\n a Int\n}\n$TABLE a {\n b Int\n}", "Error parsing line 4: Duplicate table a"},
		"duplicate field":  {"$TABLE a {\n a Int\n a String\n}", "Error parsing line 3: Duplicate field a"},
		"two primary keys": {"$TABLE a {\n a Int key(primary)\n b Int key(primary)\n}", "Table can't have multiple primary keys"},
		"bad key":          {"$TABLE a {\n a Int key(foreign)\n}", "key(foreign) is not a valid prop"},
		"bad index":        {"$TABLE a {\n a Int index(maybe)\n}", "Invalid syntax: index(maybe)"},
		"unclosed":         {"$TABLE a {\n a Int\n", "Error parsing line 1: Table a is not closed"},
		"nested":           {"$TABLE a {\n$TABLE b {\n}", "Table a is not closed"},
		"stray field":      {"a Int", "Field declared outside of a table"},
		"stray close":      {"}", "Unexpected }"},
		"empty table":      {"$TABLE a {\n}", "no fields declared"},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSchema(c.schema)
			assert.ErrorContains(t, err, c.err)
		})
	}
}

func TestApply(t *testing.T) {
	defs, err := ParseSchema(users_schema)
	assert.NilError(t, err)

	db, err := jsondb.Open(jsondb.Options{})
	assert.NilError(t, err)
	assert.NilError(t, db.CreateTable("events", jsondb.MustSchema("", jsondb.Field{Name: "x", Type: types.FieldTypeInt})))

	created, err := Apply(db, defs)
	assert.NilError(t, err)
	assert.DeepEqual(t, created, []string{"users"})
	assert.DeepEqual(t, db.Tables(), []string{"events", "users"})

	idx, _ := db.ListIndexes("users")
	assert.DeepEqual(t, idx, []string{"age"})
	events, _ := db.Schema("events")
	assert.DeepEqual(t, events.FieldNames(), []string{"x"})
}
