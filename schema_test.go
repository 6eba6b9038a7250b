package jsondb_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/tobsdb/jsondb"
	"github.com/tobsdb/jsondb/types"
	"gotest.tools/assert"
)

func TestNewSchema(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		s, err := jsondb.NewSchema("id", field("id", types.FieldTypeInt), field("name", types.FieldTypeString))
		assert.NilError(t, err)
		assert.Equal(t, s.PrimaryKey(), "id")
		assert.DeepEqual(t, s.FieldNames(), []string{"id", "name"})
		ft, ok := s.FieldType("name")
		assert.Assert(t, ok)
		assert.Equal(t, ft, types.FieldTypeString)
		_, ok = s.FieldType("nope")
		assert.Assert(t, !ok)
	})

	invalid := map[string][]jsondb.Field{
		"no fields":        {},
		"bad name":         {field("1x", types.FieldTypeInt)},
		"unknown type":     {field("a", "Date")},
		"duplicate fields": {field("a", types.FieldTypeInt), field("a", types.FieldTypeString)},
	}
	for name, fields := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := jsondb.NewSchema("", fields...)
			assert.Assert(t, errors.Is(err, jsondb.ErrInvalidSchema))
		})
	}

	t.Run("undeclared primary key", func(t *testing.T) {
		_, err := jsondb.NewSchema("id", field("name", types.FieldTypeString))
		assert.Assert(t, errors.Is(err, jsondb.ErrInvalidSchema))
		assert.ErrorContains(t, err, "primary key id")
	})
}

func TestValidate(t *testing.T) {
	s := usersSchema()

	t.Run("conformant", func(t *testing.T) {
		rec, err := s.Validate(map[string]any{"id": int64(1), "name": "A", "age": uint8(3)})
		assert.NilError(t, err)
		assert.DeepEqual(t, rec, jsondb.Record{"id": 1, "name": "A", "age": 3})
	})

	check := func(t *testing.T, rec map[string]any, field, reason string) {
		_, err := s.Validate(rec)
		var v_err *jsondb.SchemaValidationError
		assert.Assert(t, errors.As(err, &v_err))
		assert.Equal(t, v_err.Field, field)
		assert.ErrorContains(t, err, reason)
		assert.Equal(t, jsondb.StatusOf(err), 400)
	}

	t.Run("missing before mistyped", func(t *testing.T) {
		check(t, map[string]any{"id": "x", "name": "A"}, "age", "missing required field")
	})
	t.Run("mistyped before extra", func(t *testing.T) {
		check(t, map[string]any{"id": 1, "name": 2, "age": 1, "zz": 1}, "name", "expected String")
	})
	t.Run("extra", func(t *testing.T) {
		check(t, map[string]any{"id": 1, "name": "A", "age": 1, "b": 1, "a": 1}, "a", "not declared")
	})
	t.Run("no float to int", func(t *testing.T) {
		check(t, map[string]any{"id": 1.0, "name": "A", "age": 1}, "id", "expected Int")
	})
	t.Run("null", func(t *testing.T) {
		check(t, map[string]any{"id": 1, "name": nil, "age": 1}, "name", "")
	})

	t.Run("deep copy", func(t *testing.T) {
		s := jsondb.MustSchema("", field("tags", types.FieldTypeList))
		tags := []any{"a"}
		rec, err := s.Validate(map[string]any{"tags": tags})
		assert.NilError(t, err)
		tags[0] = "b"
		assert.DeepEqual(t, rec["tags"], []any{"a"})
	})
}

func TestJSONSchema(t *testing.T) {
	data, err := json.Marshal(usersSchema().JSONSchema("users"))
	assert.NilError(t, err)

	var doc map[string]any
	assert.NilError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, doc["title"], "users")
	assert.Equal(t, doc["type"], "object")
	assert.Equal(t, doc["additionalProperties"], false)
	assert.DeepEqual(t, doc["required"], []any{"id", "name", "age"})

	props := doc["properties"].(map[string]any)
	assert.Equal(t, props["age"].(map[string]any)["type"], "integer")
	assert.Equal(t, props["id"].(map[string]any)["description"], "primary key")
}
