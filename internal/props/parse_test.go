package props_test

import (
	"testing"

	"github.com/tobsdb/jsondb/internal/props"
	"gotest.tools/assert"
)

func TestParseKeyPropSafe(t *testing.T) {
	t.Run("primary", func(t *testing.T) {
		primary, err := props.ParseKeyPropSafe(" primary ")
		assert.NilError(t, err)
		assert.Assert(t, primary)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := props.ParseKeyPropSafe("foreign")
		assert.ErrorContains(t, err, "key(foreign) is not a valid prop")
	})
}

func TestParseIndexPropSafe(t *testing.T) {
	t.Run("true", func(t *testing.T) {
		v, err := props.ParseIndexPropSafe("true")
		assert.NilError(t, err)
		assert.Assert(t, v)
	})

	t.Run("false", func(t *testing.T) {
		v, err := props.ParseIndexPropSafe("false")
		assert.NilError(t, err)
		assert.Assert(t, !v)
	})

	t.Run("bad syntax", func(t *testing.T) {
		_, err := props.ParseIndexPropSafe("yes please")
		assert.ErrorContains(t, err, "Invalid syntax: index(yes please)")
	})

	t.Run("valid props", func(t *testing.T) {
		assert.Assert(t, props.FieldPropIndex.IsValid())
		assert.Assert(t, !props.FieldProp("unique").IsValid())
	})
}
