package codec_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tobsdb/jsondb/codec"
	"gotest.tools/assert"
)

func sampleRecord() map[string]any {
	return map[string]any{
		"id":    1,
		"score": 2.0,
		"ratio": 0.125,
		"name":  "A <b>",
		"ok":    true,
		"tags":  []any{"x", 3, 4.5, false},
		"meta":  map[string]any{"n": -7, "nested": []any{map[string]any{"z": 1e21}}},
	}
}

func TestCodecRoundTrip(t *testing.T) {
	for _, name := range codec.Names() {
		t.Run(name, func(t *testing.T) {
			c, err := codec.ByName(name)
			assert.NilError(t, err)
			assert.Equal(t, c.Name(), name)

			data, err := c.Marshal(sampleRecord())
			assert.NilError(t, err)

			back, err := c.Unmarshal(data)
			assert.NilError(t, err)
			assert.DeepEqual(t, back, sampleRecord())
		})
	}

	t.Run("unknown", func(t *testing.T) {
		_, err := codec.ByName("xml")
		assert.ErrorContains(t, err, `unknown codec "xml"`)
	})
}

func TestJSON(t *testing.T) {
	t.Run("sorted keys and explicit floats", func(t *testing.T) {
		data, err := codec.JSON{}.Marshal(map[string]any{"b": 1.0, "a": 1})
		assert.NilError(t, err)
		assert.Equal(t, string(data), `{"a":1,"b":1.0}`)
	})

	t.Run("deterministic", func(t *testing.T) {
		a, err := codec.JSON{}.Marshal(sampleRecord())
		assert.NilError(t, err)
		b, err := codec.JSON{}.Marshal(sampleRecord())
		assert.NilError(t, err)
		assert.Assert(t, bytes.Equal(a, b))
	})

	t.Run("null rejected", func(t *testing.T) {
		_, err := codec.JSON{}.Unmarshal([]byte(`{"a":null}`))
		assert.ErrorContains(t, err, "null values are not supported")
	})

	t.Run("trailing data", func(t *testing.T) {
		_, err := codec.JSON{}.Unmarshal([]byte(`{"a":1} {}`))
		assert.ErrorContains(t, err, "trailing data")
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := codec.JSON{}.Marshal(map[string]any{"a": struct{}{}})
		assert.ErrorContains(t, err, "unsupported value type")
	})
}

func TestCompressors(t *testing.T) {
	input := []byte(strings.Repeat("jsondb table frame ", 200))

	for _, name := range codec.CompressorNames() {
		t.Run(name, func(t *testing.T) {
			c, err := codec.CompressorByName(name)
			assert.NilError(t, err)
			assert.Equal(t, c.Name(), name)

			packed, err := c.Compress(input)
			assert.NilError(t, err)
			if name != "none" {
				assert.Assert(t, len(packed) < len(input))
			}

			out, err := c.Decompress(packed)
			assert.NilError(t, err)
			assert.Assert(t, bytes.Equal(out, input))
		})
	}

	t.Run("bad zstd input", func(t *testing.T) {
		_, err := codec.Zstd{}.Decompress([]byte("not zstd"))
		assert.ErrorContains(t, err, "failed to decompress zstd data")
	})
}

func TestJSONValue(t *testing.T) {
	data, err := codec.MarshalValue([]any{1, 2.0, "x", map[string]any{"b": true, "a": []any{}}})
	assert.NilError(t, err)
	assert.Equal(t, string(data), `[1,2.0,"x",{"a":[],"b":true}]`)

	v, err := codec.UnmarshalValue(data)
	assert.NilError(t, err)
	assert.DeepEqual(t, v, []any{1, 2.0, "x", map[string]any{"a": []any{}, "b": true}})

	_, err = codec.JSON{}.Unmarshal([]byte(`[1]`))
	assert.ErrorContains(t, err, "expected object")
}
