package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
)

// JSON writes records as JSON objects with sorted keys. Floats always carry
// a fraction or an exponent so that 1.0 decodes back to a float and 1 to an
// int.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Marshal(record map[string]any) ([]byte, error) {
	return appendJSON(nil, record)
}

func (JSON) Unmarshal(data []byte) (map[string]any, error) {
	v, err := UnmarshalValue(data)
	if err != nil {
		return nil, err
	}
	record, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("failed to decode record: expected object, got %T", v)
	}
	return record, nil
}

// MarshalValue encodes one canonical value the way records are encoded.
func MarshalValue(v any) ([]byte, error) { return appendJSON(nil, v) }

// UnmarshalValue decodes exactly one JSON value into canonical values.
// Integers decode as int, numbers with a fraction or exponent as float64.
func UnmarshalValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("failed to decode record: trailing data")
	}
	return FromJSON(raw)
}

func appendJSON(buf []byte, v any) ([]byte, error) {
	switch v := v.(type) {
	case int:
		return strconv.AppendInt(buf, int64(v), 10), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("unsupported float value %v", v)
		}
		start := len(buf)
		buf = strconv.AppendFloat(buf, v, 'g', -1, 64)
		if !bytes.ContainsAny(buf[start:], ".eE") {
			buf = append(buf, ".0"...)
		}
		return buf, nil
	case string:
		s, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return append(buf, s...), nil
	case bool:
		return strconv.AppendBool(buf, v), nil
	case []any:
		buf = append(buf, '[')
		for i, e := range v {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			if buf, err = appendJSON(buf, e); err != nil {
				return nil, err
			}
		}
		return append(buf, ']'), nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			if buf, err = appendJSON(buf, k); err != nil {
				return nil, err
			}
			buf = append(buf, ':')
			if buf, err = appendJSON(buf, v[k]); err != nil {
				return nil, err
			}
		}
		return append(buf, '}'), nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

// FromJSON converts a value decoded with json.Decoder.UseNumber to
// canonical values in place.
func FromJSON(v any) (any, error) {
	switch v := v.(type) {
	case json.Number:
		s := v.String()
		if strings.ContainsAny(s, ".eE") {
			return strconv.ParseFloat(s, 64)
		}
		n, err := strconv.ParseInt(s, 10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to decode number %s: %w", s, err)
		}
		return int(n), nil
	case []any:
		for i, e := range v {
			n, err := FromJSON(e)
			if err != nil {
				return nil, err
			}
			v[i] = n
		}
		return v, nil
	case map[string]any:
		for k, e := range v {
			n, err := FromJSON(e)
			if err != nil {
				return nil, err
			}
			v[k] = n
		}
		return v, nil
	case nil:
		return nil, errors.New("null values are not supported")
	}
	return v, nil
}
