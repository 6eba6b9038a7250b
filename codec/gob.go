package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"
)

var register_once sync.Once

// GobRegisterTypes registers the canonical value types so they can travel
// inside interface values.
func GobRegisterTypes() {
	register_once.Do(func() {
		gob.Register(int(0))
		gob.Register(float64(0.))
		gob.Register(string(""))
		gob.Register(bool(false))
		gob.Register([]any{})
		gob.Register(map[string]any{})
	})
}

// Gob encodes records with encoding/gob. Output is not byte-stable across
// map orderings but decodes to the same record.
type Gob struct{}

func (Gob) Name() string { return "gob" }

func (Gob) Marshal(record map[string]any) ([]byte, error) {
	GobRegisterTypes()
	buf := bytes.Buffer{}
	if err := gob.NewEncoder(&buf).Encode(record); err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return buf.Bytes(), nil
}

func (Gob) Unmarshal(data []byte) (map[string]any, error) {
	GobRegisterTypes()
	var record map[string]any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	if record == nil {
		record = map[string]any{}
	}
	return record, nil
}
