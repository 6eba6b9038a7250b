// Package codec turns records into bytes and back.
//
// A table file records the name of the codec it was written with, files are
// always opened with the codec they name.
package codec

import "fmt"

// Codec encodes a single record. Implementations must be deterministic and
// round-trip canonical values (see package types) exactly.
type Codec interface {
	Marshal(record map[string]any) ([]byte, error)
	Unmarshal(data []byte) (map[string]any, error)
	Name() string
}

// Default is used when no codec is configured.
var Default Codec = JSON{}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, error) {
	switch name {
	case "json":
		return JSON{}, nil
	case "gob":
		return Gob{}, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

func Names() []string { return []string{"gob", "json"} }

