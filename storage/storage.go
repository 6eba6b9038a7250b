// Package storage holds the durable bytes of every table. The engine writes
// one blob per table and reads them all back on open.
package storage

import (
	"errors"
	"fmt"
	"regexp"
)

var ErrNotExist = errors.New("table data does not exist")

type Storage interface {
	// Read returns the stored bytes for name or an error wrapping ErrNotExist.
	Read(name string) ([]byte, error)
	// Write replaces the stored bytes for name.
	Write(name string, data []byte) error
	// Delete removes name. Deleting a missing name is not an error.
	Delete(name string) error
	// List returns the stored names in ascending order.
	List() ([]string, error)
	Close() error
}

var valid_name = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// ValidateName rejects names that cannot be used as a file name.
func ValidateName(name string) error {
	if !valid_name.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}
