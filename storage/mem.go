package storage

import (
	"fmt"
	"slices"
	"sync"

	"github.com/tobsdb/jsondb/pkg"
)

// MemStorage keeps table data in memory. Useful for tests and for
// databases that never need to outlive the process.
type MemStorage struct {
	mu    sync.RWMutex
	blobs pkg.Map[string, []byte]
}

func NewMemStorage() *MemStorage {
	return &MemStorage{blobs: pkg.Map[string, []byte]{}}
}

func (s *MemStorage) GetLocker() *sync.RWMutex { return &s.mu }

func (s *MemStorage) Read(name string) ([]byte, error) {
	return pkg.RLockResult(s, func() ([]byte, error) {
		if !s.blobs.Has(name) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
		}
		return slices.Clone(s.blobs.Get(name)), nil
	})
}

func (s *MemStorage) Write(name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	pkg.LockWrap(s, func() { s.blobs.Set(name, slices.Clone(data)) })
	return nil
}

func (s *MemStorage) Delete(name string) error {
	pkg.LockWrap(s, func() { s.blobs.Delete(name) })
	return nil
}

func (s *MemStorage) List() ([]string, error) {
	return pkg.RLockResult(s, func() ([]string, error) {
		return pkg.SortedKeys(s.blobs), nil
	})
}

func (s *MemStorage) Close() error { return nil }
