package storage

import (
	"fmt"
	"slices"

	"go.etcd.io/bbolt"
)

var tables_bucket = []byte("tables")

// BoltStorage keeps every table as one value in a single bbolt file.
type BoltStorage struct {
	db *bbolt.DB
}

func NewBoltStorage(path string) (*BoltStorage, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(tables_bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", tables_bucket, err)
	}
	return &BoltStorage{db: db}, nil
}

func (s *BoltStorage) Read(name string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(tables_bucket).Get([]byte(name))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotExist, name)
		}
		// values are only valid during the transaction
		data = slices.Clone(v)
		return nil
	})
	return data, err
}

func (s *BoltStorage) Write(name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(tables_bucket).Put([]byte(name), data); err != nil {
			return fmt.Errorf("failed to store %s: %w", name, err)
		}
		return nil
	})
}

func (s *BoltStorage) Delete(name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(tables_bucket).Delete([]byte(name))
	})
}

func (s *BoltStorage) List() ([]string, error) {
	names := []string{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(tables_bucket).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

func (s *BoltStorage) Close() error { return s.db.Close() }
