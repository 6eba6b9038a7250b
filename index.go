package jsondb

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/tobsdb/jsondb/pkg"
	"github.com/tobsdb/jsondb/types"
)

// RowID is the table-local position id assigned to every record at insert
// time. IDs grow monotonically and are never reused.
type RowID = uint32

// Index maps every value of one field to the rows currently holding it.
type Index struct {
	field   string
	entries pkg.Map[any, *roaring.Bitmap]
}

func newIndex(field string) *Index {
	return &Index{field: field, entries: pkg.Map[any, *roaring.Bitmap]{}}
}

func (i *Index) Field() string { return i.field }

// Len returns the number of distinct indexed values.
func (i *Index) Len() int { return len(i.entries) }

// Lookup returns the ids of rows whose field equals value, in ascending
// order. The result is empty when no row holds value.
func (i *Index) Lookup(value any) []RowID {
	n, err := types.Normalize(value)
	if err != nil {
		return []RowID{}
	}
	b := i.bitmap(n)
	if b == nil {
		return []RowID{}
	}
	return b.ToArray()
}

func (i *Index) bitmap(value any) *roaring.Bitmap {
	return i.entries.Get(types.IndexKey(value))
}

// insertEntry and removeEntry are idempotent.
func (i *Index) insertEntry(value any, id RowID) {
	key := types.IndexKey(value)
	b := i.entries.Get(key)
	if b == nil {
		b = roaring.New()
		i.entries.Set(key, b)
	}
	b.Add(id)
}

func (i *Index) removeEntry(value any, id RowID) {
	key := types.IndexKey(value)
	b := i.entries.Get(key)
	if b == nil {
		return
	}
	b.Remove(id)
	if b.IsEmpty() {
		i.entries.Delete(key)
	}
}

func (i *Index) clone() *Index {
	c := newIndex(i.field)
	for k, b := range i.entries {
		c.entries.Set(k, b.Clone())
	}
	return c
}
