package jsondb

import (
	"fmt"

	"github.com/tobsdb/jsondb/pkg"
	"github.com/tobsdb/jsondb/types"
	sorted "github.com/tobshub/go-sortedmap"
)

type ConflictPolicy string

const (
	ConflictFail      ConflictPolicy = "fail"
	ConflictIgnore    ConflictPolicy = "ignore"
	ConflictOverwrite ConflictPolicy = "overwrite"
)

// ParseConflictPolicy accepts "", "fail", "error", "ignore", "overwrite"
// and "replace".
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch s {
	case "", "fail", "error":
		return ConflictFail, nil
	case "ignore":
		return ConflictIgnore, nil
	case "overwrite", "replace":
		return ConflictOverwrite, nil
	}
	return "", fmt.Errorf("invalid conflict policy %q", s)
}

type row struct {
	id  RowID
	rec Record
}

func rowLess(a, b *row) bool { return a.id < b.id }

// Table holds the live records of one schema. Stored records are never
// modified in place; updates replace the row.
type Table struct {
	name   string
	schema *Schema

	// row id -> row, ordered by id which is insertion order
	rows *sorted.SortedMap[RowID, *row]
	// primary key -> row id
	primary pkg.Map[any, RowID]
	indexes *pkg.InsertSortMap[string, *Index]
	next_id RowID

	version   uint64
	flushed   uint64
	persisted bool
}

func newTable(name string, schema *Schema) *Table {
	return &Table{
		name:    name,
		schema:  schema,
		rows:    sorted.New[RowID, *row](0, rowLess),
		primary: pkg.Map[any, RowID]{},
		indexes: pkg.NewInsertSortMap[string, *Index](),
		next_id: 1,
	}
}

func (t *Table) Name() string    { return t.name }
func (t *Table) Schema() *Schema { return t.schema }
func (t *Table) Len() int        { return t.rows.Len() }

// Dirty reports whether the table changed since it was last written, or
// has no stored copy.
func (t *Table) Dirty() bool { return t.version != t.flushed || !t.persisted }

func (t *Table) touch() { t.version++ }

// identity is the primary key value, or the row id when no primary key is
// declared.
func (t *Table) identity(r *row) any {
	if pk := t.schema.primary_key; pk != "" {
		return r.rec[pk]
	}
	return r.id
}

// each calls f for every row in insertion order until f returns false.
func (t *Table) each(f func(r *row) bool) {
	iter, err := t.rows.IterCh()
	if err != nil {
		// no rows
		return
	}
	cont := true
	for rec := range iter.Records() {
		if cont {
			cont = f(rec.Val)
		}
	}
}

func (t *Table) rowList() []*row {
	res := make([]*row, 0, t.rows.Len())
	t.each(func(r *row) bool {
		res = append(res, r)
		return true
	})
	return res
}

func (t *Table) addEntries(r *row) {
	if pk := t.schema.primary_key; pk != "" {
		t.primary.Set(types.IndexKey(r.rec[pk]), r.id)
	}
	t.indexes.Each(func(field string, idx *Index) bool {
		idx.insertEntry(r.rec[field], r.id)
		return true
	})
}

func (t *Table) removeEntries(r *row) {
	if pk := t.schema.primary_key; pk != "" {
		t.primary.Delete(types.IndexKey(r.rec[pk]))
	}
	t.indexes.Each(func(field string, idx *Index) bool {
		idx.removeEntry(r.rec[field], r.id)
		return true
	})
}

func (t *Table) replaceRow(old *row, rec Record) {
	t.removeEntries(old)
	r := &row{old.id, rec}
	t.rows.Replace(old.id, r)
	t.addEntries(r)
}

func (t *Table) findPrimary(value any) (*row, bool) {
	id, ok := t.primary[types.IndexKey(value)]
	if !ok {
		return nil, false
	}
	return t.rows.Get(id)
}

// Insert validates record and stores it. When the primary key is already
// taken policy decides the outcome. The returned identity is the primary
// key value or, without a primary key, the RowID.
func (t *Table) Insert(record Record, policy ConflictPolicy) (any, error) {
	rec, err := t.schema.validate(t.name, record)
	if err != nil {
		return nil, err
	}

	if pk := t.schema.primary_key; pk != "" {
		if existing, ok := t.findPrimary(rec[pk]); ok {
			switch policy {
			case ConflictIgnore:
				return t.identity(existing), nil
			case ConflictOverwrite:
				t.replaceRow(existing, rec)
				t.touch()
				return rec[pk], nil
			case ConflictFail, "":
				return nil, &DuplicateKeyError{t.name, rec[pk]}
			default:
				return nil, fmt.Errorf("invalid conflict policy %q", policy)
			}
		}
	}

	r := &row{t.next_id, rec}
	t.next_id++
	t.rows.Insert(r.id, r)
	t.addEntries(r)
	t.touch()
	return t.identity(r), nil
}

func exportRecord(rec Record) Record {
	return Record(types.CloneMap(rec))
}

// SelectAll returns a copy of every record in insertion order.
func (t *Table) SelectAll() []Record {
	res := make([]Record, 0, t.rows.Len())
	t.each(func(r *row) bool {
		res = append(res, exportRecord(r.rec))
		return true
	})
	return res
}

func (t *Table) whereRows(where Record) ([]*row, error) {
	preds := make([]predicate, 0, len(where))
	for _, field := range pkg.SortedKeys(where) {
		preds = append(preds, predicate{field, OpEq, where[field]})
	}
	compiled, err := t.compile(preds)
	if err != nil {
		return nil, err
	}
	return t.filter(compiled)
}

// Update merges updates into every record matching where. All merged
// records are validated before any of them is stored, so a failing update
// changes nothing. An empty where matches every record.
func (t *Table) Update(where, updates Record) (int, error) {
	upd, err := t.schema.validateUpdates(t.name, updates)
	if err != nil {
		return 0, err
	}
	matched, err := t.whereRows(where)
	if err != nil {
		return 0, err
	}
	if len(matched) == 0 {
		return 0, nil
	}

	type change struct {
		old *row
		rec Record
	}
	changes := make([]change, 0, len(matched))
	matched_ids := pkg.Map[RowID, bool]{}
	for _, r := range matched {
		matched_ids.Set(r.id, true)
	}

	pk := t.schema.primary_key
	new_keys := pkg.Map[any, RowID]{}
	for _, r := range matched {
		merged := r.rec.Clone()
		for k, v := range upd {
			merged[k] = types.Clone(v)
		}
		rec, err := t.schema.validate(t.name, merged)
		if err != nil {
			return 0, err
		}

		if pk != "" && upd.Has(pk) {
			key := types.IndexKey(rec[pk])
			if owner, ok := t.primary[key]; ok && !matched_ids.Has(owner) {
				return 0, &DuplicateKeyError{t.name, rec[pk]}
			}
			if new_keys.Has(key) {
				return 0, &DuplicateKeyError{t.name, rec[pk]}
			}
			new_keys.Set(key, r.id)
		}
		changes = append(changes, change{r, rec})
	}

	// drop every old key first so swapped keys do not collide
	for _, c := range changes {
		t.removeEntries(c.old)
	}
	for _, c := range changes {
		r := &row{c.old.id, c.rec}
		t.rows.Replace(r.id, r)
		t.addEntries(r)
	}
	t.touch()
	return len(changes), nil
}

// Delete removes every record matching where and returns how many were
// removed. An empty where matches every record.
func (t *Table) Delete(where Record) (int, error) {
	matched, err := t.whereRows(where)
	if err != nil {
		return 0, err
	}
	for _, r := range matched {
		t.removeEntries(r)
		t.rows.Delete(r.id)
	}
	if len(matched) > 0 {
		t.touch()
	}
	return len(matched), nil
}

func (t *Table) CreateIndex(field string) error {
	if !t.schema.HasField(field) {
		return queryErrorf("unknown field %s in table %s", field, t.name)
	}
	if t.indexes.Has(field) {
		return fmt.Errorf("%w: %s.%s", ErrIndexExists, t.name, field)
	}

	idx := newIndex(field)
	t.each(func(r *row) bool {
		idx.insertEntry(r.rec[field], r.id)
		return true
	})
	t.indexes.Push(field, idx)
	t.touch()
	pkg.DebugLog("index built", "table", t.name, "field", field, "values", idx.Len())
	return nil
}

func (t *Table) DropIndex(field string) error {
	if !t.indexes.Has(field) {
		return fmt.Errorf("%w: %s.%s", ErrIndexNotFound, t.name, field)
	}
	t.indexes.Delete(field)
	t.touch()
	return nil
}

// ListIndexes returns the indexed fields in creation order.
func (t *Table) ListIndexes() []string {
	res := make([]string, 0, t.indexes.Len())
	t.indexes.Each(func(field string, _ *Index) bool {
		res = append(res, field)
		return true
	})
	return res
}

func (t *Table) Index(field string) (*Index, bool) {
	if !t.indexes.Has(field) {
		return nil, false
	}
	return t.indexes.Get(field), true
}

func (t *Table) indexRows(field string, value any) ([]*row, error) {
	idx, ok := t.Index(field)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrIndexNotFound, t.name, field)
	}
	ids := idx.Lookup(value)
	res := make([]*row, 0, len(ids))
	for _, id := range ids {
		if r, ok := t.rows.Get(id); ok {
			res = append(res, r)
		}
	}
	return res, nil
}

// Lookup returns the identities of the records whose indexed field equals
// value.
func (t *Table) Lookup(field string, value any) ([]any, error) {
	rows, err := t.indexRows(field, value)
	if err != nil {
		return nil, err
	}
	return pkg.MapSlice(rows, t.identity), nil
}

// FindByIndex returns copies of the records whose indexed field equals value.
func (t *Table) FindByIndex(field string, value any) ([]Record, error) {
	rows, err := t.indexRows(field, value)
	if err != nil {
		return nil, err
	}
	return pkg.MapSlice(rows, func(r *row) Record { return exportRecord(r.rec) }), nil
}

type tableSnapshot struct {
	table   *Table
	rows    []*row
	primary pkg.Map[any, RowID]
	indexes *pkg.InsertSortMap[string, *Index]
	next_id RowID
	version uint64
}

// snapshot copies the table's containers. Rows are shared since they are
// never mutated.
func (t *Table) snapshot() *tableSnapshot {
	indexes := pkg.NewInsertSortMap[string, *Index]()
	t.indexes.Each(func(field string, idx *Index) bool {
		indexes.Push(field, idx.clone())
		return true
	})
	return &tableSnapshot{
		table:   t,
		rows:    t.rowList(),
		primary: t.primary.Clone(),
		indexes: indexes,
		next_id: t.next_id,
		version: t.version,
	}
}

func (s *tableSnapshot) restore() {
	t := s.table
	rows := sorted.New[RowID, *row](0, rowLess)
	for _, r := range s.rows {
		rows.Insert(r.id, r)
	}
	t.rows = rows
	t.primary = s.primary
	t.indexes = s.indexes
	t.next_id = s.next_id

	// stay clean only if nothing was written since the snapshot was taken
	if t.version != s.version && t.flushed != s.version {
		t.version++
	} else {
		t.version = s.version
	}
}
