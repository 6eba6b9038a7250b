package jsondb

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tobsdb/jsondb/codec"
	"github.com/tobsdb/jsondb/pkg"
	"github.com/tobsdb/jsondb/storage"
	"golang.org/x/sync/errgroup"
)

// max number of tables encoded or decoded at once
const io_concurrency = 4

type Options struct {
	// Storage defaults to an in-memory store.
	Storage storage.Storage
	// Codec used when writing tables. Tables are always read with the codec
	// recorded in their file.
	Codec      codec.Codec
	Compressor codec.Compressor
	// AutoFlush writes dirty tables after every successful top-level
	// mutating call.
	AutoFlush bool
}

// JsonDatabase owns the table registry. It does no locking of its own; a
// host sharing one instance between goroutines serialises calls through
// GetLocker.
type JsonDatabase struct {
	locker sync.RWMutex
	opts   Options

	tables        *pkg.InsertSortMap[string, *Table]
	pending_drops pkg.Map[string, *Table]
	tx_depth      int
	closed        bool
}

// Open loads every table found in opts.Storage.
func Open(opts Options) (*JsonDatabase, error) {
	if opts.Storage == nil {
		opts.Storage = storage.NewMemStorage()
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.Compressor == nil {
		opts.Compressor = codec.NoCompression{}
	}

	db := &JsonDatabase{
		opts:          opts,
		tables:        pkg.NewInsertSortMap[string, *Table](),
		pending_drops: pkg.Map[string, *Table]{},
	}
	if err := db.load(); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenDir opens a database kept as one file per table in dir, flushing
// after every write.
func OpenDir(dir string) (*JsonDatabase, error) {
	s, err := storage.NewDirStorage(dir)
	if err != nil {
		return nil, err
	}
	return Open(Options{Storage: s, AutoFlush: true})
}

func (db *JsonDatabase) load() error {
	start := time.Now()
	names, err := db.opts.Storage.List()
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}

	loaded := make([]*Table, len(names))
	g := errgroup.Group{}
	g.SetLimit(io_concurrency)
	for i, name := range names {
		g.Go(func() error {
			data, err := db.opts.Storage.Read(name)
			if err != nil {
				return fmt.Errorf("failed to read table %s: %w", name, err)
			}
			t, err := decodeTable(name, data)
			if err != nil {
				return fmt.Errorf("failed to load table %s: %w", name, err)
			}
			loaded[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, t := range loaded {
		db.tables.Push(t.name, t)
	}
	pkg.DebugLog("database loaded", "tables", len(loaded), "duration", time.Since(start))
	return nil
}

func (db *JsonDatabase) GetLocker() *sync.RWMutex { return &db.locker }

func (db *JsonDatabase) checkOpen() error {
	if db.closed {
		return ErrClosed
	}
	return nil
}

func (db *JsonDatabase) table(name string) (*Table, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	if !db.tables.Has(name) {
		return nil, &TableNotFoundError{name}
	}
	return db.tables.Get(name), nil
}

// Table returns the live table. Mutations made through it bypass AutoFlush.
func (db *JsonDatabase) Table(name string) (*Table, error) { return db.table(name) }

// afterWrite flushes when AutoFlush is set and no transaction is running.
func (db *JsonDatabase) afterWrite() error {
	if !db.opts.AutoFlush || db.tx_depth > 0 {
		return nil
	}
	return db.Flush()
}

func (db *JsonDatabase) CreateTable(name string, schema *Schema) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if !validName(name) {
		return fmt.Errorf("%w: invalid table name %q", ErrInvalidSchema, name)
	}
	if schema == nil {
		return fmt.Errorf("%w: table %s has no schema", ErrInvalidSchema, name)
	}
	if db.tables.Has(name) {
		return &TableAlreadyExistsError{name}
	}

	t := newTable(name, schema)
	t.touch()
	db.tables.Push(name, t)
	pkg.DebugLog("table created", "table", name, "fields", len(schema.fields.Sorted), "primary_key", schema.primary_key)
	return db.afterWrite()
}

// DropTable removes a table with all its records and indexes. The stored
// copy is deleted on the next flush.
func (db *JsonDatabase) DropTable(name string) error {
	t, err := db.table(name)
	if err != nil {
		return err
	}
	db.tables.Delete(name)
	db.pending_drops.Set(name, t)
	pkg.DebugLog("table dropped", "table", name)
	return db.afterWrite()
}

// Tables returns the table names in ascending order.
func (db *JsonDatabase) Tables() []string {
	names := slices.Clone(db.tables.Sorted)
	slices.Sort(names)
	return names
}

func (db *JsonDatabase) Schema(table string) (*Schema, error) {
	t, err := db.table(table)
	if err != nil {
		return nil, err
	}
	return t.schema, nil
}

// Insert stores record in table and returns its identity. An empty policy
// means ConflictFail.
func (db *JsonDatabase) Insert(table string, record Record, policy ConflictPolicy) (any, error) {
	t, err := db.table(table)
	if err != nil {
		return nil, err
	}
	id, err := t.Insert(record, policy)
	if err != nil {
		return nil, err
	}
	return id, db.afterWrite()
}

// InsertMany inserts every record or none of them.
func (db *JsonDatabase) InsertMany(table string, records []Record, policy ConflictPolicy) ([]any, error) {
	t, err := db.table(table)
	if err != nil {
		return nil, err
	}

	ids := make([]any, 0, len(records))
	err = db.atomically(func(_ *TransactionCtx) error {
		for i, r := range records {
			id, err := t.Insert(r, policy)
			if err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, db.afterWrite()
}

func (db *JsonDatabase) Select(table string) ([]Record, error) {
	t, err := db.table(table)
	if err != nil {
		return nil, err
	}
	return t.SelectAll(), nil
}

// Query starts a query on table. The table is resolved when the query runs.
func (db *JsonDatabase) Query(table string) *Query {
	return newQuery(db, table)
}

func (db *JsonDatabase) Update(table string, where, updates Record) (int, error) {
	t, err := db.table(table)
	if err != nil {
		return 0, err
	}
	n, err := t.Update(where, updates)
	if err != nil || n == 0 {
		return n, err
	}
	return n, db.afterWrite()
}

func (db *JsonDatabase) Delete(table string, where Record) (int, error) {
	t, err := db.table(table)
	if err != nil {
		return 0, err
	}
	n, err := t.Delete(where)
	if err != nil || n == 0 {
		return n, err
	}
	return n, db.afterWrite()
}

func (db *JsonDatabase) CreateIndex(table, field string) error {
	t, err := db.table(table)
	if err != nil {
		return err
	}
	if err := t.CreateIndex(field); err != nil {
		return err
	}
	return db.afterWrite()
}

func (db *JsonDatabase) DropIndex(table, field string) error {
	t, err := db.table(table)
	if err != nil {
		return err
	}
	if err := t.DropIndex(field); err != nil {
		return err
	}
	return db.afterWrite()
}

func (db *JsonDatabase) ListIndexes(table string) ([]string, error) {
	t, err := db.table(table)
	if err != nil {
		return nil, err
	}
	return t.ListIndexes(), nil
}

// FindByIndex returns the records of table whose indexed field equals value.
func (db *JsonDatabase) FindByIndex(table, field string, value any) ([]Record, error) {
	t, err := db.table(table)
	if err != nil {
		return nil, err
	}
	return t.FindByIndex(field, value)
}

// Lookup returns the identities held by an index for value.
func (db *JsonDatabase) Lookup(table, field string, value any) ([]any, error) {
	t, err := db.table(table)
	if err != nil {
		return nil, err
	}
	return t.Lookup(field, value)
}

// Dirty reports whether anything changed since the last flush.
func (db *JsonDatabase) Dirty() bool {
	if len(db.pending_drops) > 0 {
		return true
	}
	dirty := false
	db.tables.Each(func(_ string, t *Table) bool {
		dirty = t.Dirty()
		return !dirty
	})
	return dirty
}

// Flush applies pending drops and writes every dirty table.
func (db *JsonDatabase) Flush() error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	start := time.Now()

	for _, name := range pkg.SortedKeys(db.pending_drops) {
		if err := db.opts.Storage.Delete(name); err != nil {
			return fmt.Errorf("failed to delete table %s: %w", name, err)
		}
		if t := db.pending_drops.Get(name); t != nil {
			t.flushed = 0
			t.persisted = false
		}
		db.pending_drops.Delete(name)
	}

	dirty := []*Table{}
	db.tables.Each(func(_ string, t *Table) bool {
		if t.Dirty() {
			dirty = append(dirty, t)
		}
		return true
	})
	if len(dirty) == 0 {
		return nil
	}

	written := make([]bool, len(dirty))
	g := errgroup.Group{}
	g.SetLimit(io_concurrency)
	for i, t := range dirty {
		g.Go(func() error {
			data, err := encodeTable(t, db.opts.Codec, db.opts.Compressor)
			if err != nil {
				return fmt.Errorf("failed to encode table %s: %w", t.name, err)
			}
			if err := db.opts.Storage.Write(t.name, data); err != nil {
				return fmt.Errorf("failed to write table %s: %w", t.name, err)
			}
			written[i] = true
			return nil
		})
	}
	err := g.Wait()

	// tables that failed to write stay dirty
	for i, t := range dirty {
		if written[i] {
			t.flushed = t.version
			t.persisted = true
		}
	}
	if err != nil {
		pkg.ErrorLog("flush failed", "err", err)
		return err
	}
	pkg.DebugLog("database flushed", "tables", len(dirty), "duration", time.Since(start))
	return nil
}

// Close flushes every dirty table and closes the storage. Any later call
// returns ErrClosed. When the flush fails the database stays open so Close
// can be retried.
func (db *JsonDatabase) Close() error {
	if db.closed {
		return ErrClosed
	}
	if err := db.Flush(); err != nil {
		return err
	}
	db.closed = true
	if err := db.opts.Storage.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	return nil
}
