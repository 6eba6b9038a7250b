package jsondb

import (
	"time"

	"github.com/google/uuid"
	"github.com/tobsdb/jsondb/pkg"
)

// TransactionCtx holds the state captured when a transaction starts.
type TransactionCtx struct {
	id        uuid.UUID
	startTime time.Time

	tables        *pkg.InsertSortMap[string, *Table]
	snapshots     []*tableSnapshot
	pending_drops pkg.Map[string, *Table]
}

func newTransactionCtx(db *JsonDatabase) *TransactionCtx {
	ctx := &TransactionCtx{
		id:            uuid.Must(uuid.NewV7()),
		startTime:     time.Now(),
		tables:        db.tables.Clone(),
		pending_drops: db.pending_drops.Clone(),
	}
	db.tables.Each(func(_ string, t *Table) bool {
		ctx.snapshots = append(ctx.snapshots, t.snapshot())
		return true
	})
	return ctx
}

func (ctx *TransactionCtx) ID() uuid.UUID { return ctx.id }

// Rollback puts the registry and every table back into the captured state.
func (ctx *TransactionCtx) Rollback(db *JsonDatabase) {
	// tables created during the transaction that already reached storage
	// have to be removed from it again
	db.tables.Each(func(name string, t *Table) bool {
		if ctx.tables.Get(name) != t && t.persisted {
			ctx.pending_drops.Set(name, t)
		}
		return true
	})
	for name, t := range db.pending_drops {
		if !ctx.tables.Has(name) {
			ctx.pending_drops.Set(name, t)
		}
	}

	db.tables = ctx.tables
	db.pending_drops = ctx.pending_drops
	for _, s := range ctx.snapshots {
		s.restore()
	}
	pkg.DebugLog("transaction rolled back", "id", ctx.id, "duration", time.Since(ctx.startTime))
}

func (ctx *TransactionCtx) Commit() {
	pkg.DebugLog("transaction committed", "id", ctx.id, "duration", time.Since(ctx.startTime))
}

// atomically runs op and restores the pre-call state if op fails or panics.
func (db *JsonDatabase) atomically(op func(ctx *TransactionCtx) error) (err error) {
	ctx := newTransactionCtx(db)
	pkg.DebugLog("transaction started", "id", ctx.id)

	db.tx_depth++
	defer func() {
		db.tx_depth--
		if r := recover(); r != nil {
			ctx.Rollback(db)
			panic(r)
		}
		if err != nil {
			ctx.Rollback(db)
		} else {
			ctx.Commit()
		}
	}()

	return op(ctx)
}

// Transaction runs op as one all-or-nothing unit. If op returns an error or
// panics every table and the table registry are restored to their state
// before the call; the error is returned as a *TransactionError and a panic
// is re-raised. Transactions may be nested.
func (db *JsonDatabase) Transaction(op func() error) error {
	if err := db.checkOpen(); err != nil {
		return err
	}

	var tx_id uuid.UUID
	err := db.atomically(func(ctx *TransactionCtx) error {
		tx_id = ctx.ID()
		return op()
	})
	if err != nil {
		return &TransactionError{ID: tx_id, Err: err}
	}
	return db.afterWrite()
}
