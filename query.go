package jsondb

import (
	"errors"
	"slices"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/tobsdb/jsondb/types"
)

type Operator string

const (
	OpEq  Operator = "="
	OpNe  Operator = "!="
	OpLt  Operator = "<"
	OpGt  Operator = ">"
	OpLte Operator = "<="
	OpGte Operator = ">="
	OpIn  Operator = "in"
)

var VALID_OPERATORS = []Operator{OpEq, OpNe, OpLt, OpGt, OpLte, OpGte, OpIn}

func (o Operator) IsValid() bool { return slices.Contains(VALID_OPERATORS, o) }

func (o Operator) ordering() bool {
	return o == OpLt || o == OpGt || o == OpLte || o == OpGte
}

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

type predicate struct {
	field string
	op    Operator
	value any
}

type compiledPredicate struct {
	predicate
	ftype types.FieldType
}

// widen turns an integer literal into a float when it is compared against
// a Float field.
func widen(ft types.FieldType, v any) any {
	if i, ok := v.(int); ok && ft == types.FieldTypeFloat {
		return float64(i)
	}
	return v
}

func (t *Table) compile(preds []predicate) ([]compiledPredicate, error) {
	res := make([]compiledPredicate, 0, len(preds))
	for _, p := range preds {
		ft, ok := t.schema.FieldType(p.field)
		if !ok {
			return nil, queryErrorf("unknown field %s in table %s", p.field, t.name)
		}
		if !p.op.IsValid() {
			return nil, queryErrorf("invalid operator %q", p.op)
		}

		v, err := types.Normalize(p.value)
		if err != nil {
			return nil, queryErrorf("invalid value for %s: %v", p.field, err)
		}

		switch {
		case p.op == OpIn:
			list, ok := v.([]any)
			if !ok {
				return nil, queryErrorf("operator in requires a list value for %s", p.field)
			}
			for i := range list {
				list[i] = widen(ft, list[i])
			}
		case p.op.ordering():
			v = widen(ft, v)
			if !ft.Orderable() {
				return nil, queryErrorf("operator %s is not supported on %s field %s", p.op, ft, p.field)
			}
			lit := types.KindOf(v)
			if ft.IsNumeric() != lit.IsNumeric() || (ft == types.FieldTypeString && lit != types.FieldTypeString) {
				return nil, queryErrorf("cannot compare %s field %s with %s", ft, p.field, lit)
			}
		default:
			v = widen(ft, v)
		}
		res = append(res, compiledPredicate{predicate{p.field, p.op, v}, ft})
	}
	return res, nil
}

func (p compiledPredicate) match(v any) (bool, error) {
	switch p.op {
	case OpEq:
		return types.Equal(v, p.value), nil
	case OpNe:
		return !types.Equal(v, p.value), nil
	case OpIn:
		return slices.ContainsFunc(p.value.([]any), func(e any) bool { return types.Equal(v, e) }), nil
	}

	c, err := types.Compare(v, p.value)
	if err != nil {
		return false, queryErrorf("%s %s: %v", p.field, p.op, err)
	}
	switch p.op {
	case OpLt:
		return c < 0, nil
	case OpGt:
		return c > 0, nil
	case OpLte:
		return c <= 0, nil
	case OpGte:
		return c >= 0, nil
	}
	return false, queryErrorf("invalid operator %q", p.op)
}

// candidates resolves the rows a query has to look at. Equality predicates
// on indexed fields or the primary key are answered from the index and
// intersected; without any such predicate every row is a candidate.
func (t *Table) candidates(preds []compiledPredicate) []*row {
	var set *roaring.Bitmap
	narrow := func(b *roaring.Bitmap) {
		if set == nil {
			set = b.Clone()
		} else {
			set.And(b)
		}
	}

	for _, p := range preds {
		if p.op != OpEq {
			continue
		}
		if idx, ok := t.Index(p.field); ok {
			b := idx.bitmap(p.value)
			if b == nil {
				b = roaring.New()
			}
			narrow(b)
		} else if p.field == t.schema.primary_key {
			b := roaring.New()
			if id, ok := t.primary[types.IndexKey(p.value)]; ok {
				b.Add(id)
			}
			narrow(b)
		}
	}

	if set == nil {
		return t.rowList()
	}

	res := make([]*row, 0, set.GetCardinality())
	it := set.Iterator()
	for it.HasNext() {
		if r, ok := t.rows.Get(it.Next()); ok {
			res = append(res, r)
		}
	}
	return res
}

func (t *Table) filter(preds []compiledPredicate) ([]*row, error) {
	res := []*row{}
	for _, r := range t.candidates(preds) {
		ok, err := matchAll(r.rec, preds)
		if err != nil {
			return nil, err
		}
		if ok {
			res = append(res, r)
		}
	}
	return res, nil
}

func matchAll(rec Record, preds []compiledPredicate) (bool, error) {
	for _, p := range preds {
		ok, err := p.match(rec[p.field])
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

type joinSpec struct {
	table       string
	base_field  string
	other_field string
}

type orderSpec struct {
	field string
	dir   Direction
}

// Query is an immutable query description. Every builder method returns a
// new Query; nothing runs until All, First or Count is called.
type Query struct {
	db         *JsonDatabase
	table      string
	join       *joinSpec
	preds      []predicate
	projection []string
	order      *orderSpec
	limit      int
	offset     int
	err        error
}

func newQuery(db *JsonDatabase, table string) *Query {
	return &Query{db: db, table: table, limit: -1}
}

func (q *Query) clone() *Query {
	c := *q
	c.preds = slices.Clone(q.preds)
	c.projection = slices.Clone(q.projection)
	return &c
}

// Where adds a predicate. Predicates are combined with AND.
func (q *Query) Where(field string, op Operator, value any) *Query {
	c := q.clone()
	c.preds = append(c.preds, predicate{field, op, value})
	return c
}

// Join combines every base row with each row of table whose other_field
// equals the base row's base_field. Base rows without a match are dropped.
func (q *Query) Join(table, base_field, other_field string) *Query {
	c := q.clone()
	c.join = &joinSpec{table, base_field, other_field}
	return c
}

// Select restricts the output to fields, in the given order. Names may be
// qualified as table.field.
func (q *Query) Select(fields ...string) *Query {
	c := q.clone()
	c.projection = slices.Clone(fields)
	if c.projection == nil {
		c.projection = []string{}
	}
	return c
}

func (q *Query) OrderBy(field string, dir Direction) *Query {
	c := q.clone()
	c.order = &orderSpec{field, dir}
	if dir != Asc && dir != Desc && c.err == nil {
		c.err = queryErrorf("invalid order direction %q", dir)
	}
	return c
}

func (q *Query) Limit(n int) *Query {
	c := q.clone()
	if n < 0 && c.err == nil {
		c.err = queryErrorf("limit must not be negative: %d", n)
	}
	c.limit = n
	return c
}

func (q *Query) Offset(n int) *Query {
	c := q.clone()
	if n < 0 && c.err == nil {
		c.err = queryErrorf("offset must not be negative: %d", n)
	}
	c.offset = n
	return c
}

// resultRow is a base row optionally combined with a joined row.
type resultRow struct {
	base  Record
	other Record
}

type plan struct {
	base  *Table
	other *Table
}

var errUnresolved = errors.New("unresolved field")

// resolve finds a field by plain or qualified name. Plain names prefer the
// base table.
func (p *plan) resolve(name string) (table *Table, field string, err error) {
	if tbl, f, ok := strings.Cut(name, "."); ok {
		if tbl == p.base.name && p.base.schema.HasField(f) {
			return p.base, f, nil
		}
		if p.other != nil && tbl == p.other.name && p.other.schema.HasField(f) {
			return p.other, f, nil
		}
		return nil, "", errUnresolved
	}
	if p.base.schema.HasField(name) {
		return p.base, name, nil
	}
	if p.other != nil && p.other.schema.HasField(name) {
		return p.other, name, nil
	}
	return nil, "", errUnresolved
}

func (p *plan) value(r resultRow, table *Table, field string) any {
	if table == p.base {
		return r.base[field]
	}
	return r.other[field]
}

// columns lists the output names of a row without projection: base fields
// first, then the joined table's fields that do not collide.
func (p *plan) columns() []string {
	cols := p.base.schema.FieldNames()
	if p.other != nil {
		for _, f := range p.other.schema.FieldNames() {
			if !p.base.schema.HasField(f) {
				cols = append(cols, f)
			}
		}
	}
	return cols
}

func (q *Query) plan() (*plan, error) {
	if q.err != nil {
		return nil, q.err
	}
	base, err := q.db.table(q.table)
	if err != nil {
		return nil, err
	}
	p := &plan{base: base}
	if q.join != nil {
		other, err := q.db.table(q.join.table)
		if err != nil {
			return nil, err
		}
		if !base.schema.HasField(q.join.base_field) {
			return nil, queryErrorf("unknown join field %s in table %s", q.join.base_field, base.name)
		}
		if !other.schema.HasField(q.join.other_field) {
			return nil, queryErrorf("unknown join field %s in table %s", q.join.other_field, other.name)
		}
		// qualified names could not tell the two sides apart
		if other == base {
			return nil, queryErrorf("cannot join table %s with itself", base.name)
		}
		p.other = other
	}
	return p, nil
}

// Columns returns the names of the fields every result row carries, in
// output order.
func (q *Query) Columns() ([]string, error) {
	p, err := q.plan()
	if err != nil {
		return nil, err
	}
	if q.projection != nil {
		for _, name := range q.projection {
			if _, _, err := p.resolve(name); err != nil {
				return nil, queryErrorf("unknown field %s in query", name)
			}
		}
		return slices.Clone(q.projection), nil
	}
	return p.columns(), nil
}

func (q *Query) joinRows(p *plan, base []*row) []resultRow {
	res := []resultRow{}
	if p.other == nil {
		for _, r := range base {
			res = append(res, resultRow{base: r.rec})
		}
		return res
	}

	other := p.other
	field := q.join.other_field
	_, indexed := other.Index(field)
	var all_other []*row
	if !indexed {
		all_other = other.rowList()
	}

	for _, r := range base {
		v := r.rec[q.join.base_field]
		var matches []*row
		if indexed {
			matches, _ = other.indexRows(field, v)
		} else {
			for _, o := range all_other {
				if types.Equal(o.rec[field], v) {
					matches = append(matches, o)
				}
			}
		}
		for _, o := range matches {
			res = append(res, resultRow{base: r.rec, other: o.rec})
		}
	}
	return res
}

func (q *Query) sortRows(p *plan, rows []resultRow) error {
	if q.order == nil {
		return nil
	}
	table, field, err := p.resolve(q.order.field)
	if err != nil {
		return queryErrorf("unknown order field %s", q.order.field)
	}
	if ft, _ := table.schema.FieldType(field); !ft.Orderable() {
		return queryErrorf("cannot order by %s field %s", ft, q.order.field)
	}

	var cmp_err error
	sort.SliceStable(rows, func(i, j int) bool {
		c, err := types.Compare(p.value(rows[i], table, field), p.value(rows[j], table, field))
		if err != nil && cmp_err == nil {
			cmp_err = queryErrorf("order by %s: %v", q.order.field, err)
		}
		if q.order.dir == Desc {
			return c > 0
		}
		return c < 0
	})
	return cmp_err
}

func (q *Query) project(p *plan, rows []resultRow) ([]Record, error) {
	res := make([]Record, 0, len(rows))
	if q.projection == nil {
		for _, r := range rows {
			out := Record{}
			for k, v := range r.other {
				out[k] = types.Clone(v)
			}
			for k, v := range r.base {
				out[k] = types.Clone(v)
			}
			res = append(res, out)
		}
		return res, nil
	}

	type column struct {
		name  string
		table *Table
		field string
	}
	cols := make([]column, 0, len(q.projection))
	for _, name := range q.projection {
		table, field, err := p.resolve(name)
		if err != nil {
			return nil, queryErrorf("unknown field %s in query", name)
		}
		cols = append(cols, column{name, table, field})
	}
	for _, r := range rows {
		out := make(Record, len(cols))
		for _, c := range cols {
			out[c.name] = types.Clone(p.value(r, c.table, c.field))
		}
		res = append(res, out)
	}
	return res, nil
}

// All evaluates the query: filter, join, order, offset and limit, then
// projection.
func (q *Query) All() ([]Record, error) {
	if err := q.db.checkOpen(); err != nil {
		return nil, err
	}
	p, err := q.plan()
	if err != nil {
		return nil, err
	}

	preds, err := p.base.compile(q.preds)
	if err != nil {
		return nil, err
	}
	base, err := p.base.filter(preds)
	if err != nil {
		return nil, err
	}

	rows := q.joinRows(p, base)
	if err := q.sortRows(p, rows); err != nil {
		return nil, err
	}

	if q.offset >= len(rows) {
		rows = rows[:0]
	} else {
		rows = rows[q.offset:]
	}
	if q.limit >= 0 && q.limit < len(rows) {
		rows = rows[:q.limit]
	}

	return q.project(p, rows)
}

// First returns the first row All would return, or nil when there is none.
func (q *Query) First() (Record, error) {
	rows, err := q.All()
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (q *Query) Count() (int, error) {
	rows, err := q.All()
	return len(rows), err
}
