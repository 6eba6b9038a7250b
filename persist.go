package jsondb

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tobsdb/jsondb/codec"
	"github.com/tobsdb/jsondb/internal/paging"
)

const table_file_version = 1

var ErrCorruptTable = errors.New("corrupt table file")

// A table file is a page of two blocks: the compressor name and the
// compressed body. The body is a page whose first block is the JSON header
// and every following block one record, prefixed with its 4 byte row id.
type tableHeader struct {
	Version    int      `json:"version"`
	Name       string   `json:"name"`
	Codec      string   `json:"codec"`
	PrimaryKey string   `json:"primary_key,omitempty"`
	Fields     []Field  `json:"fields"`
	Indexes    []string `json:"indexes"`
	NextID     RowID    `json:"next_id"`
}

func encodeTable(t *Table, c codec.Codec, comp codec.Compressor) ([]byte, error) {
	header, err := json.Marshal(tableHeader{
		Version:    table_file_version,
		Name:       t.name,
		Codec:      c.Name(),
		PrimaryKey: t.schema.primary_key,
		Fields:     t.schema.Fields(),
		Indexes:    t.ListIndexes(),
		NextID:     t.next_id,
	})
	if err != nil {
		return nil, err
	}

	body := paging.NewPage()
	if err := body.Push(header); err != nil {
		return nil, err
	}

	var rec_err error
	t.each(func(r *row) bool {
		data, err := c.Marshal(r.rec)
		if err != nil {
			rec_err = fmt.Errorf("row %d: %w", r.id, err)
			return false
		}
		block := binary.BigEndian.AppendUint32(make([]byte, 0, 4+len(data)), r.id)
		if err := body.Push(append(block, data...)); err != nil {
			rec_err = err
			return false
		}
		return true
	})
	if rec_err != nil {
		return nil, rec_err
	}

	compressed, err := comp.Compress(body.Bytes())
	if err != nil {
		return nil, err
	}

	file := paging.NewPage()
	if err := file.Push([]byte(comp.Name())); err != nil {
		return nil, err
	}
	if err := file.Push(compressed); err != nil {
		return nil, err
	}
	return file.Bytes(), nil
}

func decodeTable(name string, data []byte) (*Table, error) {
	file := paging.LoadPage(data).NewReader()
	if !file.ReadNext() {
		return nil, fmt.Errorf("%w: missing compression block", ErrCorruptTable)
	}
	comp, err := codec.CompressorByName(string(file.Buf))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptTable, err)
	}
	if !file.ReadNext() {
		return nil, fmt.Errorf("%w: missing body", ErrCorruptTable)
	}
	raw, err := comp.Decompress(file.Buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptTable, err)
	}

	body := paging.LoadPage(raw).NewReader()
	if !body.ReadNext() {
		return nil, fmt.Errorf("%w: missing header", ErrCorruptTable)
	}
	var h tableHeader
	if err := json.Unmarshal(body.Buf, &h); err != nil {
		return nil, fmt.Errorf("%w: bad header: %w", ErrCorruptTable, err)
	}
	if h.Version != table_file_version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptTable, h.Version)
	}
	if h.Name != name {
		return nil, fmt.Errorf("%w: file holds table %s", ErrCorruptTable, h.Name)
	}
	c, err := codec.ByName(h.Codec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptTable, err)
	}
	schema, err := NewSchema(h.PrimaryKey, h.Fields...)
	if err != nil {
		return nil, err
	}

	t := newTable(name, schema)
	for body.ReadNext() {
		if len(body.Buf) < 4 {
			return nil, fmt.Errorf("%w: short record block", ErrCorruptTable)
		}
		id := binary.BigEndian.Uint32(body.Buf)
		record, err := c.Unmarshal(body.Buf[4:])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", id, err)
		}
		rec, err := schema.validate(name, record)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", id, err)
		}
		if _, dup := t.rows.Get(id); dup || id >= h.NextID {
			return nil, fmt.Errorf("%w: invalid row id %d", ErrCorruptTable, id)
		}
		if pk := schema.primary_key; pk != "" {
			if _, ok := t.findPrimary(rec[pk]); ok {
				return nil, &DuplicateKeyError{name, rec[pk]}
			}
		}
		r := &row{id, rec}
		t.rows.Insert(id, r)
		t.addEntries(r)
	}
	if err := body.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptTable, err)
	}
	t.next_id = max(h.NextID, 1)

	for _, field := range h.Indexes {
		if err := t.CreateIndex(field); err != nil {
			return nil, err
		}
	}
	t.version = 0
	t.flushed = 0
	t.persisted = true
	return t, nil
}
