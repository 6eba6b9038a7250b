// Package paging frames a sequence of byte blocks into a single buffer.
// Every block is prefixed with its size as a 4 byte big-endian integer.
package paging

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const block_header_size = 4

var (
	ERR_MAX_DATA_SIZE   = errors.New("maximum data size exceeded")
	ERR_TRUNCATED_BLOCK = errors.New("truncated data block")
)

type Page struct {
	buf   []byte
	count int
}

func NewPage() *Page {
	return &Page{buf: []byte{}}
}

// LoadPage wraps buf for reading. The number of blocks is unknown until
// the page has been read through.
func LoadPage(buf []byte) *Page {
	return &Page{buf: buf, count: -1}
}

func (p *Page) Push(data []byte) error {
	data_size := len(data)
	if uint64(data_size) > math.MaxUint32 {
		return ERR_MAX_DATA_SIZE
	}

	// prefix each data block with its size
	header := make([]byte, block_header_size)
	binary.BigEndian.PutUint32(header, uint32(data_size))
	p.buf = append(p.buf, header...)
	p.buf = append(p.buf, data...)
	if p.count >= 0 {
		p.count++
	}
	return nil
}

// Count returns the number of blocks pushed, or -1 for a loaded page.
func (p *Page) Count() int { return p.count }

func (p *Page) Bytes() []byte { return p.buf }

func (p *Page) NewReader() *PageReader {
	return &PageReader{r: bufio.NewReader(bytes.NewReader(p.buf))}
}

type PageReader struct {
	r   *bufio.Reader
	err error
	Buf []byte
}

// ReadNext advances to the next block. It returns false at the end of the
// page or on a malformed block, in which case Err reports the cause.
func (r *PageReader) ReadNext() bool {
	if r.err != nil {
		return false
	}

	// decode the data block size from the header
	header := make([]byte, block_header_size)
	_, err := io.ReadFull(r.r, header)
	if err != nil {
		if err == io.ErrUnexpectedEOF {
			r.err = ERR_TRUNCATED_BLOCK
		}
		return false
	}
	size := binary.BigEndian.Uint32(header)

	buf := make([]byte, size)
	_, err = io.ReadFull(r.r, buf)
	if err != nil {
		r.err = ERR_TRUNCATED_BLOCK
		return false
	}
	r.Buf = buf
	return true
}

func (r *PageReader) Err() error { return r.err }
