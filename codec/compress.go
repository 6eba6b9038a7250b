package codec

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compressor transforms a whole table file.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Name() string
}

func CompressorByName(name string) (Compressor, error) {
	switch name {
	case "", "none":
		return NoCompression{}, nil
	case "zstd":
		return Zstd{}, nil
	case "lz4":
		return LZ4{}, nil
	}
	return nil, fmt.Errorf("unknown compression %q", name)
}

func CompressorNames() []string { return []string{"lz4", "none", "zstd"} }

type NoCompression struct{}

func (NoCompression) Name() string                          { return "none" }
func (NoCompression) Compress(data []byte) ([]byte, error)   { return data, nil }
func (NoCompression) Decompress(data []byte) ([]byte, error) { return data, nil }

var (
	zstd_encoder_pool sync.Pool
	zstd_decoder_pool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstd_encoder_pool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstd_decoder_pool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

type Zstd struct{}

func (Zstd) Name() string { return "zstd" }

func (Zstd) Compress(data []byte) ([]byte, error) {
	enc, err := getZstdEncoder()
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer zstd_encoder_pool.Put(enc)
	return enc.EncodeAll(data, nil), nil
}

func (Zstd) Decompress(data []byte) ([]byte, error) {
	dec, err := getZstdDecoder()
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer zstd_decoder_pool.Put(dec)

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress zstd data: %w", err)
	}
	return out, nil
}

// LZ4 uses the lz4 frame format, which records the uncompressed size itself.
type LZ4 struct{}

func (LZ4) Name() string { return "lz4" }

func (LZ4) Compress(data []byte) ([]byte, error) {
	buf := bytes.Buffer{}
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress lz4 data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress lz4 data: %w", err)
	}
	return buf.Bytes(), nil
}

func (LZ4) Decompress(data []byte) ([]byte, error) {
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress lz4 data: %w", err)
	}
	return out, nil
}
