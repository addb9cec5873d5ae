package codec

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// ICodec transforms encoded documents before they are written to a backend
// and back after they are read.
type ICodec interface {
	// Name returns the identifier the codec is registered under.
	Name() string
	// Encode compresses data.
	Encode(data []byte) ([]byte, error)
	// Decode reverses Encode.
	Decode(data []byte) ([]byte, error)
	// Close releases resources held by the codec.
	Close() error
}

// Codec names
const (
	None   = "none"
	Snappy = "snappy"
	Zstd   = "zstd"
	LZ4    = "lz4"
)

var factories = map[string]func() (ICodec, error){
	None:   func() (ICodec, error) { return noneCodec{}, nil },
	Snappy: func() (ICodec, error) { return snappyCodec{}, nil },
	Zstd:   newZstdCodec,
	LZ4:    func() (ICodec, error) { return lz4Codec{}, nil },
}

// New returns the codec registered under name. An empty name selects None.
func New(name string) (ICodec, error) {
	if name == "" {
		name = None
	}
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown codec %q (expected one of %v)", name, Names())
	}
	return factory()
}

// Names returns all registered codec names.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// --------------------------------------------------------------------------
// none
// --------------------------------------------------------------------------

type noneCodec struct{}

func (noneCodec) Name() string                       { return None }
func (noneCodec) Encode(data []byte) ([]byte, error) { return data, nil }
func (noneCodec) Decode(data []byte) ([]byte, error) { return data, nil }
func (noneCodec) Close() error                       { return nil }

// --------------------------------------------------------------------------
// snappy
// --------------------------------------------------------------------------

type snappyCodec struct{}

func (snappyCodec) Name() string { return Snappy }

func (snappyCodec) Encode(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (snappyCodec) Decode(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}

func (snappyCodec) Close() error { return nil }

// --------------------------------------------------------------------------
// zstd
// --------------------------------------------------------------------------

// zstdCodec keeps one encoder and decoder, both are safe for concurrent
// EncodeAll/DecodeAll calls.
type zstdCodec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newZstdCodec() (ICodec, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		_ = encoder.Close()
		return nil, err
	}
	return &zstdCodec{encoder: encoder, decoder: decoder}, nil
}

func (c *zstdCodec) Name() string { return Zstd }

func (c *zstdCodec) Encode(data []byte) ([]byte, error) {
	return c.encoder.EncodeAll(data, nil), nil
}

func (c *zstdCodec) Decode(data []byte) ([]byte, error) {
	return c.decoder.DecodeAll(data, nil)
}

func (c *zstdCodec) Close() error {
	c.decoder.Close()
	return c.encoder.Close()
}

// --------------------------------------------------------------------------
// lz4
// --------------------------------------------------------------------------

type lz4Codec struct{}

func (lz4Codec) Name() string { return LZ4 }

func (lz4Codec) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (lz4Codec) Decode(data []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
}

func (lz4Codec) Close() error { return nil }
