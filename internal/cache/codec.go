// internal/cache/codec.go
package cache

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compression algorithms for the persisted snapshot
const (
	CompressionNone   = "none"
	CompressionSnappy = "snappy"
	CompressionZstd   = "zstd"
)

// Codec transforms the serialized snapshot on its way to and from storage
type Codec interface {
	Name() string
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

// NewCodec returns the codec for a compression algorithm
func NewCodec(algo string) (Codec, error) {
	switch algo {
	case "", CompressionNone:
		return plainCodec{}, nil
	case CompressionSnappy:
		return snappyCodec{}, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(64<<20))
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		return &zstdCodec{enc: enc, dec: dec}, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", algo)
	}
}

type plainCodec struct{}

func (plainCodec) Name() string                       { return CompressionNone }
func (plainCodec) Encode(data []byte) ([]byte, error) { return data, nil }
func (plainCodec) Decode(data []byte) ([]byte, error) { return data, nil }

type snappyCodec struct{}

func (snappyCodec) Name() string { return CompressionSnappy }

func (snappyCodec) Encode(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (snappyCodec) Decode(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}

// EncodeAll and DecodeAll are safe for concurrent use.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func (z *zstdCodec) Name() string { return CompressionZstd }

func (z *zstdCodec) Encode(data []byte) ([]byte, error) {
	return z.enc.EncodeAll(data, nil), nil
}

func (z *zstdCodec) Decode(data []byte) ([]byte, error) {
	return z.dec.DecodeAll(data, nil)
}
