package cache

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// DefaultCompressThreshold is the payload size above which columns are
// stored zstd-compressed.
const DefaultCompressThreshold = 1024

// Bits of the compressed column recording which payloads are compressed.
const (
	flagRequestHeaders = 1 << iota
	flagRequestBody
	flagResponseHeaders
	flagResponseBody
)

// codec wraps stateless zstd encode/decode. Both sides are safe for
// concurrent EncodeAll/DecodeAll calls.
type codec struct {
	threshold int
	enc       *zstd.Encoder
	dec       *zstd.Decoder
}

func newCodec(threshold int) (*codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &codec{threshold: threshold, enc: enc, dec: dec}, nil
}

// pack compresses data when it exceeds the threshold. A threshold below zero
// disables compression.
func (c *codec) pack(data []byte, flag int, flags *int) []byte {
	if c.threshold < 0 || len(data) <= c.threshold {
		return data
	}
	*flags |= flag
	return c.enc.EncodeAll(data, make([]byte, 0, len(data)/2))
}

func (c *codec) unpack(data []byte, flag int, flags int) ([]byte, error) {
	if flags&flag == 0 || len(data) == 0 {
		return data, nil
	}
	out, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}
	return out, nil
}

func (c *codec) close() {
	c.enc.Close()
	c.dec.Close()
}
