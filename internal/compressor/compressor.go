// Package compressor implements tasktypes.Compressor, the out-of-scope
// "HTML compression" collaborator spec.md §1 names. Grounded on the
// klauspost/compress library already pulled into this module's dependency
// graph by dgraph-io/badger (internal/gazetteer's value-log compression),
// promoted here to a direct import rather than reaching for the standard
// library's compress/gzip: the corpus already carries this exact library
// for the same concern.
package compressor

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Zstd compresses byte buffers with zstd at the default compression level.
// A single encoder/decoder pair is reused across calls per the
// klauspost/compress guidance that constructing them is comparatively
// expensive.
type Zstd struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// New builds a Zstd compressor. The returned value owns background
// goroutines inside the zstd encoder/decoder; call Close when done.
func New() (*Zstd, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("compressor: failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("compressor: failed to create zstd decoder: %w", err)
	}
	return &Zstd{encoder: enc, decoder: dec}, nil
}

// Compress implements tasktypes.Compressor.
func (z *Zstd) Compress(content []byte) ([]byte, error) {
	return z.encoder.EncodeAll(content, nil), nil
}

// Decompress reverses Compress; exposed for tests and for any future
// read-path that needs the original content back.
func (z *Zstd) Decompress(compressed []byte) ([]byte, error) {
	return z.decoder.DecodeAll(compressed, nil)
}

// Close releases the decoder's background goroutine.
func (z *Zstd) Close() {
	z.decoder.Close()
}
