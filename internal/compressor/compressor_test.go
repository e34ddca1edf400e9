package compressor

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestZstdRoundTrip(t *testing.T) {
	z, err := New()
	require.NoError(t, err)
	defer z.Close()

	original := bytes.Repeat([]byte("orcaweaver crawl payload "), 64)

	compressed, err := z.Compress(original)
	require.NoError(t, err)
	require.Less(t, len(compressed), len(original))

	restored, err := z.Decompress(compressed)
	require.NoError(t, err)
	require.Equal(t, original, restored)
}

func TestZstdCompressEmpty(t *testing.T) {
	z, err := New()
	require.NoError(t, err)
	defer z.Close()

	compressed, err := z.Compress(nil)
	require.NoError(t, err)

	restored, err := z.Decompress(compressed)
	require.NoError(t, err)
	require.Empty(t, restored)
}
