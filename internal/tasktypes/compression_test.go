package tasktypes

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/orcaweaver/internal/orchestrator"
)

type stubCompressor struct{ shrinkBy int }

func (c stubCompressor) Compress(content []byte) ([]byte, error) {
	if len(content) <= c.shrinkBy {
		return []byte{}, nil
	}
	return content[:len(content)-c.shrinkBy], nil
}

type failingCompressor struct{}

func (failingCompressor) Compress([]byte) ([]byte, error) { return nil, errors.New("boom") }

func runConstructor(t *testing.T, ctor orchestrator.ConstructorFunc, config interface{}) (int64, int64, error) {
	t.Helper()
	raw, err := json.Marshal(config)
	require.NoError(t, err)

	var lastCurrent, lastTotal int64
	progress := func(current, total int64, message string, metadata json.RawMessage) {
		lastCurrent, lastTotal = current, total
	}

	h, err := ctor(context.Background(), orchestrator.TaskDeps{
		TaskID: "t1", Config: raw, Cancel: make(chan struct{}), Progress: progress,
	})
	require.NoError(t, err)
	<-h.Done()
	return lastCurrent, lastTotal, h.Err()
}

func TestCompressionConstructorProcessesAllItems(t *testing.T) {
	ctor := NewCompressionConstructor(stubCompressor{shrinkBy: 2})
	current, total, err := runConstructor(t, ctor, CompressionConfig{
		Items: []CompressionItem{{Ref: "a", Content: "hello"}, {Ref: "b", Content: "world"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), current)
	assert.Equal(t, int64(2), total)
}

func TestCompressionConstructorPropagatesCompressorError(t *testing.T) {
	ctor := NewCompressionConstructor(failingCompressor{})
	_, _, err := runConstructor(t, ctor, CompressionConfig{
		Items: []CompressionItem{{Ref: "a", Content: "hello"}},
	})
	assert.Error(t, err)
}

func TestCompressionConstructorHonorsCancel(t *testing.T) {
	raw, err := json.Marshal(CompressionConfig{Items: []CompressionItem{{Ref: "a", Content: "hello"}}})
	require.NoError(t, err)

	cancel := make(chan struct{})
	close(cancel)

	ctor := NewCompressionConstructor(stubCompressor{shrinkBy: 1})
	h, err := ctor(context.Background(), orchestrator.TaskDeps{
		TaskID: "t1", Config: raw, Cancel: cancel,
		Progress: func(int64, int64, string, json.RawMessage) {},
	})
	require.NoError(t, err)
	<-h.Done()
	assert.NoError(t, h.Err())
}
