package bufpool

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetReturnsEmptyBuffer(t *testing.T) {
	buf := Get()
	buf.WriteString("leftover")
	Put(buf)

	again := Get()
	defer Put(again)
	assert.Zero(t, again.Len())
}

func TestPutIgnoresNilAndOversized(t *testing.T) {
	assert.NotPanics(t, func() { Put(nil) })

	big := Get()
	big.Grow(maxPooledSize + 1)
	assert.NotPanics(t, func() { Put(big) })
}

func TestReadLimited(t *testing.T) {
	data, err := ReadLimited(strings.NewReader("hello world"), 1024)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestReadLimitedTruncates(t *testing.T) {
	data, err := ReadLimited(strings.NewReader("hello world"), 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestReadLimitedNilReader(t *testing.T) {
	data, err := ReadLimited(nil, 1024)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestReadLimitedCopyIsIndependent(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 4096)
	data, err := ReadLimited(bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)

	// Churning the pool must not corrupt earlier reads.
	for i := 0; i < 8; i++ {
		_, _ = ReadLimited(strings.NewReader("aaaaaaaa"), 1024)
	}
	assert.Equal(t, payload, data)
}
