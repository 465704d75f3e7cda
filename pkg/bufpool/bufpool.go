// Package bufpool provides sync.Pool-backed buffers for response body
// reads. Probing loops read thousands of bodies per run; pooling the
// read buffers keeps GC pressure flat.
package bufpool

import (
	"bytes"
	"io"
	"sync"
)

// maxPooledSize caps the buffers kept in the pool. Larger buffers are
// dropped so one oversized body does not pin memory for the whole run.
const maxPooledSize = 1 << 20 // 1MB

var bufferPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

var chunkPool = sync.Pool{
	New: func() any {
		chunk := make([]byte, 32*1024)
		return &chunk
	},
}

// Get retrieves an empty bytes.Buffer from the pool. Callers should
// return it with Put when done.
func Get() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// Put returns a buffer to the pool. Nil buffers are ignored, and
// buffers that grew past maxPooledSize are dropped.
func Put(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooledSize {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}

// ReadLimited reads up to limit bytes from r through pooled buffers and
// returns a fresh copy of the data. The copy is safe to retain after
// the pooled buffer goes back.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	if r == nil || limit <= 0 {
		return nil, nil
	}

	buf := Get()
	defer Put(buf)
	chunk := chunkPool.Get().(*[]byte)
	defer chunkPool.Put(chunk)

	_, err := io.CopyBuffer(buf, io.LimitReader(r, limit), *chunk)
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, err
}
