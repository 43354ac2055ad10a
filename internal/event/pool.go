package event

import (
	"bytes"
	"encoding/json"
	"sync"

	"stock_sim/internal/domain"
)

// bufferPool reuses encode buffers for fill payloads.
//
// Usage:
//
//	buf := acquireBuffer()
//	defer releaseBuffer(buf)
var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// maxPooledBuffer keeps one oversized payload from pinning memory in the pool.
const maxPooledBuffer = 64 << 10

func acquireBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

func releaseBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooledBuffer {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}

// EncodeFill returns the JSON form of f. The returned slice is owned by the caller.
func EncodeFill(f domain.Fill) ([]byte, error) {
	buf := acquireBuffer()
	defer releaseBuffer(buf)

	if err := json.NewEncoder(buf).Encode(f); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len()-1) // drop the encoder's trailing newline
	copy(out, buf.Bytes())
	return out, nil
}
