package packet

import (
	"bytes"
	"sync"
)

// Pack implementations stage the variable header and payload in a
// pooled buffer to compute the remaining length before the fixed
// header is written.
var bufferPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

func GetBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

func PutBuffer(buf *bytes.Buffer) {
	buf.Reset()
	bufferPool.Put(buf)
}
