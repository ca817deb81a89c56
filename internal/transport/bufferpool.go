package transport

import (
	"sync"
)

// MaxMessageSize is the largest datagram delivered to a ReceiveFunc.
const MaxMessageSize = 65536

// One spare byte lets a read detect datagrams over MaxMessageSize.
const bufferSize = MaxMessageSize + 1

var buffers = sync.Pool{
	New: func() interface{} {
		return make([]byte, bufferSize)
	},
}

// getBuffer fetches a buffer from the buffer pool.
func getBuffer() []byte {
	return buffers.Get().([]byte)
}

// putBuffer returns a buffer to the buffer pool.
func putBuffer(buf []byte) {
	if cap(buf) >= bufferSize {
		buffers.Put(buf[:bufferSize])
	}
}
