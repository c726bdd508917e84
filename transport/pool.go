package transport

import "sync"

// MaxDatagramSize is the receive buffer size, large enough for any fragment
// datagram on a standard MTU path.
const MaxDatagramSize = 2048

// BufferPool recycles fixed-size receive buffers.
type BufferPool struct {
	size int
	pool sync.Pool
}

// NewBufferPool creates a pool of buffers of the given size.
func NewBufferPool(size int) *BufferPool {
	bp := &BufferPool{size: size}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return bp
}

// Get returns a buffer of full length.
func (bp *BufferPool) Get() *[]byte {
	buf := bp.pool.Get().(*[]byte)
	*buf = (*buf)[:bp.size]
	return buf
}

// Put returns buf to the pool. Buffers of the wrong capacity are dropped.
func (bp *BufferPool) Put(buf *[]byte) {
	if buf == nil || cap(*buf) != bp.size {
		return
	}
	bp.pool.Put(buf)
}

// Size returns the length of buffers handed out by Get.
func (bp *BufferPool) Size() int {
	return bp.size
}
