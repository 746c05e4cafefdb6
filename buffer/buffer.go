// Package buffer implements the sender's unit of transmission: a
// reference-counted-by-convention byte blob that moves between a producer,
// the in-memory queue, the worker, and the pool without ever being
// reallocated on the hot path.
//
// Grounded on original_source/net/buffer.{h,cpp}: the Buffer carries its
// own prev/next linkage so that it can be threaded onto the queue's
// intrusive list (package queue) without a second allocation, and the
// Pool is the free-list allocator that lets producers avoid a malloc per
// message.
package buffer

import (
	"errors"
	"io"
	"os"
)

// ErrPoolExhausted is returned by Pool.Get when no buffer is available and
// a refill attempt could not allocate even one.
var ErrPoolExhausted = errors.New("buffer: pool exhausted")

// Buffer is an owned byte blob plus intrusive list linkage. next/prev are
// only meaningful while the buffer is linked into a queue.Queue; the pool's
// free list reuses the same next pointer while the buffer is idle. A
// Buffer is owned by exactly one of {producer, queue, worker, pool} at a
// time — callers must not retain a reference after handing it to another
// owner.
type Buffer struct {
	data []byte
	next *Buffer
	prev *Buffer
}

// Data returns the buffer's payload. The returned slice must not be
// retained past the buffer's next Init or its return to the pool.
func (b *Buffer) Data() []byte {
	return b.data
}

// Length returns the number of payload bytes.
func (b *Buffer) Length() int {
	return len(b.data)
}

// Init copies src into the buffer, replacing any previous content. It
// mirrors the source's realloc-then-copy: the resulting backing array is
// sized exactly to len(src). An error here means the buffer is unusable
// and the caller must return it to the pool without further use.
func (b *Buffer) Init(src []byte) error {
	data := make([]byte, len(src))
	copy(data, src)
	b.data = data
	return nil
}

// Clear releases the buffer's payload. The pool never calls it: pooled
// buffers keep their payload until the next Init overwrites it, so
// callers returning a buffer for reuse via Pool.Put need not call Clear
// either.
func (b *Buffer) Clear() {
	b.data = nil
}

// Next returns the buffer's list successor. Exported for package queue,
// which is the only other package expected to walk this linkage.
func (b *Buffer) Next() *Buffer { return b.next }

// SetNext sets the buffer's list successor.
func (b *Buffer) SetNext(n *Buffer) { b.next = n }

// Prev returns the buffer's list predecessor.
func (b *Buffer) Prev() *Buffer { return b.prev }

// SetPrev sets the buffer's list predecessor.
func (b *Buffer) SetPrev(p *Buffer) { b.prev = p }

// Save writes the buffer's payload to filename, creating or truncating it
// with mode 0644. Short writes are retried; on any other error the
// partially written file is removed and the error is returned, matching
// the source's create-write-unlink-on-failure sequence. fsync is
// deliberately not called — durability is required only across a restart
// of the sender process, not across a crash.
func (b *Buffer) Save(filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	data := b.data
	for len(data) > 0 {
		n, err := f.Write(data)
		if n > 0 {
			data = data[n:]
		}
		if err != nil {
			if err == io.ErrShortWrite {
				continue
			}
			f.Close()
			os.Remove(filename)
			return err
		}
	}

	return f.Close()
}
