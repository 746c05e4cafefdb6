package buffer

import "sync"

// DefaultChunkSize is the number of buffers batch-allocated when the pool
// runs dry, matching the source's net::buffer::allocator::allocation.
const DefaultChunkSize = 10000

// Pool is a thread-safe LIFO free-list of idle buffers. It never shrinks:
// once a Buffer is created it belongs to the pool until the process that
// holds the pool is torn down. This is deliberate amortization, not an
// oversight — see DESIGN.md open-question 2 — so there is no Close/Drain
// that frees memory back to the runtime; letting the pool (and everything
// it ever allocated) become unreachable is the only teardown.
type Pool struct {
	mu        sync.Mutex
	free      *Buffer
	chunkSize int
}

// NewPool creates an empty pool that refills chunkSize buffers at a time.
// A chunkSize <= 0 falls back to DefaultChunkSize.
func NewPool(chunkSize int) *Pool {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Pool{chunkSize: chunkSize}
}

// Get pops the top of the free list, refilling in one batch of chunkSize
// buffers if the list is empty. Refill tolerates partial allocation
// failure: as long as one buffer was added the call succeeds. Get returns
// ErrPoolExhausted only when the runtime could not produce a single
// buffer, which in Go practice means the process is already in serious
// trouble (allocation failures are not recoverable the way a failed
// malloc is in C), but the contract is preserved so callers keep treating
// a nil/error return as "drop the message".
func (p *Pool) Get() (*Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.free == nil {
		if !p.refillLocked() {
			return nil, ErrPoolExhausted
		}
	}

	buf := p.free
	p.free = buf.next
	buf.next = nil
	return buf, nil
}

// Put pushes buf back onto the free list. It does not clear buf's
// payload — the next producer to Get this buffer overwrites it via Init.
func (p *Pool) Put(buf *Buffer) {
	if buf == nil {
		return
	}
	p.mu.Lock()
	buf.next = p.free
	buf.prev = nil
	p.free = buf
	p.mu.Unlock()
}

// refillLocked must be called with p.mu held. It allocates up to
// chunkSize new buffers and links them onto the free list, returning true
// if at least one was added.
func (p *Pool) refillLocked() bool {
	for i := 0; i < p.chunkSize; i++ {
		buf := &Buffer{}
		buf.next = p.free
		p.free = buf
	}
	return p.free != nil
}
