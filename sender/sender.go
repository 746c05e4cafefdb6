// Package sender implements the worker that ties the buffer pool, queue,
// transport adapter and disk spill store together: the control loop
// described in original_source/net/sender.cpp's run(), rendered as one
// goroutine per Sender plus a small set of producer-facing entry points
// safe to call from any number of goroutines.
package sender

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guidoreina/netbuf/buffer"
	"github.com/guidoreina/netbuf/queue"
	"github.com/guidoreina/netbuf/spillstore"
	"github.com/guidoreina/netbuf/transport"
	"github.com/nats-io/nuid"
)

// Worker states.
const (
	stateSendingFiles int32 = iota
	stateSendingQueuedBuffers
)

// ErrAlreadyStarted is returned by Start when called more than once on the
// same Sender.
var ErrAlreadyStarted = errors.New("sender: already started")

// ErrNotStarted is returned by Stop when the worker was never started.
var ErrNotStarted = errors.New("sender: not started")

// Sender is the worker: one long-lived goroutine driving the state
// machine, fed by any number of producer goroutines calling Send/SendChain.
type Sender struct {
	cfg  Config
	ep   transport.Endpoint
	conn transport.Conn

	pool  *buffer.Pool
	queue *queue.Queue
	store *spillstore.Store

	state int32 // atomic; also written from the producer's spill path

	// Owned exclusively by the worker goroutine once started — transport
	// state belongs to the worker, so no atomics needed for these two.
	errorSending     bool
	lastSocketOpTime time.Time

	ids *nuid.NUID

	stopCh  chan struct{}
	started atomic.Bool
	wg      sync.WaitGroup
}

// New constructs a Sender bound to conn (not yet dialed) and ep. cfg's
// zero-valued tunables fall back to their defaults. The spill directory
// named in cfg must already exist; New fails otherwise, a configuration
// error that keeps Start from ever spawning a worker over a bad directory.
func New(cfg Config, conn transport.Conn, ep transport.Endpoint) (*Sender, error) {
	cfg.setDefaults()

	store, err := spillstore.New(cfg.Directory, currentLogger())
	if err != nil {
		return nil, err
	}

	return &Sender{
		cfg:    cfg,
		ep:     ep,
		conn:   conn,
		pool:   buffer.NewPool(cfg.PoolChunkSize),
		queue:  queue.New(),
		store:  store,
		state:  stateSendingFiles,
		ids:    nuid.New(),
		stopCh: make(chan struct{}),
	}, nil
}

// Pool returns the Sender's buffer pool, the entry point producers use to
// obtain a Buffer to fill before calling Send.
func (s *Sender) Pool() *buffer.Pool { return s.pool }

// QueueLen reports the current in-memory backlog depth.
func (s *Sender) QueueLen() int { return s.queue.Len() }

// Start spawns the worker goroutine. It is an error to call Start more
// than once.
func (s *Sender) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	s.wg.Add(1)
	go s.run()
	return nil
}

// Stop signals the worker to exit and waits for it to do so. On return,
// every buffer still queued has been spilled to disk and returned to the
// pool.
func (s *Sender) Stop() error {
	if !s.started.Load() {
		return ErrNotStarted
	}
	close(s.stopCh)
	s.wg.Wait()
	return nil
}

// Send fills a buffer from the pool with data and pushes it to the back of
// the queue, spilling the whole backlog to disk if the post-push count
// exceeds MaxQueuedBuffers.
func (s *Sender) Send(data []byte) error {
	buf, err := s.pool.Get()
	if err != nil {
		return err
	}
	if err := buf.Init(data); err != nil {
		s.pool.Put(buf)
		return err
	}
	s.enqueue(buf, buf)
	return nil
}

// SendChain pushes an already-filled, well-formed buffer chain [first,
// last] to the back of the queue in one call, for producers that batch
// their own fills ahead of time.
func (s *Sender) SendChain(first, last *buffer.Buffer) {
	s.enqueue(first, last)
}

// enqueue implements the producer-side spill path: push, then check the
// post-push count against the threshold. This runs on the caller's
// (producer's) goroutine, not the worker's, so a batch that trips the
// threshold is written to disk before the worker ever sees it.
func (s *Sender) enqueue(first, last *buffer.Buffer) {
	count := s.queue.PushBackChain(first, last)
	if count <= s.cfg.MaxQueuedBuffers {
		return
	}
	qFirst, qLast, n := s.queue.Pop()
	if n == 0 {
		return
	}
	s.store.SaveAll(qFirst, qLast, s.pool)
	atomic.StoreInt32(&s.state, stateSendingFiles)
}

// run is the worker's control loop.
func (s *Sender) run() {
	defer s.wg.Done()
	defer s.drainToSpillOnExit()

	for {
		if s.stopRequested() {
			return
		}

		currentTime := time.Now()

		if s.errorSending {
			if currentTime.Sub(s.lastSocketOpTime) >= s.cfg.ReconnectionTime {
				if err := s.connect(currentTime); err != nil {
					if s.sleepOrStop(s.cfg.SleepInterval) {
						return
					}
					continue
				}
				s.errorSending = false
			} else {
				if s.sleepOrStop(s.cfg.SleepInterval) {
					return
				}
				continue
			}
		}

		if atomic.LoadInt32(&s.state) == stateSendingQueuedBuffers {
			s.runSendingQueuedBuffers()
		}

		if atomic.LoadInt32(&s.state) == stateSendingFiles {
			s.runSendingFiles()
		}
	}
}

func (s *Sender) runSendingQueuedBuffers() {
	first, last, count := s.queue.PopTimeout(s.cfg.SleepInterval)
	if count == 0 {
		if s.conn.Connected() && time.Since(s.lastSocketOpTime) >= s.cfg.IdleTimeout {
			s.conn.Close()
		}
		return
	}

	if err := s.connect(time.Now()); err != nil {
		// Could not even dial: the whole chain goes back to the front
		// as the "unsent suffix".
		s.queue.PushFrontChain(first, last)
		s.errorSending = true
		s.lastSocketOpTime = time.Now()
		return
	}

	for cur := first; ; {
		next := cur.Next()

		s.lastSocketOpTime = time.Now()
		if err := transport.SendWithPeerCheck(s.conn, cur.Data(), s.cfg.SendTimeout); err != nil {
			errorf("sender: send failed, requeuing remaining batch: %v", err)
			s.queue.PushFrontChain(cur, last)
			s.errorSending = true
			s.lastSocketOpTime = time.Now()
			return
		}

		s.pool.Put(cur)
		if cur == last {
			break
		}
		cur = next
	}
}

func (s *Sender) runSendingFiles() {
	if err := s.connect(time.Now()); err != nil {
		s.errorSending = true
		s.lastSocketOpTime = time.Now()
		return
	}

	if err := s.store.SendFiles(s.conn, s.cfg.SendTimeout); err != nil {
		s.errorSending = true
		s.lastSocketOpTime = time.Now()
		return
	}

	atomic.StoreInt32(&s.state, stateSendingQueuedBuffers)
}

// connect is idempotent and lazy: it is only ever called from inside the
// control loop, immediately before the transport is actually needed.
func (s *Sender) connect(now time.Time) error {
	if s.conn.Connected() {
		return nil
	}
	s.lastSocketOpTime = now
	id := s.ids.Next()
	if err := s.conn.Connect(s.ep, s.cfg.SendTimeout); err != nil {
		warnf("sender[%s]: connect to %s failed: %v", id, s.ep, err)
		return err
	}
	noticef("sender[%s]: connected to %s", id, s.ep)
	return nil
}

// drainToSpillOnExit flushes any buffers still queued to disk, the
// control loop's final step before the worker goroutine returns.
func (s *Sender) drainToSpillOnExit() {
	first, last, count := s.queue.Pop()
	if count == 0 {
		return
	}
	if !s.store.SaveAll(first, last, s.pool) {
		errorf("sender: failed to spill %d buffers on shutdown", count)
	}
}

func (s *Sender) stopRequested() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// sleepOrStop sleeps for d, or returns early (reporting true) if Stop is
// called in the meantime — the mechanism that keeps shutdown responsive
// during the reconnect holdoff, since cancellation is only ever noticed
// between iterations of the outer loop, never mid-buffer.
func (s *Sender) sleepOrStop(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.stopCh:
		return true
	case <-timer.C:
		return false
	}
}
