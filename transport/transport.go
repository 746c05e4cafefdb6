// Package transport implements the uniform stream-transport surface the
// sender worker drives: connect/close/send/recv/connected, with a
// plaintext TCP (or local-socket) variant and a TLS variant sharing one
// interface. Grounded on original_source/net/socket.{h,cpp} and
// net/ssl/socket.{h,cpp} for the operation set, and on server/client.go's
// use of net.Conn deadlines in place of the source's poll()-backed
// timeouts.
package transport

import (
	"errors"
	"time"
)

// ErrNotConnected is returned by Send/Recv when no connection is
// established.
var ErrNotConnected = errors.New("transport: not connected")

// ErrPeerClosed is returned by SendWithPeerCheck when the PeerClosed probe
// immediately preceding the write detected that the peer had already closed its end.
var ErrPeerClosed = errors.New("transport: peer closed connection")

// ErrTimeout is returned by Recv/Send when the per-call wait for
// readiness elapses without the operation completing. It is not a
// transport failure by itself — Recv callers in particular treat it as
// "no data pending", the same way the peer-close probe below does.
var ErrTimeout = errors.New("transport: i/o timeout")

// DefaultTimeout is the per-syscall-wait timeout for transport I/O.
const DefaultTimeout = 30 * time.Second

// peerCloseProbeSize is the number of bytes read (and discarded) by
// PeerClosed before every send, matching the source's 1 KiB probe recv.
const peerCloseProbeSize = 1024

// peerCloseProbeTimeout is the read wait SendWithPeerCheck gives the
// PeerClosed probe, short enough that a silent peer costs next to nothing
// before each send.
const peerCloseProbeTimeout = time.Millisecond

// Conn is the capability set the worker needs from a connection,
// regardless of whether it is backed by a plain socket or a TLS session.
// Implementations are used exclusively by the worker goroutine after
// Connect returns; they are not safe for concurrent use by multiple
// goroutines — transport state belongs to the worker alone.
type Conn interface {
	// Connect dials ep, blocking up to timeout. Connect is idempotent:
	// calling it while already connected returns nil without touching
	// the network. This collapses the source's two-stage
	// connect()/EINPROGRESS dance into a single blocking call.
	Connect(ep Endpoint, timeout time.Duration) error

	// Close tears down the connection and frees any associated session
	// state (e.g. the TLS session). It is always safe to call, including
	// when not connected.
	Close()

	// Send writes the whole of data, looping internally over short
	// writes. Plain bounds each wait for writability by timeout; TLS sets
	// a single write deadline of timeout for the whole payload.
	Send(data []byte, timeout time.Duration) error

	// Recv reads up to len(buf) bytes, returning the number read. A
	// return of (0, nil) means the peer has performed an orderly close.
	Recv(buf []byte, timeout time.Duration) (int, error)

	// Connected reports whether the connection is currently established.
	Connected() bool
}

// SendWithPeerCheck performs the probe-then-send sequence the worker
// needs before every transmission: a destructive, bounded peer-close
// probe, and only if the peer has not closed, the actual send. On any
// failure the connection is closed so the worker's caller can enter its
// reconnect holdoff. Discarding whatever the probe reads is intentional
// and acceptable only because this protocol is write-only.
func SendWithPeerCheck(c Conn, data []byte, timeout time.Duration) error {
	closed, err := PeerClosed(c, peerCloseProbeTimeout)
	if err != nil || closed {
		c.Close()
		if err != nil {
			return err
		}
		return ErrPeerClosed
	}
	if err := c.Send(data, timeout); err != nil {
		c.Close()
		return err
	}
	return nil
}

// PeerClosed performs a non-blocking-style probe recv of up to 1 KiB,
// reporting "closed" iff the read returns exactly zero bytes with no
// error. Any other outcome (data available, timeout, error) is reported
// as "not closed", letting the caller proceed to the actual send, which
// will itself surface any real transport failure.
func PeerClosed(c Conn, timeout time.Duration) (bool, error) {
	if !c.Connected() {
		return false, ErrNotConnected
	}
	var probe [peerCloseProbeSize]byte
	n, err := c.Recv(probe[:], timeout)
	if errors.Is(err, ErrTimeout) {
		// No data pending within the probe window: the overwhelmingly
		// common case, and not a peer close.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n == 0, nil
}
