package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/guidoreina/netbuf/logger"
)

// Plain is the plaintext stream variant: a net.Conn dialed over TCP (or a
// Unix domain socket for a local Endpoint), with short-write/EAGAIN
// looping handled by repeatedly extending the write deadline rather than
// the source's poll()-on-writability loop — net.Conn.SetWriteDeadline
// gives the same "bounded wait for readiness" contract idiomatically.
type Plain struct {
	log logger.Logger

	mu   sync.Mutex
	conn net.Conn
}

var _ Conn = (*Plain)(nil)

// NewPlain returns an unconnected plaintext transport, logging through log
// (a nil log discards everything).
func NewPlain(log logger.Logger) *Plain {
	if log == nil {
		log = logger.Noop()
	}
	return &Plain{log: log}
}

func (p *Plain) Connect(ep Endpoint, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: timeout}
	if ep.Network == "tcp" {
		dialer.Control = tuneTCPSocket
	}

	conn, err := dialer.Dial(ep.Network, ep.Address)
	if err != nil {
		p.log.Warnf("transport: connect to %s failed: %v", ep, err)
		return err
	}
	p.log.Noticef("transport: connected to %s", ep)
	p.conn = conn
	return nil
}

func (p *Plain) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.log.Warnf("transport: close failed: %v", err)
		}
		p.conn = nil
	}
}

func (p *Plain) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil
}

// Send loops over short writes until the whole payload is flushed or a
// non-timeout error occurs.
func (p *Plain) Send(data []byte, timeout time.Duration) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	for len(data) > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
		n, err := conn.Write(data)
		if n > 0 {
			data = data[n:]
		}
		if err != nil {
			err = translateTimeout(err)
			if n > 0 && err == ErrTimeout {
				// Progress was made before the deadline: extend it.
				continue
			}
			return err
		}
	}
	return nil
}

func (p *Plain) Recv(buf []byte, timeout time.Duration) (int, error) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		return 0, ErrNotConnected
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}

	n, err := conn.Read(buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return n, translateTimeout(err)
	}
	return n, nil
}

func translateTimeout(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrTimeout
	}
	return err
}

// tuneTCPSocket sets TCP_NODELAY and enables keepalive on the raw file
// descriptor; net.Dialer calls it after creating the socket and before
// connecting it. Same syscall-level approach as
// ehrlich-b-go-ublk leans on throughout for raw device I/O, applied here
// to a regular TCP socket instead of a block device.
func tuneTCPSocket(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		if sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
