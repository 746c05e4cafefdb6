package transport

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/guidoreina/netbuf/logger"
	"github.com/guidoreina/netbuf/tlsctx"
)

// ErrCertificateRevoked is returned by TLS.Connect when the process-wide
// TLS context's revocation monitor has flagged the certificate revoked.
var ErrCertificateRevoked = errors.New("transport: certificate revoked")

// TLS is the encrypted stream variant: a TCP dial followed by a client
// handshake, sharing the Conn contract with Plain. Grounded on
// original_source/net/ssl/socket.{h,cpp} for the operation set.
type TLS struct {
	ctx *tlsctx.Context
	log logger.Logger

	mu   sync.Mutex
	conn *tls.Conn
}

var _ Conn = (*TLS)(nil)

// NewTLS returns an unconnected TLS transport using the given process-wide
// context (certificate + private key, already loaded before the first
// dial), logging through log (a nil log discards everything).
func NewTLS(ctx *tlsctx.Context, log logger.Logger) *TLS {
	if log == nil {
		log = logger.Noop()
	}
	return &TLS{ctx: ctx, log: log}
}

func (t *TLS) Connect(ep Endpoint, timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return nil
	}

	if t.ctx.Revoked() {
		t.log.Warnf("transport: refusing to connect to %s: certificate revoked", ep)
		return ErrCertificateRevoked
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, ep.Network, ep.Address, t.ctx.ClientConfig())
	if err != nil {
		t.log.Warnf("transport: tls connect to %s failed: %v", ep, err)
		return err
	}
	t.log.Noticef("transport: connected to %s", ep)
	t.conn = conn
	return nil
}

func (t *TLS) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		if err := t.conn.Close(); err != nil {
			t.log.Warnf("transport: close failed: %v", err)
		}
		t.conn = nil
	}
}

func (t *TLS) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

func (t *TLS) Send(data []byte, timeout time.Duration) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}

	for len(data) > 0 {
		n, err := conn.Write(data)
		if n > 0 {
			data = data[n:]
		}
		if err != nil {
			return translateTimeout(err)
		}
	}
	return nil
}

func (t *TLS) Recv(buf []byte, timeout time.Duration) (int, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

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
