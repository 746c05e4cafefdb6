// Package tlsctx implements the process-wide TLS context a TLS sender
// requires at startup: certificate and private key loading that must
// complete before any TLS sender starts, plus an optional OCSP
// revocation monitor. Grounded on server/ocsp.go's OCSPMonitor, trimmed
// to the single leaf-certificate case this sender needs (no SNI
// multi-cert selection, no HTTP status-request stapling — those serve a
// TLS *server*, and this process is always a TLS client).
package tlsctx

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ocsp"

	"github.com/guidoreina/netbuf/logger"
)

// DefaultCheckInterval is how often the revocation monitor re-checks a
// good status, matching defaultOCSPCheckInterval's order of magnitude
// scaled down for a sender process that cares more about catching a
// revocation promptly than about responder load.
const DefaultCheckInterval = 1 * time.Hour

// Context is the process-wide TLS state: a loaded client certificate plus
// an optional revocation monitor. Exactly one Context is expected per
// process; it must be built and, if desired, started before any
// transport.TLS dials out.
type Context struct {
	cert     tls.Certificate
	roots    *x509.CertPool
	serverCA string

	revoked  atomic.Bool
	monitor  *monitor
	log      logger.Logger
}

// Load reads the PEM certificate/key pair at certFile/keyFile and returns
// a Context ready for transport.NewTLS. serverCA, if non-empty, is a PEM
// file added to the root pool used to verify the peer; an empty value
// falls back to the system root pool, matching how a plain `tls.Config{}`
// behaves by default.
func Load(certFile, keyFile, serverCA string, log logger.Logger) (*Context, error) {
	if log == nil {
		log = logger.Noop()
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("tlsctx: loading certificate/key: %w", err)
	}

	c := &Context{cert: cert, log: log}

	if serverCA != "" {
		pem, err := os.ReadFile(serverCA)
		if err != nil {
			return nil, fmt.Errorf("tlsctx: reading CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("tlsctx: no certificates found in %s", serverCA)
		}
		c.roots = pool
	}

	return c, nil
}

// ClientConfig returns a *tls.Config suitable for dialing the peer,
// presenting cert as the client certificate.
func (c *Context) ClientConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{c.cert},
		RootCAs:      c.roots,
		MinVersion:   tls.VersionTLS12,
	}
}

// Revoked reports whether the revocation monitor (if started) has
// observed the certificate as revoked. transport.TLS.Connect refuses to
// dial when this is true.
func (c *Context) Revoked() bool {
	return c.revoked.Load()
}

// StartRevocationMonitor begins periodically checking the loaded
// certificate's OCSP status against its issuer's responder, stopping
// when the returned stop function is called. It is optional: a sender
// that never calls this simply never consults OCSP, matching plain
// mutual-TLS deployments that don't staple.
func (c *Context) StartRevocationMonitor(issuer *x509.Certificate) (stop func(), err error) {
	leaf, err := x509.ParseCertificate(c.cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("tlsctx: parsing leaf certificate: %w", err)
	}

	m := &monitor{
		leaf:   leaf,
		issuer: issuer,
		ctx:    c,
		hc:     &http.Client{Timeout: 10 * time.Second},
		stopCh: make(chan struct{}),
	}
	c.monitor = m
	go m.run()

	return func() { close(m.stopCh) }, nil
}

type monitor struct {
	mu     sync.Mutex
	leaf   *x509.Certificate
	issuer *x509.Certificate
	ctx    *Context
	hc     *http.Client
	stopCh chan struct{}
}

func (m *monitor) run() {
	interval := DefaultCheckInterval
	for {
		select {
		case <-m.stopCh:
			return
		case <-time.After(interval):
		}

		resp, err := m.check()
		if err != nil {
			m.ctx.log.Warnf("tlsctx: ocsp check failed: %v", err)
			continue
		}

		if resp.Status == ocsp.Revoked {
			m.ctx.log.Errorf("tlsctx: certificate revoked, refusing further connects")
			m.ctx.revoked.Store(true)
		} else {
			m.ctx.revoked.Store(false)
		}
	}
}

func (m *monitor) check() (*ocsp.Response, error) {
	reqDER, err := ocsp.CreateRequest(m.leaf, m.issuer, nil)
	if err != nil {
		return nil, err
	}

	responders := m.leaf.OCSPServer
	if len(responders) == 0 {
		return nil, fmt.Errorf("no ocsp responder advertised by certificate")
	}

	reqEnc := base64.StdEncoding.EncodeToString(reqDER)

	var raw []byte
	for _, u := range responders {
		u = strings.TrimSuffix(u, "/")
		raw, err = fetchOCSP(m.hc, fmt.Sprintf("%s/%s", u, reqEnc))
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("exhausted ocsp responders: %w", err)
	}

	return ocsp.ParseResponse(raw, m.issuer)
}

func fetchOCSP(hc *http.Client, url string) ([]byte, error) {
	resp, err := hc.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("non-ok http status: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
