package sender

import (
	"os"
	"testing"
	"time"

	"github.com/guidoreina/netbuf/transport"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	return Config{
		Directory:        t.TempDir(),
		IdleTimeout:       80 * time.Millisecond,
		ReconnectionTime:  60 * time.Millisecond,
		MaxQueuedBuffers:  3,
		SendTimeout:       time.Second,
		SleepInterval:     10 * time.Millisecond,
		PoolChunkSize:     4,
	}
}

func newTestSender(t *testing.T, f *transport.Fake) *Sender {
	s, err := New(testConfig(t), f, transport.Endpoint{Network: "tcp", Address: "peer:1"})
	require.NoError(t, err)
	return s
}

// S1 — happy path.
func TestHappyPath(t *testing.T) {
	f := transport.NewFake()
	s := newTestSender(t, f)
	require.NoError(t, s.Start())
	defer s.Stop()

	require.NoError(t, s.Send([]byte("A")))
	require.NoError(t, s.Send([]byte("B")))

	require.Eventually(t, func() bool {
		return len(f.Sent()) == 2
	}, time.Second, 5*time.Millisecond)

	sent := f.Sent()
	require.Equal(t, "A", string(sent[0]))
	require.Equal(t, "B", string(sent[1]))
}

// S2 — spill on backlog.
func TestSpillOnBacklog(t *testing.T) {
	f := transport.NewFake()
	cfg := testConfig(t)
	s, err := New(cfg, f, transport.Endpoint{Network: "tcp", Address: "peer:1"})
	require.NoError(t, err)

	// Fill the queue past the threshold before starting the worker, so the
	// spill fires entirely on this (producer) goroutine.
	require.NoError(t, s.Send([]byte("1")))
	require.NoError(t, s.Send([]byte("2")))
	require.NoError(t, s.Send([]byte("3")))
	require.NoError(t, s.Send([]byte("4")))

	require.Equal(t, 0, s.QueueLen())

	entries, err := os.ReadDir(cfg.Directory)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	require.NoError(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool {
		return len(f.Sent()) == 4
	}, time.Second, 5*time.Millisecond)

	entries, err = os.ReadDir(cfg.Directory)
	require.NoError(t, err)
	require.Empty(t, entries)
}

// S3 — disconnect mid-batch, requeue suffix, resend after holdoff.
func TestDisconnectMidBatchRequeuesAndResends(t *testing.T) {
	f := transport.NewFake()
	s := newTestSender(t, f)

	require.NoError(t, s.Send([]byte("A")))
	require.NoError(t, s.Send([]byte("B")))
	require.NoError(t, s.Send([]byte("C")))

	// The worker's first Connect call succeeds; the second Send call (for
	// B, 0-based index 1 across this connection) fails.
	f.SetFailSendAt(1)

	require.NoError(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool {
		return len(f.Sent()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	sent := f.Sent()
	require.Equal(t, []string{"A", "B", "C"}, []string{string(sent[0]), string(sent[1]), string(sent[2])})
}

// S4 — idle close.
func TestIdleClose(t *testing.T) {
	f := transport.NewFake()
	s := newTestSender(t, f)

	require.NoError(t, s.Send([]byte("A")))
	require.NoError(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool {
		return len(f.Sent()) == 1
	}, time.Second, 5*time.Millisecond)
	require.True(t, f.Connected())

	require.Eventually(t, func() bool {
		return !f.Connected()
	}, time.Second, 5*time.Millisecond)
}

// S5 — shutdown with backlog.
func TestShutdownWithBacklog(t *testing.T) {
	f := transport.NewFake()
	cfg := testConfig(t)
	cfg.MaxQueuedBuffers = 1000 // keep the whole backlog in memory
	s, err := New(cfg, f, transport.Endpoint{Network: "tcp", Address: "peer:1"})
	require.NoError(t, err)

	// The transport never connects, so the worker never drains the queue
	// on its own; the backlog is still there, untouched, when Stop runs.
	f.SetFailConnect(true)

	const n = 25
	for i := 0; i < n; i++ {
		require.NoError(t, s.Send([]byte{byte(i)}))
	}
	require.Equal(t, n, s.QueueLen())

	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())

	entries, err := os.ReadDir(cfg.Directory)
	require.NoError(t, err)
	require.Len(t, entries, n)
	require.Equal(t, 0, s.QueueLen())
}

// S6 — peer-close detection before send.
func TestPeerCloseDetectedBeforeSend(t *testing.T) {
	f := transport.NewFake()
	cfg := testConfig(t)
	// Long enough that the holdoff never elapses within this test, so the
	// requeue-after-peer-close is observed exactly once, with no race
	// against a second reconnect-and-retry cycle.
	cfg.ReconnectionTime = time.Hour
	s, err := New(cfg, f, transport.Endpoint{Network: "tcp", Address: "peer:1"})
	require.NoError(t, err)

	require.NoError(t, s.Send([]byte("A")))
	f.SetPeerClosed(true)

	require.NoError(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool {
		return s.QueueLen() == 1
	}, time.Second, 5*time.Millisecond)

	require.Empty(t, f.Sent())
	require.Equal(t, 1, s.QueueLen())
}
