package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSendWithPeerCheckSendsWhenPeerOpen(t *testing.T) {
	f := NewFake()
	require.NoError(t, f.Connect(Endpoint{Network: "tcp", Address: "x:1"}, time.Second))

	require.NoError(t, SendWithPeerCheck(f, []byte("hello"), time.Second))
	require.Equal(t, [][]byte{[]byte("hello")}, f.Sent())
}

func TestSendWithPeerCheckDisconnectsOnPeerClose(t *testing.T) {
	f := NewFake()
	require.NoError(t, f.Connect(Endpoint{Network: "tcp", Address: "x:1"}, time.Second))
	f.SetPeerClosed(true)

	err := SendWithPeerCheck(f, []byte("hello"), time.Second)
	require.ErrorIs(t, err, ErrPeerClosed)
	require.False(t, f.Connected())
	require.Empty(t, f.Sent())
}

func TestSendWithPeerCheckDisconnectsOnSendFailure(t *testing.T) {
	f := NewFake()
	require.NoError(t, f.Connect(Endpoint{Network: "tcp", Address: "x:1"}, time.Second))
	f.SetFailSendAt(0)

	err := SendWithPeerCheck(f, []byte("hello"), time.Second)
	require.Error(t, err)
	require.False(t, f.Connected())
}

func TestConnectIsIdempotent(t *testing.T) {
	f := NewFake()
	ep := Endpoint{Network: "tcp", Address: "x:1"}
	require.NoError(t, f.Connect(ep, time.Second))
	require.NoError(t, f.Connect(ep, time.Second))
	require.Equal(t, 2, f.ConnectCalls())
	require.True(t, f.Connected())
}
