package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAddressIPv6Bracketed(t *testing.T) {
	ep, err := ParseAddress("[::1]:443")
	require.NoError(t, err)
	require.Equal(t, "tcp", ep.Network)
	require.Equal(t, "[::1]:443", ep.Address)
}

func TestParseAddressIPv4(t *testing.T) {
	ep, err := ParseAddress("127.0.0.1:80")
	require.NoError(t, err)
	require.Equal(t, "tcp", ep.Network)
	require.Equal(t, "127.0.0.1:80", ep.Address)
}

func TestParseAddressFallsBackToLocalPath(t *testing.T) {
	ep, err := ParseAddress("/var/run/x.sock")
	require.NoError(t, err)
	require.Equal(t, "unix", ep.Network)
	require.Equal(t, "/var/run/x.sock", ep.Address)
}

func TestParseAddressRejectsOutOfRangePort(t *testing.T) {
	// The suffix is all digits, so this is unambiguously a host:port
	// attempt; an out-of-range port is a hard rejection, not a fallback
	// to treating the whole string as a local path.
	_, err := ParseAddress("[::1]:99999")
	require.Error(t, err)
}

func TestParseAddressRejectsZeroPort(t *testing.T) {
	_, err := ParseAddress("host:0")
	require.Error(t, err)
}

func TestParseAddressNonDigitSuffixFallsBackToPath(t *testing.T) {
	ep, err := ParseAddress("/var/run:weird.sock")
	require.NoError(t, err)
	require.Equal(t, "unix", ep.Network)
}

func TestParseHostPort(t *testing.T) {
	ep, err := ParseHostPort("10.0.0.1", 9000)
	require.NoError(t, err)
	require.Equal(t, "tcp", ep.Network)

	_, err = ParseHostPort("10.0.0.1", 0)
	require.Error(t, err)
}
