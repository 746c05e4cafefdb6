package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrBadAddress is returned by ParseAddress/ParseHostPort when neither a
// host:port pair nor a usable local path could be extracted.
var ErrBadAddress = errors.New("transport: bad address")

// unixSockPathMax mirrors sizeof(sockaddr_un.sun_path) on Linux, the
// platform limit for local-socket endpoint paths.
const unixSockPathMax = 108

// Endpoint is the opaque value the address parser hands to a transport.
// Network is either "tcp" (host:port, including bracketed IPv6) or "unix"
// (a filesystem path).
type Endpoint struct {
	Network string
	Address string
}

// ParseAddress locates the last ':' in s; the suffix must be a decimal
// port in 1..65535 and the prefix (optionally '['/']'-bracketed) must be a
// valid IPv4 or IPv6 literal.
//
// The fallback to a local filesystem path only applies when the
// suffix after the last ':' does not even look like a port (i.e. is not
// all decimal digits) — a string with no ':' at all is the common case.
// Once the suffix is all digits, s is unambiguously a host:port attempt,
// and an invalid host or an out-of-range port is a hard rejection rather
// than a fallback: "[::1]:99999" and "host:0" both look like someone
// meant host:port and typo'd it, not like a path that happens to contain
// a colon.
func ParseAddress(s string) (Endpoint, error) {
	host, portStr, hasColon := splitLastColon(s)
	if !hasColon || !isAllDigits(portStr) {
		return ParseLocalPath(s)
	}
	ep, err := buildTCPEndpoint(host, portStr)
	if err != nil {
		return Endpoint{}, err
	}
	return ep, nil
}

// ParseHostPort builds a TCP endpoint from an already-separated host and
// port, validating the host as an IPv4/IPv6 literal and the port range.
func ParseHostPort(host string, port uint16) (Endpoint, error) {
	if port == 0 {
		return Endpoint{}, ErrBadAddress
	}
	return buildTCPEndpoint(host, strconv.Itoa(int(port)))
}

// ParseLocalPath validates s as a filesystem path for a local-socket
// endpoint: length 1..unixSockPathMax-1 bytes.
func ParseLocalPath(s string) (Endpoint, error) {
	if len(s) == 0 || len(s) >= unixSockPathMax {
		return Endpoint{}, ErrBadAddress
	}
	return Endpoint{Network: "unix", Address: s}, nil
}

// splitLastColon locates the last ':' in s and returns the prefix/suffix
// around it, stripping one layer of '['/']' bracketing from the prefix if
// present. hasColon is false if s contains no ':' at all.
func splitLastColon(s string) (host, port string, hasColon bool) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return "", "", false
	}
	host, port = s[:i], s[i+1:]
	if len(host) >= 2 && host[0] == '[' && host[len(host)-1] == ']' {
		host = host[1 : len(host)-1]
	}
	return host, port, true
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func buildTCPEndpoint(host, portStr string) (Endpoint, error) {
	port, err := strconv.ParseUint(portStr, 10, 32)
	if err != nil || port < 1 || port > 65535 {
		return Endpoint{}, ErrBadAddress
	}
	if net.ParseIP(host) == nil {
		return Endpoint{}, ErrBadAddress
	}
	return Endpoint{Network: "tcp", Address: net.JoinHostPort(host, portStr)}, nil
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%s", e.Network, e.Address)
}
