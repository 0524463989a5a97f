// ABOUTME: Tests for the engine endpoint Locator.
// ABOUTME: Probes a real loopback listener, then its closed port.

package rpc

import (
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpoint_Addr(t *testing.T) {
	e := Endpoint{Host: "127.0.0.1", Port: 7797}
	assert.Equal(t, "127.0.0.1:7797", e.Addr())
}

func TestDefaultEndpoint(t *testing.T) {
	e := DefaultEndpoint()
	assert.Equal(t, DefaultHost, e.Host)
	assert.Equal(t, DefaultPort, e.Port)
}

func TestLocator_Reachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	l := NewLocator(Endpoint{Host: "127.0.0.1", Port: port})
	assert.True(t, l.Reachable(t.Context()))

	ln.Close()
	assert.False(t, l.Reachable(t.Context()), "closed listener must read as unreachable")
}
