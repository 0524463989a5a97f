// ABOUTME: Transport locator — decides whether the engine endpoint is reachable.
// ABOUTME: Probes the well-known TCP loopback address with a short dial timeout.

package rpc

import (
	"context"
	"net"
	"strconv"
	"time"
)

// probeTimeout bounds a single reachability probe. The engine listens on
// loopback, so anything slower than this is as good as offline.
const probeTimeout = 250 * time.Millisecond

// Endpoint identifies the engine socket. Immutable for the process lifetime.
type Endpoint struct {
	Host string
	Port int
}

// DefaultEndpoint returns the well-known local engine endpoint.
func DefaultEndpoint() Endpoint {
	return Endpoint{Host: DefaultHost, Port: DefaultPort}
}

// Addr returns the host:port dial address.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Locator answers the question "is the engine listening right now". It holds
// no connection of its own; a successful probe is closed immediately.
type Locator struct {
	endpoint Endpoint
}

// NewLocator creates a Locator for the given endpoint.
func NewLocator(endpoint Endpoint) *Locator {
	return &Locator{endpoint: endpoint}
}

// Endpoint returns the endpoint this Locator probes.
func (l *Locator) Endpoint() Endpoint {
	return l.endpoint
}

// Reachable reports whether the endpoint currently accepts connections.
func (l *Locator) Reachable(ctx context.Context) bool {
	dialer := net.Dialer{Timeout: probeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", l.endpoint.Addr())
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
