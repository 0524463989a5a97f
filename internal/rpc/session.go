// ABOUTME: Session wraps one JSON-RPC connection to the engine with lifecycle state.
// ABOUTME: Exposes Request/Notify primitives and routes inbound notifications to a Handler.

package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"go.lsp.dev/jsonrpc2"
)

// ErrNotConnected indicates an operation was attempted without a live
// engine connection. Callers see this immediately; no queuing happens.
var ErrNotConnected = errors.New("not connected to engine")

// State is the lifecycle state of a Session.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateStopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Handler receives inbound notifications and requests from the engine.
// Returning jsonrpc2.ErrMethodNotFound produces a standard method-not-found
// reply; any other error is replied to the engine and logged.
type Handler func(ctx context.Context, method string, params []byte) error

// Session owns one transport stream to the engine. Exactly one Session is
// current at any time; the Supervisor disposes a dead Session fully before
// building its replacement. Notifications on one Session are delivered in
// send order; nothing is guaranteed across a reconnect.
type Session struct {
	conn   jsonrpc2.Conn
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	observers []func(State)
}

// Dial connects to the engine at addr and returns a running Session.
// handler receives engine-originated notifications; it may be nil, in which
// case every inbound method is answered with method-not-found.
func Dial(ctx context.Context, addr string, handler Handler, logger *slog.Logger) (*Session, error) {
	var dialer net.Dialer
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing engine at %s: %w", addr, err)
	}
	return NewSession(ctx, netConn, handler, logger), nil
}

// NewSession builds a Session on top of an established stream. Used by Dial
// and directly by tests that connect Sessions over in-memory pipes.
func NewSession(ctx context.Context, rwc io.ReadWriteCloser, handler Handler, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		logger: logger.With("component", "session"),
		state:  StateStarting,
	}

	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(rwc))
	s.conn = conn
	conn.Go(ctx, s.dispatch(handler))
	s.setState(StateRunning)

	// Watch for transport termination. setState(StateStopped) is the only
	// path observers learn about a dead connection.
	go func() {
		<-conn.Done()
		s.setState(StateStopped)
	}()

	return s
}

// dispatch adapts a Handler to the jsonrpc2 handler shape.
func (s *Session) dispatch(handler Handler) jsonrpc2.Handler {
	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		if handler == nil {
			return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
		}
		if err := handler(ctx, req.Method(), req.Params()); err != nil {
			if errors.Is(err, jsonrpc2.ErrMethodNotFound) {
				return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
			}
			s.logger.Error("inbound notification failed",
				"method", req.Method(),
				"error", err,
			)
			return reply(ctx, nil, err)
		}
		return reply(ctx, nil, nil)
	}
}

// Request sends a request and waits for the typed response. There is no
// implicit timeout; callers bound latency through ctx.
func (s *Session) Request(ctx context.Context, method string, params, result any) error {
	if s.State() != StateRunning {
		return ErrNotConnected
	}
	if _, err := s.conn.Call(ctx, method, params, result); err != nil {
		return fmt.Errorf("request %s: %w", method, err)
	}
	return nil
}

// Notify sends a fire-and-forget notification. Ordering is preserved
// relative to other notifications on this Session.
func (s *Session) Notify(ctx context.Context, method string, params any) error {
	if s.State() != StateRunning {
		return ErrNotConnected
	}
	if err := s.conn.Notify(ctx, method, params); err != nil {
		return fmt.Errorf("notify %s: %w", method, err)
	}
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnStateChange registers an observer invoked on every state transition.
func (s *Session) OnStateChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Done is closed when the underlying connection has terminated.
func (s *Session) Done() <-chan struct{} {
	return s.conn.Done()
}

// Err reports the terminal error of the connection, if any.
func (s *Session) Err() error {
	return s.conn.Err()
}

// Close tears the connection down. The Done channel closes and observers
// see the transition to StateStopped.
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	if s.state == next || s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = next
	observers := make([]func(State), len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	s.logger.Debug("session state changed", "from", prev.String(), "to", next.String())
	for _, fn := range observers {
		fn(next)
	}
}
