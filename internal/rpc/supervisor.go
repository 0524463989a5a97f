// ABOUTME: Reconnection supervisor — polls until the engine listens, builds a Session,
// ABOUTME: and rebuilds it after every drop until explicitly shut down.

package rpc

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is how often the supervisor probes an unreachable
// engine. There is no overall deadline: engine startup time is unbounded in
// development workflows, so the poll runs until the context is cancelled.
const DefaultPollInterval = 500 * time.Millisecond

// Supervisor owns the single current Session. It is the only component that
// creates or disposes Sessions; everything else borrows the current one
// through Current or EnsureConnected.
type Supervisor struct {
	locator  *Locator
	interval time.Duration
	logger   *slog.Logger
	handler  Handler

	mu      sync.RWMutex
	current *Session
}

// NewSupervisor creates a Supervisor polling at the given interval.
// A non-positive interval selects DefaultPollInterval.
func NewSupervisor(locator *Locator, interval time.Duration, logger *slog.Logger) *Supervisor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		locator:  locator,
		interval: interval,
		logger:   logger.With("component", "supervisor"),
	}
}

// SetHandler installs the inbound notification handler wired into every
// Session the supervisor builds. Must be called before Run.
func (s *Supervisor) SetHandler(handler Handler) {
	s.handler = handler
}

// Run drives the connect/monitor/reconnect loop until ctx is cancelled.
// Connect failures are logged and retried at the poll interval; they are
// never surfaced as terminal errors. Run always returns ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !s.locator.Reachable(ctx) {
			s.logger.Debug("engine not reachable, waiting", "addr", s.locator.Endpoint().Addr())
			if !s.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}

		sess, err := Dial(ctx, s.locator.Endpoint().Addr(), s.handler, s.logger)
		if err != nil {
			s.logger.Warn("engine connect failed", "error", err)
			if !s.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}

		s.setCurrent(sess)
		s.logger.Info("connected to engine", "addr", s.locator.Endpoint().Addr())

		select {
		case <-ctx.Done():
			s.clearCurrent()
			sess.Close()
			return ctx.Err()
		case <-sess.Done():
		}

		// Dispose the dead session fully before building a replacement:
		// clear the handle first so nobody can issue requests on it, then
		// release its resources.
		s.clearCurrent()
		sess.Close()
		s.logger.Warn("engine connection lost, reconnecting", "error", sess.Err())
	}
}

// Current returns the live Session, or ErrNotConnected when none exists.
// Requests issued through a Session obtained here fail fast instead of
// queuing behind a reconnect.
func (s *Supervisor) Current() (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.current.State() != StateRunning {
		return nil, ErrNotConnected
	}
	return s.current, nil
}

// EnsureConnected returns the live Session, waiting through reconnect cycles
// until one exists. Idempotent: with a running Session it returns
// immediately. Cancellable only through ctx.
func (s *Supervisor) EnsureConnected(ctx context.Context) (*Session, error) {
	for {
		if sess, err := s.Current(); err == nil {
			return sess, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.interval):
		}
	}
}

func (s *Supervisor) setCurrent(sess *Session) {
	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()
}

func (s *Supervisor) clearCurrent() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

func (s *Supervisor) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.interval):
		return true
	}
}
