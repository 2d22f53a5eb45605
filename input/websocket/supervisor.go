package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/c360/cqstream/errors"
	"github.com/c360/cqstream/pkg/retry"
)

// supervisorState is the read loop's position in its state machine
type supervisorState int32

const (
	stateReading supervisorState = iota
	stateFaulted
	stateReconnecting
	stateCancelled
)

func (s supervisorState) String() string {
	switch s {
	case stateReading:
		return "reading"
	case stateFaulted:
		return "faulted"
	case stateReconnecting:
		return "reconnecting"
	case stateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// connHolder boxes a Conn so it can live in an atomic.Pointer
type connHolder struct {
	conn Conn
}

// supervisor owns the connection for one listening session. run is the only
// writer of current; other goroutines only load it.
type supervisor struct {
	connector   Connector
	policy      retry.Policy
	reassembler *Reassembler
	bufferSize  int
	dispatch    func(ctx context.Context, raw []byte)
	logger      *slog.Logger
	metrics     *Metrics

	// onState and onError report to the owning listener
	onState func(supervisorState)
	onError func(errorType string, err error)
	onMsg   func()

	current atomic.Pointer[connHolder]
	state   atomic.Int32
}

func newSupervisor(conn Conn, connector Connector, policy retry.Policy, cfg Config) *supervisor {
	s := &supervisor{
		connector:   connector,
		policy:      policy,
		reassembler: NewReassembler(cfg.MaxMessageSize),
		bufferSize:  cfg.readBufferSize(),
		logger:      slog.Default(),
		onState:     func(supervisorState) {},
		onError:     func(string, error) {},
		onMsg:       func() {},
	}
	s.current.Store(&connHolder{conn: conn})
	return s
}

// available reports whether the current connection is usable
func (s *supervisor) available() bool {
	h := s.current.Load()
	return h != nil && h.conn.Healthy()
}

func (s *supervisor) setState(state supervisorState) {
	s.state.Store(int32(state))
	s.onState(state)
}

// closeCurrent closes the current connection without giving up the handle,
// which unblocks a pending read.
func (s *supervisor) closeCurrent() {
	if h := s.current.Load(); h != nil {
		_ = h.conn.Close()
	}
}

// release drops the handle for good
func (s *supervisor) release() {
	if h := s.current.Swap(nil); h != nil {
		_ = h.conn.Close()
	}
	s.metrics.disconnected()
}

// run reads until ctx is cancelled or a bounded retry policy is exhausted.
// It returns nil on cancellation.
func (s *supervisor) run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, s.closeCurrent)
	defer stop()
	defer s.release()

	// Dispatches outlive cancellation so in-flight work can finish
	dispatchCtx := context.WithoutCancel(ctx)

	reader := newChunkReader(s.current.Load().conn, s.bufferSize)
	failures := 0
	s.setState(stateReading)

	for {
		if ctx.Err() != nil {
			s.setState(stateCancelled)
			return nil
		}

		h := s.current.Load()
		if !h.conn.Healthy() {
			if s.policy.Exhausted(failures) {
				err := errors.WrapFatal(
					fmt.Errorf("%w: %d reconnect attempts", errors.ErrMaxRetriesExceeded, failures),
					"Listener", "run", "reconnect to event endpoint")
				s.onError("reconnect_exhausted", err)
				s.logger.Error("Giving up on event endpoint", "attempts", failures, "error", err)
				s.setState(stateCancelled)
				return err
			}

			s.setState(stateReconnecting)
			if err := retry.Sleep(ctx, s.policy.Delay(failures)); err != nil {
				continue
			}

			conn, ok := s.reconnect(ctx, failures+1)
			if !ok {
				failures++
				continue
			}
			failures = 0
			reader = newChunkReader(conn, s.bufferSize)
			s.setState(stateReading)
			continue
		}

		chunk, err := reader.Next()
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			s.setState(stateFaulted)
			s.onError("read_error", err)
			s.logger.Warn("Read from event stream failed",
				"error", err, "pending_bytes", s.reassembler.Pending(), "connection_healthy", h.conn.Healthy())
			s.reassembler.Reset()
			reader.reset()
			continue
		}
		if s.state.Load() != int32(stateReading) {
			s.setState(stateReading)
		}

		msg, complete, err := s.reassembler.Feed(chunk)
		if err != nil {
			s.onError("message_too_large", err)
			s.metrics.dropped()
			s.logger.Warn("Dropping oversized message", "error", err)
			continue
		}
		if !complete {
			continue
		}

		s.onMsg()
		s.metrics.received()
		s.dispatch(dispatchCtx, msg)
	}
}

// reconnect replaces the current connection. A failure is logged and counted
// and leaves the old, closed handle in place.
func (s *supervisor) reconnect(ctx context.Context, attempt int) (Conn, bool) {
	s.closeCurrent()
	s.metrics.disconnected()
	s.metrics.reconnectAttempt()

	conn, err := s.connector.Connect(ctx)
	if err != nil {
		if !errors.IsCancelled(err) {
			s.onError("connect_error", err)
			s.logger.Warn("Reconnect failed", "attempt", attempt, "error", err)
		}
		return nil, false
	}
	if ctx.Err() != nil {
		_ = conn.Close()
		return nil, false
	}

	s.current.Store(&connHolder{conn: conn})
	s.reassembler.Reset()
	s.metrics.connected()
	s.logger.Info("Reconnected to event endpoint", "attempt", attempt)
	return conn, true
}
