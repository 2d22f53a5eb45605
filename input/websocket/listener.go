package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/cqstream/errors"
	"github.com/c360/cqstream/health"
	"github.com/c360/cqstream/metric"
	"github.com/c360/cqstream/pkg/retry"
	"github.com/c360/cqstream/pkg/tlsutil"
	"github.com/c360/cqstream/pkg/worker"
)

// State is the listener's externally visible lifecycle state
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateListening
	StateFaultedReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateFaultedReconnecting:
		return "faulted_reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Option configures a Listener
type Option func(*Listener) error

// WithConnector replaces the default websocket dialer
func WithConnector(c Connector) Option {
	return func(l *Listener) error {
		if c == nil {
			return errors.WrapInvalid(fmt.Errorf("nil connector"), "Listener", "WithConnector", "set connector")
		}
		l.connector = c
		return nil
	}
}

// WithHandler sets the handler that receives decoded posts
func WithHandler(h Handler) Option {
	return func(l *Listener) error {
		l.handler = h
		return nil
	}
}

// WithRawObserver sets the observer that sees every raw message first
func WithRawObserver(o RawObserver) Option {
	return func(l *Listener) error {
		l.observer = o
		return nil
	}
}

// WithRequestAPI sets the API used to answer friend and group requests
func WithRequestAPI(api RequestAPI) Option {
	return func(l *Listener) error {
		l.api = api
		return nil
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Listener) error {
		if logger != nil {
			l.logger = logger
		}
		return nil
	}
}

// WithMetrics registers listener metrics with registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(l *Listener) error {
		l.registry = registry
		return nil
	}
}

// WithRetryPolicy overrides the reconnect policy from the config
func WithRetryPolicy(p retry.Policy) Option {
	return func(l *Listener) error {
		l.policy = p
		return nil
	}
}

// session is one run of the read loop
type session struct {
	ctx        context.Context
	sup        *supervisor
	dispatcher *Dispatcher
	loopDone   chan struct{}
	done       chan struct{}
	startedAt  time.Time
	err        error // set before done is closed
}

func (s *session) loopFinished() bool {
	select {
	case <-s.loopDone:
		return true
	default:
		return false
	}
}

// Listener keeps a connection to the event endpoint and dispatches every
// event it receives. Stop it by cancelling the context given to
// StartListening.
type Listener struct {
	config    Config
	connector Connector
	handler   Handler
	observer  RawObserver
	api       RequestAPI
	policy    retry.Policy
	logger    *slog.Logger
	registry  *metric.MetricsRegistry
	metrics   *Metrics

	// Lifecycle management
	lifecycleMu sync.Mutex
	session     atomic.Pointer[session]
	state       atomic.Int32

	// Statistics
	messagesReceived atomic.Int64
	errorCount       atomic.Int64
	lastError        atomic.Value // string
	lastActivity     atomic.Value // time.Time
}

// New creates a listener. Unless WithConnector is given, cfg.URL must be a
// valid ws or wss endpoint.
func New(cfg Config, opts ...Option) (*Listener, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Listener{
		config: cfg,
		policy: cfg.Reconnect.Policy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	l.logger = l.logger.With("component", "listener")

	if l.connector == nil {
		endpoint, err := NewEndpoint(cfg.URL, cfg.AccessToken)
		if err != nil {
			return nil, err
		}
		tlsConfig, err := tlsutil.LoadClientTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		connector := NewDialConnector(endpoint, cfg, l.logger)
		if tlsConfig != nil {
			connector.WithTLSConfig(tlsConfig)
		}
		l.connector = connector
		l.logger = l.logger.With("endpoint", endpoint.String())
	}

	metrics, err := newMetrics(l.registry, "listener")
	if err != nil {
		return nil, errors.WrapFatal(err, "Listener", "New", "register metrics")
	}
	l.metrics = metrics

	return l, nil
}

// StartListening connects and starts the read loop in the background. The
// first connection attempt is synchronous and its error is returned. The loop
// runs until ctx is cancelled.
func (l *Listener) StartListening(ctx context.Context) error {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()

	if s := l.session.Load(); s != nil {
		if s.ctx.Err() == nil && !s.loopFinished() {
			return errors.WrapInvalid(errors.ErrAlreadyListening, "Listener", "StartListening", "start read loop")
		}
		// A cancelled session may still be draining its dispatches
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	prev := State(l.state.Load())
	l.state.Store(int32(StateStarting))

	conn, err := l.connector.Connect(ctx)
	if err != nil {
		l.state.Store(int32(prev))
		l.trackError("connect_error", err)
		if errors.IsCancelled(err) {
			return err
		}
		return errors.Wrap(err, "Listener", "StartListening", "connect to event endpoint")
	}

	var poolOpts []worker.Option[dispatchTask]
	if l.registry != nil {
		poolOpts = append(poolOpts, worker.WithMetrics[dispatchTask](l.registry, "dispatch"))
	}
	dispatcher, err := newDispatcher(context.WithoutCancel(ctx), dispatcherDeps{
		observer: l.observer,
		handler:  l.handler,
		api:      l.api,
		logger:   l.logger,
		metrics:  l.metrics,
		poolOpts: poolOpts,
	}, l.config.MaxConcurrentDispatch, l.config.DispatchQueueSize)
	if err != nil {
		_ = conn.Close()
		l.state.Store(int32(prev))
		return err
	}

	s := &session{
		ctx:        ctx,
		dispatcher: dispatcher,
		startedAt:  time.Now(),
		loopDone:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	sup := newSupervisor(conn, l.connector, l.policy, l.config)
	sup.logger = l.logger
	sup.metrics = l.metrics
	sup.dispatch = dispatcher.Dispatch
	sup.onState = func(st supervisorState) { l.supervisorState(s, st) }
	sup.onError = l.trackError
	sup.onMsg = l.recordMessage
	s.sup = sup

	l.session.Store(s)
	l.state.Store(int32(StateListening))
	l.metrics.connected()
	l.logger.Info("Listening for events")

	go l.runSession(s)
	return nil
}

func (l *Listener) runSession(s *session) {
	err := s.sup.run(s.ctx)
	close(s.loopDone)

	if cerr := s.dispatcher.Close(l.config.shutdownTimeout()); cerr != nil {
		l.logger.Warn("In-flight dispatches did not finish", "error", cerr)
	}

	if l.session.Load() == s {
		l.state.Store(int32(StateStopped))
	}
	s.err = err
	if err != nil {
		l.logger.Error("Listener stopped", "error", err)
	} else {
		l.logger.Info("Listener stopped")
	}
	close(s.done)
}

// supervisorState maps read loop states onto the listener state. Stale
// sessions are ignored.
func (l *Listener) supervisorState(s *session, st supervisorState) {
	if l.session.Load() != s {
		return
	}
	switch st {
	case stateReading:
		l.state.Store(int32(StateListening))
	case stateFaulted, stateReconnecting:
		l.state.Store(int32(StateFaultedReconnecting))
	case stateCancelled:
		l.state.Store(int32(StateStopped))
	}
}

// IsListening reports whether the read loop is still running
func (l *Listener) IsListening() bool {
	s := l.session.Load()
	return s != nil && !s.loopFinished()
}

// IsAvailable reports whether the current connection is usable. It is
// false while reconnecting.
func (l *Listener) IsAvailable() bool {
	s := l.session.Load()
	return s != nil && s.sup.available()
}

// State returns the lifecycle state
func (l *Listener) State() State {
	return State(l.state.Load())
}

// Wait blocks until the read loop and its in-flight dispatches have finished
// or ctx is done. It returns the loop's terminal error, if any.
func (l *Listener) Wait(ctx context.Context) error {
	s := l.session.Load()
	if s == nil {
		return nil
	}
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health reports listener health
func (l *Listener) Health() health.Status {
	s := l.session.Load()
	listening := s != nil && !s.loopFinished()
	available := s != nil && s.sup.available()

	probe := health.Probe{
		Healthy:           listening,
		Degraded:          listening && !available,
		ErrorCount:        int(l.errorCount.Load()),
		MessagesProcessed: l.messagesReceived.Load(),
	}
	if listening {
		probe.Uptime = time.Since(s.startedAt)
	}
	if v, ok := l.lastError.Load().(string); ok {
		probe.LastError = v
	}
	if v, ok := l.lastActivity.Load().(time.Time); ok {
		probe.LastActivity = v
	}

	return health.FromProbe("listener", probe)
}

func (l *Listener) trackError(errorType string, err error) {
	l.errorCount.Add(1)
	if err != nil {
		l.lastError.Store(err.Error())
	}
	l.metrics.countError(errorType)
}

func (l *Listener) recordMessage() {
	l.messagesReceived.Add(1)
	l.lastActivity.Store(time.Now())
}
