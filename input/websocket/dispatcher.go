package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/c360/cqstream/errors"
	"github.com/c360/cqstream/pkg/worker"
	"github.com/c360/cqstream/post"
)

// RawObserver sees every complete message before it is decoded, including
// empty and malformed ones.
type RawObserver interface {
	ObserveRaw(ctx context.Context, raw []byte) error
}

// Handler processes a decoded post. A non-empty post.RequestResponse returned
// for a request post is forwarded to the RequestAPI.
type Handler interface {
	HandlePost(ctx context.Context, p post.Post) (post.Response, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, p post.Post) (post.Response, error)

// HandlePost calls f
func (f HandlerFunc) HandlePost(ctx context.Context, p post.Post) (post.Response, error) {
	return f(ctx, p)
}

// RequestAPI answers friend and group add requests. The map is the original
// post with the handler's response fields laid over it.
type RequestAPI interface {
	HandleFriendRequest(ctx context.Context, merged map[string]any) error
	HandleGroupRequest(ctx context.Context, merged map[string]any) error
}

// Dispatch outcomes, used as the status label
const (
	statusOK           = "ok"
	statusEmpty        = "empty"
	statusDecodeError  = "decode_error"
	statusHandlerError = "handler_error"
	statusAPIError     = "api_error"
	statusPanic        = "panic"
)

// maxLoggedContent bounds the raw content attached to log lines
const maxLoggedContent = 512

type dispatchTask struct {
	id  string
	raw []byte
}

// Dispatcher runs each complete message through observe, decode, handle and
// correlate without blocking the reader. One Dispatcher serves one listening
// session.
type Dispatcher struct {
	observer RawObserver
	handler  Handler
	api      RequestAPI
	logger   *slog.Logger
	metrics  *Metrics

	// Exactly one of group or pool is set
	group *errgroup.Group
	pool  *worker.Pool[dispatchTask]

	inFlight  atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	closeOnce sync.Once
}

type dispatcherDeps struct {
	observer RawObserver
	handler  Handler
	api      RequestAPI
	logger   *slog.Logger
	metrics  *Metrics
	poolOpts []worker.Option[dispatchTask]
}

// newDispatcher creates a dispatcher. maxConcurrent <= 0 gives one goroutine
// per message; otherwise a worker pool with queueSize slots is used and ctx
// bounds its workers.
func newDispatcher(ctx context.Context, deps dispatcherDeps, maxConcurrent, queueSize int) (*Dispatcher, error) {
	d := &Dispatcher{
		observer: deps.observer,
		handler:  deps.handler,
		api:      deps.api,
		logger:   deps.logger,
		metrics:  deps.metrics,
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}

	if maxConcurrent <= 0 {
		d.group = new(errgroup.Group)
		return d, nil
	}

	pool, err := worker.NewPool(maxConcurrent, queueSize, func(ctx context.Context, t dispatchTask) error {
		d.process(ctx, t.id, t.raw)
		return nil
	}, deps.poolOpts...)
	if err != nil {
		return nil, errors.WrapFatal(err, "Dispatcher", "newDispatcher", "create dispatch pool")
	}
	if err := pool.Start(ctx); err != nil {
		return nil, errors.WrapFatal(err, "Dispatcher", "newDispatcher", "start dispatch pool")
	}
	d.pool = pool
	return d, nil
}

// Dispatch schedules raw for processing and returns immediately. With a
// bounded pool a full queue drops the message.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) {
	id := uuid.NewString()

	if d.pool != nil {
		if err := d.pool.Submit(dispatchTask{id: id, raw: raw}); err != nil {
			d.logger.Warn("Dropping message",
				"dispatch_id", id, "size", len(raw), "error", err)
			d.metrics.dropped()
			d.metrics.countError("queue_full")
		}
		return
	}

	d.group.Go(func() error {
		d.process(ctx, id, raw)
		return nil
	})
}

// Close waits up to timeout for in-flight dispatches. No Dispatch calls may
// follow.
func (d *Dispatcher) Close(timeout time.Duration) error {
	var err error
	d.closeOnce.Do(func() {
		if d.pool != nil {
			err = d.pool.Stop(timeout)
			return
		}

		done := make(chan struct{})
		go func() {
			_ = d.group.Wait()
			close(done)
		}()

		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			err = fmt.Errorf("%d dispatches still running after %s", d.inFlight.Load(), timeout)
		}
	})
	if err != nil {
		return errors.WrapTransient(err, "Dispatcher", "Close", "wait for in-flight dispatches")
	}
	return nil
}

// InFlight reports dispatches currently running
func (d *Dispatcher) InFlight() int64 {
	return d.inFlight.Load()
}

func (d *Dispatcher) process(ctx context.Context, id string, raw []byte) {
	start := time.Now()
	d.inFlight.Add(1)
	d.metrics.inFlight(1)
	defer func() {
		d.inFlight.Add(-1)
		d.metrics.inFlight(-1)
	}()

	status := d.run(ctx, id, raw)

	d.processed.Add(1)
	if status != statusOK && status != statusEmpty {
		d.failed.Add(1)
	}
	d.metrics.dispatched(status, time.Since(start))
}

// run executes the dispatch steps for one message and reports the outcome
func (d *Dispatcher) run(ctx context.Context, id string, raw []byte) (status string) {
	d.observe(ctx, id, raw)

	if len(raw) == 0 {
		return statusEmpty
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Dispatch panicked",
				"dispatch_id", id, "panic", r, "content", truncate(raw))
			d.metrics.countError("panic")
			status = statusPanic
		}
	}()

	p, err := post.Decode(raw)
	if err != nil {
		d.logger.Warn("Failed to decode post",
			"dispatch_id", id, "error", err, "content", truncate(raw))
		d.metrics.decodeError()
		return statusDecodeError
	}

	if d.handler == nil {
		return statusOK
	}

	resp, err := d.handler.HandlePost(ctx, p)
	if err != nil {
		d.logger.Error("Handler failed",
			"dispatch_id", id, "post_type", p.PostType(), "error", err,
			"error_class", errors.Classify(err).String(), "content", truncate(raw))
		d.metrics.countError("handler")
		return statusHandlerError
	}

	if err := d.correlate(ctx, id, p, raw, resp); err != nil {
		d.logger.Error("Failed to answer request",
			"dispatch_id", id, "error", err,
			"error_class", errors.Classify(err).String(), "content", truncate(raw))
		d.metrics.countError("api")
		return statusAPIError
	}

	return statusOK
}

func (d *Dispatcher) observe(ctx context.Context, id string, raw []byte) {
	if d.observer == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Raw observer panicked", "dispatch_id", id, "panic", r)
			d.metrics.countError("observer")
		}
	}()

	if err := d.observer.ObserveRaw(ctx, raw); err != nil {
		d.logger.Warn("Raw observer failed", "dispatch_id", id, "error", err)
		d.metrics.countError("observer")
	}
}

// correlate forwards a request response to the action API. Anything other
// than a non-empty response to a request post is ignored.
func (d *Dispatcher) correlate(ctx context.Context, id string, p post.Post, raw []byte, resp post.Response) error {
	if p.PostType() != post.TypeRequest {
		return nil
	}
	rr, ok := resp.(post.RequestResponse)
	if !ok || rr.IsEmpty() {
		return nil
	}
	if d.api == nil {
		d.logger.Warn("Request response dropped, no request API configured", "dispatch_id", id)
		return nil
	}

	merged, err := post.Merge(raw, rr)
	if err != nil {
		return err
	}

	switch rr.RequestType() {
	case post.RequestFriend:
		return d.api.HandleFriendRequest(ctx, merged)
	case post.RequestGroup:
		return d.api.HandleGroupRequest(ctx, merged)
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: request type %q", errors.ErrInvalidData, rr.RequestType()),
			"Dispatcher", "correlate", "route request response")
	}
}

func truncate(raw []byte) string {
	if len(raw) <= maxLoggedContent {
		return string(raw)
	}
	return string(raw[:maxLoggedContent]) + "..."
}
