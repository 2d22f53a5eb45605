package websocket

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/cqstream/errors"
	"github.com/c360/cqstream/post"
)

// fakeMessage is one scripted message. Frames are returned in order; a
// non-nil err is returned after the frames instead of io.EOF.
type fakeMessage struct {
	frames      []string
	err         error
	keepHealthy bool
}

// fakeConn replays scripted messages and blocks once they run out
type fakeConn struct {
	messages  chan fakeMessage
	closed    chan struct{}
	closeOnce sync.Once
	healthy   atomic.Bool
}

func newFakeConn(messages ...fakeMessage) *fakeConn {
	c := &fakeConn{
		messages: make(chan fakeMessage, 64),
		closed:   make(chan struct{}),
	}
	c.healthy.Store(true)
	for _, m := range messages {
		c.messages <- m
	}
	return c
}

func (c *fakeConn) send(frames ...string) {
	c.messages <- fakeMessage{frames: frames}
}

func (c *fakeConn) fail(err error, frames ...string) {
	c.messages <- fakeMessage{frames: frames, err: err}
}

func (c *fakeConn) NextReader() (int, io.Reader, error) {
	select {
	case <-c.closed:
		c.healthy.Store(false)
		return 0, nil, errors.ErrConnectionLost
	case m := <-c.messages:
		if len(m.frames) == 0 && m.err != nil {
			if !m.keepHealthy {
				c.healthy.Store(false)
			}
			return 0, nil, m.err
		}
		return websocket.TextMessage, &fakeReader{conn: c, msg: m}, nil
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() {
		c.healthy.Store(false)
		close(c.closed)
	})
	return nil
}

func (c *fakeConn) Healthy() bool {
	return c.healthy.Load()
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeReader struct {
	conn *fakeConn
	msg  fakeMessage
	cur  []byte
	next int
}

func (r *fakeReader) Read(p []byte) (int, error) {
	for len(r.cur) == 0 {
		if r.next >= len(r.msg.frames) {
			if r.msg.err != nil {
				if !r.msg.keepHealthy {
					r.conn.healthy.Store(false)
				}
				return 0, r.msg.err
			}
			return 0, io.EOF
		}
		r.cur = []byte(r.msg.frames[r.next])
		r.next++
	}
	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	return n, nil
}

// fakeConnector hands out connections from connect; calls counts attempts
type fakeConnector struct {
	calls   atomic.Int32
	connect func(ctx context.Context, call int) (Conn, error)
}

func (f *fakeConnector) Connect(ctx context.Context) (Conn, error) {
	n := int(f.calls.Add(1))
	return f.connect(ctx, n)
}

// connectorOf returns the given connections in order, then blocks until ctx is done
func connectorOf(conns ...*fakeConn) *fakeConnector {
	return &fakeConnector{connect: func(ctx context.Context, call int) (Conn, error) {
		if call <= len(conns) {
			return conns[call-1], nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}}
}

// recorder implements RawObserver, Handler and RequestAPI
type recorder struct {
	mu       sync.Mutex
	raw      []string
	posts    []post.Post
	friend   []map[string]any
	group    []map[string]any
	respond  func(post.Post) (post.Response, error)
	observed chan struct{}
	handled  chan struct{}
	answered chan struct{}
}

func newRecorder() *recorder {
	return &recorder{
		observed: make(chan struct{}, 64),
		handled:  make(chan struct{}, 64),
		answered: make(chan struct{}, 64),
	}
}

func (r *recorder) ObserveRaw(_ context.Context, raw []byte) error {
	r.mu.Lock()
	r.raw = append(r.raw, string(raw))
	r.mu.Unlock()
	r.observed <- struct{}{}
	return nil
}

func (r *recorder) HandlePost(_ context.Context, p post.Post) (post.Response, error) {
	defer func() { r.handled <- struct{}{} }()
	r.mu.Lock()
	r.posts = append(r.posts, p)
	respond := r.respond
	r.mu.Unlock()
	if respond == nil {
		return nil, nil
	}
	return respond(p)
}

func (r *recorder) HandleFriendRequest(_ context.Context, merged map[string]any) error {
	r.mu.Lock()
	r.friend = append(r.friend, merged)
	r.mu.Unlock()
	r.answered <- struct{}{}
	return nil
}

func (r *recorder) HandleGroupRequest(_ context.Context, merged map[string]any) error {
	r.mu.Lock()
	r.group = append(r.group, merged)
	r.mu.Unlock()
	r.answered <- struct{}{}
	return nil
}

func (r *recorder) rawMessages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.raw...)
}

func (r *recorder) handledPosts() []post.Post {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]post.Post(nil), r.posts...)
}

func (r *recorder) calls() (friend, group int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.friend), len(r.group)
}

// waitFor receives n signals from ch or fails the test
func waitFor(t *testing.T, ch <-chan struct{}, n int) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-timeout:
			t.Fatalf("timed out after %d of %d signals", i, n)
		}
	}
}

// assertNoSignal fails if ch fires within a short window
func assertNoSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("unexpected signal")
	case <-time.After(50 * time.Millisecond):
	}
}
