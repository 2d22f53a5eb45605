package handler

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/c360/cqstream/post"
)

// Category handlers. Only request handlers can answer the post.
type (
	MessageFunc func(ctx context.Context, m *post.Message) error
	NoticeFunc  func(ctx context.Context, n *post.Notice) error
	RequestFunc func(ctx context.Context, r *post.Request) (post.RequestResponse, error)
	MetaFunc    func(ctx context.Context, m *post.MetaEvent) error
)

// Mux routes posts to per-category handlers. Categories without a handler
// are counted and ignored. Register handlers before the Mux is in use.
type Mux struct {
	message []MessageFunc
	notice  []NoticeFunc
	request RequestFunc
	meta    []MetaFunc
	logger  *slog.Logger

	unhandled atomic.Int64
}

// NewMux creates an empty Mux
func NewMux(logger *slog.Logger) *Mux {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mux{logger: logger.With("component", "handler")}
}

// OnMessage adds a message handler. Handlers run in registration order and
// the first error stops the chain.
func (m *Mux) OnMessage(fn MessageFunc) *Mux {
	m.message = append(m.message, fn)
	return m
}

// OnNotice adds a notice handler
func (m *Mux) OnNotice(fn NoticeFunc) *Mux {
	m.notice = append(m.notice, fn)
	return m
}

// OnRequest sets the request handler. There is only one since its answer
// goes back to the server.
func (m *Mux) OnRequest(fn RequestFunc) *Mux {
	m.request = fn
	return m
}

// OnMeta adds a meta event handler
func (m *Mux) OnMeta(fn MetaFunc) *Mux {
	m.meta = append(m.meta, fn)
	return m
}

// Unhandled reports posts no handler was registered for
func (m *Mux) Unhandled() int64 {
	return m.unhandled.Load()
}

// HandlePost dispatches p by category
func (m *Mux) HandlePost(ctx context.Context, p post.Post) (post.Response, error) {
	switch v := p.(type) {
	case *post.Message:
		return nil, runAll(ctx, m, v, m.message)
	case *post.Notice:
		return nil, runAll(ctx, m, v, m.notice)
	case *post.MetaEvent:
		return nil, runAll(ctx, m, v, m.meta)
	case *post.Request:
		if m.request == nil {
			m.skip(p)
			return nil, nil
		}
		resp, err := m.request(ctx, v)
		if err != nil || resp == nil {
			return nil, err
		}
		return resp, nil
	default:
		m.skip(p)
		return nil, nil
	}
}

func runAll[T any, F ~func(context.Context, T) error](ctx context.Context, m *Mux, p T, fns []F) error {
	if len(fns) == 0 {
		m.unhandled.Add(1)
		return nil
	}
	for _, fn := range fns {
		if err := fn(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mux) skip(p post.Post) {
	m.unhandled.Add(1)
	m.logger.Debug("No handler for post", "post_type", p.PostType())
}
