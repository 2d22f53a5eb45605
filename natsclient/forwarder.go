package natsclient

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/c360/cqstream/errors"
	"github.com/c360/cqstream/post"
)

// DefaultSubjectPrefix is used when a Forwarder is created without a prefix
const DefaultSubjectPrefix = "cqstream.posts"

// Publisher is the subset of Client used by Forwarder
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Forwarder republishes every raw post to NATS on <prefix>.<post_type>.
// Posts whose type cannot be read go to <prefix>.unknown, so malformed
// payloads are still forwarded.
type Forwarder struct {
	pub    Publisher
	prefix string

	forwarded atomic.Int64
	failed    atomic.Int64
}

// NewForwarder creates a Forwarder publishing through pub
func NewForwarder(pub Publisher, prefix string) *Forwarder {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Forwarder{pub: pub, prefix: prefix}
}

// ObserveRaw publishes raw. Empty payloads are skipped.
func (f *Forwarder) ObserveRaw(ctx context.Context, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}

	if err := f.pub.Publish(ctx, f.Subject(raw), raw); err != nil {
		f.failed.Add(1)
		return errors.Wrap(err, "Forwarder", "ObserveRaw", "publish raw post")
	}
	f.forwarded.Add(1)
	return nil
}

// Subject returns the subject raw is published on
func (f *Forwarder) Subject(raw []byte) string {
	token := subjectToken(post.PeekType(raw))
	if token == "" {
		token = "unknown"
	}
	return f.prefix + "." + token
}

// Stats returns the number of forwarded and failed publishes
func (f *Forwarder) Stats() (forwarded, failed int64) {
	return f.forwarded.Load(), f.failed.Load()
}

// subjectToken maps s to a single NATS subject token
func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
