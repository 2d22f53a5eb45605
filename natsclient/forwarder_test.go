package natsclient

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{subject, data})
	return nil
}

func TestForwarder_Subject(t *testing.T) {
	f := NewForwarder(&fakePublisher{}, "bot.events.")

	tests := []struct {
		raw  string
		want string
	}{
		{`{"post_type":"message"}`, "bot.events.message"},
		{`{"post_type":"meta_event"}`, "bot.events.meta_event"},
		{`{"post_type":"a.b*>"}`, "bot.events.a_b__"},
		{`{"time":1}`, "bot.events.unknown"},
		{`not json`, "bot.events.unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, f.Subject([]byte(tt.raw)), tt.raw)
	}

	assert.Equal(t, DefaultSubjectPrefix+".notice", NewForwarder(nil, "").Subject([]byte(`{"post_type":"notice"}`)))
}

func TestForwarder_ObserveRaw(t *testing.T) {
	pub := &fakePublisher{}
	f := NewForwarder(pub, "p")

	require.NoError(t, f.ObserveRaw(context.Background(), []byte(`{"post_type":"request"}`)))
	require.NoError(t, f.ObserveRaw(context.Background(), []byte(`garbage`)))
	require.NoError(t, f.ObserveRaw(context.Background(), nil))

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "p.request", pub.msgs[0].subject)
	assert.Equal(t, "p.unknown", pub.msgs[1].subject)
	assert.Equal(t, "garbage", string(pub.msgs[1].data))

	forwarded, failed := f.Stats()
	assert.Equal(t, int64(2), forwarded)
	assert.Zero(t, failed)
}

func TestForwarder_PublishError(t *testing.T) {
	boom := stderrors.New("boom")
	f := NewForwarder(&fakePublisher{err: boom}, "p")

	err := f.ObserveRaw(context.Background(), []byte(`{"post_type":"message"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	_, failed := f.Stats()
	assert.Equal(t, int64(1), failed)
}
