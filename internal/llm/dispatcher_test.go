package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	name  string
	text  string
	err   error
	block bool // block until the attempt context expires
	calls atomic.Int32

	gotMessages []Message
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) Query(ctx context.Context, messages []Message) (string, error) {
	b.calls.Add(1)
	b.gotMessages = messages
	if b.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if b.err != nil {
		return "", b.err
	}
	return b.text, nil
}

func TestFirstBackendSuccessShortCircuits(t *testing.T) {
	a := &fakeBackend{name: "a", text: "answer from a"}
	b := &fakeBackend{name: "b", text: "answer from b"}
	d := NewDispatcher(a, b)

	got, err := d.Query(context.Background(), "hi", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "answer from a", got)
	assert.EqualValues(t, 1, a.calls.Load())
	assert.EqualValues(t, 0, b.calls.Load())
}

func TestFallbackOnError(t *testing.T) {
	a := &fakeBackend{name: "a", err: errors.New("quota exceeded")}
	b := &fakeBackend{name: "b", text: "answer from b"}
	d := NewDispatcher(a, b)

	got, err := d.Query(context.Background(), "hi", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "answer from b", got)
	assert.EqualValues(t, 1, a.calls.Load())
	assert.EqualValues(t, 1, b.calls.Load())
}

func TestFallbackOnTimeoutThenError(t *testing.T) {
	a := &fakeBackend{name: "a", block: true}
	b := &fakeBackend{name: "b", err: errors.New("500")}
	c := &fakeBackend{name: "c", text: "answer from c"}
	d := NewDispatcher(a, b, c)

	got, err := d.Query(context.Background(), "hi", nil, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "answer from c", got)
	assert.EqualValues(t, 1, a.calls.Load())
	assert.EqualValues(t, 1, b.calls.Load())
	assert.EqualValues(t, 1, c.calls.Load())
}

func TestAllBackendsFailed(t *testing.T) {
	a := &fakeBackend{name: "a", err: errors.New("down")}
	b := &fakeBackend{name: "b", block: true}
	d := NewDispatcher(a, b)

	_, err := d.Query(context.Background(), "hi", nil, 20*time.Millisecond)

	var allFailed *AllFailedError
	require.ErrorAs(t, err, &allFailed)
	require.Len(t, allFailed.Attempts, 2)
	assert.Equal(t, "a", allFailed.Attempts[0].Backend)
	assert.Equal(t, "b", allFailed.Attempts[1].Backend)
	assert.ErrorIs(t, allFailed.Attempts[1].Err, context.DeadlineExceeded)
}

func TestNoBackendsConfigured(t *testing.T) {
	d := NewDispatcher()

	_, err := d.Query(context.Background(), "hi", nil, time.Second)
	assert.ErrorIs(t, err, ErrNoBackends)

	var allFailed *AllFailedError
	assert.False(t, errors.As(err, &allFailed), "config error must be distinct from all-failed")
}

func TestContextSerialization(t *testing.T) {
	b := &fakeBackend{name: "b", text: "ok"}
	d := NewDispatcher(b)

	_, err := d.Query(context.Background(), "summarize this", map[string]string{
		"screen_content": "quarterly numbers",
		"active_app":     "Firefox",
	}, time.Second)
	require.NoError(t, err)

	require.Len(t, b.gotMessages, 2)
	assert.Equal(t, RoleSystem, b.gotMessages[0].Role)
	assert.Equal(t, "Current context:\nactive_app: Firefox\nscreen_content: quarterly numbers", b.gotMessages[0].Content)
	assert.Equal(t, RoleUser, b.gotMessages[1].Role)
	assert.Equal(t, "summarize this", b.gotMessages[1].Content)
}

func TestCallerCancellationStopsFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &fakeBackend{name: "a", err: errors.New("down")}
	b := &fakeBackend{name: "b", text: "never reached"}
	d := NewDispatcher(a, b)

	_, err := d.Query(ctx, "hi", nil, time.Second)

	var allFailed *AllFailedError
	require.ErrorAs(t, err, &allFailed)
	assert.EqualValues(t, 0, b.calls.Load())
}
