package stream

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorderSink captures emitted records in order.
type recorderSink struct {
	mu     sync.Mutex
	events []any
	err    error
}

func (r *recorderSink) WriteEvent(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, v)
	return nil
}

func (r *recorderSink) all() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.events...)
}

func TestChannel_ProgressThrottling(t *testing.T) {
	t.Run("suppresses gains smaller than the step", func(t *testing.T) {
		sink := &recorderSink{}
		ch := NewChannel(sink)
		defer ch.Close()

		for _, p := range []int{1, 2, 3, 4, 5, 6, 9, 10, 11, 42} {
			ch.Progress("a.jpg", 1, 1, p)
		}

		var got []int
		for _, e := range sink.all() {
			got = append(got, e.(FileProgress).Progress)
		}
		assert.Equal(t, []int{5, 10, 42}, got)
	})

	t.Run("percent 100 always goes through", func(t *testing.T) {
		sink := &recorderSink{}
		ch := NewChannel(sink)
		defer ch.Close()

		ch.Progress("a.jpg", 1, 1, 98)
		ch.Progress("a.jpg", 1, 1, 100)

		events := sink.all()
		require.Len(t, events, 2)
		assert.Equal(t, 100, events[1].(FileProgress).Progress)
	})

	t.Run("strictly increasing, duplicates dropped", func(t *testing.T) {
		sink := &recorderSink{}
		ch := NewChannel(sink)
		defer ch.Close()

		ch.Progress("a.jpg", 1, 1, 50)
		ch.Progress("a.jpg", 1, 1, 50)
		ch.Progress("a.jpg", 1, 1, 40)
		ch.Progress("a.jpg", 1, 1, 100)
		ch.Progress("a.jpg", 1, 1, 100)

		var got []int
		for _, e := range sink.all() {
			got = append(got, e.(FileProgress).Progress)
		}
		assert.Equal(t, []int{50, 100}, got)
	})

	t.Run("files throttle independently", func(t *testing.T) {
		sink := &recorderSink{}
		ch := NewChannel(sink)
		defer ch.Close()

		ch.Progress("a.jpg", 1, 2, 50)
		ch.Progress("b.jpg", 2, 2, 52)

		require.Len(t, sink.all(), 2)
	})
}

func TestChannel_ClientGone(t *testing.T) {
	t.Run("context cancellation flips the channel", func(t *testing.T) {
		sink := &recorderSink{}
		ch := NewChannel(sink)
		defer ch.Close()

		gone := make(chan struct{})
		ch.OnClientGone(func() { close(gone) })

		ctx, cancel := context.WithCancel(context.Background())
		ch.Watch(ctx)
		cancel()

		select {
		case <-gone:
		case <-time.After(time.Second):
			t.Fatal("client-gone handler never ran")
		}
		assert.True(t, ch.ClientGone())
	})

	t.Run("emits after gone are silent no-ops", func(t *testing.T) {
		sink := &recorderSink{}
		ch := NewChannel(sink)
		defer ch.Close()

		ctx, cancel := context.WithCancel(context.Background())
		ch.Watch(ctx)
		cancel()

		require.Eventually(t, ch.ClientGone, time.Second, time.Millisecond)

		ch.Progress("a.jpg", 1, 1, 50)
		ch.FileError("a.jpg", "boom")
		ch.Done()

		assert.Empty(t, sink.all())
	})

	t.Run("handler does not run after Done", func(t *testing.T) {
		sink := &recorderSink{}
		ch := NewChannel(sink)
		defer ch.Close()

		var ran bool
		ch.OnClientGone(func() { ran = true })

		ch.Done()

		ctx, cancel := context.WithCancel(context.Background())
		ch.Watch(ctx)
		cancel()

		time.Sleep(10 * time.Millisecond)
		assert.False(t, ran)
	})

	t.Run("sink failure counts as gone", func(t *testing.T) {
		sink := &recorderSink{err: errors.New("broken pipe")}
		ch := NewChannel(sink)
		defer ch.Close()

		ch.Progress("a.jpg", 1, 1, 50)
		assert.True(t, ch.ClientGone())
	})
}

func TestChannel_Done(t *testing.T) {
	t.Run("emitted at most once", func(t *testing.T) {
		sink := &recorderSink{}
		ch := NewChannel(sink)
		defer ch.Close()

		ch.Done()
		ch.Done()

		events := sink.all()
		require.Len(t, events, 1)
		assert.Equal(t, Done{Message: "Upload complete"}, events[0])
	})

	t.Run("close is idempotent and stops emits", func(t *testing.T) {
		sink := &recorderSink{}
		ch := NewChannel(sink)

		ch.Close()
		ch.Close()
		ch.Progress("a.jpg", 1, 1, 100)

		assert.Empty(t, sink.all())
	})
}

func TestSSEWriter(t *testing.T) {
	t.Run("frames records as data lines", func(t *testing.T) {
		rec := httptest.NewRecorder()
		w, err := NewSSEWriter(rec)
		require.NoError(t, err)

		require.NoError(t, w.WriteEvent(FileProgress{File: "a.jpg", FileIndex: 1, TotalFiles: 2, Progress: 40}))
		require.NoError(t, w.WriteEvent(Done{Message: "Upload complete"}))

		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
		assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

		body := rec.Body.String()
		lines := strings.Split(strings.TrimSpace(body), "\n\n")
		require.Len(t, lines, 2)
		assert.Equal(t, `data: {"file":"a.jpg","fileIndex":1,"totalFiles":2,"progress":40}`, lines[0])
		assert.Equal(t, `data: {"message":"Upload complete"}`, lines[1])
	})
}
