package slackbot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDispatcherProcessesEvents(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	handle := func(ctx context.Context, ev Event) error {
		mu.Lock()
		seen[ev.Timestamp()] = true
		mu.Unlock()
		if ev.Timestamp() == "2" {
			return errors.New("boom")
		}
		if ev.Timestamp() == "3" {
			panic("handler panic")
		}
		return nil
	}

	d := NewDispatcher(handle, 2, 10, zaptest.NewLogger(t), nil)
	for _, ts := range []string{"1", "2", "3", "4"} {
		require.NoError(t, d.Submit(MentionEvent{Channel: "C1", TimeStamp: ts}))
	}
	d.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 4)
	assert.Equal(t, 0, d.Len())
}

func TestDispatcherBacklog(t *testing.T) {
	d := NewDispatcher(func(context.Context, Event) error { return nil }, 1, 2, zaptest.NewLogger(t), nil)

	require.NoError(t, d.Submit(MentionEvent{TimeStamp: "1"}))
	require.NoError(t, d.Submit(MentionEvent{TimeStamp: "2"}))
	assert.ErrorIs(t, d.Submit(MentionEvent{TimeStamp: "3"}), ErrBacklogFull)

	d.Start(context.Background())
	require.NoError(t, d.Stop(context.Background()))
	assert.ErrorIs(t, d.Submit(MentionEvent{TimeStamp: "4"}), ErrDispatcherClosed)
}

func TestDispatcherDrainsAfterStartContextDone(t *testing.T) {
	var mu sync.Mutex
	var handled []string
	release := make(chan struct{})
	handle := func(ctx context.Context, ev Event) error {
		<-release
		if err := ctx.Err(); err != nil {
			return err
		}
		mu.Lock()
		handled = append(handled, ev.Timestamp())
		mu.Unlock()
		return nil
	}

	root, cancelRoot := context.WithCancel(context.Background())
	d := NewDispatcher(handle, 1, 10, zaptest.NewLogger(t), nil)
	d.Start(root)
	for _, ts := range []string{"1", "2", "3"} {
		require.NoError(t, d.Submit(MentionEvent{Channel: "C1", TimeStamp: ts}))
	}

	cancelRoot()
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"1", "2", "3"}, handled)
}

func TestDispatcherStopDeadlineCancelsHandlers(t *testing.T) {
	cancelled := make(chan struct{})
	handle := func(ctx context.Context, ev Event) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}

	d := NewDispatcher(handle, 1, 10, zaptest.NewLogger(t), nil)
	d.Start(context.Background())
	require.NoError(t, d.Submit(MentionEvent{TimeStamp: "1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Stop(ctx), context.DeadlineExceeded)

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("handler context was not cancelled")
	}
}
