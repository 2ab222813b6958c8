package runqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolKickClaimsAndRunsQueuedWork(t *testing.T) {
	s := NewStore()
	_, err := s.Enqueue(Run{ConversationID: "c1"})
	require.NoError(t, err)

	sink := &recordingSink{}
	ex := NewExecutor(ExecutorConfig{
		Store:     s,
		Generator: scriptedGenerator{chunks: []StreamChunk{{Content: "hi", Done: true}}},
		Sink:      sink,
	})
	pool := NewPool(ex, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	pool.Kick("c1")

	require.Eventually(t, func() bool {
		return len(sink.successes) == 1
	}, time.Second, time.Millisecond, "worker should claim and run the kicked conversation")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("pool did not stop after context cancellation")
	}
}

func TestPoolKickIsNonBlockingWhenBufferFull(t *testing.T) {
	ex := NewExecutor(ExecutorConfig{Store: NewStore(), Generator: scriptedGenerator{}})
	pool := NewPool(ex, 1)
	pool.kicks = make(chan string) // unbuffered, so Kick must never block

	done := make(chan struct{})
	go func() {
		pool.Kick("c1")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Kick blocked on a full/unbuffered channel with no receiver")
	}
}
