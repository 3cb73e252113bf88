package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_RunsEventsInPostOrder(t *testing.T) {
	l := newLoop()
	var got []int

	// Posted before anyone waits, like a backend answering synchronously.
	l.post(func() { got = append(got, 1) })
	l.post(func() { got = append(got, 2) })

	go l.post(func() { got = append(got, 3) })

	err := l.run(context.Background(), func() bool { return len(got) == 3 })
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestLoop_ConcurrentPosters(t *testing.T) {
	l := newLoop()
	count := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.post(func() { count++ })
		}()
	}

	require.NoError(t, l.run(context.Background(), func() bool { return count == 50 }))
	wg.Wait()
}

func TestLoop_ContextEndsWait(t *testing.T) {
	l := newLoop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.run(ctx, func() bool { return false })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoop_DropsEventsAfterClose(t *testing.T) {
	l := newLoop()
	ran := false

	require.NoError(t, l.run(context.Background(), func() bool { return true }))
	l.post(func() { ran = true })

	assert.Empty(t, l.queue)
	assert.False(t, ran)
}
