package bridge

import (
	"context"
	"sync"
)

// loop serializes backend callbacks onto the goroutine that waits for a
// result. Backends may call back from any goroutine, or synchronously from
// inside the call that started the operation; post never blocks, so both are
// safe. After close, posted events are dropped.
type loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
}

func newLoop() *loop {
	return &loop{wake: make(chan struct{}, 1)}
}

func (l *loop) post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// iterate runs every pending event, blocking until at least one is available.
func (l *loop) iterate(ctx context.Context) error {
	for {
		l.mu.Lock()
		pending := l.queue
		l.queue = nil
		l.mu.Unlock()

		if len(pending) > 0 {
			for _, fn := range pending {
				fn()
			}
			return nil
		}

		select {
		case <-l.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// run drives the loop until done reports true or ctx ends.
func (l *loop) run(ctx context.Context, done func() bool) error {
	defer l.close()
	for !done() {
		if err := l.iterate(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (l *loop) close() {
	l.mu.Lock()
	l.closed = true
	l.queue = nil
	l.mu.Unlock()
}
