package catalog

import (
	"context"
	"sync"
)

// keyedQueue admits holders of the same key one at a time in arrival order.
// Each waiter blocks on the channel of the holder queued just before it.
type keyedQueue struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func newKeyedQueue() *keyedQueue {
	return &keyedQueue{tails: make(map[string]chan struct{})}
}

// acquire waits for every earlier holder of key and returns the release func.
// A cancelled waiter keeps its place in the chain until its predecessor finishes.
func (q *keyedQueue) acquire(ctx context.Context, key string) (func(), error) {
	done := make(chan struct{})

	q.mu.Lock()
	prev := q.tails[key]
	q.tails[key] = done
	q.mu.Unlock()

	release := func() {
		q.mu.Lock()
		if q.tails[key] == done {
			delete(q.tails, key)
		}
		q.mu.Unlock()
		close(done)
	}

	if prev == nil {
		return release, nil
	}

	select {
	case <-prev:
		return release, nil
	case <-ctx.Done():
		go func() {
			<-prev
			release()
		}()
		return nil, ctx.Err()
	}
}

// pending reports how many keys currently have holders or waiters.
func (q *keyedQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tails)
}
