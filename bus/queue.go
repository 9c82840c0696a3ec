package bus

import (
	"context"
	"sync"

	"github.com/wailbentafat/showbus/broker"
)

// queue is an unbounded FIFO of envelopes with a single consumer.
// push never blocks; pop blocks while the queue is empty.
type queue struct {
	mu     sync.Mutex
	items  []broker.Envelope
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{signal: make(chan struct{}, 1)}
}

// push appends env and returns the new depth.
func (q *queue) push(env broker.Envelope) int {
	q.mu.Lock()
	q.items = append(q.items, env)
	n := len(q.items)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return n
}

func (q *queue) pop(ctx context.Context) (broker.Envelope, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			env := q.items[0]
			q.items[0] = broker.Envelope{}
			q.items = q.items[1:]
			if len(q.items) == 0 {
				q.items = nil
			}
			q.mu.Unlock()
			return env, nil
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return broker.Envelope{}, ctx.Err()
		}
	}
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
