package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wailbentafat/showbus/broker"
	"github.com/wailbentafat/showbus/metrics"
)

func TestQueueFIFO(t *testing.T) {
	q := newQueue()
	for i := 0; i < 100; i++ {
		assert.Equal(t, i+1, q.push(broker.Envelope{Channel: "c", Payload: []byte{byte(i)}}))
	}

	for i := 0; i < 100; i++ {
		env, err := q.pop(context.Background())
		require.NoError(t, err)
		assert.Equal(t, byte(i), env.Payload[0])
	}
	assert.Equal(t, 0, q.len())
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	q := newQueue()
	got := make(chan broker.Envelope)
	go func() {
		env, err := q.pop(context.Background())
		if err == nil {
			got <- env
		}
	}()

	select {
	case <-got:
		t.Fatal("pop returned on an empty queue")
	case <-time.After(30 * time.Millisecond):
	}

	q.push(broker.Envelope{Channel: "late"})
	select {
	case env := <-got:
		assert.Equal(t, "late", env.Channel)
	case <-time.After(time.Second):
		t.Fatal("pop was not woken by push")
	}
}

func TestQueuePopInterrupted(t *testing.T) {
	q := newQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.pop(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := newQueue()
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				q.push(broker.Envelope{Channel: "c"})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 2000, q.len())
}

type failingPool struct {
	fakeBroker
	err error
}

func (f *failingPool) Publish(ctx context.Context, env broker.Envelope) error {
	if env.Channel == "bad" {
		return f.err
	}
	return f.fakeBroker.Publish(ctx, env)
}

func TestPublisherDropsFailedEnvelopesAndStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pool := &failingPool{err: errors.New("broker down")}
	rec := newRecorder()
	q := newQueue()
	p := &publisher{pool: pool, queue: q, timeout: time.Second, metrics: rec, log: log}

	q.push(broker.Envelope{Channel: "bad"})
	q.push(broker.Envelope{Channel: "good"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.run(ctx)
	}()

	require.Eventually(t, func() bool { return pool.publishedCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, rec.droppedFor(metrics.DropPublish))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sender loop did not stop")
	}
}
