package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/go-redis/redis/v8"

	"github.com/wailbentafat/showbus/broker"
	"github.com/wailbentafat/showbus/metrics"
)

var (
	errInjected      = errors.New("injected failure")
	errSessionClosed = errors.New("session closed")
)

// take decrements n if positive and reports whether it did.
func take(n *atomic.Int32) bool {
	for {
		v := n.Load()
		if v <= 0 {
			return false
		}
		if n.CompareAndSwap(v, v-1) {
			return true
		}
	}
}

// fakeBroker is an in-memory loopback broker: publishing delivers to every
// session subscribed to the channel.
type fakeBroker struct {
	mu        sync.Mutex
	sessions  []*fakeSession
	published []broker.Envelope

	failSubscribes  atomic.Int32
	failPSubscribes atomic.Int32
	closed          atomic.Bool
}

func (f *fakeBroker) Publish(_ context.Context, env broker.Envelope) error {
	f.mu.Lock()
	f.published = append(f.published, env)
	sessions := append([]*fakeSession(nil), f.sessions...)
	f.mu.Unlock()

	for _, s := range sessions {
		s.deliver(env.Channel, env.Payload, false)
	}
	return nil
}

func (f *fakeBroker) NewSession(context.Context) broker.Session {
	s := &fakeSession{
		broker:   f,
		channels: make(map[string]bool),
		msgs:     make(chan *redis.Message, 4096),
		done:     make(chan struct{}),
	}
	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	return s
}

func (f *fakeBroker) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeBroker) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func (f *fakeBroker) sessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeBroker) last() *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sessions) == 0 {
		return nil
	}
	return f.sessions[len(f.sessions)-1]
}

type fakeSession struct {
	broker *fakeBroker

	mu       sync.Mutex
	channels map[string]bool

	msgs chan *redis.Message
	done chan struct{}
	once sync.Once
}

func (s *fakeSession) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *fakeSession) PSubscribe(context.Context, ...string) error {
	if s.isClosed() {
		return errSessionClosed
	}
	if take(&s.broker.failPSubscribes) {
		return errInjected
	}
	return nil
}

func (s *fakeSession) PUnsubscribe(context.Context, ...string) error { return nil }

func (s *fakeSession) Subscribe(_ context.Context, channels ...string) error {
	if s.isClosed() {
		return errSessionClosed
	}
	if take(&s.broker.failSubscribes) {
		return errInjected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range channels {
		s.channels[c] = true
	}
	return nil
}

func (s *fakeSession) Unsubscribe(_ context.Context, channels ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range channels {
		delete(s.channels, c)
	}
	return nil
}

func (s *fakeSession) Receive(context.Context) (interface{}, error) {
	if s.isClosed() {
		return nil, errSessionClosed
	}
	return &redis.Subscription{Kind: "psubscribe", Channel: DefaultRootTopic, Count: 1}, nil
}

func (s *fakeSession) ReceiveMessage(ctx context.Context) (*redis.Message, error) {
	select {
	case msg := <-s.msgs:
		return msg, nil
	case <-s.done:
		return nil, errSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeSession) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *fakeSession) subscribed(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[channel]
}

// deliver queues a message if the session subscribed its channel, or
// unconditionally when force is set.
func (s *fakeSession) deliver(channel string, payload []byte, force bool) {
	if s.isClosed() || (!force && !s.subscribed(channel)) {
		return
	}
	s.msgs <- &redis.Message{Channel: channel, Payload: string(payload)}
}

// recorder counts the metrics the tests assert on.
type recorder struct {
	metrics.Noop

	mu         sync.Mutex
	dropped    map[string]int
	failed     int
	reconnects int
}

func newRecorder() *recorder {
	return &recorder{dropped: make(map[string]int)}
}

func (r *recorder) MessageDropped(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped[reason]++
}

func (r *recorder) HandlerFailed(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
}

func (r *recorder) Reconnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconnects++
}

func (r *recorder) droppedFor(reason string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped[reason]
}

func (r *recorder) handlerFailures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

func (r *recorder) reconnectCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reconnects
}
