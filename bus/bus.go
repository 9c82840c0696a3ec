// Package bus carries typed messages between the processes of a show.
//
// Components register a Handler per channel and send values on channels
// they have registered. Values are encoded with the handler's codec,
// compressed, queued and published to Redis by a single sender goroutine.
// A subscription session delivers messages for registered channels back to
// their handlers and reconnects on its own after broker failures.
//
// Both sides must register the same channel with the same payload type: the
// wire body carries no type information.
package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wailbentafat/showbus/broker"
	"github.com/wailbentafat/showbus/metrics"
)

const (
	DefaultRootTopic        = "showmanager"
	DefaultReconnectDelay   = time.Second
	DefaultSweepInterval    = 100 * time.Millisecond
	DefaultPublishTimeout   = 5 * time.Second
	DefaultSubscribeTimeout = 2 * time.Second
)

// Pool is the broker side of the bus. *broker.Pool implements it.
type Pool interface {
	Publish(ctx context.Context, env broker.Envelope) error
	NewSession(ctx context.Context) broker.Session
	Close() error
}

type options struct {
	rootTopic        string
	reconnectDelay   time.Duration
	sweepInterval    time.Duration
	publishTimeout   time.Duration
	subscribeTimeout time.Duration
	pool             broker.Options
	metrics          metrics.Provider
}

type Option func(*options)

// WithRootTopic sets the topic pattern-subscribed at session start.
func WithRootTopic(topic string) Option {
	return func(o *options) { o.rootTopic = topic }
}

func WithReconnectDelay(d time.Duration) Option {
	return func(o *options) { o.reconnectDelay = d }
}

func WithSweepInterval(d time.Duration) Option {
	return func(o *options) { o.sweepInterval = d }
}

// WithPublishTimeout bounds one envelope's publish, retries included.
func WithPublishTimeout(d time.Duration) Option {
	return func(o *options) { o.publishTimeout = d }
}

func WithSubscribeTimeout(d time.Duration) Option {
	return func(o *options) { o.subscribeTimeout = d }
}

func WithPoolOptions(po broker.Options) Option {
	return func(o *options) { o.pool = po }
}

func WithMetrics(p metrics.Provider) Option {
	return func(o *options) { o.metrics = p }
}

func buildOptions(opts []Option) options {
	o := options{
		rootTopic:        DefaultRootTopic,
		reconnectDelay:   DefaultReconnectDelay,
		sweepInterval:    DefaultSweepInterval,
		publishTimeout:   DefaultPublishTimeout,
		subscribeTimeout: DefaultSubscribeTimeout,
		metrics:          metrics.Noop{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Bus is the message bus of one process.
type Bus struct {
	id       string
	root     string
	pool     Pool
	registry *registry
	queue    *queue
	sub      *subscriber
	metrics  metrics.Provider
	log      *logrus.Entry

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

// New connects to the broker and starts the bus. It fails only when the
// broker is unreachable at startup; later outages are recovered in the
// background.
func New(ctx context.Context, creds broker.Credentials, opts ...Option) (*Bus, error) {
	o := buildOptions(opts)
	pool, err := broker.NewPool(ctx, creds, o.pool)
	if err != nil {
		return nil, fmt.Errorf("bus: %w", err)
	}
	return start(pool, o), nil
}

// NewWithPool starts a bus on an existing pool. The bus owns the pool and
// closes it on Close.
func NewWithPool(pool Pool, opts ...Option) *Bus {
	return start(pool, buildOptions(opts))
}

func start(pool Pool, o options) *Bus {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	logger := log.WithField("node", id)

	b := &Bus{
		id:       id,
		root:     o.rootTopic,
		pool:     pool,
		registry: &registry{},
		queue:    newQueue(),
		metrics:  o.metrics,
		log:      logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	b.sub = &subscriber{
		pool:             pool,
		registry:         b.registry,
		dispatch:         b.dispatch,
		root:             o.rootTopic,
		reconnectDelay:   o.reconnectDelay,
		sweepInterval:    o.sweepInterval,
		subscribeTimeout: o.subscribeTimeout,
		metrics:          o.metrics,
		log:              logger,
	}
	pub := &publisher{
		pool:    pool,
		queue:   b.queue,
		timeout: o.publishTimeout,
		metrics: o.metrics,
		log:     logger,
	}

	b.wg.Add(3)
	go func() {
		defer b.wg.Done()
		b.sub.run(ctx)
	}()
	go func() {
		defer b.wg.Done()
		b.sub.sweep(ctx)
	}()
	go func() {
		defer b.wg.Done()
		pub.run(ctx)
	}()

	return b
}

// ID identifies this bus instance in logs.
func (b *Bus) ID() string { return b.id }

func (b *Bus) State() State { return b.sub.State() }

// Handled reports whether a handler is registered for channel.
func (b *Bus) Handled(channel string) bool {
	_, ok := b.registry.get(channel)
	return ok
}

// Channels lists registered channels in sorted order.
func (b *Bus) Channels() []string { return b.registry.channels() }

// Pending is the number of envelopes waiting to be published.
func (b *Bus) Pending() int { return b.queue.len() }

// RegisterHandler installs h for channel, replacing any previous handler,
// and subscribes the channel right away. If that subscribe does not go
// through, the next sweep will.
func (b *Bus) RegisterHandler(channel string, h Handler) {
	logger := b.log.WithField("channel", channel)
	if channel == "" || h == nil {
		logger.Warn("Ignoring handler registration without channel or handler")
		return
	}
	if channel == b.root {
		logger.Warn("Channel equals the root topic, messages may be delivered twice")
	}

	if prev, replaced := b.registry.put(channel, h); replaced {
		logger.Debugf("Replaced %s handler with %s", prev.Type(), h.Type())
	} else {
		logger.Debugf("Registered %s handler", h.Type())
	}
	b.sub.subscribe(b.ctx, channel)
}

func (b *Bus) UnregisterHandler(channel string) {
	if !b.registry.remove(channel) {
		return
	}
	b.log.WithField("channel", channel).Debug("Unregistered handler")
	b.sub.unsubscribe(b.ctx, channel)
}

// Send encodes v with the channel's handler and queues it for publishing.
// It never blocks and never fails: a channel without a local handler, or a
// value the handler cannot encode, is logged and dropped.
func (b *Bus) Send(channel string, v any) {
	logger := b.log.WithField("channel", channel)
	if b.closed.Load() {
		logger.Warn("Tried to send on a closed bus")
		return
	}

	h, ok := b.registry.get(channel)
	if !ok {
		logger.Warnf("Tried to send unknown message type: %T", v)
		b.metrics.MessageDropped(metrics.DropNoHandler)
		return
	}

	data, err := h.Encode(v)
	if err != nil {
		logger.WithError(err).Error("Failed to encode message")
		b.metrics.MessageDropped(metrics.DropEncode)
		return
	}

	depth := b.queue.push(broker.Envelope{Channel: channel, Payload: data})
	b.metrics.MessageSent(channel)
	b.metrics.SetQueueDepth(depth)
}

// dispatch runs on the subscription goroutine for every received message.
func (b *Bus) dispatch(msg *redis.Message) {
	logger := b.log.WithField("channel", msg.Channel)

	h, ok := b.registry.get(msg.Channel)
	if !ok {
		logger.Warn("Received message on unknown channel")
		b.metrics.MessageDropped(metrics.DropUnknownChannel)
		return
	}

	v, err := h.Decode([]byte(msg.Payload))
	if err != nil {
		logger.WithError(err).Error("Failed to decode message")
		b.metrics.MessageDropped(metrics.DropDecode)
		return
	}

	if err := invoke(h, v); err != nil {
		logger.WithError(err).Error("Failed to handle message")
		b.metrics.HandlerFailed(msg.Channel)
		return
	}
	b.metrics.MessageReceived(msg.Channel)
}

func invoke(h Handler, v any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(v)
}

// Close stops the background goroutines and closes the pool. Envelopes
// still queued are discarded.
func (b *Bus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.cancel()
		b.sub.stop()
		b.wg.Wait()
		err = b.pool.Close()
	})
	return err
}
