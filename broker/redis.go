package broker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/semaphore"

	"github.com/wailbentafat/showbus/logging"
)

var log = logging.For("broker")

const (
	DefaultPoolSize       = 16
	DefaultConnectTimeout = 2 * time.Second

	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

type Options struct {
	// PoolSize bounds the number of live connections. Acquire blocks past it.
	PoolSize int
	// ConnectTimeout applies to dialing and to the startup ping.
	ConnectTimeout time.Duration
	// PublishRetries is the number of extra publish attempts after a failure.
	PublishRetries uint64
}

func (o Options) withDefaults() Options {
	if o.PoolSize <= 0 {
		o.PoolSize = DefaultPoolSize
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.PublishRetries == 0 {
		o.PublishRetries = maxRetries
	}
	return o
}

// Pool owns every physical connection to the broker.
type Pool struct {
	client  *redis.Client
	sem     *semaphore.Weighted
	size    int
	retries uint64

	inUse  atomic.Int64
	closed atomic.Bool
}

// NewPool connects to the broker and pings it once. An unreachable broker
// fails construction.
func NewPool(ctx context.Context, creds Credentials, opts Options) (*Pool, error) {
	opts = opts.withDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:        creds.Addr(),
		Password:    creds.Password,
		PoolSize:    opts.PoolSize,
		DialTimeout: opts.ConnectTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Pool{
		client:  client,
		sem:     semaphore.NewWeighted(int64(opts.PoolSize)),
		size:    opts.PoolSize,
		retries: opts.PublishRetries,
	}, nil
}

// Lease is a connection borrowed from the pool.
type Lease struct {
	conn    *redis.Conn
	release func()
	once    sync.Once
}

func (l *Lease) Conn() *redis.Conn { return l.conn }

// Release returns the connection. Safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(l.release)
}

// Acquire borrows a dedicated connection, blocking while the pool is
// exhausted or until ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	p.inUse.Add(1)

	conn := p.client.Conn(ctx)
	return &Lease{
		conn: conn,
		release: func() {
			if err := conn.Close(); err != nil {
				log.WithError(err).Debug("Connection close error")
			}
			p.inUse.Add(-1)
			p.sem.Release(1)
		},
	}, nil
}

// With runs fn on a leased connection and releases it on every exit path.
func (p *Pool) With(ctx context.Context, fn func(*redis.Conn) error) error {
	lease, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()
	return fn(lease.Conn())
}

// Ping checks the broker over a pooled connection.
func (p *Pool) Ping(ctx context.Context) error {
	return p.With(ctx, func(conn *redis.Conn) error {
		return conn.Ping(ctx).Err()
	})
}

// Publish sends the envelope over a pooled connection with retry capability.
func (p *Pool) Publish(ctx context.Context, env Envelope) error {
	operation := func() error {
		if p.closed.Load() {
			return backoff.Permanent(ErrPoolClosed)
		}
		return p.With(ctx, func(conn *redis.Conn) error {
			return conn.Publish(ctx, env.Channel, env.Payload).Err()
		})
	}

	backoffStrategy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(initialBackoff),
				backoff.WithMaxInterval(maxBackoff),
			),
			p.retries,
		),
		ctx,
	)

	return backoff.RetryNotify(operation, backoffStrategy, func(err error, d time.Duration) {
		log.WithField("channel", env.Channel).Warnf("Retrying Redis publish: %v (next attempt in %s)", err, d)
	})
}

// NewSession opens a pub/sub session. It connects lazily on the first
// subscribe call.
func (p *Pool) NewSession(ctx context.Context) Session {
	return p.client.Subscribe(ctx)
}

// Stats reports leased connections and capacity.
func (p *Pool) Stats() (inUse, size int) {
	return int(p.inUse.Load()), p.size
}

// Close cleans up resources
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.client.Close()
}
