package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/wailbentafat/showbus/broker"
	"github.com/wailbentafat/showbus/metrics"
)

// State of the subscription session.
type State int32

const (
	StateDisconnected State = iota
	StateSubscribing
	StateSubscribed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateSubscribing:
		return "subscribing"
	case StateSubscribed:
		return "subscribed"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

var errUnexpectedReply = errors.New("unexpected subscribe reply")

const teardownTimeout = 500 * time.Millisecond

// subscriber owns the single pub/sub session. Only run moves the state
// machine; other goroutines read the session to issue (un)subscribe calls.
type subscriber struct {
	pool             Pool
	registry         *registry
	dispatch         func(*redis.Message)
	root             string
	reconnectDelay   time.Duration
	sweepInterval    time.Duration
	subscribeTimeout time.Duration
	metrics          metrics.Provider
	log              *logrus.Entry

	mu      sync.RWMutex
	session broker.Session

	state      atomic.Int32
	recovering bool
}

func (s *subscriber) State() State { return State(s.state.Load()) }

func (s *subscriber) setState(st State) {
	s.state.Store(int32(st))
	s.metrics.SetState(int(st))
}

// run keeps a session alive until ctx is done. A broken session is retried
// after a fixed delay.
func (s *subscriber) run(ctx context.Context) {
	retry := backoff.WithContext(backoff.NewConstantBackOff(s.reconnectDelay), ctx)

	err := backoff.RetryNotify(func() error {
		err := s.runSession(ctx)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}, retry, func(err error, d time.Duration) {
		s.log.WithError(err).Errorf("Error in subscription, retrying in %s", d)
	})

	s.setState(StateClosed)
	s.log.WithError(err).Info("Subscription loop stopped")
}

// runSession subscribes and then blocks receiving until the session fails.
// It always returns a non-nil error.
func (s *subscriber) runSession(ctx context.Context) error {
	s.setState(StateSubscribing)
	if s.recovering {
		s.log.Info("Retrying subscription...")
	}

	session := s.pool.NewSession(ctx)
	if !s.attach(ctx, session) {
		session.Close()
		return ctx.Err()
	}

	if err := s.subscribeRoot(ctx, session); err != nil {
		s.fail(session)
		return err
	}

	if s.recovering {
		s.recovering = false
		s.metrics.Reconnected()
		s.log.Info("Subscription recovered")
	} else {
		s.log.WithField("topic", s.root).Info("Subscribed to broker")
	}
	s.setState(StateSubscribed)
	s.resubscribe(ctx)

	for {
		msg, err := session.ReceiveMessage(ctx)
		if err != nil {
			s.fail(session)
			return fmt.Errorf("receive: %w", err)
		}
		s.dispatch(msg)
	}
}

func (s *subscriber) subscribeRoot(ctx context.Context, session broker.Session) error {
	subCtx, cancel := context.WithTimeout(ctx, s.subscribeTimeout)
	defer cancel()

	if err := session.PSubscribe(subCtx, s.root); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.root, err)
	}
	reply, err := session.Receive(subCtx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.root, err)
	}
	if _, ok := reply.(*redis.Subscription); !ok {
		return fmt.Errorf("failed to subscribe to %s: %w: %T", s.root, errUnexpectedReply, reply)
	}
	return nil
}

// attach publishes the session so that stop can close it. It refuses once
// ctx is done, closing the window where stop could miss a new session.
func (s *subscriber) attach(ctx context.Context, session broker.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	s.session = session
	return true
}

// fail tears the session down and marks the next subscribe as a recovery.
func (s *subscriber) fail(session broker.Session) {
	s.mu.Lock()
	if s.session == session {
		s.session = nil
	}
	s.mu.Unlock()

	s.setState(StateDisconnected)
	s.recovering = true

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := session.PUnsubscribe(ctx, s.root); err != nil {
		s.log.WithError(err).Debug("Unsubscribe on broken session failed")
	}
	if err := session.Close(); err != nil {
		s.log.WithError(err).Debug("Closing broken session failed")
	}
}

// current returns the live session, or nil unless subscribed.
func (s *subscriber) current() broker.Session {
	if s.State() != StateSubscribed {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

func (s *subscriber) subscribe(ctx context.Context, channel string) {
	session := s.current()
	if session == nil {
		s.log.WithField("channel", channel).Debug("Not subscribed yet, channel will be picked up by the sweep")
		return
	}
	if err := session.Subscribe(ctx, channel); err != nil {
		s.log.WithError(err).WithField("channel", channel).Warn("Failed to subscribe channel")
	}
}

func (s *subscriber) unsubscribe(ctx context.Context, channel string) {
	session := s.current()
	if session == nil {
		return
	}
	if err := session.Unsubscribe(ctx, channel); err != nil {
		s.log.WithError(err).WithField("channel", channel).Warn("Failed to unsubscribe channel")
	}
}

// resubscribe re-asserts every registered channel on the live session.
// Redundant subscribes are harmless; none are suppressed.
func (s *subscriber) resubscribe(ctx context.Context) {
	session := s.current()
	if session == nil {
		return
	}
	for _, channel := range s.registry.channels() {
		if err := session.Subscribe(ctx, channel); err != nil {
			s.log.WithError(err).WithField("channel", channel).Debug("Sweep subscribe failed")
		}
	}
}

// sweep runs resubscribe on every tick while the session is subscribed.
func (s *subscriber) sweep(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.resubscribe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// stop unblocks a session waiting in ReceiveMessage. ctx must already be
// cancelled so that run does not reconnect.
func (s *subscriber) stop() {
	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()

	if session != nil {
		session.Close()
	}
}
