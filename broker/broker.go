package broker

import (
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/go-redis/redis/v8"
)

var ErrPoolClosed = errors.New("broker: pool closed")

// Credentials identify the Redis endpoint shared by every process on the bus.
type Credentials struct {
	Address  string
	Port     int
	Password string
}

func (c Credentials) Addr() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// Envelope is the unit handed to the publisher. Payload is fully encoded;
// the receiver resolves its type from Channel.
type Envelope struct {
	Channel string
	Payload []byte
}

// Session is a single pub/sub connection. *redis.PubSub implements it.
type Session interface {
	PSubscribe(ctx context.Context, patterns ...string) error
	PUnsubscribe(ctx context.Context, patterns ...string) error
	Subscribe(ctx context.Context, channels ...string) error
	Unsubscribe(ctx context.Context, channels ...string) error
	Receive(ctx context.Context) (interface{}, error)
	ReceiveMessage(ctx context.Context) (*redis.Message, error)
	Close() error
}
