package bus

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wailbentafat/showbus/broker"
	"github.com/wailbentafat/showbus/metrics"
)

// publisher drains the queue in order over pooled connections. There is
// exactly one per bus, which is what keeps per-channel send order.
type publisher struct {
	pool    Pool
	queue   *queue
	timeout time.Duration
	metrics metrics.Provider
	log     *logrus.Entry
}

func (p *publisher) run(ctx context.Context) {
	for {
		env, err := p.queue.pop(ctx)
		if err != nil {
			p.log.WithError(err).Info("Send queue wait interrupted, sender stopped")
			return
		}
		p.metrics.SetQueueDepth(p.queue.len())
		p.publish(ctx, env)
	}
}

func (p *publisher) publish(ctx context.Context, env broker.Envelope) {
	pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.pool.Publish(pubCtx, env); err != nil {
		p.log.WithError(err).WithField("channel", env.Channel).Error("Failed to publish message, dropping it")
		p.metrics.PublishFailed(env.Channel)
		p.metrics.MessageDropped(metrics.DropPublish)
		return
	}
	p.metrics.MessagePublished(env.Channel)
}
