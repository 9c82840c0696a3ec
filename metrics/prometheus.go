package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons.
const (
	DropUnknownChannel = "unknown_channel"
	DropDecode         = "decode"
	DropEncode         = "encode"
	DropNoHandler      = "no_handler"
	DropPublish        = "publish"
)

type Prom struct {
	reg *prometheus.Registry

	Sent          *prometheus.CounterVec
	Published     *prometheus.CounterVec
	PublishErrors *prometheus.CounterVec
	Received      *prometheus.CounterVec
	Dropped       *prometheus.CounterVec
	HandlerErrors *prometheus.CounterVec
	Reconnects    prometheus.Counter
	QueueDepth    prometheus.Gauge
	State         prometheus.Gauge
}

func NewProm() *Prom {
	reg := prometheus.NewRegistry()
	p := &Prom{
		reg:           reg,
		Sent:          prometheus.NewCounterVec(prometheus.CounterOpts{Name: "showbus_messages_sent_total", Help: "Messages accepted by Send"}, []string{"channel"}),
		Published:     prometheus.NewCounterVec(prometheus.CounterOpts{Name: "showbus_messages_published_total", Help: "Messages published to the broker"}, []string{"channel"}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "showbus_publish_failures_total", Help: "Messages dropped after publish retries"}, []string{"channel"}),
		Received:      prometheus.NewCounterVec(prometheus.CounterOpts{Name: "showbus_messages_received_total", Help: "Messages dispatched to a local handler"}, []string{"channel"}),
		Dropped:       prometheus.NewCounterVec(prometheus.CounterOpts{Name: "showbus_messages_dropped_total", Help: "Messages dropped, by reason"}, []string{"reason"}),
		HandlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "showbus_handler_errors_total", Help: "Handler callbacks that failed"}, []string{"channel"}),
		Reconnects:    prometheus.NewCounter(prometheus.CounterOpts{Name: "showbus_reconnects_total", Help: "Subscription sessions recovered after an error"}),
		QueueDepth:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "showbus_queue_depth", Help: "Envelopes waiting in the publish queue"}),
		State:         prometheus.NewGauge(prometheus.GaugeOpts{Name: "showbus_subscription_state", Help: "Subscription state code"}),
	}
	reg.MustRegister(p.Sent, p.Published, p.PublishErrors, p.Received, p.Dropped, p.HandlerErrors, p.Reconnects, p.QueueDepth, p.State)
	return p
}

func (p *Prom) Handler() http.Handler { return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{}) }

func (p *Prom) Registry() *prometheus.Registry { return p.reg }

// Implement Provider
func (p *Prom) MessageSent(channel string)      { p.Sent.WithLabelValues(channel).Inc() }
func (p *Prom) MessagePublished(channel string) { p.Published.WithLabelValues(channel).Inc() }
func (p *Prom) PublishFailed(channel string)    { p.PublishErrors.WithLabelValues(channel).Inc() }
func (p *Prom) MessageReceived(channel string)  { p.Received.WithLabelValues(channel).Inc() }
func (p *Prom) MessageDropped(reason string)    { p.Dropped.WithLabelValues(reason).Inc() }
func (p *Prom) HandlerFailed(channel string)    { p.HandlerErrors.WithLabelValues(channel).Inc() }
func (p *Prom) Reconnected()                    { p.Reconnects.Inc() }
func (p *Prom) SetQueueDepth(depth int)         { p.QueueDepth.Set(float64(depth)) }
func (p *Prom) SetState(state int)              { p.State.Set(float64(state)) }
