package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Provider = (*Prom)(nil)
var _ Provider = Noop{}

func TestPromCounters(t *testing.T) {
	p := NewProm()

	p.MessageSent("timecode")
	p.MessageSent("timecode")
	p.MessageDropped(DropUnknownChannel)
	p.Reconnected()
	p.SetQueueDepth(3)
	p.SetState(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.Sent.WithLabelValues("timecode")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Dropped.WithLabelValues(DropUnknownChannel)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Reconnects))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.QueueDepth))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.State))
}

func TestPromHandler(t *testing.T) {
	p := NewProm()
	p.MessagePublished("dmx")

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `showbus_messages_published_total{channel="dmx"} 1`)
}
