// Command showbus runs the primary show controller: it drives timecode and
// cue triggers onto the bus for follower processes.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/wailbentafat/showbus/bus"
	"github.com/wailbentafat/showbus/config"
	"github.com/wailbentafat/showbus/logging"
	"github.com/wailbentafat/showbus/metrics"
	"github.com/wailbentafat/showbus/server"
	"github.com/wailbentafat/showbus/showevents"
)

var log = logging.For("primary")

const (
	framerate   = 25
	cueInterval = 10 * time.Second
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (defaults and SHOWBUS_* env if empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logging.Init(cfg.Log.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var provider metrics.Provider = metrics.Noop{}
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		prom := metrics.NewProm()
		provider, metricsHandler = prom, prom.Handler()
	}

	b, err := bus.New(ctx, cfg.Redis.Credentials(), cfg.BusOptions(provider)...)
	if err != nil {
		log.Fatalf("Failed to create message bus: %v", err)
	}
	log.WithField("node", b.ID()).Infof("Connected to Redis at %s", cfg.Redis.Credentials().Addr())

	showevents.Register(b, showevents.Handlers{
		DMXState: func(c showevents.DMXStateChange) error {
			log.Infof("DMX remote: %s -> %s", c.Previous, c.State)
			return nil
		},
		Audio: func(a showevents.AudioState) error {
			log.Debugf("Audio %s playing=%t", a.Track, a.Playing)
			return nil
		},
	})

	srv := server.NewServer(cfg.Metrics.ListenAddr, b, metricsHandler)
	go srv.Start()

	go runShow(ctx, b)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("Shutdown signal received")

	cancel()
	srv.Shutdown(context.Background(), b)
}

// runShow sends one timecode per frame and a cue trigger every cueInterval.
func runShow(ctx context.Context, b *bus.Bus) {
	frames := time.NewTicker(time.Second / framerate)
	defer frames.Stop()
	cues := time.NewTicker(cueInterval)
	defer cues.Stop()

	tc := showevents.Timecode{Framerate: framerate}
	cue := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-frames.C:
			tc = tc.Next()
			b.Send(showevents.ChannelTimecode, tc)
		case <-cues.C:
			cue++
			b.Send(showevents.ChannelCue, showevents.CueTrigger{
				ID:   uuid.NewString(),
				Name: "cue " + tc.String(),
				At:   tc,
				Sent: time.Now(),
			})
		}
	}
}
