// Command follower mirrors the primary controller: it registers the same
// show channels and reacts to what the primary sends.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wailbentafat/showbus/bus"
	"github.com/wailbentafat/showbus/config"
	"github.com/wailbentafat/showbus/logging"
	"github.com/wailbentafat/showbus/metrics"
	"github.com/wailbentafat/showbus/server"
	"github.com/wailbentafat/showbus/showevents"
)

var log = logging.For("follower")

func main() {
	configPath := flag.String("config", "", "Path to YAML config (defaults and SHOWBUS_* env if empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logging.Init(cfg.Log.Level)

	var provider metrics.Provider = metrics.Noop{}
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		prom := metrics.NewProm()
		provider, metricsHandler = prom, prom.Handler()
	}

	b, err := bus.New(context.Background(), cfg.Redis.Credentials(), cfg.BusOptions(provider)...)
	if err != nil {
		log.Fatalf("Failed to create message bus: %v", err)
	}
	log.WithField("node", b.ID()).Info("Follower connected, waiting for messages...")

	var last showevents.Timecode
	showevents.Register(b, showevents.Handlers{
		Timecode: func(tc showevents.Timecode) error {
			if tc.Sec != last.Sec {
				log.Debugf("Timecode %s", tc)
			}
			last = tc
			return nil
		},
		Cue: func(c showevents.CueTrigger) error {
			log.WithField("cue", c.ID).Infof("Cue %q at %s (%s late)", c.Name, c.At, time.Since(c.Sent).Round(time.Millisecond))
			b.Send(showevents.ChannelAudio, showevents.AudioState{Track: c.Name, Playing: true, Volume: 1})
			return nil
		},
	})

	srv := server.NewServer(cfg.Metrics.ListenAddr, b, metricsHandler)
	go srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("Shutdown signal received. Cleaning up.")

	srv.Shutdown(context.Background(), b)
}
