// Package showevents defines the show-control messages exchanged between
// the primary controller and its followers, and registers them on a bus.
package showevents

import (
	"fmt"
	"time"

	"github.com/wailbentafat/showbus/bus"
	"github.com/wailbentafat/showbus/codec"
)

const (
	ChannelTimecode = "showmanager:timecode"
	ChannelDMXState = "showmanager:dmx-state"
	ChannelCue      = "showmanager:cue"
	ChannelAudio    = "showmanager:audio"
)

type Timecode struct {
	Hour      int `json:"hour" msgpack:"h"`
	Min       int `json:"min" msgpack:"m"`
	Sec       int `json:"sec" msgpack:"s"`
	Frame     int `json:"frame" msgpack:"f"`
	Framerate int `json:"framerate" msgpack:"r"`
}

func (t Timecode) String() string {
	return fmt.Sprintf("%02d:%02d:%02d/%02d", t.Hour, t.Min, t.Sec, t.Frame)
}

// Next advances by one frame, rolling over seconds, minutes and hours.
func (t Timecode) Next() Timecode {
	rate := t.Framerate
	if rate <= 0 {
		rate = 25
	}
	t.Frame++
	if t.Frame >= rate {
		t.Frame = 0
		t.Sec++
	}
	if t.Sec >= 60 {
		t.Sec = 0
		t.Min++
	}
	if t.Min >= 60 {
		t.Min = 0
		t.Hour = (t.Hour + 1) % 24
	}
	return t
}

type DMXRemoteState string

const (
	DMXDisabled  DMXRemoteState = "disabled"
	DMXIdle      DMXRemoteState = "idle"
	DMXForceIdle DMXRemoteState = "force_idle"
	DMXPlaying   DMXRemoteState = "playing"
	DMXPaused    DMXRemoteState = "paused"
	DMXStopped   DMXRemoteState = "stopped"
)

// DMXStateChange is emitted when the DMX remote control changes state.
type DMXStateChange struct {
	State    DMXRemoteState `json:"state" msgpack:"state"`
	Previous DMXRemoteState `json:"previous" msgpack:"previous"`
}

type CueTrigger struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	At   Timecode  `json:"at"`
	Sent time.Time `json:"sent"`
}

type AudioState struct {
	Track   string  `json:"track"`
	Playing bool    `json:"playing"`
	Paused  bool    `json:"paused"`
	Volume  float64 `json:"volume"`
}

// Handlers holds the callbacks a process wants for each show message.
// A nil callback still registers the channel so the process may send on it.
type Handlers struct {
	Timecode func(Timecode) error
	DMXState func(DMXStateChange) error
	Cue      func(CueTrigger) error
	Audio    func(AudioState) error
}

// Register installs every show channel on b. Both sides of the bus must
// call it so they agree on the payload types.
func Register(b *bus.Bus, h Handlers) {
	bus.Register(b, ChannelTimecode, codec.MsgPack[Timecode](), h.Timecode)
	bus.Register(b, ChannelDMXState, codec.MsgPack[DMXStateChange](), h.DMXState)
	bus.Register(b, ChannelCue, codec.JSON[CueTrigger](), h.Cue)
	bus.Register(b, ChannelAudio, codec.JSON[AudioState](), h.Audio)
}
