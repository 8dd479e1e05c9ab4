// Package oto is the real audio backend of the metronome, on top of
// github.com/ebitengine/oto/v3. It exposes one AudioContext whose clock is
// the rendered-sample counter of its own output stream, so beat timestamps
// line up with what actually reaches the speaker.
package oto

import (
	"fmt"

	"github.com/ebitengine/oto/v3"

	metronome "github.com/nori5satb/advanced-metronome"
)

// Context is an AudioContext playing clicks through the system's default
// output device.
type Context struct {
	stream *ClickStream
	player *oto.Player
}

// NewContext acquires the audio device and starts the (initially silent)
// click stream. There is at most one oto context per process; create the
// Context once in the composition root.
func NewContext() (*Context, error) {
	op := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	stream := NewClickStream(SampleRate)
	player := ctx.NewPlayer(stream)
	player.Play()
	return &Context{stream: stream, player: player}, nil
}

func (c *Context) Clock() metronome.ClockSource {
	return c.stream
}

func (c *Context) Emitter() metronome.SoundEmitter {
	return c.stream
}

// Close stops playback. The oto context itself cannot be released; that is
// a limitation of the underlying library.
func (c *Context) Close() error {
	if err := c.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}
