// Package gomidi emits beats as MIDI percussion notes through an external
// output port, so the metronome can click hardware drum machines or a DAW
// instead of (or alongside) the local speaker.
package gomidi

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	metronome "github.com/nori5satb/advanced-metronome"
)

// General MIDI percussion, channel 10 (0-based 9).
const (
	percussionChannel = 9

	downbeatKey = 76 // high wood block
	beatKey     = 77 // low wood block
	countInKey  = 37 // side stick

	noteLength = 50 * time.Millisecond
)

// Emitter is a SoundEmitter sending one percussion note per click. MIDI has
// no scheduled delivery, so the emitter holds each note back on a timer
// until its timestamp comes up on the engine's clock; jitter is bounded by
// the host timer, which is good enough for driving external gear.
type Emitter struct {
	driver *rtmididrv.Driver
	out    drivers.Out
	send   func(midi.Message) error
	clock  metronome.ClockSource
	closed atomic.Bool
}

// NewEmitter opens the first available MIDI output port. clock must be the
// same clock the engine schedules against, as note delays are computed from
// it.
func NewEmitter(clock metronome.ClockSource) (*Emitter, error) {
	driver, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("cannot open MIDI driver: %w", err)
	}
	outs, err := driver.Outs()
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("cannot list MIDI outputs: %w", err)
	}
	if len(outs) == 0 {
		driver.Close()
		return nil, errors.New("no MIDI output ports available")
	}
	out := outs[0]
	if err := out.Open(); err != nil {
		driver.Close()
		return nil, fmt.Errorf("cannot open MIDI output %v: %w", out.String(), err)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		out.Close()
		driver.Close()
		return nil, fmt.Errorf("cannot send to MIDI output %v: %w", out.String(), err)
	}
	return &Emitter{driver: driver, out: out, send: send, clock: clock}, nil
}

// Port returns the name of the opened output port.
func (e *Emitter) Port() string {
	return e.out.String()
}

// Trigger schedules one note. Fire-and-forget; send errors are dropped, as
// there is nothing the scheduling pass could do about them.
func (e *Emitter) Trigger(variant metronome.Variant, volume float64, at float64) {
	key := uint8(beatKey)
	switch variant {
	case metronome.Downbeat:
		key = downbeatKey
	case metronome.CountIn:
		key = countInKey
	}
	velocity := uint8(volume * 127)
	if velocity == 0 {
		return
	}
	delay := time.Duration((at - e.clock.Now()) * float64(time.Second))
	if delay < 0 {
		delay = 0
	}
	time.AfterFunc(delay, func() {
		if e.closed.Load() {
			return
		}
		e.send(midi.NoteOn(percussionChannel, key, velocity))
		time.AfterFunc(noteLength, func() {
			if e.closed.Load() {
				return
			}
			e.send(midi.NoteOff(percussionChannel, key))
		})
	})
}

// Close releases the port and the driver. Notes still pending on timers are
// dropped.
func (e *Emitter) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	err := e.out.Close()
	if derr := e.driver.Close(); err == nil {
		err = derr
	}
	return err
}
