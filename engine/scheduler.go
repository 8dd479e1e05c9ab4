package engine

import (
	"time"

	metronome "github.com/nori5satb/advanced-metronome"
)

// The scheduler runs slightly ahead of the clock: each pass commits every
// beat whose target time falls within the lookahead window, stamping the
// emitter trigger with the precomputed timestamp rather than "now". A pass
// that runs late therefore shifts nothing audibly, as long as it runs
// before the window starves. The re-arm interval leaves the window more
// than twice the slack it needs.
const (
	lookahead    = 0.025 // seconds of beats committed ahead of the clock
	rearmEvery   = 10 * time.Millisecond
	maxBeatsPass = 1024 // sanity bound; a pass never legitimately gets close
)

// Pump runs one scheduling pass immediately. Start arms an internal timer
// that calls Pump until Stop, so most hosts never touch it; hosts that
// drive scheduling from their own loop (and tests) may call it directly.
// Pump on an idle engine does nothing.
func (e *Engine) Pump() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.playing {
		return
	}
	horizon := e.clock.Now() + lookahead
	for i := 0; i < maxBeatsPass; i++ {
		if !e.playing || e.nextBeatTime >= horizon {
			return
		}
		// settings are re-read for every beat so that a live edit takes
		// effect on the very next unscheduled beat
		s := e.settings.snapshot()
		switch e.state {
		case CountingIn:
			e.scheduleCountInBeat(s)
		case Performing:
			e.schedulePerformanceBeat(s)
		default:
			return
		}
	}
}

// rearm keeps the pass running until cancelled. It is a cooperative timer
// loop, not a real-time thread; the lookahead window absorbs its jitter.
func (e *Engine) rearm(cancel <-chan struct{}) {
	ticker := time.NewTicker(rearmEvery)
	defer ticker.Stop()
	for {
		select {
		case <-cancel:
			return
		case <-ticker.C:
			e.Pump()
		}
	}
}

// scheduleCountInBeat commits one count-in click. Count-in beats keep their
// own counter: the measure number is pinned to the upcoming performance
// start, and the last count-in beat flips the transport to Performing so
// the next committed beat is measure start, beat 1, with no extra gap.
func (e *Engine) scheduleCountInBeat(s metronome.Settings) {
	at := e.nextBeatTime
	index := e.countInBeat % s.Numerator
	beat := metronome.BeatEvent{
		Beat:     index + 1,
		Measure:  e.measure,
		Downbeat: index == 0,
		CountIn:  true,
		Time:     at,
	}
	e.trigger(metronome.CountIn, s.CountInVolume, at)
	e.bus.emit(Event{Kind: EventBeat, Beat: beat, Time: at})
	e.countInBeat++
	e.countInLeft--
	e.nextBeatTime = at + s.BeatDuration()
	if e.countInLeft <= 0 {
		start := startMeasure(s)
		e.state = Performing
		e.measure = start
		e.beatCounter = (start - 1) * s.Numerator
		e.bus.emit(Event{Kind: EventCountInEnd, Time: at})
	}
}

// schedulePerformanceBeat commits one performance click and applies the
// measure and loop side effects of crossing a boundary before the next
// beat is considered.
func (e *Engine) schedulePerformanceBeat(s metronome.Settings) {
	at := e.nextBeatTime
	index := e.beatCounter % s.Numerator
	variant := metronome.Beat
	if index == 0 {
		variant = metronome.Downbeat
	}
	beat := metronome.BeatEvent{
		Beat:     index + 1,
		Measure:  e.measure,
		Downbeat: index == 0,
		CountIn:  false,
		Time:     at,
	}
	e.trigger(variant, s.Volume, at)
	e.bus.emit(Event{Kind: EventBeat, Beat: beat, Time: at})
	e.nextBeatTime = at + s.BeatDuration()
	e.beatCounter++
	if e.beatCounter%s.Numerator == 0 {
		e.measure++
		e.checkLoopLocked(s, at)
	}
}

func (e *Engine) trigger(variant metronome.Variant, volume, at float64) {
	if e.emitter == nil {
		return
	}
	e.emitter.Trigger(variant, volume, at)
}
