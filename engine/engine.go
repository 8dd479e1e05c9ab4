package engine

import (
	"sync"

	metronome "github.com/nori5satb/advanced-metronome"
)

type (
	// Engine is the beat scheduling core of the metronome. It converts the
	// current settings into a gapless stream of click triggers on the
	// emitter, tracks measure and loop progress, and reports everything it
	// does through its event bus. One Engine drives one emitter; construct
	// it in the composition root and keep it for the life of the program.
	//
	// The engine is safe for concurrent use: settings mutations may come
	// from any goroutine while the scheduling pass runs, and Start and Stop
	// are synchronous.
	Engine struct {
		clock    metronome.ClockSource
		emitter  metronome.SoundEmitter
		settings *settingsStore
		bus      *Bus

		mu sync.Mutex // guards all transport and scheduler fields below

		state        State
		playing      bool
		beatCounter  int // performance beats since measure 1, beat 1
		measure      int
		countInLeft  int // count-in beats still to schedule
		countInBeat  int // count-in beats scheduled so far
		currentLoop  int
		nextBeatTime float64
		cancel       chan struct{} // closes to cancel the re-arm goroutine
	}

	// State is the transport state. Only the scheduling pass and explicit
	// Start/Stop calls ever change it.
	State int

	// Progress is a read-only view of where the transport currently is.
	Progress struct {
		State       State
		Measure     int
		CurrentLoop int
	}
)

const (
	Idle State = iota
	CountingIn
	Performing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CountingIn:
		return "countingIn"
	case Performing:
		return "performing"
	default:
		return "unknown"
	}
}

// New creates an engine over the given clock and emitter, configured with
// DefaultSettings. A nil emitter is allowed and turns the engine into an
// event-only beat tracker; a nil clock makes Start fail with
// ErrClockUnavailable.
func New(clock metronome.ClockSource, emitter metronome.SoundEmitter) *Engine {
	return &Engine{
		clock:    clock,
		emitter:  emitter,
		settings: newSettingsStore(metronome.DefaultSettings()),
		bus:      newBus(),
		state:    Idle,
		measure:  1,
	}
}

// Subscribe registers a handler on the engine's event bus.
func (e *Engine) Subscribe(kind EventKind, fn Handler) Subscription {
	return e.bus.Subscribe(kind, fn)
}

// Unsubscribe removes a handler registered with Subscribe.
func (e *Engine) Unsubscribe(sub Subscription) {
	e.bus.Unsubscribe(sub)
}

// Playing reports whether a scheduling pass is armed.
func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// Progress returns the transport position. During count-in, Measure is the
// measure the performance will start on.
func (e *Engine) Progress() Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Progress{State: e.state, Measure: e.measure, CurrentLoop: e.currentLoop}
}

// Start begins playback per the current settings: counting in when count-in
// is enabled, performing right away otherwise. The loop counter resets, the
// position returns to the start measure, and the first scheduling pass runs
// before Start returns. Starting a playing engine restarts it from the
// beginning. Fails with ErrClockUnavailable when the engine has no clock;
// the engine stays idle and the caller owns any retry.
func (e *Engine) Start() error {
	if e.clock == nil {
		return metronome.ErrClockUnavailable
	}
	e.mu.Lock()
	if e.cancel != nil {
		close(e.cancel)
		e.cancel = nil
	}
	s := e.settings.snapshot()
	start := startMeasure(s)
	e.measure = start
	e.beatCounter = (start - 1) * s.Numerator
	e.currentLoop = 0
	e.countInBeat = 0
	if s.CountInEnabled {
		e.state = CountingIn
		e.countInLeft = s.CountInBeats
	} else {
		e.state = Performing
		e.countInLeft = 0
	}
	e.playing = true
	now := e.clock.Now()
	e.nextBeatTime = now
	cancel := make(chan struct{})
	e.cancel = cancel
	e.mu.Unlock()

	e.bus.emit(Event{Kind: EventStart, Time: now})
	if s.CountInEnabled {
		e.bus.emit(Event{Kind: EventCountInStart, Time: now})
	}
	e.Pump()
	go e.rearm(cancel)
	return nil
}

// Stop halts scheduling immediately: the pending re-arm is cancelled, no
// further pass runs, and the transport returns to Idle. Clicks already
// handed to the emitter play out; the engine never tries to silence
// in-flight audio. Stopping an idle engine does nothing.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.playing {
		return
	}
	var at float64
	if e.clock != nil {
		at = e.clock.Now()
	}
	e.stopLocked(at)
}

// stopLocked is the single place the transport goes back to Idle, reached
// from Stop and from loop completion inside a pass.
func (e *Engine) stopLocked(at float64) {
	if e.cancel != nil {
		close(e.cancel)
		e.cancel = nil
	}
	e.playing = false
	e.state = Idle
	e.bus.emit(Event{Kind: EventStop, Time: at})
}

// startMeasure is where a fresh performance begins: the loop start when
// looping, measure 1 otherwise.
func startMeasure(s metronome.Settings) int {
	if s.LoopEnabled {
		return s.LoopStart
	}
	return 1
}
