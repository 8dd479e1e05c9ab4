package engine

import (
	metronome "github.com/nori5satb/advanced-metronome"
)

// checkLoopLocked decides, right after a measure boundary was crossed at
// time at, whether the transport left the looped range. On a wrap the
// position snaps back to the loop start without touching nextBeatTime: the
// following beat keeps its already correct spacing, so the wrap is
// inaudible. When the target loop count is reached the transport stops
// mid-cycle instead of wrapping.
func (e *Engine) checkLoopLocked(s metronome.Settings, at float64) {
	if !s.LoopEnabled || e.measure <= s.LoopEnd {
		return
	}
	e.currentLoop++
	e.bus.emit(Event{Kind: EventLoopEnd, Loop: e.currentLoop, Measure: s.LoopEnd, Time: at})
	if s.TargetLoops > 0 && e.currentLoop >= s.TargetLoops {
		e.bus.emit(Event{Kind: EventLoopComplete, Loop: e.currentLoop, Time: at})
		e.stopLocked(at)
		return
	}
	e.measure = s.LoopStart
	e.beatCounter = (s.LoopStart - 1) * s.Numerator
	e.bus.emit(Event{Kind: EventLoopStart, Loop: e.currentLoop, Measure: s.LoopStart, Time: at})
}

// JumpToMeasure moves the transport to the given measure, realigning the
// beat counter so the next committed beat is that measure's downbeat. It
// may be called in any state; Start resets the position, so jumping mostly
// matters while performing. Fails with *MeasureError for measures below 1,
// leaving the position unchanged.
func (e *Engine) JumpToMeasure(measure int) error {
	if measure < 1 {
		return &metronome.MeasureError{Measure: measure}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.settings.snapshot()
	e.measure = measure
	e.beatCounter = (measure - 1) * s.Numerator
	return nil
}

// CurrentLoop returns how many times the looped range has been completed
// since the last Start.
func (e *Engine) CurrentLoop() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentLoop
}
