package engine

import (
	"sync"
	"sync/atomic"

	metronome "github.com/nori5satb/advanced-metronome"
)

// settingsStore holds the live configuration behind an atomic pointer. The
// scheduling pass loads the pointer lock-free on every iteration; writers
// serialize among themselves with a mutex and publish a fresh copy with a
// single pointer swap, so a reader sees either the old or the new settings,
// never a mixture.
type settingsStore struct {
	mu      sync.Mutex // serializes writers only
	current atomic.Pointer[metronome.Settings]
}

func newSettingsStore(s metronome.Settings) *settingsStore {
	store := &settingsStore{}
	store.current.Store(&s)
	return store
}

// snapshot returns a copy of the current settings.
func (s *settingsStore) snapshot() metronome.Settings {
	return *s.current.Load()
}

// mutate validates a change against a copy of the current settings and
// publishes the copy only if the check passes. On failure nothing is
// written and the error is returned as-is.
func (s *settingsStore) mutate(change func(*metronome.Settings) error) (metronome.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := *s.current.Load()
	if err := change(&next); err != nil {
		return metronome.Settings{}, err
	}
	s.current.Store(&next)
	return next, nil
}

// Setters. Each validates one field (or one atomic field pair) against the
// domains in the metronome package, applies the change wholesale and emits
// settingsChanged, or returns a *ParameterError leaving the previous value
// in place.

func (e *Engine) SetBPM(bpm int) error {
	return e.applyChange(func(s *metronome.Settings) error {
		if err := metronome.CheckBPM(bpm); err != nil {
			return err
		}
		s.BPM = bpm
		return nil
	})
}

func (e *Engine) SetTimeSignature(numerator, denominator int) error {
	return e.applyChange(func(s *metronome.Settings) error {
		if err := metronome.CheckTimeSignature(numerator, denominator); err != nil {
			return err
		}
		s.Numerator = numerator
		s.Denominator = denominator
		return nil
	})
}

func (e *Engine) SetVolume(v float64) error {
	return e.applyChange(func(s *metronome.Settings) error {
		if err := metronome.CheckVolume("volume", v); err != nil {
			return err
		}
		s.Volume = v
		return nil
	})
}

func (e *Engine) SetCountInVolume(v float64) error {
	return e.applyChange(func(s *metronome.Settings) error {
		if err := metronome.CheckVolume("countinvolume", v); err != nil {
			return err
		}
		s.CountInVolume = v
		return nil
	})
}

func (e *Engine) SetCountInEnabled(enabled bool) error {
	return e.applyChange(func(s *metronome.Settings) error {
		s.CountInEnabled = enabled
		return nil
	})
}

func (e *Engine) SetCountInBeats(n int) error {
	return e.applyChange(func(s *metronome.Settings) error {
		if err := metronome.CheckCountInBeats(n); err != nil {
			return err
		}
		s.CountInBeats = n
		return nil
	})
}

// SetLoopEnabled refuses to enable looping over an invalid range, so the
// loop invariant (end > start while enabled) holds at all times.
func (e *Engine) SetLoopEnabled(enabled bool) error {
	return e.applyChange(func(s *metronome.Settings) error {
		if enabled {
			if err := metronome.CheckLoopRange(s.LoopStart, s.LoopEnd); err != nil {
				return err
			}
		}
		s.LoopEnabled = enabled
		return nil
	})
}

// SetLoopRange applies both ends of the range or neither.
func (e *Engine) SetLoopRange(start, end int) error {
	return e.applyChange(func(s *metronome.Settings) error {
		if err := metronome.CheckLoopRange(start, end); err != nil {
			return err
		}
		s.LoopStart = start
		s.LoopEnd = end
		return nil
	})
}

func (e *Engine) SetTargetLoops(n int) error {
	return e.applyChange(func(s *metronome.Settings) error {
		if err := metronome.CheckTargetLoops(n); err != nil {
			return err
		}
		s.TargetLoops = n
		return nil
	})
}

// ApplySettings replaces the whole configuration in one swap, after
// validating the whole document. Used when loading a preset.
func (e *Engine) ApplySettings(next metronome.Settings) error {
	return e.applyChange(func(s *metronome.Settings) error {
		if err := next.Validate(); err != nil {
			return err
		}
		*s = next
		return nil
	})
}

func (e *Engine) applyChange(change func(*metronome.Settings) error) error {
	next, err := e.settings.mutate(change)
	if err != nil {
		return err
	}
	e.bus.emit(Event{Kind: EventSettingsChanged, Settings: next})
	return nil
}

// Settings returns a copy of the current configuration.
func (e *Engine) Settings() metronome.Settings {
	return e.settings.snapshot()
}
