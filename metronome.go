package metronome

import "fmt"

type (
	// Settings is the full configuration of the metronome engine. It is a
	// plain value: the engine hands out copies of it and swaps the whole
	// struct atomically on every accepted change, so readers never observe a
	// half-edited configuration. BPM is an integer as it offers already
	// quite much granularity for controlling the practice tempo; this could
	// be changed to a floating point in future if finer adjustments are
	// necessary.
	Settings struct {
		BPM         int
		Numerator   int // time signature numerator, beats per measure
		Denominator int // time signature denominator

		Volume         float64
		CountInVolume  float64
		CountInEnabled bool
		CountInBeats   int

		LoopEnabled bool
		LoopStart   int // first looped measure, 1-based
		LoopEnd     int // measure after which the loop wraps
		TargetLoops int // 0 means loop until stopped
	}

	// BeatEvent describes one scheduled click. Time is an absolute timestamp
	// on the audio output timeline, in seconds; it is the moment the click
	// sounds, not the moment it was scheduled.
	BeatEvent struct {
		Beat     int // 1-based position within the measure
		Measure  int // 1-based, held at the performance start during count-in
		Downbeat bool
		CountIn  bool
		Time     float64
	}

	// Variant selects the click timbre. The engine owns no synthesis: it
	// only tells the emitter which variant to play.
	Variant int

	// ClockSource supplies the current time on the audio output timeline,
	// in seconds. It must be monotonic; it is not wall-clock time.
	ClockSource interface {
		Now() float64
	}

	// SoundEmitter plays one click of the given variant at the given
	// output-timeline timestamp. Trigger is fire-and-forget: the engine
	// never waits for the click to finish, and timestamps slightly in the
	// past should be played as soon as possible rather than dropped.
	SoundEmitter interface {
		Trigger(variant Variant, volume float64, at float64)
	}

	// AudioContext bundles the clock and the emitter of one audio backend.
	AudioContext interface {
		Clock() ClockSource
		Emitter() SoundEmitter
		Close() error
	}
)

const (
	Beat Variant = iota
	Downbeat
	CountIn
)

// Settings domains. Setters and Validate reject anything outside these.
const (
	MinBPM = 30
	MaxBPM = 300

	MinNumerator = 1
	MaxNumerator = 12

	MinCountInBeats = 1
	MaxCountInBeats = 8
)

// DefaultSettings returns the configuration a fresh engine starts with:
// 120 BPM in 4/4, full volume, a four beat count-in (disabled), and a
// disabled four measure loop.
func DefaultSettings() Settings {
	return Settings{
		BPM:            120,
		Numerator:      4,
		Denominator:    4,
		Volume:         1.0,
		CountInVolume:  1.0,
		CountInEnabled: false,
		CountInBeats:   4,
		LoopEnabled:    false,
		LoopStart:      1,
		LoopEnd:        5,
		TargetLoops:    0,
	}
}

// Copy returns an independent copy of the settings. Settings contains no
// reference types, so this is a plain value copy; the method exists so call
// sites read as taking a snapshot.
func (s *Settings) Copy() Settings {
	return *s
}

// Validate checks every field against its domain, returning the first
// *ParameterError found. A zero Settings is not valid; start from
// DefaultSettings.
func (s *Settings) Validate() error {
	if err := CheckBPM(s.BPM); err != nil {
		return err
	}
	if err := CheckTimeSignature(s.Numerator, s.Denominator); err != nil {
		return err
	}
	if err := CheckVolume("volume", s.Volume); err != nil {
		return err
	}
	if err := CheckVolume("countinvolume", s.CountInVolume); err != nil {
		return err
	}
	if err := CheckCountInBeats(s.CountInBeats); err != nil {
		return err
	}
	if err := CheckLoopRange(s.LoopStart, s.LoopEnd); err != nil {
		return err
	}
	if err := CheckTargetLoops(s.TargetLoops); err != nil {
		return err
	}
	return nil
}

func CheckBPM(bpm int) error {
	if bpm < MinBPM || bpm > MaxBPM {
		return &ParameterError{"bpm", fmt.Sprintf("%v is outside [%v, %v]", bpm, MinBPM, MaxBPM)}
	}
	return nil
}

func CheckTimeSignature(numerator, denominator int) error {
	if numerator < MinNumerator || numerator > MaxNumerator {
		return &ParameterError{"numerator", fmt.Sprintf("%v is outside [%v, %v]", numerator, MinNumerator, MaxNumerator)}
	}
	switch denominator {
	case 1, 2, 4, 8, 16:
		return nil
	}
	return &ParameterError{"denominator", fmt.Sprintf("%v is not one of 1, 2, 4, 8, 16", denominator)}
}

// CheckVolume accepts the closed interval [0, 1]. The comparison is written
// so that NaN fails it.
func CheckVolume(field string, v float64) error {
	if !(v >= 0 && v <= 1) {
		return &ParameterError{field, fmt.Sprintf("%v is outside [0, 1]", v)}
	}
	return nil
}

func CheckCountInBeats(n int) error {
	if n < MinCountInBeats || n > MaxCountInBeats {
		return &ParameterError{"countinbeats", fmt.Sprintf("%v is outside [%v, %v]", n, MinCountInBeats, MaxCountInBeats)}
	}
	return nil
}

// CheckLoopRange validates both ends of a loop range together: a range is
// only ever accepted or rejected whole.
func CheckLoopRange(start, end int) error {
	if start < 1 {
		return &ParameterError{"loopstart", fmt.Sprintf("%v is below 1", start)}
	}
	if end <= start {
		return &ParameterError{"loopend", fmt.Sprintf("%v is not greater than loop start %v", end, start)}
	}
	return nil
}

func CheckTargetLoops(n int) error {
	if n < 0 {
		return &ParameterError{"targetloops", fmt.Sprintf("%v is negative", n)}
	}
	return nil
}

// BeatDuration returns the interval between consecutive clicks, in seconds.
func (s *Settings) BeatDuration() float64 {
	return 60.0 / float64(s.BPM)
}

func (v Variant) String() string {
	switch v {
	case Beat:
		return "beat"
	case Downbeat:
		return "downbeat"
	case CountIn:
		return "countin"
	default:
		return "unknown"
	}
}
