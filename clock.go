package metronome

import "time"

// SystemClock is a ClockSource backed by the monotonic wall clock, counting
// seconds since its creation. It is the fallback timeline for emitters that
// have no audio pipeline of their own, such as the MIDI emitter; audio
// backends should expose their own output-correlated clock instead.
type SystemClock struct {
	start time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Now() float64 {
	return time.Since(c.start).Seconds()
}
