package oto

import (
	"math"
	"sync"

	"github.com/viterin/vek/vek32"

	metronome "github.com/nori5satb/advanced-metronome"
)

const (
	// SampleRate is the rate every ClickStream renders at.
	SampleRate = 44100

	channels   = 2
	frameBytes = channels * 4 // stereo float32

	clickDuration = 0.030 // seconds
	clickDecay    = 0.008 // exponential envelope time constant, seconds
)

// Click frequencies per variant. The downbeat sits an octave above the
// regular beat so accents cut through; the count-in sits between the two.
const (
	beatFreq     = 880
	downbeatFreq = 1760
	countInFreq  = 1320
)

type (
	// ClickStream renders scheduled clicks into a continuous stereo float32
	// stream and is both halves of the engine's audio contract: its sample
	// counter is the output-timeline clock, and Trigger mixes a click into
	// the stream at an exact sample position. Silence between clicks still
	// renders (as zeros), which is what keeps the clock advancing.
	ClickStream struct {
		mu      sync.Mutex
		rate    int
		pos     int64 // frames rendered so far
		active  []activeClick
		tables  [3][]float32
		scratch []float32
	}

	activeClick struct {
		table []float32
		gain  float32
		start int64 // frame the click begins on
	}
)

// NewClickStream creates a stream rendering at the given sample rate.
func NewClickStream(rate int) *ClickStream {
	s := &ClickStream{rate: rate}
	s.tables[metronome.Beat] = clickTable(rate, beatFreq)
	s.tables[metronome.Downbeat] = clickTable(rate, downbeatFreq)
	s.tables[metronome.CountIn] = clickTable(rate, countInFreq)
	return s
}

// Rate returns the stream's sample rate.
func (s *ClickStream) Rate() int {
	return s.rate
}

// Now returns the output-timeline time in seconds: the amount of audio
// rendered so far.
func (s *ClickStream) Now() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(s.pos) / float64(s.rate)
}

// Trigger schedules one click of the given variant at the given timeline
// timestamp. Timestamps already in the past are clamped to the next
// rendered frame, so a late click plays immediately rather than being
// dropped. Fire-and-forget, safe from any goroutine.
func (s *ClickStream) Trigger(variant metronome.Variant, volume float64, at float64) {
	if variant < 0 || int(variant) >= len(s.tables) {
		return
	}
	frame := int64(math.Round(at * float64(s.rate)))
	s.mu.Lock()
	if frame < s.pos {
		frame = s.pos
	}
	s.active = append(s.active, activeClick{
		table: s.tables[variant],
		gain:  float32(volume),
		start: frame,
	})
	s.mu.Unlock()
}

// Read implements io.Reader for the audio backend: little-endian stereo
// float32 frames. It never blocks and never returns an error; an all-silent
// stretch reads as zeros.
func (s *ClickStream) Read(p []byte) (int, error) {
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}
	s.mu.Lock()
	if cap(s.scratch) < frames*channels {
		s.scratch = make([]float32, frames*channels)
	}
	buf := s.scratch[:frames*channels]
	s.mixLocked(buf)
	s.mu.Unlock()
	for i, v := range buf {
		bits := math.Float32bits(v)
		p[i*4] = byte(bits)
		p[i*4+1] = byte(bits >> 8)
		p[i*4+2] = byte(bits >> 16)
		p[i*4+3] = byte(bits >> 24)
	}
	return frames * frameBytes, nil
}

// mix renders the next len(buf)/channels frames of interleaved stereo into
// buf, advancing the stream position. Used by Read and by offline
// rendering.
func (s *ClickStream) mix(buf []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mixLocked(buf)
}

func (s *ClickStream) mixLocked(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}
	frames := int64(len(buf) / channels)
	end := s.pos + frames
	kept := s.active[:0]
	for _, c := range s.active {
		from := c.start
		if from < s.pos {
			from = s.pos
		}
		to := c.start + int64(len(c.table))
		if to > end {
			to = end
		}
		for f := from; f < to; f++ {
			v := c.table[f-c.start] * c.gain
			buf[(f-s.pos)*channels] += v
			buf[(f-s.pos)*channels+1] += v
		}
		if c.start+int64(len(c.table)) > end {
			kept = append(kept, c)
		}
	}
	s.active = kept
	s.pos = end
}

// clickTable synthesizes one click: a sine burst under an exponential decay
// envelope, normalized to unit peak.
func clickTable(rate int, freq float64) []float32 {
	n := int(float64(rate) * clickDuration)
	wave := make([]float32, n)
	env := make([]float32, n)
	for i := range wave {
		t := float64(i) / float64(rate)
		wave[i] = float32(math.Sin(2 * math.Pi * freq * t))
		env[i] = float32(math.Exp(-t / clickDecay))
	}
	table := vek32.Mul_Into(make([]float32, n), wave, env)
	if peak := vek32.Max(vek32.Abs_Into(make([]float32, n), table)); peak > 0 {
		vek32.DivNumber_Into(table, table, peak)
	}
	return table
}
