package oto

import (
	"sync/atomic"

	"github.com/nori5satb/advanced-metronome/engine"
)

// Render drives an engine against an offline click stream and returns the
// rendered interleaved stereo float32 track, for export rather than
// playback. The engine must have been constructed over stream (as both its
// clock and its emitter) and started; rendering pulls the stream forward in
// small chunks, pumping the scheduler between chunks exactly as a live
// audio callback would. It returns when the engine stops (loop completion)
// or when limit seconds have been rendered, whichever comes first, plus a
// short tail so the last click rings out.
func Render(eng *engine.Engine, stream *ClickStream, limit float64) []float32 {
	const chunkFrames = 512
	var stopped atomic.Bool
	sub := eng.Subscribe(engine.EventStop, func(engine.Event) {
		stopped.Store(true)
	})
	defer eng.Unsubscribe(sub)

	maxFrames := int64(limit * float64(stream.rate))
	tail := int64(clickDuration * float64(stream.rate))
	out := make([]float32, 0, int(maxFrames)*channels)
	buf := make([]float32, chunkFrames*channels)
	var rendered, tailLeft int64
	for rendered < maxFrames {
		if !stopped.Load() {
			eng.Pump()
		}
		stream.mix(buf)
		out = append(out, buf...)
		rendered += chunkFrames
		if stopped.Load() {
			if tailLeft == 0 {
				tailLeft = tail
			}
			tailLeft -= chunkFrames
			if tailLeft <= 0 {
				break
			}
		}
	}
	return out
}
