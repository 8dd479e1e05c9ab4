// Package practice records a summary of one guided practice session. It
// sits entirely outside the scheduling core: everything it knows arrives
// through the engine's beat, loopEnd and loopComplete events, the same
// hooks any other history sink would use.
package practice

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/nori5satb/advanced-metronome/engine"
)

type (
	// Summary is what remains of a session once it is over: enough to track
	// progress across practice days, nothing that needs the engine.
	Summary struct {
		Beats          int     `yaml:"beats"`          // performance beats played
		CountInBeats   int     `yaml:"countinbeats"`   // count-in beats played
		HighestMeasure int     `yaml:"highestmeasure"` // furthest measure reached
		LoopsFinished  int     `yaml:"loopsfinished"`  // loop wraps completed
		Completed      bool    `yaml:"completed"`      // target loop count was reached
		Duration       float64 `yaml:"duration"`       // timeline seconds, first to last beat
	}

	// Recorder accumulates a Summary while subscribed to an engine.
	Recorder struct {
		eng  *engine.Engine
		subs []engine.Subscription

		mu        sync.Mutex
		summary   Summary
		firstBeat float64
		haveBeat  bool
	}
)

// NewRecorder subscribes to the engine and starts accumulating. Close it to
// detach; the summary stays readable afterwards.
func NewRecorder(eng *engine.Engine) *Recorder {
	r := &Recorder{eng: eng}
	r.subs = append(r.subs,
		eng.Subscribe(engine.EventBeat, r.onBeat),
		eng.Subscribe(engine.EventLoopEnd, r.onLoopEnd),
		eng.Subscribe(engine.EventLoopComplete, r.onLoopComplete),
	)
	return r
}

func (r *Recorder) onBeat(ev engine.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.haveBeat {
		r.firstBeat = ev.Beat.Time
		r.haveBeat = true
	}
	r.summary.Duration = ev.Beat.Time - r.firstBeat
	if ev.Beat.CountIn {
		r.summary.CountInBeats++
		return
	}
	r.summary.Beats++
	if ev.Beat.Measure > r.summary.HighestMeasure {
		r.summary.HighestMeasure = ev.Beat.Measure
	}
}

func (r *Recorder) onLoopEnd(ev engine.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.LoopsFinished = ev.Loop
}

func (r *Recorder) onLoopComplete(engine.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.Completed = true
}

// Summary returns a copy of the session so far.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary
}

// Close detaches the recorder from the engine.
func (r *Recorder) Close() {
	for _, sub := range r.subs {
		r.eng.Unsubscribe(sub)
	}
	r.subs = nil
}

// YAML serializes the summary.
func (s Summary) YAML() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("could not serialize summary: %w", err)
	}
	return data, nil
}

// Save writes the current summary to a file.
func (r *Recorder) Save(path string) error {
	data, err := r.Summary().YAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("could not write summary %v: %w", path, err)
	}
	return nil
}
