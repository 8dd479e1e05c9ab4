package engine_test

import (
	"errors"
	"math"
	"sync"
	"testing"

	metronome "github.com/nori5satb/advanced-metronome"
	"github.com/nori5satb/advanced-metronome/engine"
)

type fakeClock struct {
	mu sync.Mutex
	t  float64
}

func (c *fakeClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d float64) {
	c.mu.Lock()
	c.t += d
	c.mu.Unlock()
}

type trigger struct {
	variant metronome.Variant
	volume  float64
	at      float64
}

type fakeEmitter struct {
	mu       sync.Mutex
	triggers []trigger
}

func (f *fakeEmitter) Trigger(variant metronome.Variant, volume float64, at float64) {
	f.mu.Lock()
	f.triggers = append(f.triggers, trigger{variant, volume, at})
	f.mu.Unlock()
}

func (f *fakeEmitter) all() []trigger {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]trigger(nil), f.triggers...)
}

type eventLog struct {
	mu     sync.Mutex
	events []engine.Event
}

func (l *eventLog) handler(ev engine.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) all() []engine.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]engine.Event(nil), l.events...)
}

func (l *eventLog) beats() []metronome.BeatEvent {
	var beats []metronome.BeatEvent
	for _, ev := range l.all() {
		if ev.Kind == engine.EventBeat {
			beats = append(beats, ev.Beat)
		}
	}
	return beats
}

func (l *eventLog) count(kind engine.EventKind) int {
	n := 0
	for _, ev := range l.all() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// newTestEngine wires an engine to a fake clock and a recording emitter and
// logs every event kind.
func newTestEngine(t *testing.T) (*engine.Engine, *fakeClock, *fakeEmitter, *eventLog) {
	t.Helper()
	clock := &fakeClock{}
	emitter := &fakeEmitter{}
	e := engine.New(clock, emitter)
	log := &eventLog{}
	for kind := engine.EventBeat; kind <= engine.EventLoopComplete; kind++ {
		e.Subscribe(kind, log.handler)
	}
	t.Cleanup(e.Stop)
	return e, clock, emitter, log
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSetBPMValidation(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	for _, bpm := range []int{29, 0, -10, 301, 1000} {
		if err := e.SetBPM(bpm); err == nil {
			t.Errorf("SetBPM(%v) should have failed", bpm)
		}
		var perr *metronome.ParameterError
		if err := e.SetBPM(bpm); !errors.As(err, &perr) || perr.Field != "bpm" {
			t.Errorf("SetBPM(%v) should fail with a bpm ParameterError, got %v", bpm, err)
		}
		if got := e.Settings().BPM; got != 120 {
			t.Errorf("failed SetBPM(%v) changed bpm to %v", bpm, got)
		}
	}
	for _, bpm := range []int{30, 120, 300} {
		if err := e.SetBPM(bpm); err != nil {
			t.Errorf("SetBPM(%v): %v", bpm, err)
		}
		if got := e.Settings().BPM; got != bpm {
			t.Errorf("SetBPM(%v) stored %v", bpm, got)
		}
	}
}

func TestSetTimeSignatureValidation(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	bad := [][2]int{{0, 4}, {13, 4}, {4, 3}, {4, 0}, {4, 32}}
	for _, sig := range bad {
		if err := e.SetTimeSignature(sig[0], sig[1]); err == nil {
			t.Errorf("SetTimeSignature(%v, %v) should have failed", sig[0], sig[1])
		}
		s := e.Settings()
		if s.Numerator != 4 || s.Denominator != 4 {
			t.Errorf("failed SetTimeSignature(%v, %v) changed signature to %v/%v", sig[0], sig[1], s.Numerator, s.Denominator)
		}
	}
	if err := e.SetTimeSignature(7, 8); err != nil {
		t.Fatalf("SetTimeSignature(7, 8): %v", err)
	}
	if s := e.Settings(); s.Numerator != 7 || s.Denominator != 8 {
		t.Errorf("SetTimeSignature(7, 8) stored %v/%v", s.Numerator, s.Denominator)
	}
}

func TestSetVolumeDomain(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	for _, v := range []float64{-0.1, 1.1, math.NaN()} {
		if err := e.SetVolume(v); err == nil {
			t.Errorf("SetVolume(%v) should have failed", v)
		}
	}
	for _, v := range []float64{0, 0.5, 1} {
		if err := e.SetVolume(v); err != nil {
			t.Errorf("SetVolume(%v): %v", v, err)
		}
	}
}

func TestSetLoopRangeAtomic(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	if err := e.SetLoopRange(10, 5); err == nil {
		t.Fatal("SetLoopRange(10, 5) should have failed")
	}
	s := e.Settings()
	if s.LoopStart != 1 || s.LoopEnd != 5 {
		t.Errorf("failed SetLoopRange changed range to %v..%v", s.LoopStart, s.LoopEnd)
	}
	if err := e.SetLoopRange(0, 5); err == nil {
		t.Fatal("SetLoopRange(0, 5) should have failed")
	}
	if err := e.SetLoopRange(3, 5); err != nil {
		t.Fatalf("SetLoopRange(3, 5): %v", err)
	}
	s = e.Settings()
	if s.LoopStart != 3 || s.LoopEnd != 5 {
		t.Errorf("SetLoopRange(3, 5) stored %v..%v", s.LoopStart, s.LoopEnd)
	}
}

func TestSettingsChangedEvent(t *testing.T) {
	e, _, _, log := newTestEngine(t)
	if err := e.SetBPM(90); err != nil {
		t.Fatal(err)
	}
	events := log.all()
	if len(events) != 1 || events[0].Kind != engine.EventSettingsChanged {
		t.Fatalf("expected one settingsChanged event, got %v", events)
	}
	if events[0].Settings.BPM != 90 {
		t.Errorf("settingsChanged carried bpm %v", events[0].Settings.BPM)
	}
	if err := e.SetBPM(9999); err == nil {
		t.Fatal("SetBPM(9999) should have failed")
	}
	if n := log.count(engine.EventSettingsChanged); n != 1 {
		t.Errorf("failed setter emitted settingsChanged, total %v", n)
	}
}

func TestStartWithoutClock(t *testing.T) {
	e := engine.New(nil, &fakeEmitter{})
	if err := e.Start(); !errors.Is(err, metronome.ErrClockUnavailable) {
		t.Fatalf("Start without clock returned %v", err)
	}
	if e.Playing() {
		t.Error("engine should stay idle after a failed Start")
	}
}

func TestBasicFourFour(t *testing.T) {
	e, clock, emitter, log := newTestEngine(t)
	if err := e.SetCountInEnabled(false); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	clock.advance(2.4)
	e.Pump()
	beats := log.beats()
	if len(beats) != 5 {
		t.Fatalf("expected 5 beats, got %v", len(beats))
	}
	for i, b := range beats {
		if want := 0.5 * float64(i); !closeTo(b.Time, want) {
			t.Errorf("beat %v at %v, want %v", i+1, b.Time, want)
		}
		if b.CountIn {
			t.Errorf("beat %v should not be a count-in beat", i+1)
		}
	}
	if !beats[0].Downbeat || beats[0].Measure != 1 || beats[0].Beat != 1 {
		t.Errorf("first beat is %+v, want downbeat of measure 1", beats[0])
	}
	for _, i := range []int{1, 2, 3} {
		if beats[i].Downbeat {
			t.Errorf("beat %v should not be a downbeat", i+1)
		}
	}
	if !beats[4].Downbeat || beats[4].Measure != 2 || beats[4].Beat != 1 {
		t.Errorf("fifth beat is %+v, want downbeat of measure 2", beats[4])
	}
	triggers := emitter.all()
	if len(triggers) != 5 {
		t.Fatalf("expected 5 triggers, got %v", len(triggers))
	}
	if triggers[0].variant != metronome.Downbeat || triggers[1].variant != metronome.Beat {
		t.Errorf("trigger variants = %v, %v", triggers[0].variant, triggers[1].variant)
	}
}

func TestBeatMonotonicity(t *testing.T) {
	e, clock, _, log := newTestEngine(t)
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	clock.advance(5)
	e.Pump()
	beats := log.beats()
	if len(beats) < 10 {
		t.Fatalf("expected at least 10 beats, got %v", len(beats))
	}
	for i := 1; i < len(beats); i++ {
		if beats[i].Time <= beats[i-1].Time {
			t.Fatalf("beat %v at %v is not after beat %v at %v", i+1, beats[i].Time, i, beats[i-1].Time)
		}
		if gap := beats[i].Time - beats[i-1].Time; !closeTo(gap, 0.5) {
			t.Errorf("gap before beat %v is %v, want 0.5", i+1, gap)
		}
	}
}

func TestCountInBoundary(t *testing.T) {
	e, clock, emitter, log := newTestEngine(t)
	if err := e.SetCountInEnabled(true); err != nil {
		t.Fatal(err)
	}
	if err := e.SetCountInBeats(4); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	if log.count(engine.EventCountInStart) != 1 {
		t.Error("countInStart should fire on Start")
	}
	clock.advance(2.0)
	e.Pump()
	beats := log.beats()
	if len(beats) != 5 {
		t.Fatalf("expected 5 beats, got %v", len(beats))
	}
	for i := 0; i < 4; i++ {
		if !beats[i].CountIn {
			t.Errorf("beat %v should be a count-in beat", i+1)
		}
	}
	fifth := beats[4]
	if fifth.CountIn || fifth.Measure != 1 || fifth.Beat != 1 || !fifth.Downbeat {
		t.Errorf("fifth beat is %+v, want performance downbeat of measure 1", fifth)
	}
	if log.count(engine.EventCountInEnd) != 1 {
		t.Error("countInEnd should fire exactly once")
	}
	triggers := emitter.all()
	if triggers[0].variant != metronome.CountIn {
		t.Errorf("count-in click variant = %v", triggers[0].variant)
	}
	if triggers[4].variant != metronome.Downbeat {
		t.Errorf("first performance click variant = %v", triggers[4].variant)
	}
	// count-in clicks use the count-in volume, performance clicks the
	// normal volume
	if err := e.SetCountInVolume(0.25); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	clock.advance(0.1)
	e.Pump()
	triggers = emitter.all()
	last := triggers[len(triggers)-1]
	if last.variant != metronome.CountIn || !closeTo(last.volume, 0.25) {
		t.Errorf("restarted count-in click = %+v", last)
	}
}

func TestLoopWrapAndComplete(t *testing.T) {
	e, clock, _, log := newTestEngine(t)
	if err := e.SetLoopRange(3, 5); err != nil {
		t.Fatal(err)
	}
	if err := e.SetLoopEnabled(true); err != nil {
		t.Fatal(err)
	}
	if err := e.SetTargetLoops(2); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	clock.advance(12.1)
	e.Pump()
	beats := log.beats()
	// measures 3..5 twice over, 4 beats each, at 120 BPM: 24 beats in 11.5s
	if len(beats) != 24 {
		t.Fatalf("expected 24 beats, got %v", len(beats))
	}
	if beats[0].Measure != 3 || !beats[0].Downbeat {
		t.Errorf("playback should start on the downbeat of measure 3, got %+v", beats[0])
	}
	if beats[11].Measure != 5 || beats[11].Beat != 4 {
		t.Errorf("12th beat is %+v, want measure 5 beat 4", beats[11])
	}
	if beats[12].Measure != 3 || beats[12].Beat != 1 {
		t.Errorf("13th beat is %+v, want wrap back to measure 3", beats[12])
	}
	if gap := beats[12].Time - beats[11].Time; !closeTo(gap, 0.5) {
		t.Errorf("wrap gap is %v, want 0.5", gap)
	}
	if n := log.count(engine.EventLoopEnd); n != 2 {
		t.Errorf("loopEnd fired %v times, want 2", n)
	}
	if n := log.count(engine.EventLoopStart); n != 1 {
		t.Errorf("loopStart fired %v times, want 1", n)
	}
	if n := log.count(engine.EventLoopComplete); n != 1 {
		t.Errorf("loopComplete fired %v times, want 1", n)
	}
	if n := log.count(engine.EventStop); n != 1 {
		t.Errorf("stop fired %v times, want 1", n)
	}
	if e.Playing() {
		t.Error("engine should stop after completing the target loops")
	}
	if e.CurrentLoop() != 2 {
		t.Errorf("currentLoop = %v, want 2", e.CurrentLoop())
	}
}

func TestUnboundedLoop(t *testing.T) {
	e, clock, _, log := newTestEngine(t)
	if err := e.SetLoopRange(3, 5); err != nil {
		t.Fatal(err)
	}
	if err := e.SetLoopEnabled(true); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	clock.advance(18.1)
	e.Pump()
	if n := log.count(engine.EventLoopComplete); n != 0 {
		t.Errorf("loopComplete fired %v times with targetLoops=0", n)
	}
	if !e.Playing() {
		t.Error("unbounded loop should keep playing until stopped")
	}
	if e.CurrentLoop() < 3 {
		t.Errorf("currentLoop = %v, want at least 3 after 18s", e.CurrentLoop())
	}
	e.Stop()
	if e.Playing() {
		t.Error("Stop should halt the engine")
	}
}

func TestJumpToMeasure(t *testing.T) {
	e, clock, _, log := newTestEngine(t)
	if err := e.SetTimeSignature(3, 4); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	if err := e.JumpToMeasure(7); err != nil {
		t.Fatal(err)
	}
	clock.advance(0.6)
	e.Pump()
	beats := log.beats()
	last := beats[len(beats)-1]
	if last.Measure != 7 || last.Beat != 1 || !last.Downbeat {
		t.Errorf("beat after jump is %+v, want downbeat of measure 7", last)
	}
	var merr *metronome.MeasureError
	if err := e.JumpToMeasure(0); !errors.As(err, &merr) {
		t.Errorf("JumpToMeasure(0) returned %v, want *MeasureError", err)
	}
}

func TestTempoChangeMidPerformance(t *testing.T) {
	e, clock, _, log := newTestEngine(t)
	if err := e.SetBPM(90); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	clock.advance(1.5)
	e.Pump() // commits beats at 0, 2/3 and 4/3
	if err := e.SetBPM(150); err != nil {
		t.Fatal(err)
	}
	clock.advance(1.5)
	e.Pump()
	beats := log.beats()
	if len(beats) < 6 {
		t.Fatalf("expected at least 6 beats, got %v", len(beats))
	}
	// committed beats keep their 90 BPM spacing, including the one whose
	// timestamp was fixed before the change
	for i := 1; i < 4; i++ {
		if gap := beats[i].Time - beats[i-1].Time; !closeTo(gap, 60.0/90) {
			t.Errorf("gap before beat %v is %v, want %v", i+1, gap, 60.0/90)
		}
	}
	// every beat scheduled after the change uses the 150 BPM interval
	for i := 4; i < len(beats); i++ {
		if gap := beats[i].Time - beats[i-1].Time; !closeTo(gap, 60.0/150) {
			t.Errorf("gap before beat %v is %v, want %v", i+1, gap, 60.0/150)
		}
	}
}

func TestStopCancelsScheduling(t *testing.T) {
	e, clock, _, log := newTestEngine(t)
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	clock.advance(1.0)
	e.Pump()
	e.Stop()
	before := len(log.beats())
	clock.advance(10)
	e.Pump()
	if after := len(log.beats()); after != before {
		t.Errorf("beats after Stop: %v -> %v", before, after)
	}
	if n := log.count(engine.EventStop); n != 1 {
		t.Errorf("stop fired %v times, want 1", n)
	}
	e.Stop() // idempotent
	if n := log.count(engine.EventStop); n != 1 {
		t.Errorf("second Stop emitted another stop event, total %v", n)
	}
}

func TestRestartResetsProgress(t *testing.T) {
	e, clock, _, log := newTestEngine(t)
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	clock.advance(4.1)
	e.Pump()
	if p := e.Progress(); p.Measure < 3 {
		t.Fatalf("expected playback to reach measure 3, got %+v", p)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	if p := e.Progress(); p.Measure != 1 || p.CurrentLoop != 0 {
		t.Errorf("restart did not reset progress: %+v", p)
	}
	clock.advance(0.1)
	e.Pump()
	beats := log.beats()
	last := beats[len(beats)-1]
	if last.Measure != 1 || last.Beat != 1 {
		t.Errorf("first beat after restart is %+v", last)
	}
}

func TestSubscriptionOrderAndUnsubscribe(t *testing.T) {
	e, clock, _, _ := newTestEngine(t)
	var order []int
	var mu sync.Mutex
	first := e.Subscribe(engine.EventBeat, func(engine.Event) {
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
	})
	e.Subscribe(engine.EventBeat, func(engine.Event) {
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
	})
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	got := append([]int(nil), order...)
	mu.Unlock()
	if len(got) < 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("handlers ran out of subscription order: %v", got)
	}
	e.Stop()
	e.Unsubscribe(first)
	mu.Lock()
	order = nil
	mu.Unlock()
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	clock.advance(0.1)
	e.Pump()
	mu.Lock()
	got = append([]int(nil), order...)
	mu.Unlock()
	for _, id := range got {
		if id == 1 {
			t.Fatal("unsubscribed handler still ran")
		}
	}
	if len(got) == 0 {
		t.Fatal("remaining handler should still run")
	}
}

func TestApplySettingsValidatesWholeDocument(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	s := metronome.DefaultSettings()
	s.BPM = 60
	s.LoopEnabled = true
	s.LoopStart = 9
	s.LoopEnd = 2
	if err := e.ApplySettings(s); err == nil {
		t.Fatal("ApplySettings with an inverted loop range should fail")
	}
	if got := e.Settings(); got.BPM != 120 {
		t.Errorf("failed ApplySettings changed bpm to %v", got.BPM)
	}
	s.LoopEnd = 12
	if err := e.ApplySettings(s); err != nil {
		t.Fatalf("ApplySettings: %v", err)
	}
	if got := e.Settings(); got.BPM != 60 || got.LoopEnd != 12 {
		t.Errorf("ApplySettings stored %+v", got)
	}
}
