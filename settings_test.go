package metronome_test

import (
	"errors"
	"math"
	"testing"

	metronome "github.com/nori5satb/advanced-metronome"
)

func TestDefaultSettingsAreValid(t *testing.T) {
	s := metronome.DefaultSettings()
	if err := s.Validate(); err != nil {
		t.Fatalf("DefaultSettings does not validate: %v", err)
	}
}

func TestValidateRejectsOutOfDomainFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*metronome.Settings)
		field  string
	}{
		{"bpm low", func(s *metronome.Settings) { s.BPM = 29 }, "bpm"},
		{"bpm high", func(s *metronome.Settings) { s.BPM = 301 }, "bpm"},
		{"numerator low", func(s *metronome.Settings) { s.Numerator = 0 }, "numerator"},
		{"numerator high", func(s *metronome.Settings) { s.Numerator = 13 }, "numerator"},
		{"denominator", func(s *metronome.Settings) { s.Denominator = 5 }, "denominator"},
		{"volume", func(s *metronome.Settings) { s.Volume = 1.5 }, "volume"},
		{"volume nan", func(s *metronome.Settings) { s.Volume = math.NaN() }, "volume"},
		{"countin volume", func(s *metronome.Settings) { s.CountInVolume = -0.5 }, "countinvolume"},
		{"countin beats", func(s *metronome.Settings) { s.CountInBeats = 9 }, "countinbeats"},
		{"loop start", func(s *metronome.Settings) { s.LoopStart = 0 }, "loopstart"},
		{"loop range", func(s *metronome.Settings) { s.LoopEnd = s.LoopStart }, "loopend"},
		{"target loops", func(s *metronome.Settings) { s.TargetLoops = -1 }, "targetloops"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := metronome.DefaultSettings()
			test.mutate(&s)
			err := s.Validate()
			var perr *metronome.ParameterError
			if !errors.As(err, &perr) {
				t.Fatalf("Validate returned %v, want *ParameterError", err)
			}
			if perr.Field != test.field {
				t.Errorf("Validate flagged %v, want %v", perr.Field, test.field)
			}
		})
	}
}

func TestBeatDuration(t *testing.T) {
	s := metronome.DefaultSettings()
	if got := s.BeatDuration(); got != 0.5 {
		t.Errorf("BeatDuration at 120 BPM = %v, want 0.5", got)
	}
	s.BPM = 90
	if got := s.BeatDuration(); math.Abs(got-60.0/90) > 1e-12 {
		t.Errorf("BeatDuration at 90 BPM = %v", got)
	}
}
