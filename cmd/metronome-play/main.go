package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	metronome "github.com/nori5satb/advanced-metronome"
	"github.com/nori5satb/advanced-metronome/engine"
	"github.com/nori5satb/advanced-metronome/gomidi"
	"github.com/nori5satb/advanced-metronome/oto"
	"github.com/nori5satb/advanced-metronome/practice"
	"github.com/nori5satb/advanced-metronome/version"
)

func main() {
	bpm := flag.Int("bpm", 0, "Tempo in beats per minute (30-300).")
	sig := flag.String("sig", "", "Time signature, e.g. 4/4 or 7/8.")
	volume := flag.Float64("volume", -1, "Click volume (0-1).")
	countIn := flag.Int("count-in", -1, "Count-in beats before the performance (1-8), 0 to disable.")
	countInVolume := flag.Float64("count-in-volume", -1, "Count-in click volume (0-1).")
	loop := flag.String("loop", "", "Measure range to loop, e.g. 3:5.")
	loops := flag.Int("loops", -1, "Stop after this many loops; 0 loops until interrupted.")
	preset := flag.String("preset", "", "Read settings from a YAML preset file.")
	save := flag.String("save", "", "Write the effective settings to a YAML preset file and exit.")
	record := flag.String("record", "", "Write a practice session summary to this YAML file on exit.")
	useMIDI := flag.Bool("midi", false, "Click through the first MIDI output port instead of the speaker.")
	wavOut := flag.String("w", "", "Render the session to a .wav file instead of playing it.")
	pcm := flag.Bool("c", false, "Convert audio to 16-bit signed PCM when rendering.")
	seconds := flag.Float64("seconds", 30, "Rendering length limit, in seconds, for -w.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}

	settings := metronome.DefaultSettings()
	if *preset != "" {
		var err error
		if settings, err = metronome.LoadSettings(*preset); err != nil {
			fatal(err)
		}
	}
	if *bpm != 0 {
		settings.BPM = *bpm
	}
	if *sig != "" {
		num, den, err := parseSignature(*sig)
		if err != nil {
			fatal(err)
		}
		settings.Numerator, settings.Denominator = num, den
	}
	if *volume >= 0 {
		settings.Volume = *volume
	}
	if *countInVolume >= 0 {
		settings.CountInVolume = *countInVolume
	}
	if *countIn >= 0 {
		settings.CountInEnabled = *countIn > 0
		if *countIn > 0 {
			settings.CountInBeats = *countIn
		}
	}
	if *loop != "" {
		start, end, err := parseLoop(*loop)
		if err != nil {
			fatal(err)
		}
		settings.LoopEnabled = true
		settings.LoopStart, settings.LoopEnd = start, end
	}
	if *loops >= 0 {
		settings.TargetLoops = *loops
	}
	if err := settings.Validate(); err != nil {
		fatal(err)
	}

	if *save != "" {
		if err := metronome.SaveSettings(*save, settings); err != nil {
			fatal(err)
		}
		return
	}
	if *wavOut != "" {
		if err := renderWav(settings, *wavOut, *seconds, *pcm); err != nil {
			fatal(err)
		}
		return
	}

	var clock metronome.ClockSource
	var emitter metronome.SoundEmitter
	if *useMIDI {
		sysClock := metronome.NewSystemClock()
		midiEmitter, err := gomidi.NewEmitter(sysClock)
		if err != nil {
			fatal(err)
		}
		defer midiEmitter.Close()
		fmt.Fprintf(os.Stderr, "clicking through %v\n", midiEmitter.Port())
		clock, emitter = sysClock, midiEmitter
	} else {
		audio, err := oto.NewContext()
		if err != nil {
			fatal(fmt.Errorf("could not acquire audio output: %w", err))
		}
		defer audio.Close()
		clock, emitter = audio.Clock(), audio.Emitter()
	}

	eng := engine.New(clock, emitter)
	if err := eng.ApplySettings(settings); err != nil {
		fatal(err)
	}
	var recorder *practice.Recorder
	if *record != "" {
		recorder = practice.NewRecorder(eng)
	}

	// engine handlers must not block, so events are handed to a printer
	// goroutine through a channel that drops on overflow
	events := make(chan engine.Event, 256)
	forward := func(ev engine.Event) {
		select {
		case events <- ev:
		default:
		}
	}
	for _, kind := range []engine.EventKind{
		engine.EventBeat, engine.EventLoopStart, engine.EventLoopEnd,
		engine.EventLoopComplete, engine.EventStop,
	} {
		eng.Subscribe(kind, forward)
	}
	done := make(chan struct{})
	go printEvents(events, done)

	if err := eng.Start(); err != nil {
		fatal(err)
	}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	select {
	case <-interrupt:
		eng.Stop()
	case <-done:
	}
	time.Sleep(100 * time.Millisecond) // let the final click ring out
	if recorder != nil {
		if err := recorder.Save(*record); err != nil {
			fatal(err)
		}
	}
}

func printEvents(events <-chan engine.Event, done chan<- struct{}) {
	for ev := range events {
		switch ev.Kind {
		case engine.EventBeat:
			marker := "·"
			if ev.Beat.Downbeat {
				marker = "●"
			}
			suffix := ""
			if ev.Beat.CountIn {
				suffix = "  (count-in)"
			}
			fmt.Fprintf(os.Stderr, "%s measure %3d beat %d%s\n", marker, ev.Beat.Measure, ev.Beat.Beat, suffix)
		case engine.EventLoopEnd:
			fmt.Fprintf(os.Stderr, "-- loop %d done\n", ev.Loop)
		case engine.EventLoopComplete:
			fmt.Fprintf(os.Stderr, "-- all %d loops done\n", ev.Loop)
		case engine.EventStop:
			close(done)
			return
		}
	}
}

func renderWav(settings metronome.Settings, path string, seconds float64, pcm16 bool) error {
	stream := oto.NewClickStream(oto.SampleRate)
	eng := engine.New(stream, stream)
	if err := eng.ApplySettings(settings); err != nil {
		return err
	}
	if err := eng.Start(); err != nil {
		return err
	}
	buffer := oto.Render(eng, stream, seconds)
	eng.Stop()
	data, err := metronome.Wav(buffer, oto.SampleRate, pcm16)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("could not write %v: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %v (%.1fs)\n", path, float64(len(buffer)/2)/oto.SampleRate)
	return nil
}

func parseSignature(s string) (int, int, error) {
	numStr, denStr, ok := strings.Cut(s, "/")
	if !ok {
		return 0, 0, fmt.Errorf("time signature %q is not of the form 4/4", s)
	}
	num, err := strconv.Atoi(numStr)
	if err != nil {
		return 0, 0, fmt.Errorf("time signature %q is not of the form 4/4", s)
	}
	den, err := strconv.Atoi(denStr)
	if err != nil {
		return 0, 0, fmt.Errorf("time signature %q is not of the form 4/4", s)
	}
	return num, den, nil
}

func parseLoop(s string) (int, int, error) {
	startStr, endStr, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("loop range %q is not of the form start:end", s)
	}
	start, err := strconv.Atoi(startStr)
	if err != nil {
		return 0, 0, fmt.Errorf("loop range %q is not of the form start:end", s)
	}
	end, err := strconv.Atoi(endStr)
	if err != nil {
		return 0, 0, fmt.Errorf("loop range %q is not of the form start:end", s)
	}
	return start, end, nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "%v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Practice metronome with measure looping and count-in.\n\nUsage: %s [flags]\n\nFlags:\n", os.Args[0])
	flag.PrintDefaults()
}
