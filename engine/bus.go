package engine

import (
	"sync"

	metronome "github.com/nori5satb/advanced-metronome"
)

type (
	// EventKind enumerates every notification the engine can emit. The set
	// is closed: dispatch is a table indexed by kind, so there is no way to
	// subscribe to a kind that does not exist.
	EventKind int

	// Event is the payload delivered to handlers. Kind is always set; the
	// remaining fields are filled depending on the kind. Beat is set for
	// EventBeat, Settings for EventSettingsChanged, Loop and Measure for the
	// loop boundary events. Time is the output-timeline timestamp the event
	// belongs to, where one is known.
	Event struct {
		Kind     EventKind
		Beat     metronome.BeatEvent
		Settings metronome.Settings
		Loop     int
		Measure  int
		Time     float64
	}

	// Handler receives events synchronously on the goroutine that emitted
	// them; for beat and loop events that is the scheduling pass itself.
	// Handlers must not block and must not call back into the transport
	// (Start, Stop, Pump, JumpToMeasure, Playing, Progress, CurrentLoop);
	// hand work off through a channel instead. Settings setters and reads
	// are safe to call from a handler.
	Handler func(Event)

	// Subscription identifies one registered handler, for Unsubscribe.
	Subscription struct {
		kind EventKind
		id   int
	}

	// Bus is the typed publish/subscribe fan-out of the engine. Handlers
	// for one kind are invoked in subscription order.
	Bus struct {
		mu       sync.Mutex
		nextID   int
		handlers [numEventKinds][]busEntry
	}

	busEntry struct {
		id int
		fn Handler
	}
)

const (
	EventBeat EventKind = iota
	EventStart
	EventStop
	EventSettingsChanged
	EventCountInStart
	EventCountInEnd
	EventLoopStart
	EventLoopEnd
	EventLoopComplete
	numEventKinds
)

func (k EventKind) String() string {
	switch k {
	case EventBeat:
		return "beat"
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventSettingsChanged:
		return "settingsChanged"
	case EventCountInStart:
		return "countInStart"
	case EventCountInEnd:
		return "countInEnd"
	case EventLoopStart:
		return "loopStart"
	case EventLoopEnd:
		return "loopEnd"
	case EventLoopComplete:
		return "loopComplete"
	default:
		return "unknown"
	}
}

func newBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for one event kind and returns the token
// that removes it again. Kinds outside the known set return a zero
// Subscription and register nothing.
func (b *Bus) Subscribe(kind EventKind, fn Handler) Subscription {
	if kind < 0 || kind >= numEventKinds || fn == nil {
		return Subscription{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[kind] = append(b.handlers[kind], busEntry{id: b.nextID, fn: fn})
	return Subscription{kind: kind, id: b.nextID}
}

// Unsubscribe removes a previously registered handler. Unknown or already
// removed subscriptions are ignored.
func (b *Bus) Unsubscribe(sub Subscription) {
	if sub.id == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.handlers[sub.kind]
	for i, e := range entries {
		if e.id == sub.id {
			b.handlers[sub.kind] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// emit delivers the event to every handler of its kind, in subscription
// order. The handler table is copied before invoking anything, so handlers
// may subscribe and unsubscribe freely; such changes take effect from the
// next emission.
func (b *Bus) emit(ev Event) {
	b.mu.Lock()
	entries := b.handlers[ev.Kind]
	copied := make([]busEntry, len(entries))
	copy(copied, entries)
	b.mu.Unlock()
	for _, e := range copied {
		e.fn(ev)
	}
}
