package events

import (
	"sync"

	"lendledger/core/types"
)

// payloadCarrier is implemented by module events that wrap a structured
// payload alongside the bare event type.
type payloadCarrier interface {
	Event() *types.Event
}

// Feed is an append-only event log with optional fan-out to live
// subscribers. It implements Emitter; every emitted event is retained in
// order so external readers can replay the full audit trail.
type Feed struct {
	mu   sync.RWMutex
	log  []types.Event
	subs map[int]chan types.Event
	next int
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan types.Event)}
}

// Emit appends the event to the log and forwards it to subscribers. Slow
// subscribers are skipped rather than blocking the emitting operation.
func (f *Feed) Emit(evt Event) {
	if f == nil || evt == nil {
		return
	}
	entry := types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
	if carrier, ok := evt.(payloadCarrier); ok {
		if payload := carrier.Event(); payload != nil {
			entry.Type = payload.Type
			for k, v := range payload.Attributes {
				entry.Attributes[k] = v
			}
		}
	}
	f.mu.Lock()
	f.log = append(f.log, entry)
	for _, ch := range f.subs {
		select {
		case ch <- entry:
		default:
		}
	}
	f.mu.Unlock()
}

// Events returns a snapshot of the retained log in emission order.
func (f *Feed) Events() []types.Event {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]types.Event, len(f.log))
	copy(out, f.log)
	return out
}

// Subscribe registers a buffered listener and returns the channel together
// with a cancel function. Events emitted while the buffer is full are
// dropped for that subscriber; the retained log stays complete.
func (f *Feed) Subscribe(buffer int) (<-chan types.Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan types.Event, buffer)
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = ch
	f.mu.Unlock()
	cancel := func() {
		f.mu.Lock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}
