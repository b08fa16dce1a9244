package events

import "sync"

// Recorder retains every emitted event in order of emission so the gateway
// can serve an off-system audit trail. It is safe for concurrent use.
type Recorder struct {
	mu     sync.RWMutex
	events []*Event
}

// NewRecorder constructs an empty event recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt *Event) {
	if r == nil || evt == nil {
		return
	}
	clone := &Event{Type: evt.Type, Attributes: make(map[string]string, len(evt.Attributes))}
	for k, v := range evt.Attributes {
		clone.Attributes[k] = v
	}
	r.mu.Lock()
	r.events = append(r.events, clone)
	r.mu.Unlock()
}

// All returns a copy of every recorded event in emission order.
func (r *Recorder) All() []*Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Event, len(r.events))
	copy(out, r.events)
	return out
}

// Filter returns the recorded events whose attribute matches the supplied
// key/value pair, preserving emission order.
func (r *Recorder) Filter(key, value string) []*Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Event
	for _, evt := range r.events {
		if evt.Attributes[key] == value {
			out = append(out, evt)
		}
	}
	return out
}
