package events

// Event is a structured record of a state-changing operation. Attributes are
// stringly typed so downstream consumers (indexers, audit tooling) can decode
// them without sharing Go types with the engine.
type Event struct {
	Type       string
	Attributes map[string]string
}

// Emitter broadcasts events to downstream subscribers (e.g. HTTP gateway,
// audit indexers).
type Emitter interface {
	Emit(*Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(*Event) {}
