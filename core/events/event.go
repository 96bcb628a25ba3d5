package events

// Event represents a structured state change emitted by the engine.
type Event interface {
	EventType() string
	// Attributes returns the wire-friendly key/value payload that downstream
	// forwarders serialise for subscribers.
	Attributes() map[string]string
}

// Emitter broadcasts events to downstream subscribers (e.g. forwarders,
// audit indexers). Delivery is best effort: an emitter must never fail the
// state transition that produced the event.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events.
// It is the default wiring when no forwarder is configured.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// MultiEmitter fans a single event out to every configured emitter in order.
type MultiEmitter []Emitter

// Emit implements the Emitter interface.
func (m MultiEmitter) Emit(evt Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(evt)
		}
	}
}
