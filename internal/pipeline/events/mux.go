package events

import (
	"sync"
	"time"
)

// MuxOption customizes Mux construction.
type MuxOption func(*Mux)

// Mux fans events out to registered sinks. Delivery is sequential and sink
// errors are logged rather than propagated so a broken observer cannot stall
// a pipeline run.
type Mux struct {
	mu       sync.Mutex
	sinks    []Sink
	sequence int64
	logger   Logger
	now      func() time.Time
}

// NewMux constructs a mux with sane defaults.
func NewMux(opts ...MuxOption) *Mux {
	m := &Mux{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// MuxWithLogger injects a logger for sink failure diagnostics.
func MuxWithLogger(logger Logger) MuxOption {
	return func(m *Mux) {
		m.logger = logger
	}
}

// MuxWithClock overrides the timestamp source.
func MuxWithClock(now func() time.Time) MuxOption {
	return func(m *Mux) {
		if now != nil {
			m.now = now
		}
	}
}

// Attach registers a sink. Nil sinks are ignored.
func (m *Mux) Attach(sink Sink) {
	if sink == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, sink)
}

// HandleEvent stamps the event and delivers it to every sink. Mux itself
// satisfies Sink so muxes can be chained.
func (m *Mux) HandleEvent(event Event) error {
	event.Normalize()
	if err := event.Validate(); err != nil {
		if m.logger != nil {
			m.logger.Printf("events: dropping invalid event: %v", err)
		}
		return nil
	}
	m.mu.Lock()
	m.sequence++
	event.Sequence = m.sequence
	if event.At.IsZero() {
		event.At = m.now().UTC()
	}
	sinks := make([]Sink, len(m.sinks))
	copy(sinks, m.sinks)
	m.mu.Unlock()
	for _, sink := range sinks {
		if err := sink.HandleEvent(event); err != nil && m.logger != nil {
			m.logger.Printf("events: sink failed for %s: %v", event.Type, err)
		}
	}
	return nil
}

// Collector retains every event it receives. Useful for tests and for
// rendering recent activity on the status board.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// HandleEvent appends the event to the collection.
func (c *Collector) HandleEvent(event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

// Events returns a copy of the collected events in arrival order.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}
