package events

import (
	"errors"
	"testing"
	"time"
)

func TestMuxStampsSequenceAndTime(t *testing.T) {
	current := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	mux := NewMux(MuxWithClock(func() time.Time { return current }))
	collector := &Collector{}
	mux.Attach(collector)

	mux.HandleEvent(Event{Type: TypeRunStarted, RunID: "run-1"})
	mux.HandleEvent(Event{Type: TypeStageStarted, RunID: "run-1", StageID: "audit"})

	got := collector.Events()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Sequence != 1 || got[1].Sequence != 2 {
		t.Fatalf("unexpected sequences: %d, %d", got[0].Sequence, got[1].Sequence)
	}
	if !got[0].At.Equal(current) {
		t.Fatalf("expected stamped time %s, got %s", current, got[0].At)
	}
}

func TestMuxDropsInvalidEvents(t *testing.T) {
	mux := NewMux()
	collector := &Collector{}
	mux.Attach(collector)

	mux.HandleEvent(Event{Type: TypeRunStarted})
	mux.HandleEvent(Event{RunID: "run-1"})

	if got := collector.Events(); len(got) != 0 {
		t.Fatalf("expected invalid events to be dropped, got %d", len(got))
	}
}

func TestMuxSinkErrorsDoNotStopDelivery(t *testing.T) {
	var logged []string
	mux := NewMux(MuxWithLogger(printfFunc(func(format string, args ...any) {
		logged = append(logged, format)
	})))
	mux.Attach(SinkFunc(func(Event) error { return errors.New("broken sink") }))
	collector := &Collector{}
	mux.Attach(collector)

	mux.HandleEvent(Event{Type: TypeRunStarted, RunID: "run-1"})

	if got := collector.Events(); len(got) != 1 {
		t.Fatalf("expected delivery to later sinks, got %d events", len(got))
	}
	if len(logged) == 0 {
		t.Fatalf("expected the sink failure to be logged")
	}
}

type printfFunc func(format string, args ...any)

func (f printfFunc) Printf(format string, args ...any) { f(format, args...) }
