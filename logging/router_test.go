package logging_test

import (
	"context"
	"testing"
	"time"

	"footlights/stage/logging"
	"footlights/stage/logging/sinks"
)

func newTestRouter(t *testing.T, cfg logging.Config, clock logging.Clock) (*logging.Router, *sinks.MemorySink) {
	t.Helper()
	mem := sinks.NewMemorySink()
	router, err := logging.NewRouter(clock, cfg, []logging.NamedSink{{Name: "memory", Sink: mem}})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		router.Close(ctx)
	})
	return router, mem
}

func waitEvents(t *testing.T, mem *sinks.MemorySink, want int) []logging.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := mem.Events(); len(events) >= want {
			return events
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("sink received %d events, want %d", len(mem.Events()), want)
	return nil
}

func TestRouterFiltersBelowMinimumSeverity(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityWarn
	router, mem := newTestRouter(t, cfg, nil)

	ctx := context.Background()
	router.Publish(ctx, logging.Event{Type: "quiet", Severity: logging.SeverityDebug})
	router.Publish(ctx, logging.Event{Type: "loud", Severity: logging.SeverityError})

	events := waitEvents(t, mem, 1)
	if len(events) != 1 || events[0].Type != "loud" {
		t.Fatalf("severity filter let through: %+v", events)
	}
}

func TestRouterStampsTimeFromClock(t *testing.T) {
	frozen := time.Date(2026, time.March, 14, 9, 26, 53, 0, time.UTC)
	router, mem := newTestRouter(t, logging.DefaultConfig(), logging.ClockFunc(func() time.Time {
		return frozen
	}))

	router.Publish(context.Background(), logging.Event{Type: "tick", Severity: logging.SeverityInfo})

	events := waitEvents(t, mem, 1)
	if !events[0].Time.Equal(frozen) {
		t.Fatalf("event time %v, want clock time %v", events[0].Time, frozen)
	}
}

func TestRouterMergesConfiguredFieldsIntoExtra(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.Fields = map[string]any{"stage": "main", "slot": 7}
	router, mem := newTestRouter(t, cfg, nil)

	router.Publish(context.Background(), logging.Event{
		Type:     "annotated",
		Severity: logging.SeverityInfo,
		Extra:    map[string]any{"slot": 1},
	})

	events := waitEvents(t, mem, 1)
	extra := events[0].Extra
	if extra["stage"] != "main" {
		t.Fatalf("configured field missing: %+v", extra)
	}
	// Per-event values win over configured defaults.
	if extra["slot"] != 1 {
		t.Fatalf("event field overwritten: %+v", extra)
	}
}

func TestRouterDropsUntypedEvents(t *testing.T) {
	router, mem := newTestRouter(t, logging.DefaultConfig(), nil)

	ctx := context.Background()
	router.Publish(ctx, logging.Event{Severity: logging.SeverityError})
	router.Publish(ctx, logging.Event{Type: "keeper", Severity: logging.SeverityInfo})

	events := waitEvents(t, mem, 1)
	if len(events) != 1 || events[0].Type != "keeper" {
		t.Fatalf("untyped event reached the sink: %+v", events)
	}
}
