package failover

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestBudgetZeroTripsOnFirstError(t *testing.T) {
	t.Parallel()
	var got *BudgetExceededDetail
	m := NewBudgetMonitor(BudgetConfig{
		Budget:     0,
		OnExceeded: func(d BudgetExceededDetail) { got = &d },
	})
	m.RecordWindowError("boom")
	if got == nil {
		t.Fatal("expected callback on first error with budget 0")
	}
	if got.Count != 1 || got.Budget != 0 || got.Remaining != 0 {
		t.Fatalf("detail = %+v", got)
	}
	if got.Source != SourceWindowError {
		t.Fatalf("Source = %q, want window-error", got.Source)
	}
	if got.Detail != "boom" {
		t.Fatalf("Detail = %q", got.Detail)
	}
}

func TestBudgetOneTripsOnSecondError(t *testing.T) {
	t.Parallel()
	var got *BudgetExceededDetail
	calls := 0
	m := NewBudgetMonitor(BudgetConfig{
		Budget: 1,
		OnExceeded: func(d BudgetExceededDetail) {
			calls++
			got = &d
		},
	})
	m.RecordWindowError("first")
	if calls != 0 {
		t.Fatal("tripped on first error with budget 1")
	}
	m.RecordUnhandledRejection("second")
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	sum := 0
	for _, n := range got.SourceCounts {
		sum += n
	}
	if sum != got.Count || got.Count != 2 {
		t.Fatalf("sourceCounts sum %d, count %d, want both 2", sum, got.Count)
	}
	if got.SourceCounts[SourceWindowError] != 1 || got.SourceCounts[SourceUnhandledRejection] != 1 {
		t.Fatalf("SourceCounts = %+v", got.SourceCounts)
	}
	// Latched: further events are ignored.
	m.RecordWindowError("third")
	if calls != 1 {
		t.Fatalf("re-fired after latch: calls=%d", calls)
	}
	if !m.Latched() {
		t.Fatal("expected latched")
	}
}

func TestBudgetNegativeNormalizedToZero(t *testing.T) {
	t.Parallel()
	calls := 0
	m := NewBudgetMonitor(BudgetConfig{
		Budget:     -7,
		OnExceeded: func(BudgetExceededDetail) { calls++ },
	})
	m.RecordWindowError("x")
	if calls != 1 {
		t.Fatalf("negative budget should behave as 0, calls=%d", calls)
	}
}

func TestBudgetSinkInterceptor(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	sink := log.New(&buf, "", 0)
	var got *BudgetExceededDetail
	m := NewBudgetMonitor(BudgetConfig{
		Budget:     0,
		Sink:       sink,
		OnExceeded: func(d BudgetExceededDetail) { got = &d },
	})
	sink.Printf("renderer exploded")
	if !strings.Contains(buf.String(), "renderer exploded") {
		t.Fatalf("write not forwarded to original sink: %q", buf.String())
	}
	if got == nil || got.Source != SourceConsoleError {
		t.Fatalf("detail = %+v, want console-error trip", got)
	}
	if !m.Latched() {
		t.Fatal("expected latched after sink trip")
	}

	// Dispose restores the sink: writes still land, nothing is counted.
	m2 := NewBudgetMonitor(BudgetConfig{Budget: 5, Sink: sink})
	m2.Dispose()
	before := buf.Len()
	sink.Printf("after dispose")
	if buf.Len() <= before {
		t.Fatal("sink broken after dispose")
	}
	if n := m2.Counts()[SourceConsoleError]; n != 0 {
		t.Fatalf("counted after dispose: %d", n)
	}
}

func TestBudgetBusSubscriptionsAndBroadcast(t *testing.T) {
	t.Parallel()
	bus := NewBus()
	var event *BudgetExceededDetail
	bus.Subscribe(EventBudgetExceeded, func(ev Event) {
		if d, ok := ev.Payload.(BudgetExceededDetail); ok {
			event = &d
		}
	})
	m := NewBudgetMonitor(BudgetConfig{Budget: 1, Bus: bus})
	bus.Dispatch(Event{Name: EventRuntimeError, Payload: "one"})
	bus.Dispatch(Event{Name: EventUnhandledRejection, Payload: "two"})
	if event == nil {
		t.Fatal("expected broadcast on trip")
	}
	if event.Count != 2 || event.Source != SourceUnhandledRejection {
		t.Fatalf("event = %+v", event)
	}
	if !m.Latched() {
		t.Fatal("expected latched")
	}

	// After dispose the subscriptions are gone.
	m2 := NewBudgetMonitor(BudgetConfig{Budget: 0, Bus: bus})
	m2.Dispose()
	bus.Dispatch(Event{Name: EventRuntimeError, Payload: "ignored"})
	if m2.Latched() {
		t.Fatal("disposed monitor reacted to bus event")
	}
}
