package failover

import "testing"

func TestBusDispatchOrderAndCancel(t *testing.T) {
	t.Parallel()
	bus := NewBus()
	var order []string
	bus.Subscribe("ev", func(Event) { order = append(order, "a") })
	cancel := bus.Subscribe("ev", func(Event) { order = append(order, "b") })
	bus.Subscribe("ev", func(Event) { order = append(order, "c") })
	bus.Dispatch(Event{Name: "ev"})
	if got := len(order); got != 3 || order[0] != "a" || order[2] != "c" {
		t.Fatalf("order = %v", order)
	}
	cancel()
	bus.Dispatch(Event{Name: "ev"})
	if len(order) != 5 || order[3] != "a" || order[4] != "c" {
		t.Fatalf("order after cancel = %v", order)
	}
	// Unknown names go nowhere.
	bus.Dispatch(Event{Name: "other"})
	if len(order) != 5 {
		t.Fatalf("order = %v", order)
	}
}

func TestNotifierBatchesUntilFlush(t *testing.T) {
	t.Parallel()
	n := NewNotifier()
	var batches [][]Change
	n.Watch(func(b []Change) { batches = append(batches, b) })
	n.Publish(Change{Kind: ChangeMode, Value: DocModeImmersive})
	n.Publish(Change{Kind: ChangeReason, Value: string(ReasonManual)})
	if len(batches) != 0 {
		t.Fatalf("delivered before flush: %v", batches)
	}
	n.Flush()
	if len(batches) != 1 || len(batches[0]) != 2 {
		t.Fatalf("batches = %v", batches)
	}
	// A watcher publishing during delivery settles within the same flush.
	n.Watch(func(b []Change) {
		for _, ch := range b {
			if ch.Kind == ChangeMode && ch.Value == DocModeFallback {
				n.Publish(Change{Kind: ChangeReason, Value: string(ReasonLowMemory)})
			}
		}
	})
	before := len(batches)
	n.Publish(Change{Kind: ChangeMode, Value: DocModeFallback})
	n.Flush()
	if len(batches) != before+2 {
		t.Fatalf("republished change not settled in one flush: %d batches", len(batches))
	}
}

func TestDocumentPublishesOnlyOnChange(t *testing.T) {
	t.Parallel()
	doc := NewDocument()
	var changes []Change
	doc.Notifier().Watch(func(b []Change) { changes = append(changes, b...) })
	doc.SetMode(DocModeImmersive)
	doc.SetMode(DocModeImmersive) // no-op
	doc.SetReasonMarker(ReasonManual)
	doc.SetReasonMarker(ReasonManual) // no-op
	doc.Notifier().Flush()
	if len(changes) != 2 {
		t.Fatalf("changes = %v", changes)
	}
	if doc.Mode() != DocModeImmersive || doc.ReasonMarker() != ReasonManual {
		t.Fatalf("state = (%q, %q)", doc.Mode(), doc.ReasonMarker())
	}
}

func TestDocumentAnnounceSequence(t *testing.T) {
	t.Parallel()
	doc := NewDocument()
	doc.Announce("one")
	doc.Announce("one")
	if doc.LiveSequence() != 2 || doc.LiveText() != "one" {
		t.Fatalf("live = (%q, %d)", doc.LiveText(), doc.LiveSequence())
	}
}
