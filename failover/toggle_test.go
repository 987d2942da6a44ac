package failover

import (
	"errors"
	"testing"
)

func TestToggleSyncSuccess(t *testing.T) {
	t.Parallel()
	var views []ToggleView
	var announced []string
	tg := NewToggle(ToggleConfig{
		Toggle:           func(complete func(error)) { complete(nil) },
		IsFallbackActive: func() bool { return true },
		Render:           func(v ToggleView) { views = append(views, v) },
		Announce:         func(s string) { announced = append(announced, s) },
	})
	tg.HandleClick()
	if got := tg.State(); got != ToggleActive {
		t.Fatalf("state = %q, want active", got)
	}
	// Initial idle render, then pending, then active.
	if len(views) != 3 {
		t.Fatalf("renders = %d, want 3: %+v", len(views), views)
	}
	if views[1].State != TogglePending || !views[1].Disabled {
		t.Fatalf("pending view = %+v", views[1])
	}
	if views[2].State != ToggleActive || views[2].Label != DefaultToggleStrings().ActiveLabel {
		t.Fatalf("active view = %+v", views[2])
	}
	if len(announced) != 1 || announced[0] != DefaultToggleStrings().ActiveAnnounce {
		t.Fatalf("announced = %v", announced)
	}
	// Active is terminal.
	tg.HandleClick()
	if len(views) != 3 {
		t.Fatalf("re-activated from active: %d renders", len(views))
	}
}

func TestToggleFailureThenRetry(t *testing.T) {
	t.Parallel()
	attempts := 0
	tg := NewToggle(ToggleConfig{
		Toggle: func(complete func(error)) {
			attempts++
			if attempts == 1 {
				complete(errors.New("renderer refused to die"))
				return
			}
			complete(nil)
		},
		IsFallbackActive: func() bool { return true },
	})
	tg.HandleClick()
	if got := tg.State(); got != ToggleError {
		t.Fatalf("state after failure = %q, want error", got)
	}
	tg.HandleClick()
	if got := tg.State(); got != ToggleActive {
		t.Fatalf("state after retry = %q, want active", got)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestToggleIgnoredWhilePending(t *testing.T) {
	t.Parallel()
	var finish func(error)
	attempts := 0
	tg := NewToggle(ToggleConfig{
		Toggle: func(complete func(error)) {
			attempts++
			finish = complete
		},
		IsFallbackActive: func() bool { return true },
	})
	tg.HandleClick()
	tg.HandleClick() // pending, dropped
	tg.HandleClick() // pending, dropped
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
	finish(nil)
	if got := tg.State(); got != ToggleActive {
		t.Fatalf("state = %q, want active", got)
	}
}

func TestToggleUnconfirmedCompletionReturnsToIdle(t *testing.T) {
	t.Parallel()
	tg := NewToggle(ToggleConfig{
		Toggle:           func(complete func(error)) { complete(nil) },
		IsFallbackActive: func() bool { return false },
	})
	tg.HandleClick()
	if got := tg.State(); got != ToggleIdle {
		t.Fatalf("state = %q, want idle when fallback never rendered", got)
	}
}

func TestToggleSnapsActiveOnExternalFallback(t *testing.T) {
	t.Parallel()
	bus := NewBus()
	var announced []string
	tg := NewToggle(ToggleConfig{
		Bus:      bus,
		Announce: func(s string) { announced = append(announced, s) },
	})
	bus.Dispatch(Event{Name: EventFallback, Payload: FallbackEvent{Reason: ReasonLowPerformance}})
	if got := tg.State(); got != ToggleActive {
		t.Fatalf("state = %q, want active after external fallback", got)
	}
	if len(announced) != 1 {
		t.Fatalf("announced = %v", announced)
	}
	// Idempotent on repeated broadcasts.
	bus.Dispatch(Event{Name: EventFallback, Payload: FallbackEvent{Reason: ReasonManual}})
	if len(announced) != 1 {
		t.Fatalf("re-announced on second broadcast: %v", announced)
	}
	tg.Close()
}

func TestToggleKeyMatching(t *testing.T) {
	t.Parallel()
	attempts := 0
	tg := NewToggle(ToggleConfig{
		Key:    "t",
		Toggle: func(complete func(error)) { attempts++ },
	})
	tg.HandleKey("x")
	tg.HandleKey("T") // case sensitive, modifier-free key value
	if attempts != 0 {
		t.Fatalf("activated on wrong key: %d", attempts)
	}
	tg.HandleKey("t")
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}
