package failover

import (
	"log"
	"sync"
)

// ToggleState is the manual mode toggle's own lifecycle.
type ToggleState string

const (
	ToggleIdle    ToggleState = "idle"
	TogglePending ToggleState = "pending"
	ToggleActive  ToggleState = "active"
	ToggleError   ToggleState = "error"
)

// ToggleStrings is the replaceable localized text for the control.
type ToggleStrings struct {
	Label          string
	PendingLabel   string
	ActiveLabel    string
	ErrorLabel     string
	ActiveAnnounce string
	ErrorAnnounce  string
}

// DefaultToggleStrings returns the stock English text.
func DefaultToggleStrings() ToggleStrings {
	return ToggleStrings{
		Label:          "Switch to text mode",
		PendingLabel:   "Switching…",
		ActiveLabel:    "Text mode active",
		ErrorLabel:     "Switch failed — try again",
		ActiveAnnounce: "Text mode is now active.",
		ErrorAnnounce:  "Switching to text mode failed. Activate again to retry.",
	}
}

// ToggleView is what the control looks like after a state change.
type ToggleView struct {
	State        ToggleState
	Label        string
	Announcement string
	Disabled     bool
}

// ToggleConfig wires a Toggle.
type ToggleConfig struct {
	// Key is the single modifier-free activation shortcut. Default "t".
	Key string
	// Toggle performs the activation and reports completion, synchronously
	// or on a later tick.
	Toggle func(complete func(error))
	// IsFallbackActive confirms the fallback actually rendered.
	IsFallbackActive func() bool
	// Render is invoked after every state change.
	Render func(ToggleView)
	// Announce, when set, receives the announcement text of each state
	// change that has one.
	Announce func(string)
	// Bus carries the externally broadcast failover event; the toggle
	// snaps to active when someone else causes the transition.
	Bus    *Bus
	Logger *log.Logger
}

// Toggle is the user-facing mode control: idle → pending → active|error,
// error → pending on retry. Active is terminal for the session; the
// fallback cannot be un-toggled.
type Toggle struct {
	mu      sync.Mutex
	cfg     ToggleConfig
	strings ToggleStrings
	state   ToggleState
	gen     int
	cancel  func()
}

func NewToggle(cfg ToggleConfig) *Toggle {
	if cfg.Key == "" {
		cfg.Key = "t"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	t := &Toggle{cfg: cfg, strings: DefaultToggleStrings(), state: ToggleIdle}
	if cfg.Bus != nil {
		t.cancel = cfg.Bus.Subscribe(EventFallback, func(Event) {
			t.snapActive()
		})
	}
	t.render("")
	return t
}

// Close detaches the failover-event subscription.
func (t *Toggle) Close() {
	if t.cancel != nil {
		t.cancel()
	}
}

// State returns the current toggle state.
func (t *Toggle) State() ToggleState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetStrings swaps the localized text and re-renders.
func (t *Toggle) SetStrings(s ToggleStrings) {
	t.mu.Lock()
	t.strings = s
	t.mu.Unlock()
	t.render("")
}

// HandleClick activates the toggle from a pointer event.
func (t *Toggle) HandleClick() { t.activate() }

// HandleKey activates the toggle when key matches the configured shortcut.
// Anything else is ignored.
func (t *Toggle) HandleKey(key string) {
	if key == t.cfg.Key {
		t.activate()
	}
}

func (t *Toggle) activate() {
	t.mu.Lock()
	if t.state == TogglePending || t.state == ToggleActive {
		t.mu.Unlock()
		return
	}
	t.state = TogglePending
	t.gen++
	gen := t.gen
	t.mu.Unlock()
	t.render("")

	if t.cfg.Toggle == nil {
		t.complete(gen, nil)
		return
	}
	t.cfg.Toggle(func(err error) {
		t.complete(gen, err)
	})
}

// complete resolves one activation attempt. Stale completions (superseded
// retries, post-snap callbacks) are dropped.
func (t *Toggle) complete(gen int, err error) {
	t.mu.Lock()
	if t.gen != gen || t.state != TogglePending {
		t.mu.Unlock()
		return
	}
	if err != nil {
		t.state = ToggleError
		t.mu.Unlock()
		t.cfg.Logger.Printf("TOGGLE activation failed: %v", err)
		t.render(t.currentStrings().ErrorAnnounce)
		return
	}
	confirmed := t.cfg.IsFallbackActive == nil || t.cfg.IsFallbackActive()
	if confirmed {
		t.state = ToggleActive
		t.mu.Unlock()
		t.render(t.currentStrings().ActiveAnnounce)
		return
	}
	t.state = ToggleIdle
	t.mu.Unlock()
	t.render("")
}

// snapActive follows an externally broadcast failover: the toggle reflects
// the new mode without its own action being the cause.
func (t *Toggle) snapActive() {
	t.mu.Lock()
	if t.state == ToggleActive {
		t.mu.Unlock()
		return
	}
	t.state = ToggleActive
	t.mu.Unlock()
	t.render(t.currentStrings().ActiveAnnounce)
}

func (t *Toggle) currentStrings() ToggleStrings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.strings
}

func (t *Toggle) render(announcement string) {
	t.mu.Lock()
	s := t.strings
	state := t.state
	t.mu.Unlock()

	view := ToggleView{State: state, Announcement: announcement}
	switch state {
	case TogglePending:
		view.Label = s.PendingLabel
		view.Disabled = true
	case ToggleActive:
		view.Label = s.ActiveLabel
		view.Disabled = true
	case ToggleError:
		view.Label = s.ErrorLabel
	default:
		view.Label = s.Label
	}
	if t.cfg.Render != nil {
		t.cfg.Render(view)
	}
	if announcement != "" && t.cfg.Announce != nil {
		t.cfg.Announce(announcement)
	}
}
