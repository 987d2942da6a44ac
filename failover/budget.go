package failover

import (
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
)

// BudgetSource names the origin of a counted runtime error.
type BudgetSource string

const (
	SourceConsoleError       BudgetSource = "console-error"
	SourceWindowError        BudgetSource = "window-error"
	SourceUnhandledRejection BudgetSource = "unhandledrejection"
)

// BudgetExceededDetail is the payload handed to the callback and broadcast
// when the error budget is exhausted. SourceCounts is cumulative across all
// sources; Source names only the event that tripped the monitor.
type BudgetExceededDetail struct {
	Count        int                  `json:"count"`
	Budget       int                  `json:"budget"`
	Remaining    int                  `json:"remaining"`
	Source       BudgetSource         `json:"source"`
	SourceCounts map[BudgetSource]int `json:"sourceCounts"`
	Detail       string               `json:"detail,omitempty"`
}

// BudgetConfig wires a BudgetMonitor.
type BudgetConfig struct {
	// Budget is the number of errors tolerated before the monitor trips;
	// 0 means the very first event trips it. Negative values are
	// normalized to 0.
	Budget int
	// Sink is the error-logging entry point to intercept. Every line
	// written through the returned Logger is forwarded to the sink's
	// original destination and counted as a console error.
	Sink *log.Logger
	// Bus, when set, provides the runtime error subscriptions and the
	// broadcast target for the exceeded event.
	Bus *Bus
	// EventName overrides the broadcast event name.
	EventName string
	// OnExceeded is invoked synchronously, once, when the budget trips.
	OnExceeded func(BudgetExceededDetail)
}

// BudgetMonitor counts runtime errors across three sources and latches once
// the configured tolerance is exceeded. Further events are ignored after the
// latch; Dispose detaches everything and restores the intercepted sink.
type BudgetMonitor struct {
	mu       sync.Mutex
	cfg      BudgetConfig
	counts   map[BudgetSource]int
	total    int
	latched  bool
	disposed bool

	sink      *log.Logger
	origOut   io.Writer
	intercept *interceptWriter
	unsubs    []func()
}

// NewBudgetMonitor arms a monitor. If cfg.Sink is set its output is wrapped
// with a counting interceptor; if cfg.Bus is set the monitor subscribes to
// the runtime error events.
func NewBudgetMonitor(cfg BudgetConfig) *BudgetMonitor {
	if cfg.Budget < 0 {
		cfg.Budget = 0
	}
	if cfg.EventName == "" {
		cfg.EventName = EventBudgetExceeded
	}
	m := &BudgetMonitor{
		cfg:    cfg,
		counts: make(map[BudgetSource]int),
	}
	if cfg.Sink != nil {
		m.sink = cfg.Sink
		m.origOut = cfg.Sink.Writer()
		m.intercept = &interceptWriter{orig: m.origOut, monitor: m}
		m.intercept.armed.Store(true)
		cfg.Sink.SetOutput(m.intercept)
	}
	if cfg.Bus != nil {
		m.unsubs = append(m.unsubs,
			cfg.Bus.Subscribe(EventRuntimeError, func(ev Event) {
				m.record(SourceWindowError, payloadDetail(ev.Payload))
			}),
			cfg.Bus.Subscribe(EventUnhandledRejection, func(ev Event) {
				m.record(SourceUnhandledRejection, payloadDetail(ev.Payload))
			}),
		)
	}
	return m
}

// Logger returns the intercepted sink, or nil when no sink was configured.
func (m *BudgetMonitor) Logger() *log.Logger { return m.sink }

// RecordWindowError counts one uncaught exception report.
func (m *BudgetMonitor) RecordWindowError(detail string) {
	m.record(SourceWindowError, detail)
}

// RecordUnhandledRejection counts one unhandled rejection report.
func (m *BudgetMonitor) RecordUnhandledRejection(detail string) {
	m.record(SourceUnhandledRejection, detail)
}

// Counts returns a copy of the per-source counters.
func (m *BudgetMonitor) Counts() map[BudgetSource]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[BudgetSource]int, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}

// Latched reports whether the budget has already tripped.
func (m *BudgetMonitor) Latched() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latched
}

// Dispose restores the intercepted sink and detaches the subscriptions.
// Events arriving after Dispose are not counted.
func (m *BudgetMonitor) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	sink, orig, iw := m.sink, m.origOut, m.intercept
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	if iw != nil {
		// Disarming stops the counting immediately. The writer swap must
		// happen off the write path: an in-flight line through the sink
		// holds the logger's output mutex, and Dispose can be reached from
		// inside that very write when the tripping error arrived through
		// the sink.
		iw.armed.Store(false)
		go sink.SetOutput(orig)
	}
	for _, cancel := range unsubs {
		cancel()
	}
}

func (m *BudgetMonitor) record(source BudgetSource, detail string) {
	m.mu.Lock()
	if m.latched || m.disposed {
		m.mu.Unlock()
		return
	}
	m.counts[source]++
	m.total++
	if m.total <= m.cfg.Budget {
		m.mu.Unlock()
		return
	}
	m.latched = true
	remaining := m.cfg.Budget - m.total
	if remaining < 0 {
		remaining = 0
	}
	counts := make(map[BudgetSource]int, len(m.counts))
	for k, v := range m.counts {
		counts[k] = v
	}
	d := BudgetExceededDetail{
		Count:        m.total,
		Budget:       m.cfg.Budget,
		Remaining:    remaining,
		Source:       source,
		SourceCounts: counts,
		Detail:       detail,
	}
	cfg := m.cfg
	m.mu.Unlock()

	if cfg.OnExceeded != nil {
		cfg.OnExceeded(d)
	}
	if cfg.Bus != nil {
		cfg.Bus.Dispatch(Event{Name: cfg.EventName, Payload: d})
	}
}

// interceptWriter forwards every write to the original destination before
// counting it, so the sink keeps working even while instrumented. Once
// disarmed it is a pure passthrough.
type interceptWriter struct {
	orig    io.Writer
	monitor *BudgetMonitor
	armed   atomic.Bool
}

func (w *interceptWriter) Write(p []byte) (int, error) {
	n, err := w.orig.Write(p)
	if w.armed.Load() {
		w.monitor.record(SourceConsoleError, strings.TrimSpace(string(p)))
	}
	return n, err
}

func payloadDetail(p any) string {
	if s, ok := p.(string); ok {
		return s
	}
	return ""
}
