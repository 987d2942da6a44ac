package failover

import (
	"log"
	"sync"
)

// Renderer is the handle the coordinator needs from the immersive renderer:
// enough to silence it, release it, and take its surface out of the page.
type Renderer interface {
	StopFrameLoop()
	Dispose()
	RemoveSurface()
}

// PaintLinks are the outbound links the fallback painter receives.
type PaintLinks struct {
	ImmersiveURL string
	ResumeURL    string
	GithubURL    string
}

// FallbackEvent is the payload of the broadcast failover event.
type FallbackEvent struct {
	Reason  Reason                `json:"reason"`
	Perf    *FpsSummary           `json:"perf,omitempty"`
	Console *BudgetExceededDetail `json:"console,omitempty"`
}

// CoordinatorConfig wires a Coordinator and its optional monitors.
type CoordinatorConfig struct {
	Renderer Renderer
	Document *Document
	// Paint paints the text substitute into the document's container.
	Paint func(*Document, PaintOptions) error
	// MarkReady tells the host application which mode it ended up in.
	MarkReady func(mode string, reason Reason)
	// OnBeforeFallback runs just before teardown; its failure never
	// blocks the transition.
	OnBeforeFallback func(Reason) error
	// LogTrigger receives the trigger context for diagnostics.
	LogTrigger func(Reason, *FpsSummary, *BudgetExceededDetail)
	Links      PaintLinks
	Bus        *Bus
	Logger     *log.Logger
	// Perf arms a performance monitor; nil disables it.
	Perf *PerfConfig
	// Budget arms an error-budget monitor; nil disables it.
	Budget *BudgetConfig
}

// Coordinator owns the single irreversible transition to the text
// substitute. The transitioned latch is the only guard needed against the
// performance and budget monitors racing to trigger in the same tick.
type Coordinator struct {
	mu           sync.Mutex
	cfg          CoordinatorConfig
	logger       *log.Logger
	perf         *PerformanceMonitor
	budget       *BudgetMonitor
	transitioned bool
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	c := &Coordinator{cfg: cfg, logger: cfg.Logger}
	if cfg.Perf != nil {
		c.perf = NewPerformanceMonitor(*cfg.Perf, func(s *FpsSummary) {
			c.transition(ReasonLowPerformance, s, nil)
		})
	}
	if cfg.Budget != nil {
		bcfg := *cfg.Budget
		if bcfg.Bus == nil {
			bcfg.Bus = cfg.Bus
		}
		chained := bcfg.OnExceeded
		bcfg.OnExceeded = func(d BudgetExceededDetail) {
			if chained != nil {
				chained(d)
			}
			c.transition(ReasonConsoleError, nil, &d)
		}
		c.budget = NewBudgetMonitor(bcfg)
	}
	return c
}

// Transitioned reports whether the fallback transition already happened.
func (c *Coordinator) Transitioned() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitioned
}

// Budget exposes the owned budget monitor, or nil when disabled.
func (c *Coordinator) Budget() *BudgetMonitor { return c.budget }

// DisablePerformanceTrigger detaches the performance monitor, so frame
// deltas can never cause the fallback transition. The budget monitor and
// manual triggers stay armed; the bypass scopes performance only.
func (c *Coordinator) DisablePerformanceTrigger() {
	c.mu.Lock()
	c.perf = nil
	c.mu.Unlock()
}

// Update forwards one frame delta to the performance monitor. No-op after
// the transition.
func (c *Coordinator) Update(deltaSeconds float64) {
	c.mu.Lock()
	perf := c.perf
	transitioned := c.transitioned
	c.mu.Unlock()
	if transitioned || perf == nil {
		return
	}
	perf.Update(deltaSeconds)
}

// TriggerFallback is the public manual entry point (used by the mode
// toggle and by immersive-init failures).
func (c *Coordinator) TriggerFallback(reason Reason) {
	c.transition(reason, nil, nil)
}

func (c *Coordinator) transition(reason Reason, perf *FpsSummary, console *BudgetExceededDetail) {
	c.mu.Lock()
	if c.transitioned {
		c.mu.Unlock()
		return
	}
	c.transitioned = true
	c.mu.Unlock()

	if c.budget != nil {
		c.budget.Dispose()
	}
	if c.cfg.LogTrigger != nil {
		c.step("log trigger", func() error {
			c.cfg.LogTrigger(reason, perf, console)
			return nil
		})
	}
	if c.cfg.Bus != nil {
		c.cfg.Bus.Dispatch(Event{
			Name:    EventFallback,
			Payload: FallbackEvent{Reason: reason, Perf: perf, Console: console},
		})
	}
	if c.cfg.OnBeforeFallback != nil {
		c.step("before-fallback hook", func() error {
			return c.cfg.OnBeforeFallback(reason)
		})
	}
	if r := c.cfg.Renderer; r != nil {
		c.step("stop frame loop", func() error { r.StopFrameLoop(); return nil })
		c.step("dispose renderer", func() error { r.Dispose(); return nil })
		c.step("remove surface", func() error { r.RemoveSurface(); return nil })
	}
	if c.cfg.Paint != nil && c.cfg.Document != nil {
		c.step("paint fallback", func() error {
			return c.cfg.Paint(c.cfg.Document, PaintOptions{
				Reason:       reason,
				ImmersiveURL: c.cfg.Links.ImmersiveURL,
				ResumeURL:    c.cfg.Links.ResumeURL,
				GithubURL:    c.cfg.Links.GithubURL,
			})
		})
	}
	if c.cfg.MarkReady != nil {
		c.step("mark ready", func() error {
			c.cfg.MarkReady(DocModeFallback, reason)
			return nil
		})
	}
}

// step runs one transition stage, logging and continuing on failure or
// panic. Reaching the painted fallback state beats a clean teardown.
func (c *Coordinator) step(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Printf("FAIL %s panicked: %v", name, r)
		}
	}()
	if err := fn(); err != nil {
		c.logger.Printf("FAIL %s: %v", name, err)
	}
}
