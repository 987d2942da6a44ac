package failover

// PerfConfig tunes the sustained low-fps rule.
type PerfConfig struct {
	// FpsThreshold is the frame rate below which a frame counts as slow.
	FpsThreshold float64
	// MinimumDurationMs is how long fps must stay below the threshold,
	// without interruption, before the monitor fires.
	MinimumDurationMs float64
	// StallThresholdMs treats any single frame longer than this as a pause
	// (tab backgrounded, debugger) rather than as slowness.
	StallThresholdMs float64
}

func (c PerfConfig) withDefaults() PerfConfig {
	if c.FpsThreshold <= 0 {
		c.FpsThreshold = 30
	}
	if c.MinimumDurationMs <= 0 {
		c.MinimumDurationMs = 5000
	}
	if c.StallThresholdMs <= 0 {
		c.StallThresholdMs = 1000
	}
	return c
}

// PerformanceMonitor consumes per-frame time deltas and fires exactly once
// when the frame rate has been below the threshold for the configured
// sustained duration. Any fast frame or stall resets the accumulation; the
// rule is sustained degradation, not cumulative.
type PerformanceMonitor struct {
	cfg       PerfConfig
	acc       *FpsAccumulator
	lowMs     float64
	triggered bool
	onTrigger func(*FpsSummary)
}

// NewPerformanceMonitor arms a monitor. onTrigger receives the sample
// summary at the trigger instant and is invoked at most once.
func NewPerformanceMonitor(cfg PerfConfig, onTrigger func(*FpsSummary)) *PerformanceMonitor {
	return &PerformanceMonitor{
		cfg:       cfg.withDefaults(),
		acc:       NewFpsAccumulator(),
		onTrigger: onTrigger,
	}
}

// Triggered reports whether the monitor has already fired.
func (m *PerformanceMonitor) Triggered() bool { return m.triggered }

// Update records one frame delta, in seconds. No-op once triggered.
func (m *PerformanceMonitor) Update(deltaSeconds float64) {
	if m.triggered || deltaSeconds <= 0 {
		return
	}
	deltaMs := deltaSeconds * 1000
	if deltaMs > m.cfg.StallThresholdMs {
		// A pause, not slowness. Do not count it against the device.
		m.lowMs = 0
		m.acc.Reset()
		return
	}
	fps := 1000 / deltaMs
	if fps >= m.cfg.FpsThreshold {
		m.lowMs = 0
		m.acc.Reset()
		return
	}
	m.lowMs += deltaMs
	m.acc.Record(fps)
	if m.lowMs >= m.cfg.MinimumDurationMs {
		m.triggered = true
		summary := m.acc.Summary()
		if m.onTrigger != nil {
			m.onTrigger(summary)
		}
	}
}
