package failover

import "strings"

// Decision is the one-shot boot decision produced by Probe. Reason is empty
// exactly when ShouldUseFallback is false.
type Decision struct {
	ShouldUseFallback bool   `json:"shouldUseFallback"`
	Reason            Reason `json:"reason,omitempty"`
}

// Signals are the ambient environment readers the prober combines. Every
// reader is independently injectable so the decision engine is testable
// without a real client; a nil reader means the signal is absent, never a
// failure needing recovery.
type Signals struct {
	// ModeOverride returns "immersive", "text" or "" (absent).
	ModeOverride func() string
	// BypassRequested reports the performance-failover bypass flag.
	BypassRequested func() bool
	// StoredPreference returns the persisted mode choice, or "".
	StoredPreference func() string
	// LogicalCores reports the logical CPU count; ok=false when unknown.
	LogicalCores func() (int, bool)
	// DeviceMemoryGB reports device memory; ok=false when unknown.
	DeviceMemoryGB func() (float64, bool)
	// UserAgent returns the raw client string, or "".
	UserAgent func() string
	// Webdriver reports the automated-control flag.
	Webdriver func() bool
	// CanCreateRenderingContext reports whether a canvas drawing context
	// could be acquired under any of the known context names. A nil
	// reader is taken as capable.
	CanCreateRenderingContext func() bool
	// SaveData reports the reduced-data preference.
	SaveData func() bool
	// EffectiveConnectionType returns the network hint ("4g", "2g", ...).
	EffectiveConnectionType func() string
}

// ProbeConfig tunes the decision thresholds and pattern lists.
type ProbeConfig struct {
	MinLogicalCores         int
	MinDeviceMemoryGB       float64
	LowEndDevicePatterns    []string
	AutomatedClientPatterns []string
	SlowConnectionTypes     []string
}

// DefaultProbeConfig returns the stock thresholds.
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		MinLogicalCores:   2,
		MinDeviceMemoryGB: 2,
		LowEndDevicePatterns: []string{
			"android 4", "android go", "kaios", "nokia", "opera mini",
			"symbian", "series40", "ucbrowser",
		},
		AutomatedClientPatterns: []string{
			"bot", "crawl", "spider", "headlesschrome", "lighthouse",
			"phantomjs", "selenium", "puppeteer", "playwright", "slurp",
		},
		SlowConnectionTypes: []string{"slow-2g", "2g"},
	}
}

// Probe combines the signals into the single boot decision. First match
// wins, in the documented precedence order; the call is pure and performs
// no I/O beyond invoking the supplied readers.
func Probe(cfg ProbeConfig, sig Signals) Decision {
	def := DefaultProbeConfig()
	if cfg.MinLogicalCores <= 0 {
		cfg.MinLogicalCores = def.MinLogicalCores
	}
	if cfg.MinDeviceMemoryGB <= 0 {
		cfg.MinDeviceMemoryGB = def.MinDeviceMemoryGB
	}
	if cfg.LowEndDevicePatterns == nil {
		cfg.LowEndDevicePatterns = def.LowEndDevicePatterns
	}
	if cfg.AutomatedClientPatterns == nil {
		cfg.AutomatedClientPatterns = def.AutomatedClientPatterns
	}
	if cfg.SlowConnectionTypes == nil {
		cfg.SlowConnectionTypes = def.SlowConnectionTypes
	}

	mode := readString(sig.ModeOverride)
	bypass := readBool(sig.BypassRequested)
	ua := strings.ToLower(readString(sig.UserAgent))
	canRender := sig.CanCreateRenderingContext == nil || sig.CanCreateRenderingContext()

	// 1. Explicit text override.
	if mode == ModeText {
		return fallback(ReasonManual)
	}
	// 2. Explicit immersive override beats every signal except an outright
	// inability to create a rendering context.
	if mode == ModeImmersive {
		if !canRender {
			return fallback(ReasonWebGLUnsupported)
		}
		return Decision{}
	}
	// 3. Persisted text preference.
	if readString(sig.StoredPreference) == ModeText {
		return fallback(ReasonManual)
	}
	// 4. Low-end device, suppressed by the bypass flag.
	if !bypass {
		if cores, ok := readIntOK(sig.LogicalCores); ok && cores > 0 && cores <= cfg.MinLogicalCores {
			return fallback(ReasonLowEndDevice)
		}
		if matchesAny(ua, cfg.LowEndDevicePatterns) {
			return fallback(ReasonLowEndDevice)
		}
	}
	// 5. Automated client; not suppressed by the bypass flag.
	if matchesAny(ua, cfg.AutomatedClientPatterns) || readBool(sig.Webdriver) {
		return fallback(ReasonAutomatedClient)
	}
	// 6. No rendering context at all.
	if !canRender {
		return fallback(ReasonWebGLUnsupported)
	}
	// 7. Low memory, suppressed by the bypass flag.
	if !bypass {
		if mem, ok := readFloatOK(sig.DeviceMemoryGB); ok && mem < cfg.MinDeviceMemoryGB {
			return fallback(ReasonLowMemory)
		}
	}
	// 8. Reduced-data preference or slow connection.
	if !bypass {
		if readBool(sig.SaveData) {
			return fallback(ReasonDataSaver)
		}
		ect := strings.ToLower(readString(sig.EffectiveConnectionType))
		if ect != "" && matchesExact(ect, cfg.SlowConnectionTypes) {
			return fallback(ReasonDataSaver)
		}
	}
	// 9. Immersive.
	return Decision{}
}

func fallback(r Reason) Decision {
	return Decision{ShouldUseFallback: true, Reason: r}
}

func readString(fn func() string) string {
	if fn == nil {
		return ""
	}
	return fn()
}

func readBool(fn func() bool) bool {
	if fn == nil {
		return false
	}
	return fn()
}

func readIntOK(fn func() (int, bool)) (int, bool) {
	if fn == nil {
		return 0, false
	}
	return fn()
}

func readFloatOK(fn func() (float64, bool)) (float64, bool) {
	if fn == nil {
		return 0, false
	}
	return fn()
}

func matchesAny(s string, patterns []string) bool {
	if s == "" {
		return false
	}
	for _, p := range patterns {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func matchesExact(s string, values []string) bool {
	for _, v := range values {
		if s == v {
			return true
		}
	}
	return false
}
