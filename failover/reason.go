package failover

import "strings"

// Reason categorizes why the text substitute was (or would be) chosen.
// It doubles as the lookup key for user-facing messages.
type Reason string

const (
	ReasonManual            Reason = "manual"
	ReasonWebGLUnsupported  Reason = "webgl-unsupported"
	ReasonLowMemory         Reason = "low-memory"
	ReasonLowPerformance    Reason = "low-performance"
	ReasonImmersiveInitFail Reason = "immersive-init-error"
	ReasonAutomatedClient   Reason = "automated-client"
	ReasonLowEndDevice      Reason = "low-end-device"
	ReasonConsoleError      Reason = "console-error"
	ReasonDataSaver         Reason = "data-saver"
)

// Valid reports whether r is one of the closed set of reasons.
func (r Reason) Valid() bool {
	switch r {
	case ReasonManual, ReasonWebGLUnsupported, ReasonLowMemory,
		ReasonLowPerformance, ReasonImmersiveInitFail, ReasonAutomatedClient,
		ReasonLowEndDevice, ReasonConsoleError, ReasonDataSaver:
		return true
	}
	return false
}

// ParseReason normalizes a wire value to a Reason; ok is false for
// anything outside the closed set.
func ParseReason(s string) (Reason, bool) {
	r := Reason(strings.ToLower(strings.TrimSpace(s)))
	if r.Valid() {
		return r, true
	}
	return "", false
}

var reasonMessages = map[Reason]string{
	ReasonManual:            "Text mode is active. The full 3D experience is one click away.",
	ReasonWebGLUnsupported:  "Your browser cannot create a 3D rendering context, so the text version is shown.",
	ReasonLowMemory:         "This device reports limited memory, so the lighter text version is shown.",
	ReasonLowPerformance:    "The 3D experience was running too slowly, so the text version took over.",
	ReasonImmersiveInitFail: "The 3D experience failed to start, so the text version is shown.",
	ReasonAutomatedClient:   "Automated client detected; serving the text version.",
	ReasonLowEndDevice:      "This device is best served by the lighter text version.",
	ReasonConsoleError:      "Too many runtime errors occurred, so the text version took over.",
	ReasonDataSaver:         "Reduced-data preference detected; serving the lighter text version.",
}

// MessageFor returns the user-facing explanation for a reason. Unknown
// reasons fall back to the manual message so the page always has text.
func MessageFor(r Reason) string {
	if msg, ok := reasonMessages[r]; ok {
		return msg
	}
	return reasonMessages[ReasonManual]
}
