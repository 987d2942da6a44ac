package shell

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"atrium/failover"
)

// bootResponse is what the client receives before first render.
type bootResponse struct {
	Decision     failover.Decision `json:"decision"`
	Mode         string            `json:"mode"`
	Reason       failover.Reason   `json:"reason,omitempty"`
	ImmersiveURL string            `json:"immersiveUrl"`
	TextModeURL  string            `json:"textModeUrl"`
}

// telemetryRequest carries one tick of client health reports.
type telemetryRequest struct {
	// Frames are per-frame time deltas in seconds.
	Frames []float64 `json:"frames"`
	// Errors are runtime error reports.
	Errors []errorReport `json:"errors"`
	// Keys are activation keys pressed since the last tick.
	Keys []string `json:"keys"`
}

type errorReport struct {
	Source string `json:"source"`
	Detail string `json:"detail"`
}

// telemetryResponse tells the client what changed.
type telemetryResponse struct {
	Mode       string          `json:"mode"`
	Reason     failover.Reason `json:"reason,omitempty"`
	Directives []string        `json:"directives,omitempty"`
	Toggle     string          `json:"toggle"`
	LiveText   string          `json:"liveText,omitempty"`
	LiveSeq    int             `json:"liveSeq"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(s.cfg.IndexHTML)))
	io.WriteString(w, s.cfg.IndexHTML)
}

// handleBoot runs the capability prober over the request's signals and
// commits the session to a mode. The decision is computed exactly once per
// session; a rebooting client gets its session's current mode back.
func (s *Server) handleBoot(w http.ResponseWriter, r *http.Request) {
	key := s.ensureSessionCookie(w, r)
	sess := s.sessions.ensure(key)

	if sess.doc.Mode() != failover.DocModeLoading {
		s.writeBoot(w, sess, failover.Decision{
			ShouldUseFallback: sess.doc.Mode() == failover.DocModeFallback,
			Reason:            sess.doc.ReasonMarker(),
		})
		return
	}

	mode, bypass := failover.ParseModeParams(r.URL.RawQuery)
	if mode != "" {
		// An explicit override is a durable choice.
		failover.WritePreference(sess.prefKey(), mode, s.prefs...)
	}
	if bypass {
		// The bypass flag outlives the boot decision: slow frames reported
		// later in the session must not degrade a shared immersive link.
		sess.coordinator.DisablePerformanceTrigger()
	}
	decision := failover.Probe(s.cfg.Probe, s.signalsFromRequest(r, sess, mode, bypass))

	if decision.ShouldUseFallback {
		sess.coordinator.TriggerFallback(decision.Reason)
	} else {
		sess.doc.SetMode(failover.DocModeImmersive)
	}
	sess.doc.Notifier().Flush()
	s.writeBoot(w, sess, decision)
}

func (s *Server) writeBoot(w http.ResponseWriter, sess *session, decision failover.Decision) {
	resp := bootResponse{
		Decision:     decision,
		Mode:         sess.doc.Mode(),
		Reason:       sess.doc.ReasonMarker(),
		ImmersiveURL: failover.ImmersiveURL("/"),
		TextModeURL:  failover.TextModeURL("/"),
	}
	writeJSON(w, resp)
}

// signalsFromRequest maps request headers, query parameters and the
// persisted preference onto the prober's signal readers. Absent values
// stay absent; the prober never sees a zero it should not trust.
func (s *Server) signalsFromRequest(r *http.Request, sess *session, mode string, bypass bool) failover.Signals {
	q := r.URL.Query()
	return failover.Signals{
		ModeOverride:    func() string { return mode },
		BypassRequested: func() bool { return bypass },
		StoredPreference: func() string {
			return failover.ReadPreference(sess.prefKey(), s.prefs...)
		},
		LogicalCores: func() (int, bool) {
			if v := strings.TrimSpace(q.Get("cores")); v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					return n, true
				}
			}
			return 0, false
		},
		DeviceMemoryGB: func() (float64, bool) {
			v := strings.TrimSpace(q.Get("memory"))
			if v == "" {
				v = strings.TrimSpace(r.Header.Get("Device-Memory"))
			}
			if v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					return f, true
				}
			}
			return 0, false
		},
		UserAgent: func() string { return r.Header.Get("User-Agent") },
		Webdriver: func() bool { return q.Get("webdriver") == "1" },
		CanCreateRenderingContext: func() bool {
			// The client probes its own canvas and reports the result.
			return q.Get("webgl") != "0"
		},
		SaveData: func() bool {
			return strings.EqualFold(r.Header.Get("Save-Data"), "on")
		},
		EffectiveConnectionType: func() string { return r.Header.Get("ECT") },
	}
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key := s.ensureSessionCookie(w, r)
	sess := s.sessions.ensure(key)

	var req telemetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad telemetry: "+err.Error(), http.StatusBadRequest)
		return
	}
	r.Body.Close()

	for _, delta := range req.Frames {
		sess.coordinator.Update(delta)
	}
	for _, rep := range req.Errors {
		switch rep.Source {
		case string(failover.SourceWindowError):
			sess.bus.Dispatch(failover.Event{Name: failover.EventRuntimeError, Payload: rep.Detail})
		case string(failover.SourceUnhandledRejection):
			sess.bus.Dispatch(failover.Event{Name: failover.EventUnhandledRejection, Payload: rep.Detail})
		default:
			sess.errlog.Printf("%s", rep.Detail)
		}
	}
	for _, k := range req.Keys {
		sess.toggle.HandleKey(k)
	}
	sess.doc.Notifier().Flush()

	writeJSON(w, telemetryResponse{
		Mode:       sess.doc.Mode(),
		Reason:     sess.doc.ReasonMarker(),
		Directives: sess.directives.Drain(),
		Toggle:     string(sess.toggle.State()),
		LiveText:   sess.doc.LiveText(),
		LiveSeq:    sess.doc.LiveSequence(),
	})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key := s.ensureSessionCookie(w, r)
	sess := s.sessions.ensure(key)

	_ = r.ParseForm()
	if k := r.FormValue("key"); k != "" {
		sess.toggle.HandleKey(k)
	} else {
		sess.toggle.HandleClick()
	}
	sess.doc.Notifier().Flush()

	writeJSON(w, map[string]string{
		"toggle": string(sess.toggle.State()),
		"mode":   sess.doc.Mode(),
	})
}

func (s *Server) handleFallback(w http.ResponseWriter, r *http.Request) {
	key := deriveClientKey(r)
	sess := s.sessions.ensure(key)
	body, err := failover.RenderContainerHTML(sess.doc)
	if err != nil {
		http.Error(w, "not in fallback mode", http.StatusNotFound)
		return
	}
	page := "<!DOCTYPE html>\n<html><head><title>Portfolio — text version</title></head><body>\n" +
		body +
		"\n<div aria-live=\"polite\" data-live-seq=\"" + strconv.Itoa(sess.doc.LiveSequence()) + "\">" +
		htmlEscape(sess.doc.LiveText()) + "</div>\n</body></html>"
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(page)))
	io.WriteString(w, page)
}

func (s *Server) handleProbeWebGL(w http.ResponseWriter, r *http.Request) {
	s.glOnce.Do(func() {
		s.gl, s.glErr = newGLProbe(s.logger)
	})
	if s.glErr != nil {
		http.Error(w, "probe unavailable: "+s.glErr.Error(), http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()
	res, err := s.gl.Check(ctx, 15*time.Second)
	if err != nil {
		http.Error(w, "probe failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "pong\n")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func htmlEscape(s string) string {
	repl := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return repl.Replace(s)
}
