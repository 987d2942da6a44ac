package shell

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"atrium/failover"
)

const sessionCookieName = "ATRIUM_SESSION"

// directiveQueue stands in for the remote renderer handle: teardown calls
// are queued as directives and drained to the client with its next
// telemetry response.
type directiveQueue struct {
	mu      sync.Mutex
	pending []string
}

func (q *directiveQueue) enqueue(d string) {
	q.mu.Lock()
	q.pending = append(q.pending, d)
	q.mu.Unlock()
}

func (q *directiveQueue) StopFrameLoop() { q.enqueue("stop-frame-loop") }
func (q *directiveQueue) Dispose()       { q.enqueue("dispose-renderer") }
func (q *directiveQueue) RemoveSurface() { q.enqueue("remove-surface") }

// Drain returns and clears the pending directives.
func (q *directiveQueue) Drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// session holds one client's degradation state for the page's lifetime.
type session struct {
	key         string
	doc         *failover.Document
	bus         *failover.Bus
	coordinator *failover.Coordinator
	toggle      *failover.Toggle
	announcer   *failover.Announcer
	directives  *directiveQueue
	errlog      *log.Logger
	created     time.Time
}

type sessionStore struct {
	mu       sync.Mutex
	server   *Server
	sessions map[string]*session
	clock    func() time.Time
	ttl      time.Duration
}

func newSessionStore(s *Server) *sessionStore {
	return &sessionStore{
		server:   s,
		sessions: make(map[string]*session),
		clock:    s.clock,
		ttl:      s.cfg.SessionTTL,
	}
}

func (st *sessionStore) ensure(key string) *session {
	st.mu.Lock()
	defer st.mu.Unlock()
	if sess, ok := st.sessions[key]; ok {
		if st.clock().Sub(sess.created) < st.ttl {
			return sess
		}
		sess.close()
		delete(st.sessions, key)
	}
	sess := st.server.newSession(key)
	st.sessions[key] = sess
	return sess
}

func (sess *session) close() {
	sess.toggle.Close()
	if b := sess.coordinator.Budget(); b != nil {
		b.Dispose()
	}
	failover.ReleaseAnnouncer(sess.doc)
}

func (s *Server) newSession(key string) *session {
	doc := failover.NewDocument()
	bus := failover.NewBus()
	dq := &directiveQueue{}
	sess := &session{
		key:        key,
		doc:        doc,
		bus:        bus,
		directives: dq,
		created:    s.clock(),
	}
	sess.announcer = failover.ForDocument(doc)
	// Client console.error reports funnel through this sink; the budget
	// monitor intercepts it.
	sess.errlog = log.New(s.logger.Writer(), "CLIENT "+shortKey(key)+" ", log.LstdFlags)

	perf := s.cfg.Perf
	budget := failover.BudgetConfig{
		Budget: s.cfg.ErrorBudget,
		Sink:   sess.errlog,
		Bus:    bus,
	}
	sess.coordinator = failover.NewCoordinator(failover.CoordinatorConfig{
		Renderer: dq,
		Document: doc,
		Paint:    s.paintSession,
		MarkReady: func(mode string, reason failover.Reason) {
			doc.SetMode(mode)
			if reason.Valid() {
				doc.SetReasonMarker(reason)
			}
		},
		LogTrigger: func(r failover.Reason, perf *failover.FpsSummary, console *failover.BudgetExceededDetail) {
			if perf != nil {
				s.logger.Printf("FAIL %s reason=%s avg=%.1ffps p95=%.1ffps samples=%d",
					shortKey(key), r, perf.AverageFps, perf.P95Fps, perf.Count)
				return
			}
			s.logger.Printf("FAIL %s reason=%s", shortKey(key), r)
		},
		Links:  s.links(),
		Bus:    bus,
		Logger: s.logger,
		Perf:   &perf,
		Budget: &budget,
	})
	sess.toggle = failover.NewToggle(failover.ToggleConfig{
		Key: s.cfg.ToggleKey,
		Toggle: func(complete func(error)) {
			sess.coordinator.TriggerFallback(failover.ReasonManual)
			failover.WritePreference(sess.prefKey(), failover.ModeText, s.prefs...)
			complete(nil)
		},
		IsFallbackActive: sess.coordinator.Transitioned,
		Announce:         doc.Announce,
		Bus:              bus,
		Logger:           s.logger,
	})
	return sess
}

// paintSession is the fallback-painter collaborator handed to every
// session's coordinator; it adds the shared poster to the per-transition
// options.
func (s *Server) paintSession(doc *failover.Document, opts failover.PaintOptions) error {
	opts.PosterDataURI = s.poster
	return failover.Paint(doc, opts)
}

func (s *Server) links() failover.PaintLinks {
	links := s.cfg.Links
	if links.ImmersiveURL == "" {
		links.ImmersiveURL = failover.ImmersiveURL("/")
	}
	return links
}

// deriveClientKey identifies the calling client: session cookie first,
// then forwarded address plus client string.
func deriveClientKey(r *http.Request) string {
	if c, err := r.Cookie(sessionCookieName); err == nil && c != nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v
		}
	}
	host := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if host == "" {
		host = r.RemoteAddr
	}
	return host + "|" + r.Header.Get("User-Agent")
}

// ensureSessionCookie assigns a fresh random session key when the client
// has none yet, and returns the effective key.
func (s *Server) ensureSessionCookie(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookieName); err == nil && c != nil && strings.TrimSpace(c.Value) != "" {
		return c.Value
	}
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	key := hex.EncodeToString(buf)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    key,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  s.clock().Add(s.cfg.SessionTTL),
	})
	return key
}

func shortKey(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}

func (sess *session) prefKey() string {
	return failover.PreferenceKey + "|" + sess.key
}
