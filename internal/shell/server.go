package shell

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"atrium/failover"
)

const defaultIndexHTML = `<!DOCTYPE html>
<html><body>
<h1>Atrium Controller</h1>
<p>Endpoints: /boot, /telemetry, /toggle, /fallback, /probe/webgl, /ping</p>
</body></html>`

// Config describes server wiring and runtime behaviour.
type Config struct {
	IndexHTML  string
	Logger     *log.Logger
	Clock      func() time.Time
	PrefDir    string
	PosterPath string
	Links      failover.PaintLinks
	Probe      failover.ProbeConfig
	Perf       failover.PerfConfig
	// ErrorBudget is the number of client runtime errors tolerated per
	// session before the fallback transition fires.
	ErrorBudget int
	ToggleKey   string
	SessionTTL  time.Duration
}

// DefaultConfig populates configuration from environment variables.
func DefaultConfig() Config {
	cfg := Config{
		IndexHTML:   defaultIndexHTML,
		Logger:      log.Default(),
		Clock:       time.Now,
		PrefDir:     strings.TrimSpace(os.Getenv("ATRIUM_PREF_DIR")),
		PosterPath:  strings.TrimSpace(os.Getenv("ATRIUM_POSTER")),
		Probe:       failover.DefaultProbeConfig(),
		ErrorBudget: 5,
		ToggleKey:   "t",
		SessionTTL:  2 * time.Hour,
	}
	if cfg.PrefDir == "" {
		cfg.PrefDir = "config/prefs"
	}
	cfg.Links = failover.PaintLinks{
		ImmersiveURL: strings.TrimSpace(os.Getenv("ATRIUM_IMMERSIVE_URL")),
		ResumeURL:    strings.TrimSpace(os.Getenv("ATRIUM_RESUME_URL")),
		GithubURL:    strings.TrimSpace(os.Getenv("ATRIUM_GITHUB_URL")),
	}
	if v := strings.TrimSpace(os.Getenv("ATRIUM_ERROR_BUDGET")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ErrorBudget = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ATRIUM_MIN_MEMORY_GB")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Probe.MinDeviceMemoryGB = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("ATRIUM_MIN_CORES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Probe.MinLogicalCores = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ATRIUM_FPS_THRESHOLD")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Perf.FpsThreshold = f
		}
	}
	return cfg
}

// Server exposes the HTTP handlers implementing the controller behaviour.
type Server struct {
	cfg      Config
	mux      *http.ServeMux
	handler  http.Handler
	logger   *log.Logger
	sessions *sessionStore
	prefs    []failover.PreferenceStore
	poster   string
	clock    func() time.Time

	glOnce sync.Once
	gl     *glProbe
	glErr  error
}

// New wires a new controller server with the provided configuration.
func New(cfg Config) *Server {
	if cfg.IndexHTML == "" {
		cfg.IndexHTML = defaultIndexHTML
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}
	s := &Server{
		cfg:    cfg,
		mux:    http.NewServeMux(),
		logger: cfg.Logger,
		clock:  cfg.Clock,
		prefs: []failover.PreferenceStore{
			failover.NewMemoryPreferenceStore(),
			failover.NewFilePreferenceStore(cfg.PrefDir),
		},
	}
	s.sessions = newSessionStore(s)
	s.poster = s.loadPoster()
	s.registerRoutes()
	s.handler = withLogging(s.logger, s.mux)
	return s
}

// NewServer keeps the zero-config factory shape.
func NewServer() http.Handler {
	return New(DefaultConfig())
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/boot", s.handleBoot)
	s.mux.HandleFunc("/telemetry", s.handleTelemetry)
	s.mux.HandleFunc("/toggle", s.handleToggle)
	s.mux.HandleFunc("/fallback", s.handleFallback)
	s.mux.HandleFunc("/probe/webgl", s.handleProbeWebGL)
	s.mux.HandleFunc("/ping", s.handlePing)
}

func (s *Server) loadPoster() string {
	if s.cfg.PosterPath == "" {
		return ""
	}
	raw, err := os.ReadFile(s.cfg.PosterPath)
	if err != nil {
		s.logger.Printf("POSTER read %s: %v", s.cfg.PosterPath, err)
		return ""
	}
	uri, err := failover.EncodePosterDataURI(raw, s.cfg.PosterPath, failover.PosterConfig{})
	if err != nil {
		s.logger.Printf("POSTER encode: %v", err)
		return ""
	}
	return uri
}
