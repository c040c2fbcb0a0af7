package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"teamcal/internal/config"
	appLog "teamcal/internal/log"
	"teamcal/internal/metrics"
	"teamcal/internal/prefs"
	"teamcal/internal/refresh"
)

// Server provides the calendar HTTP API, the rendered /calendar page and the
// PNG preview.
type Server struct {
	cfg     *config.Config
	refresh *refresh.Service
	prefs   *prefs.Store
	metrics *metrics.Manager
	now     func() time.Time
	mux     *http.ServeMux

	// In-memory cache for /api/grid responses. Entries are bound to the
	// snapshot they were built from and dropped when preferences change.
	gridMu    sync.RWMutex
	gridCache map[string]gridCacheEntry
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics instruments every request and exposes /metrics.
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Server) { s.metrics = m }
}

// WithClock replaces time.Now for past-event shading and the default date.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer constructs a new Server. store may be nil, in which case the
// default preferences are served read-only.
func NewServer(cfg *config.Config, svc *refresh.Service, store *prefs.Store, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		refresh:   svc,
		prefs:     store,
		now:       time.Now,
		mux:       http.NewServeMux(),
		gridCache: make(map[string]gridCacheEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.cfg.APIKey != "" {
		h = s.apiKeyMiddleware(h)
	}
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	if s.metrics != nil {
		h = s.metricsMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty password disables basic auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="TeamCal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// apiKeyMiddleware requires X-API-Key on /api/* routes.
func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	key := s.cfg.APIKey
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		if !secureCompare(r.Header.Get("X-API-Key"), key) {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		// The mux fills in the matched pattern; unmatched paths share one
		// label.
		route := r.Pattern
		if i := strings.IndexByte(route, ' '); i >= 0 {
			route = route[i+1:]
		}
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveHTTP(route, r.Method, rec.code, time.Since(start))
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Run listens on cfg.Listen and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	appLog.Info("starting HTTP server", "listen", "http://"+ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/users", s.handleUsers)
	s.mux.HandleFunc("GET /api/calendars/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/grid", s.handleGrid)
	s.mux.HandleFunc("POST /api/popover/place", s.handlePopoverPlace)
	s.mux.HandleFunc("GET /api/prefs", s.handleGetPrefs)
	s.mux.HandleFunc("PUT /api/prefs", s.handlePutPrefs)
	s.mux.HandleFunc("POST /api/sync", s.handleSync)
	s.mux.HandleFunc("GET /api/sync/status", s.handleSyncStatus)

	s.mux.HandleFunc("GET /calendar", s.handleCalendar)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
	s.mux.Handle("GET /metrics", s.metrics.Handler())
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/calendar", http.StatusFound)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePreview serves the last captured PNG from disk.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	// http.ServeFile answers 404 for a missing file.
	http.ServeFile(w, r, s.cfg.Snapshot.OutputPath)
}

// handleSync runs one sync and reports the resulting status. A sync that is
// already running answers 409.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	// A client disconnect must not abort a sync half way.
	ctx := context.WithoutCancel(r.Context())
	err := s.refresh.Sync(ctx)
	if errors.Is(err, refresh.ErrSyncInProgress) {
		writeError(w, http.StatusConflict, "sync already in progress")
		return
	}
	if err != nil {
		appLog.Warn("api sync finished with errors", "err", err)
	}
	s.invalidateGrid()
	writeJSON(w, http.StatusOK, s.refresh.Status())
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.refresh.Status())
}

func (s *Server) settings() prefs.Settings {
	if s.prefs == nil {
		return prefs.Defaults()
	}
	return s.prefs.Get()
}

func (s *Server) handleGetPrefs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.settings())
}

// errInvalidPrefs marks a PUT body the client has to fix.
var errInvalidPrefs = errors.New("invalid preferences")

// handlePutPrefs merges the request body over the stored preferences, so a
// client may send only the fields it changes. A colorOverrides field replaces
// the whole override map.
func (s *Server) handlePutPrefs(w http.ResponseWriter, r *http.Request) {
	if s.prefs == nil {
		writeError(w, http.StatusServiceUnavailable, "preference store unavailable")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 64<<10))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid preferences body")
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid preferences body")
		return
	}

	saved, err := s.prefs.Update(func(p *prefs.Settings) error {
		if _, ok := fields["colorOverrides"]; ok {
			p.ColorOverrides = nil
		}
		if err := json.Unmarshal(body, p); err != nil {
			return fmt.Errorf("%w: %v", errInvalidPrefs, err)
		}
		if err := validatePrefs(*p); err != nil {
			return fmt.Errorf("%w: %v", errInvalidPrefs, err)
		}
		return nil
	})
	if errors.Is(err, errInvalidPrefs) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		appLog.Error("api prefs: save failed", err)
		writeError(w, http.StatusInternalServerError, "failed to save preferences")
		return
	}
	s.invalidateGrid()
	writeJSON(w, http.StatusOK, saved)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseFloatDefault(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
