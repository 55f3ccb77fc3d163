// Package views serves the control panel: one controller per page,
// dispatched through a single switch on session.Page, plus the form
// actions and SSE streams the pages post to.
package views

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ollama-dash/internal/activity"
	"ollama-dash/internal/config"
	"ollama-dash/internal/ollama"
	"ollama-dash/internal/session"
	"ollama-dash/internal/telemetry"
)

// Deps are the collaborators a Server drives.
type Deps struct {
	State    *session.State
	Client   *ollama.Client
	Shows    *ollama.ShowCache
	Activity *activity.Log
	Bus      *activity.Bus
	Metrics  *telemetry.Metrics
	Checker  *telemetry.Checker

	Templates fs.FS
	Static    fs.FS
}

// Server handles every control panel route.
type Server struct {
	cfg    config.Config
	logger *slog.Logger

	state    *session.State
	client   *ollama.Client
	shows    *ollama.ShowCache
	activity *activity.Log
	bus      *activity.Bus
	metrics  *telemetry.Metrics
	checker  *telemetry.Checker

	pages  map[session.Page]*template.Template
	static fs.FS
	now    func() time.Time
}

// NewServer parses the page templates and wires the handlers.
func NewServer(cfg config.Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.State == nil || deps.Client == nil {
		return nil, fmt.Errorf("views: state and client are required")
	}
	pages, err := parsePages(deps.Templates)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		state:    deps.State,
		client:   deps.Client,
		shows:    deps.Shows,
		activity: deps.Activity,
		bus:      deps.Bus,
		metrics:  deps.Metrics,
		checker:  deps.Checker,
		pages:    pages,
		static:   deps.Static,
		now:      time.Now,
	}
	if s.shows == nil {
		s.shows = ollama.NewShowCache(s.client, cfg.ShowCacheTTL)
	}
	if s.activity == nil {
		s.activity = activity.NewLog(cfg.ActivityBuffer, s.bus)
	}
	if s.checker == nil {
		s.checker = telemetry.NewChecker(s.client, s.metrics, logger)
	}
	return s, nil
}

// ServeHTTP routes requests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/" && r.Method == http.MethodGet:
		s.handleIndex(w, r)
	case path == "/connection" && r.Method == http.MethodPost:
		s.handleSetConnection(w, r)
	case path == "/connection/test" && r.Method == http.MethodPost:
		s.handleTestConnection(w, r)
	case path == "/models/load" && r.Method == http.MethodPost:
		s.handleLoad(w, r)
	case path == "/models/unload" && r.Method == http.MethodPost:
		s.handleUnload(w, r)
	case path == "/models/delete" && r.Method == http.MethodPost:
		s.handleDelete(w, r)
	case path == "/models/show" && r.Method == http.MethodPost:
		s.handleShow(w, r)
	case path == "/stream/pull" && r.Method == http.MethodPost:
		s.handlePullStream(w, r)
	case path == "/stream/chat" && r.Method == http.MethodPost:
		s.handleChatStream(w, r)
	case path == "/chat/clear" && r.Method == http.MethodPost:
		s.handleClearChat(w, r)
	case path == "/events" && r.Method == http.MethodGet:
		s.handleEvents(w, r)
	case path == "/metrics" && r.Method == http.MethodGet:
		s.handleMetrics(w, r)
	case path == "/healthz":
		s.handleHealthz(w, r)
	case path == "/healthz/daemon":
		s.handleHealthzDaemon(w, r)
	case strings.HasPrefix(path, "/static/") && r.Method == http.MethodGet:
		s.handleStatic(w, r)
	default:
		http.NotFound(w, r)
	}
}

// handleIndex renders the active page. A valid ?page= switches it first.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if q := r.URL.Query().Get("page"); q != "" {
		if p, ok := session.ParsePage(q); ok {
			s.state.SetPage(p)
		}
	}
	s.renderPage(w, r, s.state.Page(), nil)
}

// renderPage dispatches to the page controller. details is only used by
// Model Management after a show request.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, page session.Page, details *detailsView) {
	if !s.state.Connected() {
		s.render(w, page, nil, nil)
		return
	}

	ctx := r.Context()
	var (
		body any
		errs []string
	)
	switch page {
	case session.PageOverview:
		body, errs = s.overviewPage(ctx)
	case session.PageModelManagement:
		body, errs = s.modelsPage(ctx, details)
	case session.PageModelInteraction:
		body, errs = s.interactPage(ctx)
	case session.PageServerStatus:
		body, errs = s.statusPage(ctx)
	}
	s.render(w, page, body, errs)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		http.Error(w, "event bus not available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch := s.bus.Subscribe()
	defer s.bus.Unsubscribe(ch)
	s.logger.Debug("events subscriber connected", "subscribers", s.bus.Subscribers())

	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			frame, err := activity.FormatSSE("", e)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte(frame)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.MetricsEnabled || s.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	telemetry.Handler().ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleHealthzDaemon runs a connectivity check on demand.
func (s *Server) handleHealthzDaemon(w http.ResponseWriter, r *http.Request) {
	_, _ = s.checker.Check(r.Context())
	code := http.StatusOK
	if !s.checker.Healthy() {
		code = http.StatusServiceUnavailable
	}
	s.writeJSONStatus(w, code, s.checker.Status())
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if s.static == nil {
		http.Error(w, "static assets not available", http.StatusServiceUnavailable)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/static/")
	if name == "" || strings.Contains(name, "..") {
		http.NotFound(w, r)
		return
	}
	b, err := fs.ReadFile(s.static, name)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	contentType := "application/octet-stream"
	switch {
	case strings.HasSuffix(name, ".css"):
		contentType = "text/css; charset=utf-8"
	case strings.HasSuffix(name, ".js"):
		contentType = "application/javascript; charset=utf-8"
	case strings.HasSuffix(name, ".svg"):
		contentType = "image/svg+xml"
	case strings.HasSuffix(name, ".png"):
		contentType = "image/png"
	case strings.HasSuffix(name, ".ico"):
		contentType = "image/x-icon"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(b)
}

func (s *Server) writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		s.logger.Error("failed to encode JSON error", "err", err)
	}
}

// refreshModels replaces the local model list with a fresh fetch. On error
// the previous list stays as the last successful result.
func (s *Server) refreshModels(ctx context.Context) error {
	models, err := s.client.ListModels(ctx)
	if err != nil {
		return err
	}
	s.state.ReplaceModels(models, s.now())
	return nil
}

func (s *Server) refreshRunning(ctx context.Context) error {
	running, err := s.client.ListRunning(ctx)
	if err != nil {
		return err
	}
	s.state.ReplaceRunning(running, s.now())
	return nil
}
