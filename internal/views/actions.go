package views

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"ollama-dash/internal/activity"
	"ollama-dash/internal/config"
	"ollama-dash/internal/ollama"
	"ollama-dash/internal/session"
	"ollama-dash/internal/util"
)

// redirect sends the browser back to the page named by the form's "page"
// field, or to the active page.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request) {
	page := s.state.Page()
	if p, ok := session.ParsePage(r.FormValue("page")); ok {
		page = p
		s.state.SetPage(p)
	}
	http.Redirect(w, r, "/?page="+page.Slug(), http.StatusSeeOther)
}

// perform runs one daemon call as a logged, recorded operator action.
func (s *Server) perform(ctx context.Context, op, model string, call func(context.Context) error) error {
	id := s.activity.Start(op, model)
	err := call(ctx)
	if err != nil {
		s.activity.Finish(id, activity.StatusError, ollama.ErrorMessage(err), 0)
		s.logger.Warn("daemon action failed", "op", op, "model", model, "err", err)
		return err
	}
	s.activity.Finish(id, activity.StatusSuccess, "", 0)
	s.logger.Info("daemon action", "op", op, "model", model)
	return nil
}

func (s *Server) handleSetConnection(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.FormValue("url"))
	if err := config.ValidateDaemonURL(raw); err != nil {
		s.activity.Record("set connection", raw, err)
		s.state.AddFlash("error", "Invalid server URL: "+err.Error())
		s.redirect(w, r)
		return
	}
	if s.state.SetTarget(raw) {
		err := s.client.SetBaseURL(raw)
		s.activity.Record("set connection", raw, err)
		if err != nil {
			s.state.AddFlash("error", "Invalid server URL: "+err.Error())
			s.redirect(w, r)
			return
		}
		s.shows.Purge()
		s.logger.Info("connection target changed", "target", s.client.BaseURL())
		s.state.AddFlash("info", "Server URL updated. Test the connection to continue.")
	}
	s.redirect(w, r)
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	var info ollama.VersionResponse
	err := s.perform(r.Context(), "test connection", "", func(ctx context.Context) error {
		v, err := s.checker.Check(ctx)
		info = v
		return err
	})
	if err != nil {
		s.state.MarkDisconnected()
		s.state.AddFlash("error", "Connection failed: "+ollama.ErrorMessage(err))
	} else {
		s.state.MarkConnected(session.ServerInfo{Version: info.Version, Build: info.Build, CheckedAt: s.now()})
		s.state.AddFlash("success", "Connected successfully!")
	}
	s.redirect(w, r)
}

// keepAliveFromForm resolves the keep-alive select, including the custom
// minutes field. The returned label is what the operator picked.
func (s *Server) keepAliveFromForm(r *http.Request) (value, label string, ok bool) {
	value = strings.TrimSpace(r.FormValue("keep_alive"))
	if value == "" {
		value = s.cfg.DefaultKeepAlive
	}
	if value == customKeepAlive {
		n, err := strconv.Atoi(strings.TrimSpace(r.FormValue("custom_minutes")))
		if err != nil || n < 1 {
			return "", "", false
		}
		value = strconv.Itoa(n) + "m"
		return value, strconv.Itoa(n) + " minutes", true
	}
	if !config.ValidKeepAlive(value) {
		return "", "", false
	}
	label = value
	for _, c := range keepAliveChoices {
		if c.Value == value {
			label = c.Label
		}
	}
	return value, label, true
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	model := strings.TrimSpace(r.FormValue("model"))
	if model == "" {
		s.state.AddFlash("error", "Please select a model")
		s.redirect(w, r)
		return
	}
	keepAlive, label, ok := s.keepAliveFromForm(r)
	if !ok {
		s.state.AddFlash("error", "Please enter a valid keep-alive duration")
		s.redirect(w, r)
		return
	}

	err := s.perform(r.Context(), "load", model, func(ctx context.Context) error {
		return s.client.Load(ctx, model, config.NormalizeKeepAlive(keepAlive))
	})
	if err != nil {
		s.state.AddFlash("error", "Error loading model: "+ollama.ErrorMessage(err))
	} else {
		s.state.AddFlash("success", "Model "+model+" loaded successfully with keep-alive time of "+label+"!")
		_ = s.refreshRunning(r.Context())
	}
	s.redirect(w, r)
}

func (s *Server) handleUnload(w http.ResponseWriter, r *http.Request) {
	model := strings.TrimSpace(r.FormValue("model"))
	if model == "" {
		s.state.AddFlash("error", "Please select a model")
		s.redirect(w, r)
		return
	}

	err := s.perform(r.Context(), "unload", model, func(ctx context.Context) error {
		return s.client.Unload(ctx, model)
	})
	if err != nil {
		s.state.AddFlash("error", "Error unloading model: "+ollama.ErrorMessage(err))
	} else {
		s.state.AddFlash("success", "Model "+model+" unloaded successfully from VRAM!")
		_ = s.refreshRunning(r.Context())
	}
	s.redirect(w, r)
}

// handleDelete drives the two-step delete. action=request arms the
// confirmation, action=cancel withdraws it, and action=confirm deletes when
// the model is armed or the form carries confirm_delete=on.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	model := strings.TrimSpace(r.FormValue("model"))
	if model == "" {
		s.state.AddFlash("error", "Please select a model")
		s.redirect(w, r)
		return
	}

	switch r.FormValue("action") {
	case "request":
		s.state.RequestDelete(model)
	case "cancel":
		s.state.CancelDelete(model)
	case "confirm":
		if !s.state.DeletePending(model) && r.FormValue("confirm_delete") != "on" {
			s.state.AddFlash("error", "Please confirm deletion")
			break
		}
		err := s.perform(r.Context(), "delete", model, func(ctx context.Context) error {
			return s.client.Delete(ctx, model)
		})
		if err != nil {
			s.state.AddFlash("error", "Error: "+ollama.ErrorMessage(err))
			break
		}
		s.state.CancelDelete(model)
		s.shows.Invalidate(model)
		if err := s.refreshModels(r.Context()); err != nil {
			s.logger.Warn("refresh models after delete", "err", err)
		}
		s.state.AddFlash("success", model+" deleted successfully")
	default:
		s.state.AddFlash("error", "Unknown delete action")
	}
	s.redirect(w, r)
}

func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	s.state.SetPage(session.PageModelManagement)
	model := strings.TrimSpace(r.FormValue("model"))
	if model == "" {
		s.state.AddFlash("error", "Please select a model")
		s.redirect(w, r)
		return
	}

	var details ollama.ShowResponse
	err := s.perform(r.Context(), "show", model, func(ctx context.Context) error {
		var err error
		details, err = s.shows.Get(ctx, model)
		return err
	})
	if err != nil {
		s.state.AddFlash("error", "Error fetching model details: "+ollama.ErrorMessage(err))
		s.renderPage(w, r, session.PageModelManagement, nil)
		return
	}
	s.renderPage(w, r, session.PageModelManagement, &detailsView{Model: model, JSON: util.PrettyJSON(details)})
}

func (s *Server) handleClearChat(w http.ResponseWriter, r *http.Request) {
	s.state.ClearTranscript()
	s.state.SetPage(session.PageModelInteraction)
	http.Redirect(w, r, "/?page="+session.PageModelInteraction.Slug(), http.StatusSeeOther)
}
