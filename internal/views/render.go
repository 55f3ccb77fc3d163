package views

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"ollama-dash/internal/format"
	"ollama-dash/internal/session"
)

type navItem struct {
	Slug   string
	Title  string
	Active bool
}

// pageData is what every page template receives.
type pageData struct {
	Title       string
	Page        session.Page
	Nav         []navItem
	View        session.View
	Flashes     []session.Flash
	Errors      []string
	AutoRefresh int // seconds; zero disables the meta refresh
	Body        any
}

var templateFuncs = template.FuncMap{
	"bytes": format.Bytes,
	"gib":   format.GiB,
	"ago":   format.Ago,
}

// parsePages builds one template set per page: the shared layout plus the
// page's "content" definition.
func parsePages(tfs fs.FS) (map[session.Page]*template.Template, error) {
	base, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(tfs, "layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	pages := make(map[session.Page]*template.Template, len(session.Pages))
	for _, p := range session.Pages {
		t, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(tfs, "pages/"+p.Slug()+".html"); err != nil {
			return nil, fmt.Errorf("parse page %s: %w", p.Slug(), err)
		}
		pages[p] = t
	}
	return pages, nil
}

func (s *Server) render(w http.ResponseWriter, page session.Page, body any, errs []string) {
	view := s.state.Snapshot()
	data := pageData{
		Title:   page.String(),
		Page:    page,
		View:    view,
		Flashes: s.state.TakeFlashes(),
		Errors:  errs,
		Body:    body,
	}
	for _, p := range session.Pages {
		data.Nav = append(data.Nav, navItem{Slug: p.Slug(), Title: p.String(), Active: p == page})
	}
	if page == session.PageOverview && view.Connected {
		data.AutoRefresh = int(s.cfg.AutoRefreshInterval / time.Second)
	}

	t, ok := s.pages[page]
	if !ok {
		http.Error(w, "unknown page", http.StatusNotFound)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		s.logger.Error("render page", "page", page.Slug(), "err", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}
