package views

import (
	"context"
	"time"

	"ollama-dash/internal/activity"
	"ollama-dash/internal/format"
	"ollama-dash/internal/ollama"
	"ollama-dash/internal/session"
	"ollama-dash/internal/telemetry"
)

// popularModels are the pull suggestions offered on Model Management.
var popularModels = []string{
	"llama3.1", "llama3.2", "mistral", "codellama:code",
	"qwen2:4b", "llama2", "phi3:14b", "gemma:7b", "orca-mini",
}

type keepAliveChoice struct {
	Label    string
	Value    string
	Selected bool
}

// customKeepAlive is the select value that defers to custom_minutes.
const customKeepAlive = "custom"

var keepAliveChoices = []keepAliveChoice{
	{Label: "5 minutes", Value: "5m"},
	{Label: "10 minutes", Value: "10m"},
	{Label: "30 minutes", Value: "30m"},
	{Label: "1 hour", Value: "1h"},
	{Label: "4 hours", Value: "4h"},
	{Label: "Indefinite", Value: "1d"},
	{Label: "Custom (minutes)", Value: customKeepAlive},
}

var contextLengths = []int{2048, 4096, 8192, 16384, 32768}

const dateLayout = "2006-01-02 15:04"

type runningRow struct {
	Name           string
	VRAM           string
	Family         string
	Countdown      string
	CountdownClass string
}

type modelCard struct {
	Name        string
	DisplayName string
	Size        string
	Modified    string
	Embedding   bool
	Pending     bool
}

type overviewBody struct {
	Running        []runningRow
	Models         []modelCard
	TotalModels    int
	TotalSize      string
	Latest         string
	Info           session.ServerInfo
	QuickKeepAlive string
	LastRefresh    string
}

func (s *Server) overviewPage(ctx context.Context) (overviewBody, []string) {
	var errs []string
	if err := s.refreshRunning(ctx); err != nil {
		errs = append(errs, "Error loading running models: "+ollama.ErrorMessage(err))
	}
	if err := s.refreshModels(ctx); err != nil {
		errs = append(errs, "Error loading models: "+ollama.ErrorMessage(err))
	}

	v := s.state.Snapshot()
	now := s.now()
	body := overviewBody{
		TotalModels:    len(v.Models),
		TotalSize:      format.GiB(v.TotalSize()),
		Info:           v.Info,
		QuickKeepAlive: s.cfg.QuickLoadKeepAlive,
		LastRefresh:    v.LastRefresh.Format("15:04:05"),
	}
	if latest, ok := v.LatestModel(); ok {
		body.Latest = latest.Name
	}
	for _, m := range v.Running {
		text, class := format.Countdown(m.ExpiresAt, now)
		family := m.Details.Family
		if family == "" {
			family = "Unknown"
		}
		body.Running = append(body.Running, runningRow{
			Name:           m.Name,
			VRAM:           format.GiB(m.SizeVRAM),
			Family:         family,
			Countdown:      text,
			CountdownClass: class,
		})
	}
	for _, m := range v.Models {
		body.Models = append(body.Models, modelCard{
			Name:        m.Name,
			DisplayName: truncate(m.Name, 25),
			Size:        format.Bytes(m.Size),
			Modified:    modified(m.ModifiedAt),
			Embedding:   m.IsEmbedding(),
			Pending:     v.Pending[m.Name],
		})
	}
	return body, errs
}

type modelRow struct {
	Name     string
	Size     string
	Modified string
}

type detailsView struct {
	Model string
	JSON  string
}

type modelsBody struct {
	Popular    []string
	Models     []modelRow
	KeepAlives []keepAliveChoice
	Selected   string
	Details    *detailsView
	LastPull   *session.PullResult
}

func (s *Server) modelsPage(ctx context.Context, details *detailsView) (modelsBody, []string) {
	var errs []string
	if err := s.refreshModels(ctx); err != nil {
		errs = append(errs, "Error loading models: "+ollama.ErrorMessage(err))
	}

	v := s.state.Snapshot()
	body := modelsBody{
		Popular:  popularModels,
		Details:  details,
		LastPull: v.LastPull,
	}
	if details != nil {
		body.Selected = details.Model
	}
	for _, c := range keepAliveChoices {
		c.Selected = c.Value == s.cfg.DefaultKeepAlive
		body.KeepAlives = append(body.KeepAlives, c)
	}
	for _, m := range v.Models {
		body.Models = append(body.Models, modelRow{
			Name:     m.Name,
			Size:     format.Bytes(m.Size),
			Modified: modified(m.ModifiedAt),
		})
	}
	return body, errs
}

type interactBody struct {
	Models         []string
	Transcript     []ollama.Message
	Options        session.ChatOptions
	Mode           string
	ContextLengths []int
	MinTemperature float64
	MaxTemperature float64
	Selected       *ollama.ModelSummary
}

func (s *Server) interactPage(ctx context.Context) (interactBody, []string) {
	var errs []string
	if err := s.refreshModels(ctx); err != nil {
		errs = append(errs, "Error loading models: "+ollama.ErrorMessage(err))
	}

	v := s.state.Snapshot()
	body := interactBody{
		Transcript:     v.Transcript,
		Options:        v.Chat,
		Mode:           v.Chat.Mode.String(),
		ContextLengths: contextLengths,
		MinTemperature: session.MinTemperature,
		MaxTemperature: session.MaxTemperature,
	}
	for i, m := range v.Models {
		body.Models = append(body.Models, m.Name)
		if m.Name == v.Chat.Model {
			body.Selected = &v.Models[i]
		}
	}
	return body, errs
}

type activityRow struct {
	ID      string
	Op      string
	Model   string
	Status  activity.Status
	Message string
	Started string
}

type statusBody struct {
	Info        session.ServerInfo
	TotalModels int
	TotalSize   string
	Latest      string
	Health      telemetry.Status
	LastCheck   string
	Activity    []activityRow
	Updated     string
}

// statusActivityRows bounds the seeded activity table.
const statusActivityRows = 50

func (s *Server) statusPage(ctx context.Context) (statusBody, []string) {
	var errs []string
	if v, err := s.checker.Check(ctx); err != nil {
		s.state.MarkDisconnected()
		errs = append(errs, "Could not fetch server information: "+ollama.ErrorMessage(err))
	} else {
		s.state.MarkConnected(session.ServerInfo{Version: v.Version, Build: v.Build, CheckedAt: s.now()})
	}
	if err := s.refreshModels(ctx); err != nil {
		errs = append(errs, "Error loading models: "+ollama.ErrorMessage(err))
	}

	v := s.state.Snapshot()
	health := s.checker.Status()
	body := statusBody{
		Info:        v.Info,
		TotalModels: len(v.Models),
		TotalSize:   format.Bytes(v.TotalSize()),
		Health:      health,
		LastCheck:   format.Ago(health.LastCheck),
		Updated:     s.now().Format("2006-01-02 15:04:05"),
	}
	if latest, ok := v.LatestModel(); ok {
		body.Latest = latest.Name
	}
	for _, e := range s.activity.Recent(statusActivityRows) {
		body.Activity = append(body.Activity, activityRow{
			ID:      e.ID,
			Op:      e.Op,
			Model:   e.Model,
			Status:  e.Status,
			Message: e.Message,
			Started: e.Started.Format(dateLayout),
		})
	}
	return body, errs
}

func modified(t time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}
	return t.Format(dateLayout)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
