// Package session holds the control panel's application state.
//
// There is one State per process; every view controller receives it
// explicitly. net/http serves browser requests concurrently, so State
// guards itself with a mutex and hands out copies.
package session

import (
	"strings"
	"sync"
	"time"

	"ollama-dash/internal/ollama"
	"ollama-dash/internal/stream"
)

// Chat option bounds as offered by the interaction page.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
	MinNumCtx      = 2048
	MaxNumCtx      = 32768
)

// ChatOptions are the generation settings of the interaction page.
type ChatOptions struct {
	Temperature float64
	NumCtx      int
	Stream      bool
	Mode        stream.Mode
	Model       string
}

// DefaultChatOptions returns temperature 0.7, a 4096 token context and streaming on.
func DefaultChatOptions() ChatOptions {
	return ChatOptions{Temperature: 0.7, NumCtx: 4096, Stream: true, Mode: stream.ModeGenerate}
}

// Clamp forces the numeric options into their allowed ranges.
func (o ChatOptions) Clamp() ChatOptions {
	if o.Temperature < MinTemperature {
		o.Temperature = MinTemperature
	}
	if o.Temperature > MaxTemperature {
		o.Temperature = MaxTemperature
	}
	if o.NumCtx < MinNumCtx {
		o.NumCtx = MinNumCtx
	}
	if o.NumCtx > MaxNumCtx {
		o.NumCtx = MaxNumCtx
	}
	return o
}

// GenerateRequest builds a completion request. Prior turns are folded
// into the prompt because /api/generate has no message list.
func (o ChatOptions) GenerateRequest(model string, history []ollama.Message, prompt string) ollama.GenerateRequest {
	t := o.Temperature
	return ollama.GenerateRequest{
		Model:       model,
		Prompt:      ollama.BuildPrompt(history, prompt),
		Temperature: &t,
		Options:     map[string]any{"num_ctx": o.NumCtx},
	}
}

// ChatRequest builds a chat request from history plus the new user turn.
func (o ChatOptions) ChatRequest(model string, history []ollama.Message, prompt string) ollama.ChatRequest {
	t := o.Temperature
	msgs := make([]ollama.Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, ollama.Message{Role: "user", Content: prompt})
	return ollama.ChatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: &t,
		Options:     map[string]any{"num_ctx": o.NumCtx},
	}
}

// ServerInfo is what the last successful connectivity check learned.
type ServerInfo struct {
	Version   string
	Build     string
	CheckedAt time.Time
}

// PullResult is the terminal snapshot of the most recent pull.
type PullResult struct {
	Model    string
	Snapshot stream.Snapshot
}

// Flash is a one-shot message shown on the next render.
type Flash struct {
	Kind    string // success, error, info, warning
	Message string
}

// State is the single application-state struct.
type State struct {
	mu sync.Mutex

	target    string
	connected bool
	info      ServerInfo

	models      []ollama.ModelSummary
	modelsAt    time.Time
	running     []ollama.RunningModel
	runningAt   time.Time
	lastRefresh time.Time

	page       Page
	transcript []ollama.Message
	chat       ChatOptions
	pending    map[string]bool
	lastPull   *PullResult
	flashes    []Flash
}

// New returns a disconnected State targeting target.
func New(target string) *State {
	return &State{
		target:  normalizeTarget(target),
		page:    PageOverview,
		chat:    DefaultChatOptions(),
		pending: make(map[string]bool),
	}
}

func normalizeTarget(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}

// Target returns the current connection target.
func (s *State) Target() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// SetTarget changes the connection target. A different target invalidates
// the connected flag and every list fetched from the previous one. It
// reports whether the target changed.
func (s *State) SetTarget(target string) bool {
	target = normalizeTarget(target)
	s.mu.Lock()
	defer s.mu.Unlock()
	if target == s.target {
		return false
	}
	s.target = target
	s.connected = false
	s.info = ServerInfo{}
	s.models = nil
	s.modelsAt = time.Time{}
	s.running = nil
	s.runningAt = time.Time{}
	s.pending = make(map[string]bool)
	return true
}

// MarkConnected records a successful connectivity check.
func (s *State) MarkConnected(info ServerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	s.info = info
}

// MarkDisconnected records a failed connectivity check.
func (s *State) MarkDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
}

// Connected reports the connected flag.
func (s *State) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// ReplaceModels installs the result of a successful /api/tags fetch. The
// previous list is discarded, never merged.
func (s *State) ReplaceModels(models []ollama.ModelSummary, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models = append([]ollama.ModelSummary(nil), models...)
	s.modelsAt = at
	s.lastRefresh = at
}

// ReplaceRunning installs the result of a successful /api/ps fetch.
func (s *State) ReplaceRunning(running []ollama.RunningModel, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = append([]ollama.RunningModel(nil), running...)
	s.runningAt = at
	s.lastRefresh = at
}

// Page returns the active page.
func (s *State) Page() Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// SetPage switches the active page.
func (s *State) SetPage(p Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page = p
}

// AppendMessage adds a transcript entry. Roles other than user and
// assistant are rejected.
func (s *State) AppendMessage(role, content string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != "user" && role != "assistant" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, ollama.Message{Role: role, Content: content})
	return true
}

// Transcript returns a copy of the chat transcript.
func (s *State) Transcript() []ollama.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ollama.Message(nil), s.transcript...)
}

// ClearTranscript empties the chat transcript.
func (s *State) ClearTranscript() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = nil
}

// ChatOptions returns the current interaction settings.
func (s *State) ChatOptions() ChatOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chat
}

// SetChatOptions stores o after clamping it.
func (s *State) SetChatOptions(o ChatOptions) ChatOptions {
	o = o.Clamp()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = o
	return o
}

// RequestDelete marks model as awaiting a second confirmation.
func (s *State) RequestDelete(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[model] = true
}

// CancelDelete withdraws a pending confirmation.
func (s *State) CancelDelete(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, model)
}

// DeletePending reports whether model awaits confirmation.
func (s *State) DeletePending(model string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[model]
}

// SetPullSnapshot retains the terminal snapshot of a pull.
func (s *State) SetPullSnapshot(model string, snap stream.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPull = &PullResult{Model: model, Snapshot: snap}
}

// AddFlash queues a message for the next render.
func (s *State) AddFlash(kind, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flashes = append(s.flashes, Flash{Kind: kind, Message: message})
}

// TakeFlashes returns and clears queued messages.
func (s *State) TakeFlashes() []Flash {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.flashes
	s.flashes = nil
	return f
}

// View is an immutable copy of State for rendering.
type View struct {
	Target      string
	Connected   bool
	Info        ServerInfo
	Models      []ollama.ModelSummary
	ModelsAt    time.Time
	Running     []ollama.RunningModel
	RunningAt   time.Time
	LastRefresh time.Time
	Page        Page
	Transcript  []ollama.Message
	Chat        ChatOptions
	Pending     map[string]bool
	LastPull    *PullResult
}

// Snapshot copies the state for a single render.
func (s *State) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make(map[string]bool, len(s.pending))
	for k, v := range s.pending {
		pending[k] = v
	}
	var pull *PullResult
	if s.lastPull != nil {
		p := *s.lastPull
		pull = &p
	}
	return View{
		Target:      s.target,
		Connected:   s.connected,
		Info:        s.info,
		Models:      append([]ollama.ModelSummary(nil), s.models...),
		ModelsAt:    s.modelsAt,
		Running:     append([]ollama.RunningModel(nil), s.running...),
		RunningAt:   s.runningAt,
		LastRefresh: s.lastRefresh,
		Page:        s.page,
		Transcript:  append([]ollama.Message(nil), s.transcript...),
		Chat:        s.chat,
		Pending:     pending,
		LastPull:    pull,
	}
}

// TotalSize sums the local model sizes.
func (v View) TotalSize() int64 {
	var n int64
	for _, m := range v.Models {
		n += m.Size
	}
	return n
}

// LatestModel returns the most recently modified model.
func (v View) LatestModel() (ollama.ModelSummary, bool) {
	if len(v.Models) == 0 {
		return ollama.ModelSummary{}, false
	}
	latest := v.Models[0]
	for _, m := range v.Models[1:] {
		if m.ModifiedAt.After(latest.ModifiedAt) {
			latest = m
		}
	}
	return latest, true
}
