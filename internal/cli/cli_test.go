package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"ollama-dash/internal/config"
	"ollama-dash/internal/ollama"
	"ollama-dash/internal/session"
	"ollama-dash/internal/stream"
)

type fakeDaemon struct {
	mu       sync.Mutex
	requests map[string][]map[string]any
	lines    map[string][]string
}

func newFakeDaemon(t *testing.T) (*fakeDaemon, *httptest.Server) {
	t.Helper()
	d := &fakeDaemon{
		requests: make(map[string][]map[string]any),
		lines:    make(map[string][]string),
	}
	ts := httptest.NewServer(d)
	t.Cleanup(ts.Close)
	return d, ts
}

func (d *fakeDaemon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	d.mu.Lock()
	d.requests[r.URL.Path] = append(d.requests[r.URL.Path], body)
	lines := d.lines[r.URL.Path]
	d.mu.Unlock()

	switch r.URL.Path {
	case "/api/version":
		_ = json.NewEncoder(w).Encode(ollama.VersionResponse{Version: "0.5.1"})
	case "/api/tags":
		_ = json.NewEncoder(w).Encode(map[string]any{"models": []ollama.ModelSummary{
			{Name: "llama3.2:latest", Size: 2 << 30, ModifiedAt: time.Now().Add(-time.Hour), Details: ollama.ModelDetails{Family: "llama"}},
		}})
	case "/api/ps":
		_ = json.NewEncoder(w).Encode(map[string]any{"models": []ollama.RunningModel{
			{Name: "llama3.2:latest", SizeVRAM: 3 << 30, ExpiresAt: time.Now().Add(2 * time.Hour), Details: ollama.ModelDetails{Family: "llama"}},
		}})
	case "/api/show":
		_ = json.NewEncoder(w).Encode(ollama.ShowResponse{Parameters: "stop <|eot_id|>"})
	case "/api/delete":
	default:
		if lines == nil {
			if stream, _ := body["stream"].(bool); !stream {
				_ = json.NewEncoder(w).Encode(ollama.GenerateResponse{Response: "buffered answer", Done: true})
				return
			}
		}
		for _, l := range lines {
			_, _ = io.WriteString(w, l+"\n")
		}
	}
}

func (d *fakeDaemon) calls(path string) []map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests[path]
}

func (d *fakeDaemon) script(path string, lines ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines[path] = lines
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	root := NewRootCommand("test")
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestListAndPs(t *testing.T) {
	_, ts := newFakeDaemon(t)

	out, err := run(t, "list", "--daemon", ts.URL)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "llama3.2:latest") || !strings.Contains(out, "2.00 GB") || !strings.Contains(out, "1 models") {
		t.Fatalf("unexpected list output:\n%s", out)
	}

	out, err = run(t, "ps", "--daemon", ts.URL)
	if err != nil {
		t.Fatalf("ps: %v", err)
	}
	if !strings.Contains(out, "3.00 GB") || !strings.Contains(out, "llama") {
		t.Fatalf("unexpected ps output:\n%s", out)
	}
}

func TestVersionReportsUnreachableDaemon(t *testing.T) {
	out, err := run(t, "version", "--daemon", "http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "ollama-dash") || !strings.Contains(out, "unreachable") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRmRequiresYes(t *testing.T) {
	d, ts := newFakeDaemon(t)

	if _, err := run(t, "rm", "llama3.2:latest", "--daemon", ts.URL); err == nil {
		t.Fatalf("expected error without --yes")
	}
	if n := len(d.calls("/api/delete")); n != 0 {
		t.Fatalf("expected no delete call, got %d", n)
	}

	if _, err := run(t, "rm", "llama3.2:latest", "--yes", "--daemon", ts.URL); err != nil {
		t.Fatalf("rm: %v", err)
	}
	calls := d.calls("/api/delete")
	if len(calls) != 1 || calls[0]["name"] != "llama3.2:latest" {
		t.Fatalf("unexpected delete calls: %v", calls)
	}
}

func TestLoadAndUnloadSendKeepAlive(t *testing.T) {
	d, ts := newFakeDaemon(t)

	if _, err := run(t, "load", "llama3.2:latest", "--keep-alive", "1d", "--daemon", ts.URL); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := run(t, "load", "llama3.2:latest", "--keep-alive", "forever", "--daemon", ts.URL); err == nil {
		t.Fatalf("expected invalid keep-alive error")
	}
	if _, err := run(t, "unload", "llama3.2:latest", "--daemon", ts.URL); err != nil {
		t.Fatalf("unload: %v", err)
	}

	calls := d.calls("/api/generate")
	if len(calls) != 2 {
		t.Fatalf("expected 2 generate calls, got %d", len(calls))
	}
	if calls[0]["keep_alive"] != "24h" || calls[1]["keep_alive"] != "0" {
		t.Fatalf("unexpected keep_alive values: %v, %v", calls[0]["keep_alive"], calls[1]["keep_alive"])
	}
}

func TestShowPrintsJSON(t *testing.T) {
	_, ts := newFakeDaemon(t)

	out, err := run(t, "show", "llama3.2:latest", "--daemon", ts.URL)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, `"parameters": "stop <|eot_id|>"`) {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestPullPlain(t *testing.T) {
	d, ts := newFakeDaemon(t)
	d.script("/api/pull",
		`{"status":"pulling manifest"}`,
		`{"status":"downloading","digest":"sha256:0123456789abcdef","total":2097152,"completed":1048576}`,
		`{"status":"success"}`,
	)

	out, err := run(t, "pull", "llama3.2", "--plain", "--daemon", ts.URL)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	for _, want := range []string{
		"pulling manifest",
		"sha256:01234 · 1.00 MB of 2.00 MB (50.0%)",
		"Model pulled successfully. Total Size: 2.00 MB",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPullQuiet(t *testing.T) {
	d, ts := newFakeDaemon(t)
	d.script("/api/pull", `{"status":"success"}`)

	out, err := run(t, "pull", "llama3.2", "--quiet", "--daemon", ts.URL)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if !strings.Contains(out, "llama3.2: success") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if calls := d.calls("/api/pull"); len(calls) != 1 || calls[0]["stream"] != false {
		t.Fatalf("expected one buffered pull, got %v", calls)
	}
}

func TestPullPlainErrorRecord(t *testing.T) {
	d, ts := newFakeDaemon(t)
	d.script("/api/pull", `{"error":"pull model manifest: file does not exist"}`)

	_, err := run(t, "pull", "nope", "--plain", "--daemon", ts.URL)
	if err == nil || !strings.Contains(err.Error(), "file does not exist") {
		t.Fatalf("expected pull error, got %v", err)
	}
}

func TestPullModelUpdate(t *testing.T) {
	m := newPullModel("llama3.2")

	next, cmd := m.Update(snapshotMsg(stream.Snapshot{Status: "downloading", Total: 100, Completed: 50, Progress: 0.5, ProgressKnown: true}))
	if cmd != nil {
		t.Fatalf("in-flight snapshot must not quit")
	}
	m = next.(pullModel)
	if !strings.Contains(m.View(), "downloading") {
		t.Fatalf("unexpected view:\n%s", m.View())
	}

	next, cmd = m.Update(snapshotMsg(stream.Snapshot{Status: "success", Done: true, Total: 100}))
	if cmd == nil {
		t.Fatalf("terminal snapshot must quit")
	}
	m = next.(pullModel)
	if !strings.Contains(m.View(), "Model pulled successfully") {
		t.Fatalf("unexpected view:\n%s", m.View())
	}

	next, _ = newPullModel("x").Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !next.(pullModel).aborted {
		t.Fatalf("ctrl+c must abort")
	}

	failed, _ := newPullModel("x").Update(snapshotMsg(stream.Snapshot{Done: true, Error: "boom"}))
	if !strings.Contains(failed.View(), "Error pulling model: boom") {
		t.Fatalf("unexpected view:\n%s", failed.View())
	}
}

func TestChatSessionREPL(t *testing.T) {
	d, ts := newFakeDaemon(t)
	d.script("/api/generate",
		`{"response":"Hel","done":false}`,
		`{"response":"lo","done":false}`,
		`{"response":"","done":true,"eval_count":20,"eval_duration":2000000000}`,
	)
	client, err := ollama.NewClient(ts.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	opts := session.DefaultChatOptions()
	opts.Model = "llama3.2:latest"
	var out bytes.Buffer
	c := newChatSession(client, ts.URL, opts, false, &out)
	in := newBasicLineInput(strings.NewReader("hi\n\nagain\n/clear\nfresh\n/exit\nignored\n"), io.Discard)

	if err := c.run(context.Background(), in); err != nil {
		t.Fatalf("run: %v", err)
	}

	calls := d.calls("/api/generate")
	if len(calls) != 3 {
		t.Fatalf("expected 3 generate calls, got %d", len(calls))
	}
	if calls[0]["prompt"] != "hi" {
		t.Fatalf("first prompt = %v", calls[0]["prompt"])
	}
	if want := "\n\nHuman: hi\n\nAssistant: Hello\n\nHuman: again\n\nAssistant:"; calls[1]["prompt"] != want {
		t.Fatalf("second prompt = %q", calls[1]["prompt"])
	}
	if calls[2]["prompt"] != "fresh" {
		t.Fatalf("cleared history must not be sent, got %q", calls[2]["prompt"])
	}
	if tr := c.state.Transcript(); len(tr) != 2 {
		t.Fatalf("expected 2 transcript entries after clear, got %d", len(tr))
	}
	if !strings.Contains(out.String(), "Hello\n") || !strings.Contains(out.String(), "10.0 tokens/s") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "Conversation cleared") {
		t.Fatalf("expected clear notice")
	}
}

func TestChatSessionErrorKeepsTranscript(t *testing.T) {
	d, ts := newFakeDaemon(t)
	d.script("/api/chat", `{"error":"model not found"}`)
	client, _ := ollama.NewClient(ts.URL)

	opts := session.DefaultChatOptions()
	opts.Model = "missing"
	opts.Mode = stream.ModeChat
	var out bytes.Buffer
	c := newChatSession(client, ts.URL, opts, false, &out)

	if err := c.run(context.Background(), newBasicLineInput(strings.NewReader("hi\n"), nil)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "Error generating response: model not found") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
	if len(c.state.Transcript()) != 0 {
		t.Fatalf("failed turn must not be recorded")
	}
}

func TestChatSessionBuffered(t *testing.T) {
	_, ts := newFakeDaemon(t)
	client, _ := ollama.NewClient(ts.URL)

	opts := session.DefaultChatOptions()
	opts.Model = "llama3.2:latest"
	opts.Stream = false
	var out bytes.Buffer
	c := newChatSession(client, ts.URL, opts, false, &out)

	if err := c.turn(context.Background(), "hi"); err != nil {
		t.Fatalf("turn: %v", err)
	}
	if !strings.Contains(out.String(), "buffered answer") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestRenderMarkdown(t *testing.T) {
	if got := renderMarkdown("   ", 80); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
	if got := renderMarkdown("# Title\n\nSome **bold** text", 80); !strings.Contains(got, "Title") || !strings.Contains(got, "bold") {
		t.Fatalf("unexpected render:\n%s", got)
	}
}

func TestProgressLine(t *testing.T) {
	s := stream.Snapshot{Status: "pulling manifest", Elapsed: 1500 * time.Millisecond}
	if got := progressLine(s); got != "pulling manifest · 1.5 seconds" {
		t.Fatalf("unexpected line %q", got)
	}
	if got := pullSummary(stream.Snapshot{Status: stream.StatusNoProgress, Done: true}); !strings.Contains(got, stream.StatusNoProgress) {
		t.Fatalf("unexpected summary %q", got)
	}
}

func TestShutdownEndsEventStreams(t *testing.T) {
	_, ts := newFakeDaemon(t)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.DaemonURL = ts.URL
	cfg.MetricsEnabled = false
	a := &app{version: "test", cfg: cfg}

	h, bus, err := a.buildHandler(context.Background(), newLogger("error", io.Discard))
	if err != nil {
		t.Fatalf("buildHandler: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := newHTTPServer(ln.Addr().String(), h, bus)
	go srv.Serve(ln)

	resp, err := http.Get("http://" + ln.Addr().String() + "/events")
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer resp.Body.Close()
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil || line != ": connected\n" {
		t.Fatalf("first line = %q, err = %v", line, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown with open event stream: %v after %v", err, time.Since(start))
	}
}
