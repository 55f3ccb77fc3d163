package session

import (
	"sync"
	"testing"
	"time"

	"ollama-dash/internal/ollama"
	"ollama-dash/internal/stream"
)

func TestSetTargetInvalidatesConnection(t *testing.T) {
	s := New("http://localhost:11434/")
	if s.Target() != "http://localhost:11434" {
		t.Errorf("Target = %q", s.Target())
	}

	s.MarkConnected(ServerInfo{Version: "0.5.7"})
	s.ReplaceModels([]ollama.ModelSummary{{Name: "llama3.2:latest"}}, time.Now())
	s.RequestDelete("llama3.2:latest")

	if s.SetTarget(" http://localhost:11434 ") {
		t.Error("same target reported as changed")
	}
	if !s.Connected() {
		t.Error("unchanged target must keep the connection")
	}

	if !s.SetTarget("http://gpu-box:11434") {
		t.Error("new target reported as unchanged")
	}
	v := s.Snapshot()
	if v.Connected {
		t.Error("target change must reset connected")
	}
	if v.Info.Version != "" {
		t.Errorf("Info = %+v, want cleared", v.Info)
	}
	if len(v.Models) != 0 {
		t.Errorf("Models = %v, want cleared", v.Models)
	}
	if s.DeletePending("llama3.2:latest") {
		t.Error("pending delete survived retarget")
	}
}

func TestReplaceModelsNeverMerges(t *testing.T) {
	s := New("http://localhost:11434")
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.ReplaceModels([]ollama.ModelSummary{{Name: "a"}, {Name: "b"}}, at)
	s.ReplaceModels([]ollama.ModelSummary{{Name: "c"}}, at.Add(time.Minute))

	v := s.Snapshot()
	if len(v.Models) != 1 || v.Models[0].Name != "c" {
		t.Errorf("Models = %+v", v.Models)
	}
	if !v.ModelsAt.Equal(at.Add(time.Minute)) || !v.LastRefresh.Equal(at.Add(time.Minute)) {
		t.Errorf("ModelsAt = %v LastRefresh = %v", v.ModelsAt, v.LastRefresh)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New("http://localhost:11434")
	in := []ollama.ModelSummary{{Name: "a"}}
	s.ReplaceModels(in, time.Now())
	in[0].Name = "mutated"

	v := s.Snapshot()
	v.Models[0].Name = "also mutated"
	v.Pending["x"] = true

	again := s.Snapshot()
	if again.Models[0].Name != "a" {
		t.Errorf("Models[0] = %q", again.Models[0].Name)
	}
	if again.Pending["x"] {
		t.Error("Pending shared with snapshot")
	}
}

func TestTranscript(t *testing.T) {
	s := New("http://localhost:11434")
	if !s.AppendMessage("user", "hi") || !s.AppendMessage("Assistant", "hello") {
		t.Fatal("valid roles rejected")
	}
	if s.AppendMessage("system", "nope") {
		t.Error("system role accepted")
	}
	tr := s.Transcript()
	if len(tr) != 2 || tr[1].Role != "assistant" {
		t.Fatalf("Transcript = %+v", tr)
	}
	s.ClearTranscript()
	if len(s.Transcript()) != 0 {
		t.Error("ClearTranscript left entries")
	}
}

func TestDeleteConfirmation(t *testing.T) {
	s := New("http://localhost:11434")
	if s.DeletePending("m") {
		t.Error("nothing requested yet")
	}
	s.RequestDelete("m")
	if !s.DeletePending("m") {
		t.Error("request not recorded")
	}
	s.CancelDelete("m")
	if s.DeletePending("m") {
		t.Error("cancel not recorded")
	}
}

func TestChatOptionsClamp(t *testing.T) {
	s := New("http://localhost:11434")
	if got := s.ChatOptions(); got.Temperature != 0.7 || got.NumCtx != 4096 || !got.Stream {
		t.Errorf("defaults = %+v", got)
	}
	got := s.SetChatOptions(ChatOptions{Temperature: 3, NumCtx: 100, Mode: stream.ModeChat})
	if got.Temperature != MaxTemperature || got.NumCtx != MinNumCtx || got.Mode != stream.ModeChat {
		t.Errorf("clamped = %+v", got)
	}
	got = s.SetChatOptions(ChatOptions{Temperature: -1, NumCtx: 1 << 20})
	if got.Temperature != MinTemperature || got.NumCtx != MaxNumCtx {
		t.Errorf("clamped = %+v", got)
	}
}

func TestPullSnapshotAndFlashes(t *testing.T) {
	s := New("http://localhost:11434")
	s.SetPullSnapshot("llama3.2", stream.Snapshot{Status: "success", Done: true})
	v := s.Snapshot()
	if v.LastPull == nil || v.LastPull.Model != "llama3.2" || !v.LastPull.Snapshot.Done {
		t.Errorf("LastPull = %+v", v.LastPull)
	}

	s.AddFlash("error", "boom")
	if f := s.TakeFlashes(); len(f) != 1 || f[0].Message != "boom" {
		t.Errorf("flashes = %+v", f)
	}
	if f := s.TakeFlashes(); len(f) != 0 {
		t.Errorf("flashes not cleared: %+v", f)
	}
}

func TestViewSummaries(t *testing.T) {
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	v := View{Models: []ollama.ModelSummary{
		{Name: "a", Size: 10, ModifiedAt: old},
		{Name: "b", Size: 20, ModifiedAt: old.Add(time.Hour)},
	}}
	if v.TotalSize() != 30 {
		t.Errorf("TotalSize = %d", v.TotalSize())
	}
	if m, ok := v.LatestModel(); !ok || m.Name != "b" {
		t.Errorf("LatestModel = %+v %v", m, ok)
	}
	if _, ok := (View{}).LatestModel(); ok {
		t.Error("LatestModel on empty list")
	}
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		in   string
		want Page
		ok   bool
	}{
		{"overview", PageOverview, true},
		{"models", PageModelManagement, true},
		{"Model Interaction", PageModelInteraction, true},
		{" STATUS ", PageServerStatus, true},
		{"", PageOverview, false},
		{"settings", PageOverview, false},
	}
	for _, tt := range tests {
		got, ok := ParsePage(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParsePage(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
	for _, p := range Pages {
		if back, ok := ParsePage(p.Slug()); !ok || back != p {
			t.Errorf("slug round trip failed for %v", p)
		}
	}
}

func TestStateConcurrentUse(t *testing.T) {
	s := New("http://localhost:11434")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.AppendMessage("user", "x")
				s.SetPage(PageServerStatus)
				_ = s.Snapshot()
			}
		}()
	}
	wg.Wait()
	if n := len(s.Transcript()); n != 800 {
		t.Errorf("transcript length = %d, want 800", n)
	}
}

func TestChatOptionsBuildRequests(t *testing.T) {
	o := ChatOptions{Temperature: 0.4, NumCtx: 8192}
	history := []ollama.Message{{Role: "user", Content: "Hi"}, {Role: "assistant", Content: "Hello"}}

	g := o.GenerateRequest("llama3.2", history, "Again")
	if g.Prompt != "\n\nHuman: Hi\n\nAssistant: Hello\n\nHuman: Again\n\nAssistant:" {
		t.Fatalf("unexpected prompt %q", g.Prompt)
	}
	if g.Temperature == nil || *g.Temperature != 0.4 || g.Options["num_ctx"] != 8192 {
		t.Fatalf("unexpected options: temp=%v options=%v", g.Temperature, g.Options)
	}

	c := o.ChatRequest("llama3.2", history, "Again")
	if len(c.Messages) != 3 || c.Messages[2].Role != "user" || c.Messages[2].Content != "Again" {
		t.Fatalf("unexpected messages %+v", c.Messages)
	}
	if len(history) != 2 {
		t.Fatalf("history must not be modified")
	}
}
