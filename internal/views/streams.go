package views

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ollama-dash/internal/activity"
	"ollama-dash/internal/format"
	"ollama-dash/internal/ollama"
	"ollama-dash/internal/session"
	"ollama-dash/internal/stream"
)

// pullFrame is a Snapshot plus the display strings the page shows verbatim.
type pullFrame struct {
	stream.Snapshot
	Percent       float64 `json:"percent"`
	Speed         string  `json:"speed"`
	AverageSpeed  string  `json:"average_speed"`
	CompletedText string  `json:"completed_text"`
	TotalText     string  `json:"total_text"`
	ElapsedText   string  `json:"elapsed_text"`
}

func newPullFrame(s stream.Snapshot) pullFrame {
	return pullFrame{
		Snapshot:      s,
		Percent:       s.Percent(),
		Speed:         s.Speed(),
		AverageSpeed:  s.AverageSpeed(),
		CompletedText: format.MiB(s.Completed),
		TotalText:     format.MiB(s.Total),
		ElapsedText:   format.Seconds(s.Elapsed),
	}
}

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	failed  bool
}

// startSSE switches the response to an event stream. It fails only when the
// writer cannot flush.
func startSSE(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, true
}

// send writes one named frame. After the first write error further frames are dropped.
func (s *sseWriter) send(event string, v any) {
	if s.failed {
		return
	}
	frame, err := activity.FormatSSE(event, v)
	if err != nil {
		return
	}
	if _, err := s.w.Write([]byte(frame)); err != nil {
		s.failed = true
		return
	}
	s.flusher.Flush()
}

// handlePullStream relays /api/pull as snapshot frames and ends with one
// done frame carrying the terminal snapshot.
func (s *Server) handlePullStream(w http.ResponseWriter, r *http.Request) {
	model := strings.TrimSpace(r.FormValue("model"))
	if model == "" {
		s.writeError(w, http.StatusBadRequest, "Please enter a model name")
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()
	id := s.activity.Start("pull", model)
	src, err := s.client.Pull(ctx, model)
	if err != nil {
		msg := ollama.ErrorMessage(err)
		s.activity.Finish(id, activity.StatusError, msg, 0)
		s.logger.Warn("pull failed to start", "model", model, "err", err)
		s.writeError(w, http.StatusBadGateway, msg)
		return
	}
	defer src.Close()

	s.metrics.StreamStarted()
	defer s.metrics.StreamFinished()

	out, _ := startSSE(w)
	agg := stream.NewPullAggregator(
		stream.WithSampleInterval(s.cfg.ThroughputSampleInterval),
		stream.WithClock(s.now),
	)
	final := stream.FoldPull(src, agg, func(snap stream.Snapshot) {
		if !snap.Done {
			out.send("snapshot", newPullFrame(snap))
		}
	})

	s.state.SetPullSnapshot(model, final)
	if final.Failed() {
		s.activity.Finish(id, activity.StatusError, final.Error, final.Completed)
		s.logger.Warn("pull failed", "model", model, "error", final.Error, "records", agg.Records())
	} else {
		s.activity.Finish(id, activity.StatusSuccess, final.Status, final.Total)
		s.metrics.AddPullBytes(model, final.Total)
		s.shows.Invalidate(model)
		// The request context may already be gone if the browser left early.
		if err := s.refreshModels(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("refresh models after pull", "err", err)
		}
		s.logger.Info("pull finished", "model", model, "bytes", final.Total, "elapsed", final.Elapsed)
	}
	out.send("done", newPullFrame(final))
}

type chatFrame struct {
	Role     string  `json:"role,omitempty"`
	Content  string  `json:"content,omitempty"`
	Text     string  `json:"text,omitempty"`
	Fragment string  `json:"fragment,omitempty"`
	TPS      float64 `json:"tokens_per_second,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// chatOptionsFromForm merges the submitted settings over the current ones.
func (s *Server) chatOptionsFromForm(r *http.Request) session.ChatOptions {
	o := s.state.ChatOptions()
	if v, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("temperature")), 64); err == nil {
		o.Temperature = v
	}
	if v, err := strconv.Atoi(strings.TrimSpace(r.FormValue("num_ctx"))); err == nil {
		o.NumCtx = v
	}
	o.Stream = r.FormValue("stream") == "on"
	if m := r.FormValue("mode"); m != "" {
		o.Mode = stream.ParseMode(m)
	}
	if m := strings.TrimSpace(r.FormValue("model")); m != "" {
		o.Model = m
	}
	return s.state.SetChatOptions(o)
}

// handleChatStream sends one prompt and relays the reply. Frames are "user"
// once, "fragment" per streamed piece, then "done" or "error".
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	opts := s.chatOptionsFromForm(r)
	model := strings.TrimSpace(r.FormValue("model"))
	prompt := r.FormValue("prompt")
	if model == "" {
		s.writeError(w, http.StatusBadRequest, "Please select a model first")
		return
	}
	if strings.TrimSpace(prompt) == "" {
		s.writeError(w, http.StatusBadRequest, "Please enter a message")
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()
	history := s.state.Transcript()
	s.state.AppendMessage("user", prompt)
	id := s.activity.Start(opts.Mode.String(), model)

	fail := func(err error) {
		msg := ollama.ErrorMessage(err)
		s.activity.Finish(id, activity.StatusError, msg, 0)
		s.logger.Warn("generation failed", "mode", opts.Mode.String(), "model", model, "err", err, "record_error", stream.IsRecordError(err))
	}

	if !opts.Stream {
		var (
			text string
			res  stream.TextResult
			err  error
		)
		if opts.Mode == stream.ModeChat {
			var resp ollama.ChatResponse
			resp, err = s.client.ChatBuffered(ctx, opts.ChatRequest(model, history, prompt))
			text = resp.Message.Content
			res = stream.TextResult{EvalCount: int64(resp.EvalCount), EvalDuration: time.Duration(resp.EvalDuration)}
		} else {
			var resp ollama.GenerateResponse
			resp, err = s.client.GenerateBuffered(ctx, opts.GenerateRequest(model, history, prompt))
			text = resp.Response
			res = stream.TextResult{EvalCount: int64(resp.EvalCount), EvalDuration: time.Duration(resp.EvalDuration)}
		}
		if err != nil {
			fail(err)
			s.writeError(w, http.StatusBadGateway, ollama.ErrorMessage(err))
			return
		}
		s.state.AppendMessage("assistant", text)
		s.activity.Finish(id, activity.StatusSuccess, "", int64(len(text)))

		out, _ := startSSE(w)
		out.send("user", chatFrame{Role: "user", Content: prompt})
		out.send("done", chatFrame{Text: text, TPS: res.TokensPerSecond()})
		return
	}

	var (
		src *ollama.Stream
		err error
	)
	if opts.Mode == stream.ModeChat {
		src, err = s.client.Chat(ctx, opts.ChatRequest(model, history, prompt))
	} else {
		src, err = s.client.Generate(ctx, opts.GenerateRequest(model, history, prompt))
	}
	if err != nil {
		fail(err)
		s.writeError(w, http.StatusBadGateway, ollama.ErrorMessage(err))
		return
	}
	defer src.Close()

	s.metrics.StreamStarted()
	defer s.metrics.StreamFinished()

	out, _ := startSSE(w)
	out.send("user", chatFrame{Role: "user", Content: prompt})
	res, err := stream.FoldText(src, stream.NewTextFolder(opts.Mode), func(text, fragment string) {
		out.send("fragment", chatFrame{Text: text, Fragment: fragment})
	})
	s.metrics.AddFragments(model, res.Fragments)
	if err != nil {
		fail(err)
		out.send("error", chatFrame{Text: res.Text, Error: ollama.ErrorMessage(err)})
		return
	}

	s.state.AppendMessage("assistant", res.Text)
	s.activity.Finish(id, activity.StatusSuccess, "", int64(len(res.Text)))
	out.send("done", chatFrame{Text: res.Text, TPS: res.TokensPerSecond()})
}
