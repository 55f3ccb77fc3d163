package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Timeouts bounds the buffered daemon calls. Streaming calls are unbounded;
// their own completion record is the only terminal signal.
type Timeouts struct {
	Metadata time.Duration // version, tags, ps
	Show     time.Duration // show, delete
	Load     time.Duration // load/unload via keep_alive
}

// DefaultTimeouts mirrors the cadence an operator expects from a local daemon.
var DefaultTimeouts = Timeouts{
	Metadata: 5 * time.Second,
	Show:     10 * time.Second,
	Load:     30 * time.Second,
}

// Observer receives one callback per completed daemon call.
type Observer interface {
	ObserveCall(operation string, err error, d time.Duration)
}

// Client is a thin Ollama control API client.
//
// The base URL can be swapped at runtime when the operator changes the
// connection target; requests already in flight keep the old target.
type Client struct {
	HTTP     *http.Client
	Timeouts Timeouts
	Observer Observer

	mu      sync.RWMutex
	baseURL *url.URL
}

// NewClient constructs a client for the daemon at base.
func NewClient(base string) (*Client, error) {
	u, err := parseBase(base)
	if err != nil {
		return nil, err
	}
	return &Client{
		// No client-wide timeout: pulls and generations can run arbitrarily long.
		HTTP:     &http.Client{},
		Timeouts: DefaultTimeouts,
		baseURL:  u,
	}, nil
}

func parseBase(base string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(base), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse daemon url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parse daemon url: %q is not an absolute url", base)
	}
	return u, nil
}

// BaseURL returns the current connection target.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL.String()
}

// SetBaseURL retargets the client.
func (c *Client) SetBaseURL(base string) error {
	u, err := parseBase(base)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.baseURL = u
	c.mu.Unlock()
	return nil
}

func (c *Client) endpoint(path string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL.ResolveReference(&url.URL{Path: path}).String()
}

// Version fetches the daemon version. It doubles as the connectivity check.
func (c *Client) Version(ctx context.Context) (VersionResponse, error) {
	var out VersionResponse
	err := c.doJSON(ctx, "version", http.MethodGet, "/api/version", nil, c.Timeouts.Metadata, &out)
	return out, err
}

// ListModels returns every locally available model.
func (c *Client) ListModels(ctx context.Context) ([]ModelSummary, error) {
	var out listResponse
	if err := c.doJSON(ctx, "list models", http.MethodGet, "/api/tags", nil, c.Timeouts.Metadata, &out); err != nil {
		return nil, err
	}
	if out.Models == nil {
		out.Models = []ModelSummary{}
	}
	return out.Models, nil
}

// ListRunning returns the models currently resident in memory.
func (c *Client) ListRunning(ctx context.Context) ([]RunningModel, error) {
	var out psResponse
	if err := c.doJSON(ctx, "list running models", http.MethodGet, "/api/ps", nil, c.Timeouts.Metadata, &out); err != nil {
		return nil, err
	}
	if out.Models == nil {
		out.Models = []RunningModel{}
	}
	return out.Models, nil
}

// Show fetches model metadata.
func (c *Client) Show(ctx context.Context, name string) (ShowResponse, error) {
	var out ShowResponse
	err := c.doJSON(ctx, "show model", http.MethodPost, "/api/show", nameRequest{Name: name}, c.Timeouts.Show, &out)
	return out, err
}

// Delete removes a model from local storage.
func (c *Client) Delete(ctx context.Context, name string) error {
	return c.doJSON(ctx, "delete model", http.MethodDelete, "/api/delete", nameRequest{Name: name}, c.Timeouts.Show, nil)
}

// Pull starts a streamed download and returns the progress record stream.
func (c *Client) Pull(ctx context.Context, name string) (*Stream, error) {
	return c.openStream(ctx, "pull model", "/api/pull", pullRequest{Name: name, Stream: true})
}

// PullBuffered downloads a model and only returns the final status record.
func (c *Client) PullBuffered(ctx context.Context, name string) (PullStatus, error) {
	var out PullStatus
	err := c.doJSON(ctx, "pull model", http.MethodPost, "/api/pull", pullRequest{Name: name, Stream: false}, 0, &out)
	return out, err
}

// Generate starts a streamed completion. req.Stream is forced to true.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*Stream, error) {
	req.Stream = true
	return c.openStream(ctx, "generate", "/api/generate", req)
}

// GenerateBuffered runs a completion and returns the whole body.
func (c *Client) GenerateBuffered(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	req.Stream = false
	var out GenerateResponse
	err := c.doJSON(ctx, "generate", http.MethodPost, "/api/generate", req, 0, &out)
	return out, err
}

// Chat starts a streamed chat. req.Stream is forced to true.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*Stream, error) {
	req.Stream = true
	return c.openStream(ctx, "chat", "/api/chat", req)
}

// ChatBuffered runs a chat turn and returns the whole body.
func (c *Client) ChatBuffered(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	req.Stream = false
	var out ChatResponse
	err := c.doJSON(ctx, "chat", http.MethodPost, "/api/chat", req, 0, &out)
	return out, err
}

// Load makes the daemon keep a model resident for keepAlive.
//
// The control API has no load verb: an empty-prompt generate with a
// keep_alive is what pins the model.
func (c *Client) Load(ctx context.Context, name, keepAlive string) error {
	req := GenerateRequest{Model: name, Prompt: "", KeepAlive: keepAlive, Stream: false}
	return c.doJSON(ctx, "load model", http.MethodPost, "/api/generate", req, c.Timeouts.Load, nil)
}

// Unload evicts a model immediately by loading it with a zero keep_alive.
func (c *Client) Unload(ctx context.Context, name string) error {
	return c.Load(ctx, name, "0")
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in any, timeout time.Duration, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.Observer != nil {
			c.Observer.ObserveCall(op, err, time.Since(start))
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := c.send(ctx, op, method, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024*1024))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) openStream(ctx context.Context, op, path string, in any) (*Stream, error) {
	start := time.Now()
	resp, err := c.send(ctx, op, http.MethodPost, path, in)
	if err != nil {
		if c.Observer != nil {
			c.Observer.ObserveCall(op, err, time.Since(start))
		}
		return nil, err
	}
	s := newStream(resp.Body)
	if c.Observer != nil {
		s.onClose = func(streamErr error) {
			c.Observer.ObserveCall(op, streamErr, time.Since(start))
		}
	}
	return s, nil
}

// send issues the request and converts non-2xx responses into *APIError.
func (c *Client) send(ctx context.Context, op, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json, application/x-ndjson")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, newAPIError(op, resp)
	}
	return resp, nil
}

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Op + ": " + e.Message
}

// newAPIError extracts a best-effort message: the body's "error" field when
// present, otherwise the HTTP status line.
func newAPIError(op string, resp *http.Response) *APIError {
	e := &APIError{Op: op, StatusCode: resp.StatusCode}

	buf, _ := ioReadAllLimit(resp.Body, 64*1024)
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(buf, &body) == nil && strings.TrimSpace(body.Error) != "" {
		e.Message = body.Error
		return e
	}

	e.Message = resp.Status
	if e.Message == "" {
		e.Message = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return e
}

// ErrorMessage returns the message an operator should see for err.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

func ioReadAllLimit(r io.Reader, max int64) ([]byte, error) {
	buf := &bytes.Buffer{}
	if max <= 0 {
		return io.ReadAll(r)
	}
	_, err := io.CopyN(buf, r, max+1)
	if err != nil && err != io.EOF {
		return nil, err
	}
	b := buf.Bytes()
	if int64(len(b)) > max {
		return b[:max], nil
	}
	return b, nil
}
