package ollama

import (
	"strings"
	"time"
)

// VersionResponse is the response from GET /api/version.
type VersionResponse struct {
	Version string `json:"version"`
	Build   string `json:"build,omitempty"`
}

// ModelDetails is the family/format metadata attached to tags and ps entries.
type ModelDetails struct {
	ParentModel       string   `json:"parent_model,omitempty"`
	Format            string   `json:"format,omitempty"`
	Family            string   `json:"family,omitempty"`
	Families          []string `json:"families,omitempty"`
	ParameterSize     string   `json:"parameter_size,omitempty"`
	QuantizationLevel string   `json:"quantization_level,omitempty"`
}

// ModelSummary is one entry of GET /api/tags.
type ModelSummary struct {
	Name       string       `json:"name"`
	Model      string       `json:"model,omitempty"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest,omitempty"`
	Details    ModelDetails `json:"details"`
}

// IsEmbedding reports whether the model family marks it as embedding-only.
func (m ModelSummary) IsEmbedding() bool {
	return strings.Contains(strings.ToLower(m.Details.Family), "bert")
}

// RunningModel is one entry of GET /api/ps.
type RunningModel struct {
	Name      string       `json:"name"`
	Model     string       `json:"model,omitempty"`
	Size      int64        `json:"size"`
	SizeVRAM  int64        `json:"size_vram"`
	Digest    string       `json:"digest,omitempty"`
	ExpiresAt time.Time    `json:"expires_at"`
	Details   ModelDetails `json:"details"`
}

type listResponse struct {
	Models []ModelSummary `json:"models"`
}

type psResponse struct {
	Models []RunningModel `json:"models"`
}

// ShowResponse is the response from POST /api/show.
//
// Fields are kept as they appear in the daemon so future additions are ignored safely.
type ShowResponse struct {
	Modelfile  string         `json:"modelfile,omitempty"`
	Parameters string         `json:"parameters,omitempty"`
	Template   string         `json:"template,omitempty"`
	License    any            `json:"license,omitempty"`
	ModifiedAt string         `json:"modified_at,omitempty"`
	Details    ModelDetails   `json:"details"`
	ModelInfo  map[string]any `json:"model_info,omitempty"`
}

// Message is one role/content pair sent to /api/chat.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest is the body of POST /api/generate.
type GenerateRequest struct {
	Model       string         `json:"model"`
	Prompt      string         `json:"prompt"`
	KeepAlive   string         `json:"keep_alive,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	Stream      bool           `json:"stream"`
	Options     map[string]any `json:"options,omitempty"`
}

// GenerateResponse is a single /api/generate record (or the whole buffered body).
type GenerateResponse struct {
	Model        string `json:"model"`
	Response     string `json:"response"`
	Done         bool   `json:"done"`
	DoneReason   string `json:"done_reason,omitempty"`
	EvalCount    int    `json:"eval_count,omitempty"`
	EvalDuration int64  `json:"eval_duration,omitempty"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Model       string         `json:"model"`
	Messages    []Message      `json:"messages"`
	Temperature *float64       `json:"temperature,omitempty"`
	Stream      bool           `json:"stream"`
	Options     map[string]any `json:"options,omitempty"`
}

// ChatResponse is a single /api/chat record (or the whole buffered body).
type ChatResponse struct {
	Model        string  `json:"model"`
	Message      Message `json:"message"`
	Done         bool    `json:"done"`
	EvalCount    int     `json:"eval_count,omitempty"`
	EvalDuration int64   `json:"eval_duration,omitempty"`
}

// PullStatus is the final record of a non-streamed /api/pull.
type PullStatus struct {
	Status string `json:"status"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type pullRequest struct {
	Name   string `json:"name"`
	Stream bool   `json:"stream"`
}
