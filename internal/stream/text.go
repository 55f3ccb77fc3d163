package stream

import (
	"errors"
	"strings"
	"time"

	"ollama-dash/internal/util"
)

// Mode selects where a record carries its text fragment.
type Mode int

const (
	// ModeGenerate reads the top-level "response" field.
	ModeGenerate Mode = iota
	// ModeChat reads "message.content".
	ModeChat
)

func (m Mode) String() string {
	if m == ModeChat {
		return "chat"
	}
	return "generate"
}

// ParseMode maps a form value to a Mode. Anything but "chat" is generate.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), "chat") {
		return ModeChat
	}
	return ModeGenerate
}

// RecordError is a mid-stream failure reported by the daemon itself.
type RecordError struct {
	Message string
}

func (e *RecordError) Error() string {
	return e.Message
}

// TextResult is the folded response of a generate or chat stream.
type TextResult struct {
	Text         string
	Done         bool
	Fragments    int
	EvalCount    int64
	EvalDuration time.Duration
}

// TokensPerSecond is derived from the final record's eval counters; zero when absent.
func (r TextResult) TokensPerSecond() float64 {
	if r.EvalCount <= 0 || r.EvalDuration <= 0 {
		return 0
	}
	return float64(r.EvalCount) / r.EvalDuration.Seconds()
}

// TextFolder concatenates fragments in arrival order.
type TextFolder struct {
	mode Mode
	b    strings.Builder
	res  TextResult
}

func NewTextFolder(mode Mode) *TextFolder {
	return &TextFolder{mode: mode}
}

// Observe folds one line and returns the fragment it contributed. ok is
// false for malformed lines. An "error" record returns *RecordError.
func (f *TextFolder) Observe(line []byte) (fragment string, ok bool, err error) {
	rec, decErr := util.DecodeJSONMap(line)
	if decErr != nil {
		return "", false, nil
	}
	if msg, has := util.StringField(rec, "error"); has && msg != "" {
		return "", true, &RecordError{Message: msg}
	}

	switch f.mode {
	case ModeChat:
		if msg, has := util.ObjectField(rec, "message"); has {
			fragment, _ = util.StringField(msg, "content")
		}
	default:
		fragment, _ = util.StringField(rec, "response")
	}
	if fragment != "" {
		f.b.WriteString(fragment)
		f.res.Fragments++
	}

	if done, _ := util.BoolField(rec, "done"); done {
		f.res.Done = true
		if n, has := util.Int64Field(rec, "eval_count"); has {
			f.res.EvalCount = n
		}
		if ns, has := util.Int64Field(rec, "eval_duration"); has {
			f.res.EvalDuration = time.Duration(ns)
		}
	}
	return fragment, true, nil
}

// Text returns the running concatenation.
func (f *TextFolder) Text() string {
	return f.b.String()
}

// Result returns the folded state so far.
func (f *TextFolder) Result() TextResult {
	r := f.res
	r.Text = f.b.String()
	return r
}

// Done reports whether a done:true record was seen.
func (f *TextFolder) Done() bool {
	return f.res.Done
}

// FoldText drains src through f. redraw receives the running text after each
// non-empty fragment. The loop ends on done:true or when src is exhausted.
// The partial result is returned alongside any read or record error.
func FoldText(src Lines, f *TextFolder, redraw func(text, fragment string)) (TextResult, error) {
	for src.Next() {
		frag, ok, err := f.Observe(src.Line())
		if err != nil {
			return f.Result(), err
		}
		if !ok {
			continue
		}
		if frag != "" && redraw != nil {
			redraw(f.Text(), frag)
		}
		if f.Done() {
			return f.Result(), nil
		}
	}
	return f.Result(), src.Err()
}

// IsRecordError reports whether err came from a daemon error record.
func IsRecordError(err error) bool {
	var re *RecordError
	return errors.As(err, &re)
}
