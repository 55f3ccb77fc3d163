// Package stream folds the daemon's newline-delimited JSON records into
// progress snapshots (pull) and concatenated text (generate/chat).
package stream

import (
	"time"

	"ollama-dash/internal/format"
	"ollama-dash/internal/util"
)

// StatusNoProgress is reported when a pull stream closed without a single record.
const StatusNoProgress = "no progress information"

// artifactLen is how much of a layer digest is shown as the current artifact.
const artifactLen = 12

// Snapshot is the progress state after one pull record.
type Snapshot struct {
	Status        string        `json:"status"`
	Artifact      string        `json:"artifact,omitempty"`
	Completed     int64         `json:"completed"`
	Total         int64         `json:"total"`
	Progress      float64       `json:"progress"`
	ProgressKnown bool          `json:"progress_known"`
	Throughput    float64       `json:"throughput"`
	Elapsed       time.Duration `json:"elapsed"`
	Done          bool          `json:"done"`
	Error         string        `json:"error,omitempty"`
	// AverageThroughput is total/elapsed, frozen once Done.
	AverageThroughput float64 `json:"average_throughput"`
}

// Failed reports whether the snapshot ended in error.
func (s Snapshot) Failed() bool {
	return s.Error != ""
}

// Percent returns the progress as a percentage in [0, 100].
func (s Snapshot) Percent() float64 {
	return s.Progress * 100
}

// Speed renders the sampled throughput.
func (s Snapshot) Speed() string {
	return format.Speed(s.Throughput)
}

// AverageSpeed renders the average throughput of a finished pull.
func (s Snapshot) AverageSpeed() string {
	return format.Speed(s.AverageThroughput)
}

// Option configures a PullAggregator.
type Option func(*PullAggregator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *PullAggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithSampleInterval sets the minimum time between throughput samples.
func WithSampleInterval(d time.Duration) Option {
	return func(a *PullAggregator) {
		if d > 0 {
			a.interval = d
		}
	}
}

// PullAggregator folds pull records into snapshots. It is not safe for
// concurrent use; one aggregator serves one stream.
type PullAggregator struct {
	now      func() time.Time
	interval time.Duration

	start       time.Time
	sampleAt    time.Time
	sampleBytes int64
	records     int
	snap        Snapshot
}

// NewPullAggregator starts the elapsed clock immediately.
func NewPullAggregator(opts ...Option) *PullAggregator {
	a := &PullAggregator{
		now:      time.Now,
		interval: time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.start = a.now()
	a.sampleAt = a.start
	return a
}

// Snapshot returns the latest state without consuming a record.
func (a *PullAggregator) Snapshot() Snapshot {
	return a.snap
}

// Records returns how many well-formed records were folded.
func (a *PullAggregator) Records() int {
	return a.records
}

// Observe folds one line. Malformed lines are skipped and report false;
// lines arriving after the terminal snapshot are ignored the same way.
func (a *PullAggregator) Observe(line []byte) (Snapshot, bool) {
	if a.snap.Done {
		return a.snap, false
	}
	rec, err := util.DecodeJSONMap(line)
	if err != nil {
		return a.snap, false
	}
	a.records++
	now := a.now()
	a.snap.Elapsed = now.Sub(a.start)

	if msg, ok := util.StringField(rec, "error"); ok && msg != "" {
		return a.fail(msg), true
	}
	if status, ok := util.StringField(rec, "status"); ok {
		a.snap.Status = status
	}
	if digest, ok := util.StringField(rec, "digest"); ok {
		if len(digest) > artifactLen {
			digest = digest[:artifactLen]
		}
		if digest != a.snap.Artifact {
			// New layer: its byte counter restarts from zero.
			a.sampleBytes = 0
		}
		a.snap.Artifact = digest
	}

	completed, hasCompleted := util.Int64Field(rec, "completed")
	total, hasTotal := util.Int64Field(rec, "total")
	if hasCompleted && hasTotal {
		a.snap.Completed = completed
		a.snap.Total = total
		if total > 0 {
			p := float64(completed) / float64(total)
			if p > 1 {
				p = 1
			}
			if p < 0 {
				p = 0
			}
			a.snap.Progress = p
			a.snap.ProgressKnown = true
		} else {
			a.snap.Progress = 0
			a.snap.ProgressKnown = false
		}
		a.sample(now, completed)
	}

	done, _ := util.BoolField(rec, "done")
	if done || a.snap.Status == "success" {
		return a.finish(now), true
	}
	return a.snap, true
}

func (a *PullAggregator) sample(now time.Time, completed int64) {
	dt := now.Sub(a.sampleAt)
	if dt < a.interval {
		return
	}
	delta := completed - a.sampleBytes
	if delta < 0 {
		delta = completed
	}
	a.snap.Throughput = float64(delta) / dt.Seconds()
	a.sampleAt = now
	a.sampleBytes = completed
}

// Close produces the terminal snapshot when the transport ended. A read
// error yields an error snapshot; earlier snapshots stand.
func (a *PullAggregator) Close(readErr error) Snapshot {
	if a.snap.Done {
		return a.snap
	}
	now := a.now()
	a.snap.Elapsed = now.Sub(a.start)
	if readErr != nil {
		return a.fail(readErr.Error())
	}
	if a.records == 0 {
		a.snap.Status = StatusNoProgress
	}
	return a.finish(now)
}

func (a *PullAggregator) finish(now time.Time) Snapshot {
	a.snap.Done = true
	a.snap.Elapsed = now.Sub(a.start)
	a.snap.AverageThroughput = 0
	if secs := a.snap.Elapsed.Seconds(); a.snap.Total > 0 && secs > 0 {
		a.snap.AverageThroughput = float64(a.snap.Total) / secs
	}
	return a.snap
}

func (a *PullAggregator) fail(msg string) Snapshot {
	a.snap.Done = true
	a.snap.Error = msg
	return a.snap
}

// Lines is the record source consumed by the fold helpers. *ollama.Stream
// satisfies it.
type Lines interface {
	Next() bool
	Line() []byte
	Err() error
}

// FoldPull drains src through a, invoking redraw after every accepted record
// and once more with the terminal snapshot when the stream ends without one.
// It returns the terminal snapshot.
func FoldPull(src Lines, a *PullAggregator, redraw func(Snapshot)) Snapshot {
	for src.Next() {
		snap, ok := a.Observe(src.Line())
		if !ok {
			continue
		}
		if redraw != nil {
			redraw(snap)
		}
		if snap.Done {
			return snap
		}
	}
	snap := a.Close(src.Err())
	if redraw != nil {
		redraw(snap)
	}
	return snap
}
