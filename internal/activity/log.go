// Package activity records recent operator actions in memory and pushes
// them to live subscribers.
package activity

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an entry.
type Status string

const (
	StatusInFlight Status = "in_flight"
	StatusSuccess  Status = "success"
	StatusError    Status = "error"
)

// Entry is one operator action against the daemon.
type Entry struct {
	ID       string     `json:"id"`
	Op       string     `json:"op"`
	Model    string     `json:"model,omitempty"`
	Status   Status     `json:"status"`
	Message  string     `json:"message,omitempty"`
	Started  time.Time  `json:"started"`
	Finished *time.Time `json:"finished,omitempty"`
	Bytes    int64      `json:"bytes,omitempty"`
}

// Duration is the time the action took, or has taken so far.
func (e Entry) Duration(now time.Time) time.Duration {
	if e.Finished != nil {
		return e.Finished.Sub(e.Started)
	}
	return now.Sub(e.Started)
}

// Log is a fixed-capacity ring buffer of entries. Old entries are
// overwritten once it is full.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	byID    map[string]int // ID -> index in entries
	size    int
	head    int // next write position
	count   int

	bus *Bus
	now func() time.Time
}

// NewLog creates a log holding at most size entries. bus may be nil.
func NewLog(size int, bus *Bus) *Log {
	if size <= 0 {
		size = 1
	}
	return &Log{
		entries: make([]Entry, size),
		byID:    make(map[string]int),
		size:    size,
		bus:     bus,
		now:     time.Now,
	}
}

// Start records a new in-flight action and returns its ID.
func (l *Log) Start(op, model string) string {
	e := Entry{
		ID:      uuid.NewString(),
		Op:      op,
		Model:   model,
		Status:  StatusInFlight,
		Started: l.now(),
	}

	l.mu.Lock()
	if l.count == l.size {
		delete(l.byID, l.entries[l.head].ID)
	}
	l.entries[l.head] = e
	l.byID[e.ID] = l.head
	l.head = (l.head + 1) % l.size
	if l.count < l.size {
		l.count++
	}
	l.mu.Unlock()

	l.publish(e)
	return e.ID
}

// Finish completes an entry. Unknown (already evicted) IDs are ignored.
func (l *Log) Finish(id string, status Status, message string, bytes int64) {
	l.mu.Lock()
	idx, ok := l.byID[id]
	if !ok {
		l.mu.Unlock()
		return
	}
	e := &l.entries[idx]
	end := l.now()
	e.Status = status
	e.Message = message
	e.Bytes = bytes
	e.Finished = &end
	snapshot := *e
	l.mu.Unlock()

	l.publish(snapshot)
}

// Record is Start followed by Finish for actions that complete immediately.
func (l *Log) Record(op, model string, err error) {
	id := l.Start(op, model)
	if err != nil {
		l.Finish(id, StatusError, err.Error(), 0)
		return
	}
	l.Finish(id, StatusSuccess, "", 0)
}

// Recent returns up to n entries, newest first. n <= 0 returns everything.
func (l *Log) Recent(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > l.count {
		n = l.count
	}
	out := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.head - i + l.size) % l.size
		out = append(out, l.entries[idx])
	}
	return out
}

func (l *Log) publish(e Entry) {
	if l.bus != nil {
		l.bus.Publish(e)
	}
}
