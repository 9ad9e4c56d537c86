// Package logbuf holds the bounded ring of user-facing log entries served to
// the settings UI. It is separate from the structured zap log: components push
// only the entries a user needs to see (recording started, transcription
// failed, ready) rather than the full debug stream.
package logbuf

import (
	"fmt"
	"sync"
	"time"
)

// Level is the severity of a UI log entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// DefaultCapacity matches the 100-entry cap of the original tray UI.
const DefaultCapacity = 100

// Entry is a single timestamped log line.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
}

// Ring is a fixed-capacity FIFO buffer of log entries. Once full, appending
// evicts the oldest entry. Safe for concurrent use from every component.
type Ring struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	notify   func(Entry)
}

// NewRing creates a ring with the given capacity. Non-positive capacities get
// DefaultCapacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
	}
}

// OnAppend registers a callback invoked for every appended entry, after it
// is buffered. Must be set before the ring is shared; the callback must not
// block.
func (r *Ring) OnAppend(notify func(Entry)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notify = notify
}

// Append adds an entry, evicting the oldest if the ring is full.
func (r *Ring) Append(level Level, message string) {
	entry := Entry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
	}

	r.mu.Lock()
	r.entries = append(r.entries, entry)
	if len(r.entries) > r.capacity {
		over := len(r.entries) - r.capacity
		r.entries = append(r.entries[:0], r.entries[over:]...)
	}
	notify := r.notify
	r.mu.Unlock()

	if notify != nil {
		notify(entry)
	}
}

// Infof appends a formatted INFO entry.
func (r *Ring) Infof(format string, args ...interface{}) {
	r.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf appends a formatted WARN entry.
func (r *Ring) Warnf(format string, args ...interface{}) {
	r.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Errorf appends a formatted ERROR entry.
func (r *Ring) Errorf(format string, args ...interface{}) {
	r.Append(LevelError, fmt.Sprintf(format, args...))
}

// Entries returns a copy of the buffered entries in chronological order.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of buffered entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Capacity returns the configured maximum number of entries.
func (r *Ring) Capacity() int {
	return r.capacity
}
