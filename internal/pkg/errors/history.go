package errors

import (
	"sync"
	"time"
)

// HistoryEntry is one recorded error occurrence.
type HistoryEntry struct {
	Time      time.Time `json:"time"`
	Kind      Kind      `json:"kind"`
	Severity  Severity  `json:"severity"`
	Component string    `json:"component"`
	Operation string    `json:"operation"`
	Message   string    `json:"message"`
}

// History is a bounded rolling record of recent errors kept for
// diagnostics. Oldest entries are dropped once capacity is reached.
type History struct {
	mu      sync.Mutex
	entries []HistoryEntry
	max     int
}

// NewHistory creates a history bounded to max entries.
func NewHistory(max int) *History {
	if max <= 0 {
		max = 100
	}
	return &History{
		entries: make([]HistoryEntry, 0, max),
		max:     max,
	}
}

// Record appends an error occurrence, evicting the oldest entry at capacity.
func (h *History) Record(component, operation string, err error) {
	if err == nil {
		return
	}

	entry := HistoryEntry{
		Time:      time.Now(),
		Kind:      KindOf(err),
		Severity:  SeverityMedium,
		Component: component,
		Operation: operation,
		Message:   err.Error(),
	}
	var e *Error
	if As(err, &e) {
		entry.Severity = e.Severity
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.entries) >= h.max {
		h.entries = h.entries[1:]
	}
	h.entries = append(h.entries, entry)
}

// Recent returns up to n entries, newest last.
func (h *History) Recent(n int) []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n <= 0 || n > len(h.entries) {
		n = len(h.entries)
	}
	out := make([]HistoryEntry, n)
	copy(out, h.entries[len(h.entries)-n:])
	return out
}

// Len returns the number of recorded entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
