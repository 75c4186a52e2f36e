package agent

import (
	"fmt"
	"sync"
	"time"
)

// LogEntry 是代理活动日志中的一条记录
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// RingLog is a bounded activity log. When full, appending drops the oldest
// entry, so memory stays constant no matter how long an agent runs.
type RingLog struct {
	mu      sync.Mutex
	entries []LogEntry
	head    int
	size    int
}

func NewRingLog(capacity int) *RingLog {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingLog{entries: make([]LogEntry, capacity)}
}

func (r *RingLog) Appendf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := (r.head + r.size) % len(r.entries)
	r.entries[idx] = LogEntry{Time: time.Now(), Message: fmt.Sprintf(format, args...)}
	if r.size < len(r.entries) {
		r.size++
	} else {
		r.head = (r.head + 1) % len(r.entries)
	}
}

// Entries returns the retained entries, oldest first.
func (r *RingLog) Entries() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LogEntry, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.entries[(r.head+i)%len(r.entries)])
	}
	return out
}

func (r *RingLog) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
