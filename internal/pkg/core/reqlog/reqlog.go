/*
Copyright 2025 The CrossGate Authors
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package reqlog keeps a fixed-capacity in-memory ring of recent request
// summaries and derives rolling statistics over a trailing time window.
// Nothing is persisted across restarts.
package reqlog

import (
	"encoding/json"
	"sync"
	"time"
)

// Entry is one recorded invocation. Completed is false when the outbound
// call never produced an HTTP response (timeout, DNS, connection refused);
// such entries carry no status and count as failures in the stats.
type Entry struct {
	ID        uint64
	Method    string
	Path      string
	Origin    string
	APIKey    string
	Status    int
	Completed bool
	Duration  time.Duration
	Timestamp time.Time
}

// MarshalJSON renders the status as null for transport failures and the
// duration in milliseconds, matching the stats API surface.
func (e Entry) MarshalJSON() ([]byte, error) {
	var status *int
	if e.Completed {
		status = &e.Status
	}
	return json.Marshal(struct {
		ID        uint64    `json:"id"`
		Method    string    `json:"method"`
		Path      string    `json:"path"`
		Origin    string    `json:"origin,omitempty"`
		APIKey    string    `json:"apiKey,omitempty"`
		Status    *int      `json:"status"`
		Duration  int64     `json:"duration"`
		Timestamp time.Time `json:"timestamp"`
	}{e.ID, e.Method, e.Path, e.Origin, e.APIKey, status, e.Duration.Milliseconds(), e.Timestamp})
}

// Stats is the rolling view over entries inside the requested window.
type Stats struct {
	TotalRequests       int            `json:"totalRequests"`
	RecentRequests      int            `json:"recentRequests"`
	AverageResponseTime float64        `json:"averageResponseTime"`
	SuccessRate         float64        `json:"successRate"`
	TopOrigins          map[string]int `json:"topOrigins"`
	TopAPIKeys          map[string]int `json:"topApiKeys"`
	StatusCodes         map[int]int    `json:"statusCodes"`
}

// Log is a capacity-bounded, append-only ring of entries. Appends preserve
// call-completion order; the oldest entry is evicted first once the
// capacity is exceeded. All methods are safe for concurrent use.
type Log struct {
	mu          sync.Mutex
	capacity    int
	nextID      uint64
	entries     []Entry
	subscribers map[int]chan Entry
	nextSubID   int
}

func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = 1
	}
	return &Log{
		capacity:    capacity,
		nextID:      1,
		subscribers: make(map[int]chan Entry),
	}
}

// Record assigns the entry its id (and timestamp, when unset), appends it
// and fans it out to subscribers. Subscribers that cannot keep up miss
// entries rather than blocking the recorder.
func (l *Log) Record(entry Entry) Entry {
	l.mu.Lock()
	entry.ID = l.nextID
	l.nextID++
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[len(l.entries)-l.capacity:]
	}
	for _, ch := range l.subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
	l.mu.Unlock()
	return entry
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Recent returns up to limit entries, newest first.
func (l *Log) Recent(limit int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]Entry, limit)
	for i := 0; i < limit; i++ {
		out[i] = l.entries[len(l.entries)-1-i]
	}
	return out
}

// Stats computes the rolling counters over entries whose timestamp falls
// within the trailing window. Entries without a status count as failures.
func (l *Log) Stats(window time.Duration) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := Stats{
		TotalRequests: len(l.entries),
		TopOrigins:    make(map[string]int),
		TopAPIKeys:    make(map[string]int),
		StatusCodes:   make(map[int]int),
	}

	cutoff := time.Now().Add(-window)
	var totalDuration time.Duration
	var successes int
	for _, entry := range l.entries {
		if entry.Timestamp.Before(cutoff) {
			continue
		}
		stats.RecentRequests++
		totalDuration += entry.Duration
		if entry.Completed {
			stats.StatusCodes[entry.Status]++
			if entry.Status < 400 {
				successes++
			}
		}
		if entry.Origin != "" {
			stats.TopOrigins[entry.Origin]++
		}
		if entry.APIKey != "" {
			stats.TopAPIKeys[entry.APIKey]++
		}
	}
	if stats.RecentRequests > 0 {
		stats.AverageResponseTime = float64(totalDuration.Milliseconds()) / float64(stats.RecentRequests)
		stats.SuccessRate = float64(successes) / float64(stats.RecentRequests) * 100
	}
	return stats
}

// Subscribers returns the number of live subscriptions.
func (l *Log) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subscribers)
}

// Subscribe registers a listener channel for future entries. The returned
// cancel func must be called to release the subscription.
func (l *Log) Subscribe(buffer int) (<-chan Entry, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Entry, buffer)

	l.mu.Lock()
	id := l.nextSubID
	l.nextSubID++
	l.subscribers[id] = ch
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		if _, ok := l.subscribers[id]; ok {
			delete(l.subscribers, id)
			close(ch)
		}
		l.mu.Unlock()
	}
	return ch, cancel
}
