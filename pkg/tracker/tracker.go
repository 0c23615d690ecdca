package tracker

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brookwillow/kiwi/pkg/logger"
)

// Status is the terminal (or pending) disposition of one utterance.
type Status string

const (
	StatusPending      Status = "pending"
	StatusWaitingInput Status = "waiting_input"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusAborted      Status = "aborted"
	StatusBusy         Status = "busy"
)

// Terminal reports whether the status ends the trace.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusAborted, StatusBusy:
		return true
	}
	return false
}

// StageEntry is one pipeline stage's record within a trace.
type StageEntry struct {
	Stage     string         `json:"stage"`
	EventType string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Input     map[string]any `json:"input,omitempty"`
	Output    map[string]any `json:"output,omitempty"`
}

// Trace is the full per-utterance record. Mutated only under the trace mutex;
// Snapshot gives readers a consistent copy.
type Trace struct {
	MessageID string       `json:"msg_id"`
	Query     string       `json:"query"`
	Response  string       `json:"response"`
	Status    Status       `json:"status"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   time.Time    `json:"ended_at,omitempty"`
	Entries   []StageEntry `json:"entries"`

	mu sync.Mutex
}

// Tracker creates correlation ids and collects per-stage traces. Finished
// traces are optionally persisted to a SQLite log for offline inspection.
type Tracker struct {
	mu     sync.RWMutex
	traces map[string]*Trace
	store  *Store
}

func New(store *Store) *Tracker {
	return &Tracker{
		traces: make(map[string]*Trace),
		store:  store,
	}
}

// CreateMessageID starts a new trace and returns its correlation id.
func (t *Tracker) CreateMessageID() string {
	id := uuid.NewString()
	tr := &Trace{
		MessageID: id,
		Status:    StatusPending,
		StartedAt: time.Now(),
	}

	t.mu.Lock()
	t.traces[id] = tr
	t.mu.Unlock()
	return id
}

func (t *Tracker) get(id string) *Trace {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.traces[id]
}

// AddTrace appends a stage record. Unknown ids are ignored with a warning so
// a late event after abort cannot resurrect a trace.
func (t *Tracker) AddTrace(id, stage, eventType string, input, output map[string]any) {
	tr := t.get(id)
	if tr == nil {
		logger.WarnCF("tracker", "Trace not found", map[string]any{"msg_id": id, "stage": stage})
		return
	}

	tr.mu.Lock()
	tr.Entries = append(tr.Entries, StageEntry{
		Stage:     stage,
		EventType: eventType,
		Timestamp: time.Now(),
		Input:     input,
		Output:    output,
	})
	tr.mu.Unlock()
}

// UpdateQuery sets the canonical query text for the trace.
func (t *Tracker) UpdateQuery(id, query string) {
	if tr := t.get(id); tr != nil {
		tr.mu.Lock()
		tr.Query = query
		tr.mu.Unlock()
	}
}

// UpdateResponse sets the canonical response text for the trace.
func (t *Tracker) UpdateResponse(id, response string) {
	if tr := t.get(id); tr != nil {
		tr.mu.Lock()
		tr.Response = response
		tr.mu.Unlock()
	}
}

// SetStatus moves the trace to the given status. Terminal statuses stamp the
// end time and persist the trace when a store is configured.
func (t *Tracker) SetStatus(id string, status Status) {
	tr := t.get(id)
	if tr == nil {
		return
	}

	tr.mu.Lock()
	tr.Status = status
	if status.Terminal() {
		tr.EndedAt = time.Now()
	}
	snapshot := tr.snapshotLocked()
	tr.mu.Unlock()

	if status.Terminal() && t.store != nil {
		if err := t.store.SaveTrace(snapshot); err != nil {
			logger.WarnCF("tracker", "Failed to persist trace",
				map[string]any{"msg_id": id, "error": err.Error()})
		}
	}
}

// Snapshot returns a consistent copy of the trace, or false if unknown.
func (t *Tracker) Snapshot(id string) (TraceSnapshot, bool) {
	tr := t.get(id)
	if tr == nil {
		return TraceSnapshot{}, false
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.snapshotLocked(), true
}

// AbortPending marks every non-terminal trace aborted. Called on shutdown.
func (t *Tracker) AbortPending() {
	t.mu.RLock()
	ids := make([]string, 0, len(t.traces))
	for id, tr := range t.traces {
		tr.mu.Lock()
		terminal := tr.Status.Terminal()
		tr.mu.Unlock()
		if !terminal {
			ids = append(ids, id)
		}
	}
	t.mu.RUnlock()

	for _, id := range ids {
		t.SetStatus(id, StatusAborted)
	}
}

// TraceSnapshot is a value copy of a trace safe for concurrent readers.
type TraceSnapshot struct {
	MessageID string
	Query     string
	Response  string
	Status    Status
	StartedAt time.Time
	EndedAt   time.Time
	Entries   []StageEntry
}

// DurationMS is the trace's wall time in milliseconds.
func (s TraceSnapshot) DurationMS() float64 {
	end := s.EndedAt
	if end.IsZero() {
		end = time.Now()
	}
	return float64(end.Sub(s.StartedAt).Microseconds()) / 1000
}

func (tr *Trace) snapshotLocked() TraceSnapshot {
	entries := make([]StageEntry, len(tr.Entries))
	copy(entries, tr.Entries)
	return TraceSnapshot{
		MessageID: tr.MessageID,
		Query:     tr.Query,
		Response:  tr.Response,
		Status:    tr.Status,
		StartedAt: tr.StartedAt,
		EndedAt:   tr.EndedAt,
		Entries:   entries,
	}
}
