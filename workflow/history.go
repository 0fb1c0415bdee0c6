package workflow

import (
	"sync"
	"time"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// StepEvent records one completed step, fan-out branch, or join within a run.
type StepEvent struct {
	Sequence  int           `json:"sequence"`
	Node      string        `json:"node"`
	Step      string        `json:"step"`
	Branch    string        `json:"branch,omitempty"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	Status    RunStatus     `json:"status"`
	Error     string        `json:"error,omitempty"`
}

// RunHistory is the ordered execution trace of a single run.
type RunHistory struct {
	RunID     string      `json:"run_id"`
	StartTime time.Time   `json:"start_time"`
	EndTime   time.Time   `json:"end_time"`
	Status    RunStatus   `json:"status"`
	Events    []StepEvent `json:"events"`
	Error     string      `json:"error,omitempty"`

	mu sync.Mutex
}

func newRunHistory(runID string) *RunHistory {
	return &RunHistory{
		RunID:     runID,
		StartTime: time.Now(),
		Status:    RunStatusRunning,
	}
}

func (h *RunHistory) record(ev StepEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ev.Sequence = len(h.Events) + 1
	h.Events = append(h.Events, ev)
}

func (h *RunHistory) complete(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.EndTime = time.Now()
	if err != nil {
		h.Status = RunStatusFailed
		h.Error = err.Error()
	} else {
		h.Status = RunStatusCompleted
	}
}

// EventList returns a copy of the recorded events.
func (h *RunHistory) EventList() []StepEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]StepEvent, len(h.Events))
	copy(out, h.Events)
	return out
}

// historyStore keeps run histories in memory, keyed by run id.
type historyStore struct {
	mu        sync.RWMutex
	histories map[string]*RunHistory
}

func newHistoryStore() *historyStore {
	return &historyStore{histories: make(map[string]*RunHistory)}
}

func (s *historyStore) save(h *RunHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[h.RunID] = h
}

func (s *historyStore) get(runID string) (*RunHistory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.histories[runID]
	return h, ok
}
