package merge

import (
	"log"
	"sync"
	"time"
)

// RunProgress is the externally visible state of one merge run.
type RunProgress struct {
	RunID            string  `json:"run_id"`
	Current          int     `json:"current"`
	Total            int     `json:"total"`
	Percentage       float64 `json:"percentage"`
	CurrentOperation string  `json:"current_operation"`
	Completed        bool    `json:"completed"`
	Success          bool    `json:"success"`
	Result           *Result `json:"result,omitempty"`
	Error            string  `json:"error,omitempty"`

	updatedAt time.Time
}

// ProgressTracker is an injected, process-local progress sink keyed by run
// id. Entries are evicted after a TTL once completed, so a long-lived
// process does not accumulate finished runs. Updates are monotone: Advance
// never moves Current backwards.
type ProgressTracker struct {
	mu   sync.Mutex
	runs map[string]*RunProgress
	ttl  time.Duration

	// Notify, when set, is invoked with a snapshot after every update. Used
	// to feed the realtime hub; must not block.
	Notify func(RunProgress)

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewProgressTracker creates a tracker whose janitor evicts completed runs
// older than ttl.
func NewProgressTracker(ttl time.Duration) *ProgressTracker {
	t := &ProgressTracker{
		runs:     make(map[string]*RunProgress),
		ttl:      ttl,
		stopChan: make(chan struct{}),
	}
	go t.janitor()
	return t
}

// Start registers a run with its precomputed total unit count
func (t *ProgressTracker) Start(runID string, total int) {
	t.mu.Lock()
	t.runs[runID] = &RunProgress{
		RunID:     runID,
		Total:     total,
		updatedAt: time.Now(),
	}
	snapshot := *t.runs[runID]
	t.mu.Unlock()
	t.notify(snapshot)
}

// SetTotal replaces a run's provisional total once the real unit count is
// known. Current is preserved and re-clamped.
func (t *ProgressTracker) SetTotal(runID string, total int) {
	t.mu.Lock()
	run, ok := t.runs[runID]
	if !ok {
		t.mu.Unlock()
		return
	}
	run.Total = total
	if run.Current > run.Total {
		run.Current = run.Total
	}
	run.Percentage = percentage(run.Current, run.Total)
	run.updatedAt = time.Now()
	snapshot := *run
	t.mu.Unlock()
	t.notify(snapshot)
}

// Advance adds n completed units and updates the operation description
func (t *ProgressTracker) Advance(runID string, n int, operation string) {
	t.mu.Lock()
	run, ok := t.runs[runID]
	if !ok || n < 0 {
		t.mu.Unlock()
		return
	}
	run.Current += n
	if run.Current > run.Total {
		run.Current = run.Total
	}
	run.CurrentOperation = operation
	run.Percentage = percentage(run.Current, run.Total)
	run.updatedAt = time.Now()
	snapshot := *run
	t.mu.Unlock()
	t.notify(snapshot)
}

// Complete marks a run as finished with its result. Progress reaches 100%
// no earlier than the last unit of work.
func (t *ProgressTracker) Complete(runID string, result *Result) {
	t.mu.Lock()
	run, ok := t.runs[runID]
	if !ok {
		t.mu.Unlock()
		return
	}
	run.Current = run.Total
	run.Percentage = 100
	run.CurrentOperation = "completed"
	run.Completed = true
	run.Success = result != nil && result.Success
	run.Result = result
	run.updatedAt = time.Now()
	snapshot := *run
	t.mu.Unlock()
	t.notify(snapshot)
}

// Fail marks a run as finished unsuccessfully
func (t *ProgressTracker) Fail(runID string, err error) {
	t.mu.Lock()
	run, ok := t.runs[runID]
	if !ok {
		t.mu.Unlock()
		return
	}
	run.Completed = true
	run.Success = false
	run.CurrentOperation = "failed"
	if err != nil {
		run.Error = err.Error()
	}
	run.updatedAt = time.Now()
	snapshot := *run
	t.mu.Unlock()
	t.notify(snapshot)
}

// Get returns a snapshot of a run's progress
func (t *ProgressTracker) Get(runID string) (RunProgress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[runID]
	if !ok {
		return RunProgress{}, false
	}
	return *run, true
}

// Stop terminates the janitor goroutine
func (t *ProgressTracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
}

func (t *ProgressTracker) notify(snapshot RunProgress) {
	if t.Notify != nil {
		t.Notify(snapshot)
	}
}

func (t *ProgressTracker) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.evictExpired()
		case <-t.stopChan:
			return
		}
	}
}

func (t *ProgressTracker) evictExpired() {
	cutoff := time.Now().Add(-t.ttl)
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, run := range t.runs {
		if run.Completed && run.updatedAt.Before(cutoff) {
			delete(t.runs, id)
			log.Printf("merge: evicted expired progress entry %s", id)
		}
	}
}

func percentage(current, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(current) / float64(total) * 100
}
