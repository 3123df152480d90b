package ai

import "sync"

// Status is a snapshot of the current or most recent summary task. It is
// process scoped and resets on restart.
type Status struct {
	Running bool `json:"is_running"`
	Total   int  `json:"total"`
	Success int  `json:"success"`
	Failed  int  `json:"failed"`
}

// Tracker guards the single-flight summary task and records its progress.
type Tracker struct {
	mu     sync.Mutex
	status Status
}

// TryStart claims the tracker for a new task of the given size. It returns
// ErrAlreadyRunning if another task holds it.
func (t *Tracker) TryStart(total int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Running {
		return ErrAlreadyRunning
	}
	t.status = Status{Running: true, Total: total}
	return nil
}

// SetTotal fixes the item count once candidate selection has finished.
func (t *Tracker) SetTotal(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Total = total
}

// Record adds one finished item to the running tally.
func (t *Tracker) Record(ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ok {
		t.status.Success++
	} else {
		t.status.Failed++
	}
}

// Finish releases the tracker, keeping the final counts readable until the
// next task starts.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Running = false
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}
