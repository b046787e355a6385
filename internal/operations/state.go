package operations

import (
	"sync"
	"time"
)

// StepStatus represents the current status of a taxpayer stage
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusActive    StepStatus = "active"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepState is the runtime state of one stage for one taxpayer
type StepState struct {
	mu        sync.RWMutex
	Stage     string
	GSTIN     string
	Status    StepStatus
	StartTime *time.Time
	EndTime   *time.Time
	Message   string
	Err       error
	Counters  map[string]int
}

// NewStepState creates a pending step
func NewStepState(stage, gstin string) *StepState {
	return &StepState{
		Stage:    stage,
		GSTIN:    gstin,
		Status:   StepStatusPending,
		Counters: make(map[string]int),
	}
}

// Start marks the step as active
func (s *StepState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.StartTime = &now
	s.Status = StepStatusActive
}

// Complete marks the step as completed
func (s *StepState) Complete(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.EndTime = &now
	s.Status = StepStatusCompleted
	s.Message = message
}

// Fail marks the step as failed with the given error
func (s *StepState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.EndTime = &now
	s.Status = StepStatusFailed
	s.Err = err
	if err != nil {
		s.Message = err.Error()
	}
}

// Skip marks the step as skipped with the given reason
func (s *StepState) Skip(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.EndTime = &now
	s.Status = StepStatusSkipped
	s.Message = reason
}

// SetCounter records a named count, e.g. downloaded exports or sheets written.
func (s *StepState) SetCounter(name string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Counters[name] = n
}

// Duration returns the duration of the step
func (s *StepState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.StartTime == nil {
		return 0
	}
	if s.EndTime != nil {
		return s.EndTime.Sub(*s.StartTime)
	}
	return time.Since(*s.StartTime)
}

// StepSnapshot is a lock-free copy of a StepState for reporting.
type StepSnapshot struct {
	Stage      string         `json:"stage"`
	GSTIN      string         `json:"gstin"`
	Status     StepStatus     `json:"status"`
	StartTime  *time.Time     `json:"start_time,omitempty"`
	EndTime    *time.Time     `json:"end_time,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	Message    string         `json:"message,omitempty"`
	Counters   map[string]int `json:"counters,omitempty"`
}

// Snapshot copies the step under its lock.
func (s *StepState) Snapshot() StepSnapshot {
	d := s.Duration()

	s.mu.RLock()
	defer s.mu.RUnlock()

	counters := make(map[string]int, len(s.Counters))
	for k, v := range s.Counters {
		counters[k] = v
	}
	return StepSnapshot{
		Stage:      s.Stage,
		GSTIN:      s.GSTIN,
		Status:     s.Status,
		StartTime:  s.StartTime,
		EndTime:    s.EndTime,
		DurationMS: d.Milliseconds(),
		Message:    s.Message,
		Counters:   counters,
	}
}

// RunStatusValue represents the status of the whole run
type RunStatusValue string

const (
	RunStatusPending   RunStatusValue = "pending"
	RunStatusRunning   RunStatusValue = "running"
	RunStatusCompleted RunStatusValue = "completed"
	RunStatusFailed    RunStatusValue = "failed"
)

// RunState tracks every taxpayer step of one job run. It is safe for
// concurrent readers such as the status endpoint.
type RunState struct {
	mu        sync.RWMutex
	RunID     string
	Status    RunStatusValue
	StartTime time.Time
	EndTime   *time.Time
	Err       error
	steps     map[string]*StepState
	order     []string
}

// NewRunState creates a pending run
func NewRunState(runID string) *RunState {
	return &RunState{
		RunID:  runID,
		Status: RunStatusPending,
		steps:  make(map[string]*StepState),
	}
}

func stepKey(stage, gstin string) string {
	return stage + "/" + gstin
}

// Step returns the step for (stage, gstin), creating it on first use.
func (r *RunState) Step(stage, gstin string) *StepState {
	key := stepKey(stage, gstin)

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.steps[key]; ok {
		return s
	}
	s := NewStepState(stage, gstin)
	r.steps[key] = s
	r.order = append(r.order, key)
	return s
}

// Start marks the run as running
func (r *RunState) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = RunStatusRunning
	r.StartTime = time.Now()
}

// Complete marks the run as completed
func (r *RunState) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.EndTime = &now
	r.Status = RunStatusCompleted
}

// Fail marks the run as failed
func (r *RunState) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.EndTime = &now
	r.Status = RunStatusFailed
	r.Err = err
}

// FailedSteps returns the steps that failed, in creation order.
func (r *RunState) FailedSteps() []StepSnapshot {
	var out []StepSnapshot
	for _, s := range r.Snapshot().Steps {
		if s.Status == StepStatusFailed {
			out = append(out, s)
		}
	}
	return out
}

// RunSnapshot is the reportable view of a RunState.
type RunSnapshot struct {
	RunID     string         `json:"run_id"`
	Status    RunStatusValue `json:"status"`
	StartTime time.Time      `json:"start_time"`
	EndTime   *time.Time     `json:"end_time,omitempty"`
	Error     string         `json:"error,omitempty"`
	Steps     []StepSnapshot `json:"steps"`
}

// Snapshot copies the run and its steps in creation order.
func (r *RunState) Snapshot() RunSnapshot {
	r.mu.RLock()
	snap := RunSnapshot{
		RunID:     r.RunID,
		Status:    r.Status,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
	}
	if r.Err != nil {
		snap.Error = r.Err.Error()
	}
	steps := make([]*StepState, 0, len(r.order))
	for _, key := range r.order {
		steps = append(steps, r.steps[key])
	}
	r.mu.RUnlock()

	snap.Steps = make([]StepSnapshot, 0, len(steps))
	for _, s := range steps {
		snap.Steps = append(snap.Steps, s.Snapshot())
	}
	return snap
}
