package observability

import (
	"sync"
	"time"
)

// Phase is what the process is busy with, as shown by /v1/status.
type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhasePlanning Phase = "PLANNING"
	PhaseRouting  Phase = "ROUTING"
)

// Status tracks process-level counters. It replaces a package global so
// tests and multiple servers don't share state.
type Status struct {
	mu            sync.RWMutex
	started       time.Time
	inflight      int
	served        int64
	rejected      int64
	lastPhase     Phase
	lastQuestion  string
	lastHeartbeat time.Time
}

// Snapshot is a copy of Status safe to serialize.
type Snapshot struct {
	StartedAt     time.Time `json:"started_at"`
	Uptime        string    `json:"uptime"`
	Inflight      int       `json:"inflight"`
	Served        int64     `json:"served"`
	Rejected      int64     `json:"rejected"`
	LastPhase     Phase     `json:"last_phase"`
	LastQuestion  string    `json:"last_question,omitempty"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

func NewStatus() *Status {
	now := time.Now()
	return &Status{started: now, lastPhase: PhaseIdle, lastHeartbeat: now}
}

// Begin marks a request as in flight.
func (s *Status) Begin(question string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight++
	s.lastQuestion = question
}

// End marks a request as finished.
func (s *Status) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight > 0 {
		s.inflight--
	}
	s.served++
	if s.inflight == 0 {
		s.lastPhase = PhaseIdle
	}
}

// Reject counts a request turned away by admission control.
func (s *Status) Reject() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected++
}

// SetPhase records the most recent executor transition.
func (s *Status) SetPhase(p Phase) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPhase = p
}

// Heartbeat updates the last heartbeat time.
func (s *Status) Heartbeat() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHeartbeat = time.Now()
}

func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		StartedAt:     s.started,
		Uptime:        time.Since(s.started).Truncate(time.Second).String(),
		Inflight:      s.inflight,
		Served:        s.served,
		Rejected:      s.rejected,
		LastPhase:     s.lastPhase,
		LastQuestion:  s.lastQuestion,
		LastHeartbeat: s.lastHeartbeat,
	}
}
