// Package agent plans a question, routes each plan step to a retrieval agent
// and formats the collected messages into an answer with provenance.
package agent

import (
	"errors"
	"fmt"
)

// Name identifies a node of the workflow.
type Name string

const (
	Planner     Name = "planner"
	QueryAgent  Name = "query_agent"
	SearchAgent Name = "search_agent"
)

// Names of the planner's own messages.
const (
	MessageInitialPlan = "initial_plan"
	MessageReplan      = "replan"
)

// ParseName maps s onto the closed set of node names.
func ParseName(s string) (Name, error) {
	switch n := Name(s); n {
	case Planner, QueryAgent, SearchAgent:
		return n, nil
	}
	return "", fmt.Errorf("unknown agent %q", s)
}

// Retrieval reports whether plan steps may be routed to n.
func (n Name) Retrieval() bool {
	return n == QueryAgent || n == SearchAgent
}

// Query is the user's question as received.
type Query struct {
	Text         string `json:"query"`
	EnableCharts bool   `json:"enable_charts"`
}

// Message is one entry of the workflow transcript. Content may carry a
// trailing execution trace.
type Message struct {
	Content string `json:"content"`
	Name    string `json:"name"`
}

// WorkflowState is owned by a single request and threaded through every
// transition of the executor.
type WorkflowState struct {
	Query Query
	// StepQuery, when set, replaces the goal of the next routed step.
	StepQuery    string
	Plan         *Plan
	CurrentStep  int
	ReplanFlag   bool
	ReplanReason string
	ReplanCount  int
	Messages     []Message
	ModelUsage   map[string]string

	Degraded       bool
	DegradedReason string
}

func NewWorkflowState(q Query) *WorkflowState {
	return &WorkflowState{
		Query:      q,
		ModelUsage: make(map[string]string),
	}
}

func (s *WorkflowState) appendMessage(name, content string) {
	s.Messages = append(s.Messages, Message{Name: name, Content: content})
}

// agentMessages returns the messages written by retrieval agents.
func (s *WorkflowState) agentMessages() []Message {
	var out []Message
	for _, m := range s.Messages {
		if n, err := ParseName(m.Name); err == nil && n.Retrieval() {
			out = append(out, m)
		}
	}
	return out
}

var (
	// ErrPlanning marks a request that failed because no valid plan could
	// be produced.
	ErrPlanning = errors.New("planning failed")
	// ErrRoutingInvariant marks a plan step that names no registered agent.
	ErrRoutingInvariant = errors.New("routing invariant violated")
	// ErrEmptyQuery rejects a blank question before any work starts.
	ErrEmptyQuery = errors.New("query must not be empty")
)

// PlanningError describes why the planner output was rejected.
type PlanningError struct {
	Reason string
	// Raw is the reasoning engine output, when there was one.
	Raw string
	Err error
}

func (e *PlanningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("planning failed: %s: %v", e.Reason, e.Err)
	}
	return "planning failed: " + e.Reason
}

func (e *PlanningError) Is(target error) bool { return target == ErrPlanning }

func (e *PlanningError) Unwrap() error { return e.Err }

// RoutingError reports a step whose agent has no adapter.
type RoutingError struct {
	Agent Name
	Step  int
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing invariant violated: step %d names unregistered agent %q", e.Step, e.Agent)
}

func (e *RoutingError) Is(target error) bool { return target == ErrRoutingInvariant }
