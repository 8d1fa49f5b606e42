package agent

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rahul/veritas/internal/trace"
)

// Step is one unit of a plan.
type Step struct {
	Agent Name   `json:"agent"`
	Goal  string `json:"goal"`
}

// Plan is an ordered list of steps. It is never edited once built:
// re-planning swaps in a new Plan.
type Plan struct {
	Steps []Step
}

func (p *Plan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Steps)
}

// Step returns the step at the 1-based index i.
func (p *Plan) Step(i int) (Step, bool) {
	if p == nil || i < 1 || i > len(p.Steps) {
		return Step{}, false
	}
	return p.Steps[i-1], true
}

// MarshalJSON writes the plan as an object keyed by step number.
func (p Plan) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.indexed())
}

func (p *Plan) UnmarshalJSON(data []byte) error {
	parsed, err := ParsePlan(data)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p Plan) indexed() map[string]Step {
	m := make(map[string]Step, len(p.Steps))
	for i, s := range p.Steps {
		m[strconv.Itoa(i+1)] = s
	}
	return m
}

// Trace renders the plan as a PlanTrace attributed to model.
func (p Plan) Trace(model string) trace.PlanTrace {
	steps := make(map[string]trace.PlanStep, len(p.Steps))
	for i, s := range p.Steps {
		steps[strconv.Itoa(i+1)] = trace.PlanStep{Agent: string(s.Agent), Goal: s.Goal}
	}
	return trace.PlanTrace{Plan: steps, ReasoningModel: model, StepCount: len(p.Steps)}
}

// Render is the human readable form used as message content.
func (p Plan) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Execution plan (%d steps):", len(p.Steps))
	for i, s := range p.Steps {
		fmt.Fprintf(&b, "\n%d. [%s] %s", i+1, s.Agent, s.Goal)
	}
	return b.String()
}

// ParsePlan validates a step-number keyed JSON object. Indices must run
// from 1 without gaps and every step must name a retrieval agent and a goal.
func ParsePlan(data []byte) (Plan, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Plan{}, fmt.Errorf("plan is not a JSON object: %v", err)
	}
	// tolerate {"plan": {...}}
	if wrapped, ok := raw["plan"]; ok && len(raw) == 1 {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(wrapped, &inner); err != nil {
			return Plan{}, fmt.Errorf("plan is not a JSON object: %v", err)
		}
		raw = inner
	}
	if len(raw) == 0 {
		return Plan{}, fmt.Errorf("plan has no steps")
	}

	for key := range raw {
		i, err := strconv.Atoi(key)
		if err != nil || i < 1 || strconv.Itoa(i) != key {
			return Plan{}, fmt.Errorf("invalid step index %q", key)
		}
	}

	steps := make([]Step, len(raw))
	for i := 1; i <= len(raw); i++ {
		body, ok := raw[strconv.Itoa(i)]
		if !ok {
			return Plan{}, fmt.Errorf("step indices are not contiguous: missing %d", i)
		}
		var s struct {
			Agent *string `json:"agent"`
			Goal  string  `json:"goal"`
		}
		if err := json.Unmarshal(body, &s); err != nil {
			return Plan{}, fmt.Errorf("step %d: %v", i, err)
		}
		if s.Agent == nil || *s.Agent == "" {
			return Plan{}, fmt.Errorf("step %d: missing agent", i)
		}
		name, err := ParseName(*s.Agent)
		if err != nil {
			return Plan{}, fmt.Errorf("step %d: %v", i, err)
		}
		if !name.Retrieval() {
			return Plan{}, fmt.Errorf("step %d: %q cannot be planned as a step", i, name)
		}
		if strings.TrimSpace(s.Goal) == "" {
			return Plan{}, fmt.Errorf("step %d: missing goal", i)
		}
		steps[i-1] = Step{Agent: name, Goal: strings.TrimSpace(s.Goal)}
	}
	return Plan{Steps: steps}, nil
}

// firstJSONObject returns the first complete JSON object in text, which may
// be wrapped in prose or a code fence.
func firstJSONObject(text string) (json.RawMessage, error) {
	start := strings.Index(text, "{")
	if start < 0 {
		return nil, fmt.Errorf("no JSON object in planner output")
	}
	dec := json.NewDecoder(strings.NewReader(text[start:]))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unreadable JSON in planner output: %v", err)
	}
	return raw, nil
}
