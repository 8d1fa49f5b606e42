package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rahul/veritas/internal/trace"
	"github.com/tmc/langchaingo/llms"
)

// scriptedModel replays canned responses, one per GenerateContent call.
type scriptedModel struct {
	mu    sync.Mutex
	turns []*llms.ContentResponse
	errs  map[int]error
	calls int
	seen  [][]llms.MessageContent
}

func script(turns ...*llms.ContentResponse) *scriptedModel {
	return &scriptedModel{turns: turns}
}

func (m *scriptedModel) GenerateContent(ctx context.Context, msgs []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i := m.calls
	m.calls++
	m.seen = append(m.seen, msgs)
	if err := m.errs[i]; err != nil {
		return nil, err
	}
	if i >= len(m.turns) {
		return nil, errors.New("script exhausted")
	}
	return m.turns[i], nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, opts...)
}

func say(text string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}
}

func callTool(name, args string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{
			ID:           "call_" + name,
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
		}},
	}}}
}

// fixedPlanner installs the plans it is given, one per call.
type fixedPlanner struct {
	plans []Plan
	calls []bool
	err   error
	reset bool
}

func (p *fixedPlanner) Plan(_ context.Context, state *WorkflowState, replan bool) error {
	p.calls = append(p.calls, replan)
	if p.err != nil {
		return p.err
	}
	plan := p.plans[min(len(p.calls)-1, len(p.plans)-1)]
	state.Plan = &plan
	if !replan || p.reset {
		state.CurrentStep = 1
	}
	state.ReplanFlag = false
	name := MessageInitialPlan
	if replan {
		name = MessageReplan
	}
	state.appendMessage(name, trace.Append(plan.Render(), trace.PlanRecord(plan.Trace("test-planner"))))
	state.ModelUsage[string(Planner)] = "test-planner"
	return nil
}

// stubAdapter answers every task with the result of fn.
type stubAdapter struct {
	name  Name
	mu    sync.Mutex
	goals []string
	fn    func(ctx context.Context, task Task) Outcome
}

func (a *stubAdapter) Name() Name          { return a.name }
func (a *stubAdapter) Description() string { return "stub " + string(a.name) }

func (a *stubAdapter) Invoke(ctx context.Context, task Task) Outcome {
	a.mu.Lock()
	a.goals = append(a.goals, task.Goal)
	a.mu.Unlock()
	if a.fn == nil {
		return Outcome{Content: "done: " + task.Goal, Model: "test-" + string(a.name)}
	}
	return a.fn(ctx, task)
}

func queryOutcome(rows int) Outcome {
	data := make([]map[string]any, rows)
	for i := range data {
		data[i] = map[string]any{"id": int64(i + 1)}
	}
	qt := trace.NewQueryTrace("SELECT id FROM t", nil, data)
	return Outcome{
		Content: fmt.Sprintf("found %d rows", rows),
		Traces:  []trace.Record{trace.QueryRecord(qt)},
		Model:   "test-query",
	}
}

func planOf(agents ...Name) Plan {
	p := Plan{}
	for i, a := range agents {
		p.Steps = append(p.Steps, Step{Agent: a, Goal: fmt.Sprintf("goal %d", i+1)})
	}
	return p
}
