package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rahul/veritas/internal/observability"
	"github.com/rahul/veritas/internal/trace"
	"github.com/tmc/langchaingo/llms"
)

// LLMPlanner asks the reasoning engine for a plan.
type LLMPlanner struct {
	Model   llms.Model
	ModelID string
	Prompts *PromptManager
	// Agents is the catalogue offered to the model.
	Agents Registry
	// PreserveStepOnReplan keeps CurrentStep when a revised plan arrives
	// instead of starting the new plan from step 1.
	PreserveStepOnReplan bool
	Logger               *observability.Logger
	Metrics              *observability.Metrics
}

// Plan builds a plan for state and installs it. Output that does not parse
// into a valid plan is a *PlanningError; there is no fallback plan.
func (p *LLMPlanner) Plan(ctx context.Context, state *WorkflowState, replan bool) error {
	start := time.Now()
	err := p.plan(ctx, state, replan)

	status := "ok"
	if err != nil {
		status = "error"
	}
	p.Metrics.RecordAgent(string(Planner), status, time.Since(start))
	return err
}

func (p *LLMPlanner) plan(ctx context.Context, state *WorkflowState, replan bool) error {
	system, err := p.Prompts.GetPlannerPrompt()
	if err != nil {
		return &PlanningError{Reason: "failed to load planner prompt", Err: err}
	}
	system = fmt.Sprintf("%s\n\n## Available agents:\n%s", system, p.Agents.Catalogue())

	input := p.request(state, replan)
	messages := []llms.MessageContent{
		{Role: llms.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextPart(system)}},
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart(input)}},
	}

	resp, err := p.Model.GenerateContent(ctx, messages)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &PlanningError{Reason: "reasoning engine error", Err: err}
	}
	if len(resp.Choices) == 0 {
		return &PlanningError{Reason: "empty response from reasoning engine"}
	}
	text := resp.Choices[0].Content
	p.Logger.LogLLM(ctx, observability.RequestID(ctx), string(Planner), input, text, nil)

	raw, err := firstJSONObject(text)
	if err != nil {
		return &PlanningError{Reason: "no plan in output", Raw: text, Err: err}
	}
	plan, err := ParsePlan(raw)
	if err != nil {
		return &PlanningError{Reason: "malformed plan", Raw: text, Err: err}
	}

	state.Plan = &plan
	if !replan || !p.PreserveStepOnReplan || state.CurrentStep < 1 {
		state.CurrentStep = 1
	}
	state.ReplanFlag = false
	state.ReplanReason = ""
	state.ModelUsage[string(Planner)] = p.ModelID

	name := MessageInitialPlan
	if replan {
		name = MessageReplan
	}
	content, err := trace.AppendE(plan.Render(), trace.PlanRecord(plan.Trace(p.ModelID)))
	if err != nil {
		p.Logger.Slog().WarnContext(ctx, "failed to encode plan trace", "error", err)
	}
	state.appendMessage(name, content)

	p.Logger.LogPlan(ctx, observability.RequestID(ctx), name, plan.Len(), p.ModelID)
	return nil
}

// request is the human turn sent to the planner.
func (p *LLMPlanner) request(state *WorkflowState, replan bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "QUESTION: %s\n", state.Query.Text)
	fmt.Fprintf(&b, "CHARTS REQUESTED: %t\n", state.Query.EnableCharts)
	if !replan {
		b.WriteString("\nProduce the execution plan.")
		return b.String()
	}

	fmt.Fprintf(&b, "\nCURRENT PLAN:\n%s\n", state.Plan.Render())
	fmt.Fprintf(&b, "\nCURRENT STEP: %d\n", state.CurrentStep)
	fmt.Fprintf(&b, "REPLAN REASON: %s\n", state.ReplanReason)
	if outputs := state.agentMessages(); len(outputs) > 0 {
		b.WriteString("\nSTEP OUTPUTS SO FAR:")
		for i, m := range outputs {
			fmt.Fprintf(&b, "\n%d. [%s] %s", i+1, m.Name, observability.Truncate(trace.Strip(m.Content), maxContextChars))
		}
		b.WriteString("\n")
	}
	if p.PreserveStepOnReplan {
		fmt.Fprintf(&b, "\nSteps before %d have run. Keep them and revise the plan from step %d on.", state.CurrentStep, state.CurrentStep)
	} else {
		b.WriteString("\nProduce a complete revised plan; it will run from step 1.")
	}
	return b.String()
}
