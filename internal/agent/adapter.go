package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rahul/veritas/internal/governance"
	"github.com/rahul/veritas/internal/observability"
	"github.com/rahul/veritas/internal/trace"
	"github.com/tmc/langchaingo/llms"
)

// maxContextChars bounds how much of each earlier step is shown to an agent.
const maxContextChars = 1500

// Task is one plan step handed to an agent.
type Task struct {
	Goal     string
	Question string
	// Context holds the messages of the steps that already ran.
	Context []Message
}

// Outcome is what an agent reports back. Content is plain text; Traces
// are only present for retrievals that succeeded.
type Outcome struct {
	Content      string
	Traces       []trace.Record
	Replan       bool
	ReplanReason string
	Model        string
}

// Message renders the outcome as message content with its traces appended.
func (o Outcome) Message() (string, error) {
	return trace.AppendE(o.Content, o.Traces...)
}

// Adapter executes retrieval tasks. Invoke never fails: problems are
// reported as Content without traces.
type Adapter interface {
	Name() Name
	Description() string
	Invoke(ctx context.Context, task Task) Outcome
}

// Registry maps agent names to adapters.
type Registry map[Name]Adapter

func NewRegistry(adapters ...Adapter) Registry {
	r := make(Registry, len(adapters))
	for _, a := range adapters {
		r[a.Name()] = a
	}
	return r
}

// Catalogue lists the registered agents in name order for the planner.
func (r Registry) Catalogue() string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, string(n))
	}
	sort.Strings(names)

	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "- %s: %s\n", n, r[Name(n)].Description())
	}
	return strings.TrimRight(b.String(), "\n")
}

// AgentConfig carries what both retrieval agents need.
type AgentConfig struct {
	Model        llms.Model
	ModelID      string
	Prompts      *PromptManager
	Policy       governance.PolicyEngine
	MaxToolSteps int
	Logger       *observability.Logger
}

// taskInput is the human turn of an agent conversation.
func taskInput(task Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TASK: %s\n\nCONTEXT: This is a sub-task for the overall request: %s", task.Goal, task.Question)
	if len(task.Context) > 0 {
		b.WriteString("\n\nEARLIER STEPS:")
		for _, m := range task.Context {
			fmt.Fprintf(&b, "\n[%s] %s", m.Name, observability.Truncate(trace.Strip(m.Content), maxContextChars))
		}
	}
	return b.String()
}

// outcome turns a loop result into the agent's report. Traces gathered
// before a failure are kept; the failure itself adds none.
func outcome(agent Name, model string, res loopResult) Outcome {
	out := Outcome{
		Content:      strings.TrimSpace(res.Content),
		Traces:       res.Traces,
		Replan:       res.Replan,
		ReplanReason: res.ReplanReason,
		Model:        model,
	}
	switch {
	case res.Err == nil && out.Content != "":
	case res.Err == nil:
		out.Content = fmt.Sprintf("The %s finished without a summary.", describe(agent))
	case errors.Is(res.Err, context.DeadlineExceeded):
		out.Content = fmt.Sprintf("The %s timed out before completing the task.", describe(agent))
	default:
		out.Content = fmt.Sprintf("The %s could not complete the task: %v", describe(agent), res.Err)
	}
	return out
}

func describe(n Name) string {
	return strings.ReplaceAll(string(n), "_", " ")
}
