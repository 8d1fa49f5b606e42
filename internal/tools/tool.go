package tools

import (
	"context"
	"sort"

	"github.com/rahul/veritas/internal/trace"
	"github.com/tmc/langchaingo/llms"
)

// Result is what a tool hands back to the agent loop. Output goes to the
// model; Traces are only set for successful retrievals.
type Result struct {
	Output string
	Traces []trace.Record
	// Replan asks the executor to revise the plan after this step.
	Replan       bool
	ReplanReason string
}

// Text is a Result carrying only model-facing output.
func Text(s string) Result { return Result{Output: s} }

// Tool defines the interface for all agent capabilities.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	Execute(ctx context.Context, input string) (Result, error)
}

// Registry manages the set of tools one agent may call.
type Registry struct {
	Tools map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{
		Tools: make(map[string]Tool),
	}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

func (r *Registry) Register(t Tool) {
	r.Tools[t.Name()] = t
}

func (r *Registry) Get(name string) Tool {
	return r.Tools[name]
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Tools))
	for name := range r.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions renders the registry as function definitions for the model.
func (r *Registry) Definitions() []llms.Tool {
	defs := make([]llms.Tool, 0, len(r.Tools))
	for _, name := range r.Names() {
		t := r.Tools[name]
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}
