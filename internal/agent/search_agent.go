package agent

import (
	"context"
	"fmt"

	"github.com/rahul/veritas/internal/tools"
)

// SearchAgentAdapter answers tasks from the public web.
type SearchAgentAdapter struct {
	cfg  AgentConfig
	loop *toolLoop
}

// NewSearchAgent wires the web tools. fetcher may be nil, in which case the
// agent can search but not read pages.
func NewSearchAgent(cfg AgentConfig, searcher tools.Searcher, fetcher tools.Fetcher) *SearchAgentAdapter {
	registry := tools.NewRegistry(
		tools.NewSearchTool(searcher),
		tools.NewReplanTool(),
	)
	if fetcher != nil {
		registry.Register(tools.NewReadPageTool(fetcher))
	}
	return &SearchAgentAdapter{
		cfg: cfg,
		loop: &toolLoop{
			agent:    SearchAgent,
			model:    cfg.Model,
			registry: registry,
			policy:   cfg.Policy,
			maxSteps: cfg.MaxToolSteps,
			logger:   cfg.Logger,
		},
	}
}

func (a *SearchAgentAdapter) Name() Name { return SearchAgent }

func (a *SearchAgentAdapter) Description() string {
	return "Searches the web and reads pages for public or current information."
}

func (a *SearchAgentAdapter) Invoke(ctx context.Context, task Task) Outcome {
	prompt, err := a.cfg.Prompts.GetAgentPrompt(SearchAgentPrompt)
	if err != nil {
		return Outcome{Content: fmt.Sprintf("The search agent could not load its instructions: %v", err), Model: a.cfg.ModelID}
	}
	res := a.loop.run(ctx, prompt, taskInput(task))
	return outcome(SearchAgent, a.cfg.ModelID, res)
}
