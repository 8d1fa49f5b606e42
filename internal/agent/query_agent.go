package agent

import (
	"context"
	"fmt"

	"github.com/rahul/veritas/internal/tools"
)

// SchemaSource is the part of the data store the query agent describes to
// the model.
type SchemaSource interface {
	tools.Executor
	Driver() string
	Placeholder() string
	DescribeSchema(ctx context.Context) string
}

// QueryAgentAdapter answers tasks from the relational data store.
type QueryAgentAdapter struct {
	cfg   AgentConfig
	store SchemaSource
	loop  *toolLoop
}

func NewQueryAgent(cfg AgentConfig, store SchemaSource) *QueryAgentAdapter {
	registry := tools.NewRegistry(
		tools.NewSQLTool(store),
		tools.NewReplanTool(),
	)
	return &QueryAgentAdapter{
		cfg:   cfg,
		store: store,
		loop: &toolLoop{
			agent:    QueryAgent,
			model:    cfg.Model,
			registry: registry,
			policy:   cfg.Policy,
			maxSteps: cfg.MaxToolSteps,
			logger:   cfg.Logger,
		},
	}
}

func (a *QueryAgentAdapter) Name() Name { return QueryAgent }

func (a *QueryAgentAdapter) Description() string {
	return "Answers questions from the structured database by running read-only SQL queries."
}

func (a *QueryAgentAdapter) Invoke(ctx context.Context, task Task) Outcome {
	prompt, err := a.cfg.Prompts.GetAgentPrompt(QueryAgentPrompt)
	if err != nil {
		return Outcome{Content: fmt.Sprintf("The query agent could not load its instructions: %v", err), Model: a.cfg.ModelID}
	}

	system := fmt.Sprintf("%s\n\n## Database\nDriver: %s\nBind placeholders: %s\nSchema:\n%s",
		prompt, a.store.Driver(), a.store.Placeholder(), a.store.DescribeSchema(ctx))

	res := a.loop.run(ctx, system, taskInput(task))
	return outcome(QueryAgent, a.cfg.ModelID, res)
}
