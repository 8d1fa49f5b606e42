package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rahul/veritas/internal/governance"
	"github.com/rahul/veritas/internal/store"
	"github.com/rahul/veritas/internal/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func seededStore(t *testing.T) *store.DataStore {
	t.Helper()
	ds, err := store.Open(store.Config{Driver: store.DriverSQLite, DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	_, err = ds.Seed(context.Background())
	require.NoError(t, err)
	return ds
}

const nurseQuery = `{"statement":"SELECT salary FROM employees WHERE occupation = ? AND city = ? ORDER BY salary","parameters":["nurse","Seattle"]}`

func TestQueryAgentEmitsOneTracePerQuery(t *testing.T) {
	model := script(
		callTool("sql_query", `{"statement":"SELECT COUNT(*) AS n FROM employees WHERE city = ?","parameters":["Seattle"]}`),
		callTool("sql_query", nurseQuery),
		say("The median salary of the 3 nurses in Seattle is $88,000."),
	)
	a := NewQueryAgent(AgentConfig{Model: model, ModelID: "scripted", Prompts: NewPromptManager("")}, seededStore(t))

	out := a.Invoke(context.Background(), Task{Goal: "median nurse salary in Seattle", Question: "median salary for nurses in Seattle"})

	assert.Equal(t, "The median salary of the 3 nurses in Seattle is $88,000.", out.Content)
	assert.Equal(t, "scripted", out.Model)
	require.Len(t, out.Traces, 2)
	assert.Equal(t, 1, out.Traces[0].Query.RowCount)
	assert.Equal(t, 3, out.Traces[1].Query.RowCount)
	assert.Equal(t, trace.ColumnStats{Min: 79000, Max: 92500, Avg: 86500}, out.Traces[1].Query.ColumnStats["salary"])

	content, err := out.Message()
	require.NoError(t, err)
	assert.Len(t, trace.Records(content), 2)

	// the system prompt describes the live schema
	system := model.seen[0][0].Parts[0].(llms.TextContent).Text
	assert.Contains(t, system, "employees(id INTEGER")
	assert.Contains(t, system, "Bind placeholders: ?")
}

func TestQueryAgentFailedQueryHasNoTrace(t *testing.T) {
	model := script(
		callTool("sql_query", `{"statement":"SELECT nope FROM employees"}`),
		say("I could not find that column."),
	)
	a := NewQueryAgent(AgentConfig{Model: model, Prompts: NewPromptManager("")}, seededStore(t))

	out := a.Invoke(context.Background(), Task{Goal: "g"})
	assert.Empty(t, out.Traces)
	assert.Equal(t, "I could not find that column.", out.Content)

	// the failure was fed back to the model
	obs := model.seen[1][len(model.seen[1])-1].Parts[0].(llms.ToolCallResponse)
	assert.True(t, strings.HasPrefix(obs.Content, "Query failed"))
}

func TestQueryAgentPolicyDenialHasNoTrace(t *testing.T) {
	policy := governance.NewDefaultPolicyEngine()
	policy.DenyTool("sql_query")
	model := script(
		callTool("sql_query", nurseQuery),
		say("I am not allowed to query the database."),
	)
	a := NewQueryAgent(AgentConfig{Model: model, Prompts: NewPromptManager(""), Policy: policy}, seededStore(t))

	out := a.Invoke(context.Background(), Task{Goal: "g"})
	assert.Empty(t, out.Traces)

	obs := model.seen[1][len(model.seen[1])-1].Parts[0].(llms.ToolCallResponse)
	assert.Contains(t, obs.Content, "denied by policy")
}

func TestQueryAgentModelFailureKeepsEarlierTraces(t *testing.T) {
	model := script(callTool("sql_query", nurseQuery))
	model.errs = map[int]error{1: errors.New("upstream 500")}
	a := NewQueryAgent(AgentConfig{Model: model, Prompts: NewPromptManager("")}, seededStore(t))

	out := a.Invoke(context.Background(), Task{Goal: "g"})
	assert.Contains(t, out.Content, "could not complete the task: upstream 500")
	assert.Len(t, out.Traces, 1)
}

func TestQueryAgentRequestsReplan(t *testing.T) {
	model := script(callTool("request_replan", `{"reason":"no hospital table"}`))
	a := NewQueryAgent(AgentConfig{Model: model, Prompts: NewPromptManager("")}, seededStore(t))

	out := a.Invoke(context.Background(), Task{Goal: "g"})
	assert.True(t, out.Replan)
	assert.Equal(t, "no hospital table", out.ReplanReason)
	assert.Contains(t, out.Content, "no hospital table")
	assert.Equal(t, 1, model.calls)
}

func TestQueryAgentLoopExhaustion(t *testing.T) {
	model := script(
		callTool("sql_query", nurseQuery),
		callTool("sql_query", nurseQuery),
		callTool("sql_query", nurseQuery),
	)
	a := NewQueryAgent(AgentConfig{Model: model, Prompts: NewPromptManager(""), MaxToolSteps: 2}, seededStore(t))

	out := a.Invoke(context.Background(), Task{Goal: "g"})
	assert.Contains(t, out.Content, "maximum number of reasoning steps")
	assert.Len(t, out.Traces, 2)
}

type stubSearcher struct {
	results []trace.SearchResult
}

func (s stubSearcher) Search(context.Context, string) ([]trace.SearchResult, error) {
	return s.results, nil
}

func TestSearchAgentTracesOnlyNonEmptySearches(t *testing.T) {
	model := script(
		callTool("web_search", `{"query":"nurse salary seattle"}`),
		say("Registered nurses in Seattle earn about $88,000."),
	)
	searcher := stubSearcher{results: []trace.SearchResult{
		{URL: "https://example.com/pay", Title: "Pay", Content: "RN pay in Seattle"},
	}}
	a := NewSearchAgent(AgentConfig{Model: model, ModelID: "scripted", Prompts: NewPromptManager("")}, searcher, nil)

	out := a.Invoke(context.Background(), Task{Goal: "g"})
	require.Len(t, out.Traces, 1)
	assert.Equal(t, "nurse salary seattle", out.Traces[0].Search.SearchQuery)

	empty := NewSearchAgent(AgentConfig{
		Model:   script(callTool("web_search", `{"query":"zzz"}`), say("Nothing found.")),
		Prompts: NewPromptManager(""),
	}, stubSearcher{}, nil)
	out = empty.Invoke(context.Background(), Task{Goal: "g"})
	assert.Empty(t, out.Traces)
	assert.Equal(t, "Nothing found.", out.Content)
}

func TestSearchAgentTools(t *testing.T) {
	model := script(say("done"))
	a := NewSearchAgent(AgentConfig{Model: model, Prompts: NewPromptManager("")}, stubSearcher{}, nil)
	assert.Equal(t, []string{"request_replan", "web_search"}, a.loop.registry.Names())
}
