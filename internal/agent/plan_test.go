package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlan(t *testing.T) {
	p, err := ParsePlan([]byte(`{
		"2": {"agent": "search_agent", "goal": "look it up"},
		"1": {"agent": "query_agent", "goal": " count nurses "}
	}`))
	require.NoError(t, err)
	require.Equal(t, 2, p.Len())

	s, ok := p.Step(1)
	require.True(t, ok)
	assert.Equal(t, Step{Agent: QueryAgent, Goal: "count nurses"}, s)
	s, _ = p.Step(2)
	assert.Equal(t, SearchAgent, s.Agent)

	_, ok = p.Step(3)
	assert.False(t, ok)
	_, ok = p.Step(0)
	assert.False(t, ok)
}

func TestParsePlanWrapped(t *testing.T) {
	p, err := ParsePlan([]byte(`{"plan": {"1": {"agent": "query_agent", "goal": "g"}, "2": {"agent": "search_agent", "goal": "h"}}}`))
	require.NoError(t, err)
	require.Equal(t, 2, p.Len())
	assert.Equal(t, Step{Agent: QueryAgent, Goal: "g"}, p.Steps[0])
	assert.Equal(t, Step{Agent: SearchAgent, Goal: "h"}, p.Steps[1])

	_, err = ParsePlan([]byte(`{"plan": {}}`))
	assert.Error(t, err)
}

func TestParsePlanRejects(t *testing.T) {
	cases := map[string]string{
		"not an object":   `["query_agent"]`,
		"empty":           `{}`,
		"gap":             `{"1": {"agent": "query_agent", "goal": "a"}, "3": {"agent": "query_agent", "goal": "b"}}`,
		"starts at zero":  `{"0": {"agent": "query_agent", "goal": "a"}}`,
		"padded index":    `{"01": {"agent": "query_agent", "goal": "a"}}`,
		"named index":     `{"first": {"agent": "query_agent", "goal": "a"}}`,
		"missing agent":   `{"1": {"goal": "a"}}`,
		"unknown agent":   `{"1": {"agent": "chart_agent", "goal": "a"}}`,
		"planner as step": `{"1": {"agent": "planner", "goal": "a"}}`,
		"missing goal":    `{"1": {"agent": "query_agent"}}`,
		"step not object": `{"1": "query_agent"}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePlan([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestPlanJSONRoundTrip(t *testing.T) {
	p := planOf(QueryAgent, SearchAgent, QueryAgent)
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"1": {"agent": "query_agent", "goal": "goal 1"},
		"2": {"agent": "search_agent", "goal": "goal 2"},
		"3": {"agent": "query_agent", "goal": "goal 3"}
	}`, string(data))

	var back Plan
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, p, back)
}

func TestPlanTraceAndRender(t *testing.T) {
	p := planOf(QueryAgent, SearchAgent)
	pt := p.Trace("gpt-test")
	assert.Equal(t, 2, pt.StepCount)
	assert.Equal(t, "gpt-test", pt.ReasoningModel)
	assert.Equal(t, "search_agent", pt.Plan["2"].Agent)

	assert.Equal(t, "Execution plan (2 steps):\n1. [query_agent] goal 1\n2. [search_agent] goal 2", p.Render())
}

func TestFirstJSONObject(t *testing.T) {
	text := "Here is the plan:\n```json\n{\"1\": {\"agent\": \"query_agent\", \"goal\": \"a {b}\"}}\n```\nGood luck."
	raw, err := firstJSONObject(text)
	require.NoError(t, err)
	p, err := ParsePlan(raw)
	require.NoError(t, err)
	s, _ := p.Step(1)
	assert.Equal(t, "a {b}", s.Goal)

	_, err = firstJSONObject("I cannot plan this.")
	assert.Error(t, err)
	_, err = firstJSONObject(`{"1": {"agent": `)
	assert.Error(t, err)
}

func TestParseName(t *testing.T) {
	for _, s := range []string{"planner", "query_agent", "search_agent"} {
		n, err := ParseName(s)
		require.NoError(t, err)
		assert.Equal(t, Name(s), n)
	}
	_, err := ParseName("Query_Agent")
	assert.Error(t, err)
	assert.False(t, Planner.Retrieval())
	assert.True(t, QueryAgent.Retrieval())
}
