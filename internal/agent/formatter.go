package agent

import (
	"context"
	"fmt"

	"github.com/rahul/veritas/internal/observability"
	"github.com/rahul/veritas/internal/trace"
)

// ProvenanceEntry is one retrieval action shown to the user, numbered
// across the whole request. Exactly one of the embedded variants is set.
type ProvenanceEntry struct {
	Step   int        `json:"step"`
	Agent  string     `json:"agent"`
	Action string     `json:"action"`
	Type   trace.Kind `json:"type"`

	*trace.PlanTrace
	*trace.QueryTrace
	*trace.SearchTrace
}

// Formatter turns a transcript into the final answer and its provenance.
// The zero value is ready to use.
type Formatter struct {
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Format walks messages in order. Malformed traces are logged and skipped
// as a whole; formatting the same messages twice gives the same result.
func (f Formatter) Format(ctx context.Context, messages []Message) (string, []ProvenanceEntry) {
	var entries []ProvenanceEntry
	step := 0

	for _, m := range messages {
		res := trace.Decode(m.Content)
		switch res.Status {
		case trace.Absent:
			continue
		case trace.Malformed:
			f.Metrics.RecordTraceDecodeFailure()
			f.Logger.LogTraceDropped(ctx, m.Name, res.Err)
			continue
		}
		for _, rec := range res.Records {
			step++
			entries = append(entries, entry(step, m.Name, rec))
		}
	}

	var answer string
	if len(messages) > 0 {
		answer = trace.Strip(messages[len(messages)-1].Content)
	}
	return answer, entries
}

// Format runs the zero Formatter.
func Format(messages []Message) (string, []ProvenanceEntry) {
	return Formatter{}.Format(context.Background(), messages)
}

func entry(step int, agent string, rec trace.Record) ProvenanceEntry {
	e := ProvenanceEntry{Step: step, Agent: agent, Type: rec.Kind}
	switch rec.Kind {
	case trace.KindPlan:
		e.Agent = string(Planner)
		e.PlanTrace = rec.Plan
		e.Action = fmt.Sprintf("Generated execution plan with %d steps", rec.Plan.StepCount)
	case trace.KindQuery:
		e.QueryTrace = rec.Query
		e.Action = fmt.Sprintf("Executed query returning %d rows", rec.Query.RowCount)
	case trace.KindSearch:
		e.SearchTrace = rec.Search
		e.Action = "Searched: " + rec.Search.SearchQuery
	}
	return e
}
