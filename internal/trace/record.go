// Package trace carries structured provenance records through free-text agent
// output. Records are serialized as JSON and appended to a message after the
// EXECUTION_TRACE marker, then recovered by the response formatter.
package trace

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the Record variants on the wire.
type Kind string

const (
	KindPlan   Kind = "plan"
	KindQuery  Kind = "sql_query"
	KindSearch Kind = "web_search"
)

// PlanStep is one entry of a plan as it appears inside a PlanTrace.
type PlanStep struct {
	Agent string `json:"agent"`
	Goal  string `json:"goal"`
}

// PlanTrace records the plan the planner produced.
type PlanTrace struct {
	Plan           map[string]PlanStep `json:"plan"`
	ReasoningModel string              `json:"reasoning_model"`
	StepCount      int                 `json:"step_count"`
}

// ColumnStats summarises one numeric column of a query sample.
type ColumnStats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// QueryTrace records one successful structured query execution.
type QueryTrace struct {
	Statement   string                 `json:"statement"`
	Parameters  []any                  `json:"parameters"`
	RowCount    int                    `json:"row_count"`
	SampleRows  []map[string]any       `json:"sample_rows"`
	ColumnStats map[string]ColumnStats `json:"column_stats"`
}

// Source is one search result kept as evidence.
type Source struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// SearchTrace records one successful web search.
type SearchTrace struct {
	SearchQuery string   `json:"search_query"`
	Sources     []Source `json:"sources"`
}

// Record is a tagged union over the three trace variants. Exactly one of
// Plan, Query and Search is set, matching Kind.
type Record struct {
	Kind   Kind
	Plan   *PlanTrace
	Query  *QueryTrace
	Search *SearchTrace
}

// PlanRecord wraps a PlanTrace.
func PlanRecord(p PlanTrace) Record { return Record{Kind: KindPlan, Plan: &p} }

// QueryRecord wraps a QueryTrace.
func QueryRecord(q QueryTrace) Record { return Record{Kind: KindQuery, Query: &q} }

// SearchRecord wraps a SearchTrace.
func SearchRecord(s SearchTrace) Record { return Record{Kind: KindSearch, Search: &s} }

// MarshalJSON flattens the active variant into a single object carrying a
// "type" discriminator.
func (r Record) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case KindPlan:
		if r.Plan == nil {
			return nil, fmt.Errorf("trace: plan record without payload")
		}
		return json.Marshal(struct {
			Type Kind `json:"type"`
			*PlanTrace
		}{r.Kind, r.Plan})
	case KindQuery:
		if r.Query == nil {
			return nil, fmt.Errorf("trace: query record without payload")
		}
		return json.Marshal(struct {
			Type Kind `json:"type"`
			*QueryTrace
		}{r.Kind, r.Query})
	case KindSearch:
		if r.Search == nil {
			return nil, fmt.Errorf("trace: search record without payload")
		}
		return json.Marshal(struct {
			Type Kind `json:"type"`
			*SearchTrace
		}{r.Kind, r.Search})
	}
	return nil, fmt.Errorf("trace: unknown record kind %q", r.Kind)
}

// UnmarshalJSON rebuilds the variant named by the "type" field.
func (r *Record) UnmarshalJSON(data []byte) error {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	switch head.Type {
	case KindPlan:
		var p PlanTrace
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		*r = PlanRecord(p)
	case KindQuery:
		var q QueryTrace
		if err := decodeNumbers(data, &q); err != nil {
			return err
		}
		*r = QueryRecord(q)
	case KindSearch:
		var s SearchTrace
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = SearchRecord(s)
	default:
		return fmt.Errorf("trace: unknown record type %q", head.Type)
	}
	return nil
}
