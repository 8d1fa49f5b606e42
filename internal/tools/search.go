package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rahul/veritas/internal/trace"
	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// Searcher is the web search collaborator.
type Searcher interface {
	Search(ctx context.Context, query string) ([]trace.SearchResult, error)
}

// DuckDuckGo adapts the langchaingo DuckDuckGo tool to Searcher.
type DuckDuckGo struct {
	client *duckduckgo.Tool
}

func NewDuckDuckGo(maxResults int, userAgent string) (*DuckDuckGo, error) {
	if userAgent == "" {
		userAgent = duckduckgo.DefaultUserAgent
	}
	ddg, err := duckduckgo.New(maxResults, userAgent)
	if err != nil {
		return nil, err
	}
	return &DuckDuckGo{client: ddg}, nil
}

func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]trace.SearchResult, error) {
	res, err := d.client.Call(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return parseDuckDuckGo(res), nil
}

// parseDuckDuckGo splits the tool's "Title:/Description:/URL:" blocks back
// into results. Anything else (e.g. the no-results sentence) yields none.
func parseDuckDuckGo(out string) []trace.SearchResult {
	var results []trace.SearchResult
	for _, block := range strings.Split(out, "\n\n") {
		var r trace.SearchResult
		for _, line := range strings.Split(strings.TrimSpace(block), "\n") {
			switch {
			case strings.HasPrefix(line, "Title: "):
				r.Title = strings.TrimSpace(strings.TrimPrefix(line, "Title: "))
			case strings.HasPrefix(line, "Description: "):
				r.Content = strings.TrimSpace(strings.TrimPrefix(line, "Description: "))
			case strings.HasPrefix(line, "URL: "):
				r.URL = strings.TrimSpace(strings.TrimPrefix(line, "URL: "))
			}
		}
		if r.URL != "" || r.Title != "" {
			results = append(results, r)
		}
	}
	return results
}

// SearchTool issues one web search per call and emits a SearchTrace when
// the search returned anything.
type SearchTool struct {
	client Searcher
}

func NewSearchTool(client Searcher) *SearchTool {
	return &SearchTool{client: client}
}

func (s *SearchTool) Name() string {
	return "web_search"
}

func (s *SearchTool) Description() string {
	return "Search the web for real-time information. Returns titles, URLs and snippets."
}

func (s *SearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query to look up",
			},
		},
		"required": []string{"query"},
	}
}

func (s *SearchTool) Execute(ctx context.Context, input string) (Result, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return Result{}, fmt.Errorf("invalid input: %v", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return Result{}, fmt.Errorf("query must not be empty")
	}

	results, err := s.client.Search(ctx, args.Query)
	if err != nil {
		return Result{}, err
	}
	if len(results) == 0 {
		return Text(fmt.Sprintf("No results found for %q.", args.Query)), nil
	}

	st := trace.NewSearchTrace(args.Query, results)
	var b strings.Builder
	fmt.Fprintf(&b, "%d results for %q:\n", len(st.Sources), args.Query)
	for i, src := range st.Sources {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n", i+1, src.Title, src.URL, src.Snippet)
	}
	return Result{
		Output: strings.TrimRight(b.String(), "\n"),
		Traces: []trace.Record{trace.SearchRecord(st)},
	}, nil
}
