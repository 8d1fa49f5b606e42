package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// MaxSampleRows caps QueryTrace.SampleRows.
	MaxSampleRows = 10
	// MaxSources caps SearchTrace.Sources.
	MaxSources = 5
	// MaxSnippetRunes caps Source.Snippet.
	MaxSnippetRunes = 200
)

// NewQueryTrace builds the trace for a successful query. RowCount reflects all
// rows; the sample and the column statistics cover the first MaxSampleRows.
//
// Parameters and sample values are stored in their decoded wire form (numbers
// as json.Number) so a trace compares equal after Encode and Decode.
func NewQueryTrace(statement string, params []any, rows []map[string]any) QueryTrace {
	wireParams := make([]any, len(params))
	for i, p := range params {
		wireParams[i] = wireValue(p)
	}
	sample := rows
	if len(sample) > MaxSampleRows {
		sample = sample[:MaxSampleRows]
	}
	wireRows := make([]map[string]any, len(sample))
	for i, row := range sample {
		r := make(map[string]any, len(row))
		for col, v := range row {
			r[col] = wireValue(v)
		}
		wireRows[i] = r
	}

	return QueryTrace{
		Statement:   statement,
		Parameters:  wireParams,
		RowCount:    len(rows),
		SampleRows:  wireRows,
		ColumnStats: NumericStats(wireRows),
	}
}

// wireValue returns v as Decode would produce it. Values JSON cannot carry,
// such as NaN, fall back to their printed form.
func wireValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		v = string(t)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var out any
	if err := decodeNumbers(b, &out); err != nil {
		return fmt.Sprint(v)
	}
	return out
}

// decodeNumbers unmarshals data keeping numbers as json.Number.
func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// NumericStats computes min/max/avg for every column whose non-null values all
// convert to a number. A single non-numeric value drops the column entirely.
func NumericStats(rows []map[string]any) map[string]ColumnStats {
	type acc struct {
		min, max, sum float64
		n             int
		bad           bool
	}
	cols := make(map[string]*acc)
	for _, row := range rows {
		for col, v := range row {
			a, ok := cols[col]
			if !ok {
				a = &acc{min: math.Inf(1), max: math.Inf(-1)}
				cols[col] = a
			}
			if a.bad || v == nil {
				continue
			}
			f, ok := toFloat(v)
			if !ok {
				a.bad = true
				continue
			}
			a.min = math.Min(a.min, f)
			a.max = math.Max(a.max, f)
			a.sum += f
			a.n++
		}
	}

	stats := make(map[string]ColumnStats)
	for col, a := range cols {
		if a.bad || a.n == 0 {
			continue
		}
		stats[col] = ColumnStats{Min: a.min, Max: a.max, Avg: a.sum / float64(a.n)}
	}
	return stats
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, finite(n)
	case float32:
		return float64(n), finite(float64(n))
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil && finite(f)
	case string:
		return parseNumeric(n)
	case []byte:
		return parseNumeric(string(n))
	}
	return 0, false
}

func parseNumeric(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || !finite(f) {
		return 0, false
	}
	return f, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// SearchResult is the shape the search collaborator returns.
type SearchResult struct {
	URL     string
	Title   string
	Content string
}

// NewSearchTrace keeps the top MaxSources results with truncated snippets.
func NewSearchTrace(query string, results []SearchResult) SearchTrace {
	if len(results) > MaxSources {
		results = results[:MaxSources]
	}
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, Source{
			URL:     r.URL,
			Title:   r.Title,
			Snippet: truncateRunes(r.Content, MaxSnippetRunes),
		})
	}
	return SearchTrace{SearchQuery: query, Sources: sources}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
