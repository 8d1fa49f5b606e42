package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rahul/veritas/internal/store"
	"github.com/rahul/veritas/internal/trace"
)

// ErrReadOnly is returned for statements that are not plain reads.
var ErrReadOnly = errors.New("only read-only statements are allowed")

// maxObservationRows bounds how many rows are echoed back to the model.
const maxObservationRows = 50

var allowedPrefixes = []string{"SELECT", "WITH", "EXPLAIN"}

// writeKeywords may not appear anywhere outside literals, which catches
// writes hidden behind a leading WITH.
var writeKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true, "UPSERT": true,
	"CREATE": true, "DROP": true, "ALTER": true, "TRUNCATE": true,
	"ATTACH": true, "DETACH": true, "PRAGMA": true, "VACUUM": true, "REINDEX": true,
	"GRANT": true, "REVOKE": true, "COPY": true,
}

// Executor is the data-store collaborator.
type Executor interface {
	Execute(ctx context.Context, statement string, params []any) store.ExecResult
}

// SQLTool runs parameterized read-only statements and emits one QueryTrace
// per successful execution.
type SQLTool struct {
	Store Executor
}

func NewSQLTool(s Executor) *SQLTool {
	return &SQLTool{Store: s}
}

func (s *SQLTool) Name() string {
	return "sql_query"
}

func (s *SQLTool) Description() string {
	return "Run one parameterized read-only SQL statement against the data store and return the rows."
}

func (s *SQLTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"statement": map[string]any{
				"type":        "string",
				"description": "A single SELECT (or WITH ... SELECT) statement using bind placeholders for values",
			},
			"parameters": map[string]any{
				"type":        "array",
				"items":       map[string]any{},
				"description": "Values bound to the placeholders, in order",
			},
		},
		"required": []string{"statement"},
	}
}

func (s *SQLTool) Execute(ctx context.Context, input string) (Result, error) {
	var args struct {
		Statement  string `json:"statement"`
		Parameters []any  `json:"parameters"`
	}
	dec := json.NewDecoder(strings.NewReader(input))
	dec.UseNumber()
	if err := dec.Decode(&args); err != nil {
		return Result{}, fmt.Errorf("invalid input: %v", err)
	}
	if err := validateReadOnly(args.Statement); err != nil {
		return Result{}, err
	}
	params := bindValues(args.Parameters)

	res := s.Store.Execute(ctx, args.Statement, params)
	if !res.Success {
		return Text(fmt.Sprintf("Query failed: %s", res.Error)), nil
	}

	qt := trace.NewQueryTrace(args.Statement, params, res.Rows)
	if res.RowCount > qt.RowCount {
		qt.RowCount = res.RowCount
	}
	return Result{
		Output: formatRows(res.Rows, qt.RowCount),
		Traces: []trace.Record{trace.QueryRecord(qt)},
	}, nil
}

func validateReadOnly(statement string) error {
	normalized := strings.TrimSpace(statement)
	if normalized == "" {
		return fmt.Errorf("statement must not be empty")
	}
	normalized = strings.TrimSuffix(normalized, ";")
	if strings.Contains(normalized, ";") {
		return fmt.Errorf("%w: multiple statements", ErrReadOnly)
	}
	upper := strings.ToUpper(normalized)
	allowed := false
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(upper, p) {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: got %q", ErrReadOnly, firstWord(upper))
	}
	words := sqlWords(upper)
	for i, w := range words {
		if writeKeywords[w] || (w == "REPLACE" && i+1 < len(words) && words[i+1] == "INTO") {
			return fmt.Errorf("%w: contains %s", ErrReadOnly, w)
		}
	}
	return nil
}

// sqlWords splits a statement into bare words, skipping quoted literals,
// quoted identifiers and comments.
func sqlWords(s string) []string {
	var (
		words []string
		cur   strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			flush()
			end := strings.IndexByte(s[i+1:], c)
			if end < 0 {
				return words
			}
			i += end + 1
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			flush()
			end := strings.IndexByte(s[i:], '\n')
			if end < 0 {
				return words
			}
			i += end
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			flush()
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return words
			}
			i += end + 3
		case c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9'):
			cur.WriteByte(c)
		default:
			flush()
		}
	}
	flush()
	return words
}

func firstWord(s string) string {
	if i := strings.IndexAny(s, " \t\n("); i > 0 {
		return s[:i]
	}
	return s
}

// bindValues turns decoded JSON numbers into int64 or float64 so drivers
// bind them natively.
func bindValues(in []any) []any {
	out := make([]any, len(in))
	for i, v := range in {
		n, ok := v.(json.Number)
		if !ok {
			out[i] = v
			continue
		}
		if iv, err := n.Int64(); err == nil {
			out[i] = iv
		} else if fv, err := n.Float64(); err == nil {
			out[i] = fv
		} else {
			out[i] = n.String()
		}
	}
	return out
}

func formatRows(rows []map[string]any, total int) string {
	if len(rows) == 0 {
		return "Query succeeded: 0 rows."
	}
	shown := rows
	if len(shown) > maxObservationRows {
		shown = shown[:maxObservationRows]
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Query succeeded: %d rows.\n", total)
	for _, r := range shown {
		b, _ := json.Marshal(r)
		buf.Write(b)
		buf.WriteByte('\n')
	}
	if total > len(shown) {
		fmt.Fprintf(&buf, "... %d more rows not shown\n", total-len(shown))
	}
	return strings.TrimRight(buf.String(), "\n")
}
