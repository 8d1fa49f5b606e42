package store

// ExecResult is what the data store reports for one statement. Error is only
// set when Success is false. Rows may be capped; RowCount is the full count.
type ExecResult struct {
	Success  bool             `json:"success"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
	Error    string           `json:"error,omitempty"`
}

// Column describes one column of a table for the schema prompt.
type Column struct {
	Name string
	Type string
}

// Table is a table name plus its columns, in declaration order.
type Table struct {
	Name    string
	Columns []Column
}
