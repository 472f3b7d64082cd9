package models

// StatementResult is the outcome of an admin console statement execution.
// Reads fill Columns and Rows; writes fill RowsAffected.
type StatementResult struct {
	Columns      []string `json:"columns,omitempty"`
	Rows         [][]any  `json:"rows,omitempty"`
	RowsAffected int64    `json:"rows_affected"`
	// Truncated is set when a read produced more rows than the console
	// returns in one response.
	Truncated bool `json:"truncated,omitempty"`
}
