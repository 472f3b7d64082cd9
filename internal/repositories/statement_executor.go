package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lendfast/drawbridge/internal/database"
	"github.com/lendfast/drawbridge/internal/models"
)

// maxQueryRows caps how many rows a console read returns in one response.
const maxQueryRows = 500

// StatementExecutor runs admin console statements against the target
// database. It performs no classification or throttling of its own; callers
// must have cleared the statement through the guard chain first.
type StatementExecutor struct {
	db *database.DB
}

// NewStatementExecutor creates a new StatementExecutor
func NewStatementExecutor(db *database.DB) *StatementExecutor {
	return &StatementExecutor{db: db}
}

// ExecuteWrite runs a mutating statement inside a transaction. Any execution
// error rolls the transaction back, so a failed statement leaves no partial
// effects behind.
func (e *StatementExecutor) ExecuteWrite(ctx context.Context, statement string) (*models.StatementResult, error) {
	var result models.StatementResult

	err := e.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, statement)
		if err != nil {
			return fmt.Errorf("statement execution failed: %w", err)
		}
		result.RowsAffected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// ExecuteQuery runs a read statement and materializes the result set, capped
// at maxQueryRows.
func (e *StatementExecutor) ExecuteQuery(ctx context.Context, statement string) (*models.StatementResult, error) {
	rows, err := e.db.Pool.Query(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	defer rows.Close()

	result := &models.StatementResult{}
	for _, fd := range rows.FieldDescriptions() {
		result.Columns = append(result.Columns, fd.Name)
	}

	for rows.Next() {
		if len(result.Rows) == maxQueryRows {
			result.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read result row: %w", err)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating result rows: %w", err)
	}

	return result, nil
}
