package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crossposter/internal/models"
)

const executionColumns = `id, task_id, source_account, target_account, original_content,
       transformed_content, status, error, executed_at, response_data`

// CreateExecution appends one (item, target) dispatch outcome.
func (db *DB) CreateExecution(ctx context.Context, exec *models.TaskExecution) error {
	response := ""
	if exec.ResponseData != nil {
		var err error
		response, err = marshalJSON(exec.ResponseData)
		if err != nil {
			return err
		}
	}
	if exec.ExecutedAt.IsZero() {
		exec.ExecutedAt = time.Now()
	}

	query := `INSERT INTO task_executions (task_id, source_account, target_account, original_content,
              transformed_content, status, error, executed_at, response_data)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.db.ExecContext(ctx, query,
		exec.TaskID, exec.SourceAccount, exec.TargetAccount, exec.OriginalContent,
		exec.TransformedContent, exec.Status, exec.Error, exec.ExecutedAt, response,
	)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	exec.ID = id
	return nil
}

// GetTaskExecutions returns the newest executions of a task, newest first.
// limit <= 0 means no limit.
func (db *DB) GetTaskExecutions(ctx context.Context, taskID int64, limit int) ([]*models.TaskExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM task_executions
              WHERE task_id = ? ORDER BY executed_at DESC, id DESC`
	args := []interface{}{taskID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get executions: %w", err)
	}
	defer rows.Close()

	var execs []*models.TaskExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

// GetLatestExecution returns the newest execution for a (task, source) pair.
// Returns nil without error when the pair has never executed; the poller
// treats that as "no watermark yet".
func (db *DB) GetLatestExecution(ctx context.Context, taskID, sourceAccount int64) (*models.TaskExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM task_executions
              WHERE task_id = ? AND source_account = ?
              ORDER BY executed_at DESC, id DESC LIMIT 1`
	exec, err := scanExecution(db.db.QueryRowContext(ctx, query, taskID, sourceAccount))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return exec, err
}

func scanExecution(row rowScanner) (*models.TaskExecution, error) {
	var exec models.TaskExecution
	var original, transformed, errMsg sql.NullString
	var response sql.NullString

	err := row.Scan(
		&exec.ID, &exec.TaskID, &exec.SourceAccount, &exec.TargetAccount, &original,
		&transformed, &exec.Status, &errMsg, &exec.ExecutedAt, &response,
	)
	if err != nil {
		return nil, err
	}

	exec.OriginalContent = original.String
	exec.TransformedContent = transformed.String
	exec.Error = errMsg.String
	if response.Valid && response.String != "" && response.String != "{}" {
		exec.ResponseData = &models.ExecutionResponse{}
		if err := unmarshalJSON(response.String, exec.ResponseData); err != nil {
			return nil, err
		}
	}
	return &exec, nil
}
