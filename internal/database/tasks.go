package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crossposter/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

const taskColumns = `id, owner, name, status, source_accounts, target_accounts, execution_type,
       content, filters, transformations, execution_count, failure_count,
       last_executed, last_error, created_at, updated_at`

// CreateTask validates and inserts a task.
func (db *DB) CreateTask(ctx context.Context, task *models.Task) error {
	if err := models.ValidateTask(task); err != nil {
		return err
	}

	sources, err := marshalJSON(task.SourceAccounts)
	if err != nil {
		return err
	}
	targets, err := marshalJSON(task.TargetAccounts)
	if err != nil {
		return err
	}
	filters, err := marshalJSON(task.Filters)
	if err != nil {
		return err
	}
	transformations, err := marshalJSON(task.Transformations)
	if err != nil {
		return err
	}

	now := time.Now()
	query := `INSERT INTO tasks (owner, name, status, source_accounts, target_accounts, execution_type,
              content, filters, transformations, execution_count, failure_count, last_error, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, '', ?, ?)`

	result, err := db.db.ExecContext(ctx, query,
		task.Owner, task.Name, task.Status, sources, targets, task.ExecutionType,
		task.Content, filters, transformations, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = now
	task.UpdatedAt = now
	return nil
}

// UpdateTask validates and rewrites the user-editable fields of a task.
func (db *DB) UpdateTask(ctx context.Context, task *models.Task) error {
	if err := models.ValidateTask(task); err != nil {
		return err
	}

	sources, err := marshalJSON(task.SourceAccounts)
	if err != nil {
		return err
	}
	targets, err := marshalJSON(task.TargetAccounts)
	if err != nil {
		return err
	}
	filters, err := marshalJSON(task.Filters)
	if err != nil {
		return err
	}
	transformations, err := marshalJSON(task.Transformations)
	if err != nil {
		return err
	}

	query := `UPDATE tasks SET name = ?, status = ?, source_accounts = ?, target_accounts = ?,
              execution_type = ?, content = ?, filters = ?, transformations = ?, updated_at = ?
              WHERE id = ?`
	result, err := db.db.ExecContext(ctx, query,
		task.Name, task.Status, sources, targets,
		task.ExecutionType, task.Content, filters, transformations, time.Now(), task.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("task %d: %w", task.ID, ErrNotFound)
	}
	return nil
}

// GetTask returns a task by id.
func (db *DB) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`
	task, err := scanTask(db.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return task, err
}

// GetAllTasks returns every task ordered by creation time.
func (db *DB) GetAllTasks(ctx context.Context) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at`
	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// UpdateTaskStatus sets the lifecycle status only.
func (db *DB) UpdateTaskStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`
	_, err := db.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return nil
}

// SetTaskError records the newest failure message without touching counters.
func (db *DB) SetTaskError(ctx context.Context, id int64, message string) error {
	query := `UPDATE tasks SET last_error = ?, updated_at = ? WHERE id = ?`
	_, err := db.db.ExecContext(ctx, query, message, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set task error: %w", err)
	}
	return nil
}

// RecordTaskBatch advances lastExecuted and both counters once per poll batch.
func (db *DB) RecordTaskBatch(ctx context.Context, id int64, executed, failed int64, at time.Time) error {
	query := `UPDATE tasks SET execution_count = execution_count + ?,
              failure_count = failure_count + ?, last_executed = ?, updated_at = ?
              WHERE id = ?`
	_, err := db.db.ExecContext(ctx, query, executed, failed, at, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to record task batch: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var task models.Task
	var sources, targets, filters, trans string
	var content, lastError sql.NullString
	var lastExecuted sql.NullTime
	err := row.Scan(
		&task.ID, &task.Owner, &task.Name, &task.Status, &sources, &targets, &task.ExecutionType,
		&content, &filters, &trans, &task.ExecutionCount, &task.FailureCount,
		&lastExecuted, &lastError, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Content = content.String
	task.LastError = lastError.String
	if lastExecuted.Valid {
		t := lastExecuted.Time
		task.LastExecuted = &t
	}
	if err := unmarshalJSON(sources, &task.SourceAccounts); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(targets, &task.TargetAccounts); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(filters, &task.Filters); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(trans, &task.Transformations); err != nil {
		return nil, err
	}
	return &task, nil
}
