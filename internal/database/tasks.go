package database

import (
	"database/sql"
	"fmt"

	"github.com/SoraGate-io/soragate/internal/models"
)

// CreateTaskWithDebit records an accepted upstream task and charges the
// account in a single transaction. A task never exists without its debit
// and a generation debit never commits without its task record.
func (s *Store) CreateTaskWithDebit(t *models.Task) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("create task: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(s.rebind(
		`UPDATE accounts SET credits = credits - ? WHERE username = ? AND credits >= ?`),
		t.Cost, t.Username, t.Cost)
	if err != nil {
		return fmt.Errorf("create task: debit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInsufficientCredits
	}

	if _, err := tx.Exec(s.rebind(
		`INSERT INTO tasks (task_id, username, cost, status, model, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		t.TaskID, t.Username, t.Cost, models.TaskPending, t.Model, t.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create task: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create task: commit: %w", err)
	}
	return nil
}

// GetTask retrieves a task by its upstream-assigned id.
func (s *Store) GetTask(taskID string) (*models.Task, error) {
	row := s.db.QueryRow(s.rebind(
		`SELECT task_id, username, cost, status, model, created_at
		 FROM tasks WHERE task_id = ?`), taskID)

	var t models.Task
	var model sql.NullString
	err := row.Scan(&t.TaskID, &t.Username, &t.Cost, &t.Status, &model, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	t.Model = model.String
	return &t, nil
}

// MarkTaskRefunded performs the idempotent failed-task refund: the status
// flips pending -> refunded with a conditional update and the account is
// credited only when that update changed a row, all in one transaction.
// Reports whether this call performed the refund.
func (s *Store) MarkTaskRefunded(taskID string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("refund task: begin: %w", err)
	}
	defer tx.Rollback()

	var username string
	var cost int
	err = tx.QueryRow(s.rebind(
		`SELECT username, cost FROM tasks WHERE task_id = ?`), taskID).
		Scan(&username, &cost)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("refund task: load: %w", err)
	}

	res, err := tx.Exec(s.rebind(
		`UPDATE tasks SET status = ? WHERE task_id = ? AND status = ?`),
		models.TaskRefunded, taskID, models.TaskPending)
	if err != nil {
		return false, fmt.Errorf("refund task: transition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Already terminal; nothing to do.
		return false, nil
	}

	if _, err := tx.Exec(s.rebind(
		`UPDATE accounts SET credits = credits + ? WHERE username = ?`),
		cost, username); err != nil {
		return false, fmt.Errorf("refund task: credit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("refund task: commit: %w", err)
	}
	return true, nil
}

// MarkTaskSucceeded flips a pending task to succeeded. No balance change.
// Reports whether this call performed the transition.
func (s *Store) MarkTaskSucceeded(taskID string) (bool, error) {
	res, err := s.db.Exec(s.rebind(
		`UPDATE tasks SET status = ? WHERE task_id = ? AND status = ?`),
		models.TaskSucceeded, taskID, models.TaskPending)
	if err != nil {
		return false, fmt.Errorf("complete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListTasks returns recent tasks for the admin surface, newest first.
func (s *Store) ListTasks(limit int) ([]*models.Task, error) {
	rows, err := s.db.Query(s.rebind(
		`SELECT task_id, username, cost, status, model, created_at
		 FROM tasks ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		var t models.Task
		var model sql.NullString
		if err := rows.Scan(&t.TaskID, &t.Username, &t.Cost, &t.Status, &model, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Model = model.String
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}
