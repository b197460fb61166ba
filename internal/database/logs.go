package database

import (
	"fmt"
	"time"

	"github.com/SoraGate-io/soragate/internal/models"
)

// AppendLog writes one activity row. Logging failures are reported but
// callers treat them as non-fatal; the log is an audit trail, not state.
func (s *Store) AppendLog(username, action string, cost int, status, taskID string, now time.Time) error {
	_, err := s.db.Exec(s.rebind(
		`INSERT INTO logs (username, action, cost, status, task_id, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		username, action, cost, status, taskID, now)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// ListLogs returns the most recent activity rows, newest first.
func (s *Store) ListLogs(limit int) ([]*models.UsageLog, error) {
	rows, err := s.db.Query(s.rebind(
		`SELECT id, username, action, cost, status, task_id, timestamp
		 FROM logs ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.UsageLog
	for rows.Next() {
		var l models.UsageLog
		if err := rows.Scan(&l.ID, &l.Username, &l.Action, &l.Cost, &l.Status, &l.TaskID, &l.Timestamp); err != nil {
			return nil, err
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
