// Package task tracks upstream generation jobs from acceptance to a
// terminal outcome and reconciles status polls into ledger refunds.
package task

import (
	"errors"
	"log"
	"time"

	"github.com/SoraGate-io/soragate/internal/database"
	"github.com/SoraGate-io/soragate/internal/models"
)

// Upstream status strings the manager interprets.
const (
	UpstreamFailed    = "failed"
	UpstreamSucceeded = "succeeded"
)

// Manager is the task lifecycle manager.
type Manager struct {
	store *database.Store
}

func New(store *database.Store) *Manager {
	return &Manager{store: store}
}

// Create records an upstream-accepted task and charges its cost in one
// atomic step. Called only after the upstream provider confirmed
// acceptance; a rejected or timed-out upstream call must never reach here.
func (m *Manager) Create(username, taskID, model string, cost int, now time.Time) error {
	t := &models.Task{
		TaskID:    taskID,
		Username:  username,
		Cost:      cost,
		Status:    models.TaskPending,
		Model:     model,
		CreatedAt: now,
	}
	if err := m.store.CreateTaskWithDebit(t); err != nil {
		return err
	}

	if err := m.store.AppendLog(username, "generate", cost, "Pending", taskID, now); err != nil {
		log.Printf("warning: could not log task %s: %v", taskID, err)
	}
	return nil
}

// Reconcile folds one upstream status poll into local state. Safe to call
// arbitrarily many times with the same input: a failed task is refunded
// exactly once, a succeeded task transitions once, and every later call is
// a no-op. Reports whether this call performed a refund.
func (m *Manager) Reconcile(taskID, upstreamStatus string, now time.Time) (bool, error) {
	t, err := m.store.GetTask(taskID)
	if errors.Is(err, database.ErrNotFound) {
		// Task unknown to us; nothing to reconcile.
		return false, nil
	}
	if err != nil {
		return false, err
	}

	switch upstreamStatus {
	case UpstreamFailed:
		refunded, err := m.store.MarkTaskRefunded(taskID)
		if err != nil {
			return false, err
		}
		if refunded {
			if err := m.store.AppendLog(t.Username, "Refund "+taskID, t.Cost, "Refunded", taskID, now); err != nil {
				log.Printf("warning: could not log refund %s: %v", taskID, err)
			}
		}
		return refunded, nil

	case UpstreamSucceeded:
		completed, err := m.store.MarkTaskSucceeded(taskID)
		if err != nil {
			return false, err
		}
		if completed {
			if err := m.store.AppendLog(t.Username, "Success "+taskID, t.Cost, "Success", taskID, now); err != nil {
				log.Printf("warning: could not log completion %s: %v", taskID, err)
			}
		}
		return false, nil
	}

	// Still pending upstream or an unrecognized status; leave untouched.
	return false, nil
}

// Get returns a tracked task.
func (m *Manager) Get(taskID string) (*models.Task, error) {
	return m.store.GetTask(taskID)
}

// List returns recent tasks for the admin surface.
func (m *Manager) List(limit int) ([]*models.Task, error) {
	return m.store.ListTasks(limit)
}
