package database

import (
	"database/sql"
	"fmt"

	"github.com/SoraGate-io/soragate/internal/models"
)

const apiKeyColumns = `id, key_value, label, key_group, is_active, error_count, created_at`

func scanAPIKey(row interface{ Scan(dest ...any) error }) (*models.APIKey, error) {
	var k models.APIKey
	var group sql.NullString
	if err := row.Scan(&k.ID, &k.KeyValue, &k.Label, &group, &k.IsActive, &k.ErrorCount, &k.CreatedAt); err != nil {
		return nil, err
	}
	if group.Valid && group.String != "" {
		k.KeyGroup = &group.String
	}
	return &k, nil
}

// CreateAPIKey adds an upstream credential to the pool.
func (s *Store) CreateAPIKey(k *models.APIKey) error {
	_, err := s.db.Exec(s.rebind(
		`INSERT INTO api_keys (key_value, label, key_group, is_active, error_count, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`),
		k.KeyValue, k.Label, nullableString(k.KeyGroup), k.IsActive, k.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// ListAPIKeys returns all pool credentials.
func (s *Store) ListAPIKeys() ([]*models.APIKey, error) {
	rows, err := s.db.Query(`SELECT ` + apiKeyColumns + ` FROM api_keys ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RandomActiveKey picks one active key uniformly at random, optionally
// restricted to a named group. Uniform selection is deliberate; there is
// no weighting or health preference.
func (s *Store) RandomActiveKey(group string) (*models.APIKey, error) {
	var row *sql.Row
	if group != "" {
		row = s.db.QueryRow(s.rebind(
			`SELECT `+apiKeyColumns+` FROM api_keys
			 WHERE is_active = ? AND key_group = ?
			 ORDER BY RANDOM() LIMIT 1`), true, group)
	} else {
		row = s.db.QueryRow(s.rebind(
			`SELECT `+apiKeyColumns+` FROM api_keys
			 WHERE is_active = ?
			 ORDER BY RANDOM() LIMIT 1`), true)
	}

	k, err := scanAPIKey(row)
	if err == sql.ErrNoRows {
		return nil, ErrNoKeysAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("random active key: %w", err)
	}
	return k, nil
}

// SetAPIKeyActive toggles a credential in or out of the pool.
func (s *Store) SetAPIKeyActive(id int64, active bool) error {
	res, err := s.db.Exec(s.rebind(
		`UPDATE api_keys SET is_active = ? WHERE id = ?`), active, id)
	if err != nil {
		return fmt.Errorf("set api key active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementKeyErrors bumps the error counter for a credential.
func (s *Store) IncrementKeyErrors(keyValue string) error {
	_, err := s.db.Exec(s.rebind(
		`UPDATE api_keys SET error_count = error_count + 1 WHERE key_value = ?`), keyValue)
	return err
}

// DeleteAPIKey removes a credential from the pool.
func (s *Store) DeleteAPIKey(id int64) error {
	res, err := s.db.Exec(s.rebind(`DELETE FROM api_keys WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
