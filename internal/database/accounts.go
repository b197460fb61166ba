package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/SoraGate-io/soragate/internal/models"
)

const accountColumns = `username, license_key, credits, plan, status, expiry_date,
	custom_limit, custom_cost, custom_cost_pro, key_group, created_at, last_seen, session_minutes`

func scanAccount(row interface{ Scan(dest ...any) error }) (*models.Account, error) {
	var a models.Account
	var customLimit, customCost, customCostPro sql.NullInt64
	var keyGroup sql.NullString
	var lastSeen sql.NullTime

	err := row.Scan(&a.Username, &a.LicenseKey, &a.Credits, &a.Plan, &a.Status,
		&a.ExpiryDate, &customLimit, &customCost, &customCostPro, &keyGroup,
		&a.CreatedAt, &lastSeen, &a.SessionMinutes)
	if err != nil {
		return nil, err
	}

	if customLimit.Valid {
		v := int(customLimit.Int64)
		a.CustomLimit = &v
	}
	if customCost.Valid {
		v := int(customCost.Int64)
		a.CustomCost = &v
	}
	if customCostPro.Valid {
		v := int(customCostPro.Int64)
		a.CustomCostPro = &v
	}
	if keyGroup.Valid && keyGroup.String != "" {
		a.KeyGroup = &keyGroup.String
	}
	if lastSeen.Valid {
		a.LastSeen = &lastSeen.Time
	}
	return &a, nil
}

// CreateAccount inserts a new account record.
func (s *Store) CreateAccount(a *models.Account) error {
	_, err := s.db.Exec(s.rebind(`INSERT INTO accounts
		(username, license_key, credits, plan, status, expiry_date,
		 custom_limit, custom_cost, custom_cost_pro, key_group, created_at, session_minutes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`),
		a.Username, a.LicenseKey, a.Credits, a.Plan, a.Status, a.ExpiryDate,
		nullableInt(a.CustomLimit), nullableInt(a.CustomCost), nullableInt(a.CustomCostPro),
		nullableString(a.KeyGroup), a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// GetAccount retrieves an account by username.
func (s *Store) GetAccount(username string) (*models.Account, error) {
	row := s.db.QueryRow(s.rebind(
		`SELECT `+accountColumns+` FROM accounts WHERE username = ?`), username)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// GetAccountByCredentials retrieves an account by the exact
// username/license-key pair. No partial matching.
func (s *Store) GetAccountByCredentials(username, licenseKey string) (*models.Account, error) {
	row := s.db.QueryRow(s.rebind(
		`SELECT `+accountColumns+` FROM accounts WHERE username = ? AND license_key = ?`),
		username, licenseKey)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account by credentials: %w", err)
	}
	return a, nil
}

// ListAccounts returns all accounts, newest first.
func (s *Store) ListAccounts() ([]*models.Account, error) {
	rows, err := s.db.Query(
		`SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// DebitAccount atomically decrements the balance, rejecting any debit the
// balance cannot cover. Zero rows affected means insufficient credits; a
// concurrent debit can never push the balance negative.
func (s *Store) DebitAccount(username string, amount int) error {
	res, err := s.db.Exec(s.rebind(
		`UPDATE accounts SET credits = credits - ? WHERE username = ? AND credits >= ?`),
		amount, username, amount)
	if err != nil {
		return fmt.Errorf("debit account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInsufficientCredits
	}
	return nil
}

// CreditAccount atomically increments the balance. No upper bound.
func (s *Store) CreditAccount(username string, amount int) error {
	res, err := s.db.Exec(s.rebind(
		`UPDATE accounts SET credits = credits + ? WHERE username = ?`),
		amount, username)
	if err != nil {
		return fmt.Errorf("credit account: %w", err)
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

// AdjustCredits applies an administrative balance adjustment. Negative
// adjustments floor at zero instead of rejecting.
func (s *Store) AdjustCredits(username string, delta int) error {
	res, err := s.db.Exec(s.rebind(
		`UPDATE accounts SET credits = CASE WHEN credits + ? < 0 THEN 0 ELSE credits + ? END
		 WHERE username = ?`),
		delta, delta, username)
	if err != nil {
		return fmt.Errorf("adjust credits: %w", err)
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

// UpdateAccountProfile is the trusted admin write: plan, overrides and key
// group are set unconditionally regardless of status or expiry.
func (s *Store) UpdateAccountProfile(username string, plan models.Plan,
	customLimit, customCost, customCostPro *int, keyGroup *string) error {
	res, err := s.db.Exec(s.rebind(
		`UPDATE accounts SET plan = ?, custom_limit = ?, custom_cost = ?,
		 custom_cost_pro = ?, key_group = ? WHERE username = ?`),
		plan, nullableInt(customLimit), nullableInt(customCost),
		nullableInt(customCostPro), nullableString(keyGroup), username)
	if err != nil {
		return fmt.Errorf("update account profile: %w", err)
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

// SetAccountStatus updates the lifecycle status.
func (s *Store) SetAccountStatus(username string, status models.AccountStatus) error {
	res, err := s.db.Exec(s.rebind(
		`UPDATE accounts SET status = ? WHERE username = ?`), status, username)
	if err != nil {
		return fmt.Errorf("set account status: %w", err)
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

// SetAccountExpiry updates the hard expiry cutoff.
func (s *Store) SetAccountExpiry(username string, expiry time.Time) error {
	res, err := s.db.Exec(s.rebind(
		`UPDATE accounts SET expiry_date = ? WHERE username = ?`), expiry, username)
	if err != nil {
		return fmt.Errorf("set account expiry: %w", err)
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

// DeleteAccount removes the account record. Hard delete, no tombstone.
func (s *Store) DeleteAccount(username string) error {
	res, err := s.db.Exec(s.rebind(`DELETE FROM accounts WHERE username = ?`), username)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
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

// TouchLastSeen records client activity for the account.
func (s *Store) TouchLastSeen(username string, now time.Time) error {
	_, err := s.db.Exec(s.rebind(
		`UPDATE accounts SET last_seen = ? WHERE username = ?`), now, username)
	return err
}

// IncrementSessionMinutes bumps the usage clock for a heartbeat. The
// credential pair must match; a stale key is silently ignored, as the
// heartbeat carries no response body worth erroring over.
func (s *Store) IncrementSessionMinutes(username, licenseKey string) error {
	_, err := s.db.Exec(s.rebind(
		`UPDATE accounts SET session_minutes = session_minutes + 1
		 WHERE username = ? AND license_key = ?`), username, licenseKey)
	return err
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
