package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/SoraGate-io/soragate/internal/models"
)

// CreateVoucher inserts a new voucher code.
func (s *Store) CreateVoucher(v *models.Voucher) error {
	var expiry any
	if v.ExpiryDate != nil {
		expiry = *v.ExpiryDate
	}
	_, err := s.db.Exec(s.rebind(
		`INSERT INTO vouchers (code, amount, max_uses, current_uses, expiry_date, created_at)
		 VALUES (?, ?, ?, 0, ?, ?)`),
		v.Code, v.Amount, v.MaxUses, expiry, v.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create voucher: %w", err)
	}
	return nil
}

// GetVoucher retrieves a voucher by code.
func (s *Store) GetVoucher(code string) (*models.Voucher, error) {
	row := s.db.QueryRow(s.rebind(
		`SELECT code, amount, max_uses, current_uses, expiry_date, created_at
		 FROM vouchers WHERE code = ?`), code)
	v, err := scanVoucher(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get voucher: %w", err)
	}
	return v, nil
}

// ListVouchers returns all vouchers, newest first.
func (s *Store) ListVouchers() ([]*models.Voucher, error) {
	rows, err := s.db.Query(
		`SELECT code, amount, max_uses, current_uses, expiry_date, created_at
		 FROM vouchers ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list vouchers: %w", err)
	}
	defer rows.Close()

	var vouchers []*models.Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		vouchers = append(vouchers, v)
	}
	return vouchers, rows.Err()
}

// DeleteVoucher removes a voucher code.
func (s *Store) DeleteVoucher(code string) error {
	res, err := s.db.Exec(s.rebind(`DELETE FROM vouchers WHERE code = ?`), code)
	if err != nil {
		return fmt.Errorf("delete voucher: %w", err)
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

// RedeemVoucher applies a voucher to an account as one atomic unit:
// conditional use-count increment, usage-set insert and account credit all
// commit together or not at all. The conditional increment keeps a code
// from ever exceeding max_uses under concurrent redemptions; the unique
// (code, username) index keeps a username from redeeming a code twice.
// Returns the credited amount on success.
func (s *Store) RedeemVoucher(code, username string, now time.Time) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("redeem voucher: begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(s.rebind(
		`SELECT code, amount, max_uses, current_uses, expiry_date, created_at
		 FROM vouchers WHERE code = ?`), code)
	v, err := scanVoucher(row)
	if err == sql.ErrNoRows {
		return 0, ErrVoucherNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("redeem voucher: load: %w", err)
	}

	// Rejection order: expired, exhausted, already redeemed.
	if v.ExpiryDate != nil && now.After(*v.ExpiryDate) {
		return 0, ErrVoucherExpired
	}
	if v.CurrentUses >= v.MaxUses {
		return 0, ErrVoucherExhausted
	}

	var used int
	err = tx.QueryRow(s.rebind(
		`SELECT COUNT(1) FROM voucher_usage WHERE code = ? AND username = ?`),
		code, username).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("redeem voucher: usage check: %w", err)
	}
	if used > 0 {
		return 0, ErrVoucherAlreadyUsed
	}

	res, err := tx.Exec(s.rebind(
		`UPDATE vouchers SET current_uses = current_uses + 1
		 WHERE code = ? AND current_uses < max_uses`), code)
	if err != nil {
		return 0, fmt.Errorf("redeem voucher: increment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrVoucherExhausted
	}

	if _, err := tx.Exec(s.rebind(
		`INSERT INTO voucher_usage (code, username, used_at) VALUES (?, ?, ?)`),
		code, username, now); err != nil {
		if isUniqueViolation(err) {
			return 0, ErrVoucherAlreadyUsed
		}
		return 0, fmt.Errorf("redeem voucher: record usage: %w", err)
	}

	res, err = tx.Exec(s.rebind(
		`UPDATE accounts SET credits = credits + ? WHERE username = ?`),
		v.Amount, username)
	if err != nil {
		return 0, fmt.Errorf("redeem voucher: credit: %w", err)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("redeem voucher: commit: %w", err)
	}
	return v.Amount, nil
}

func scanVoucher(row interface{ Scan(dest ...any) error }) (*models.Voucher, error) {
	var v models.Voucher
	var expiry sql.NullTime
	if err := row.Scan(&v.Code, &v.Amount, &v.MaxUses, &v.CurrentUses, &expiry, &v.CreatedAt); err != nil {
		return nil, err
	}
	if expiry.Valid {
		v.ExpiryDate = &expiry.Time
	}
	return &v, nil
}
