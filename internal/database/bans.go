package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/SoraGate-io/soragate/internal/models"
)

// InsertBan records a permanent ban for a source IP. Inserting an already
// banned IP is a no-op, so concurrent threshold hits cannot fail.
func (s *Store) InsertBan(ip, reason string, now time.Time) error {
	var query string
	if s.dbType == "postgres" {
		query = `INSERT INTO banned_ips (ip, reason, banned_at) VALUES ($1, $2, $3)
			 ON CONFLICT (ip) DO NOTHING`
	} else {
		query = `INSERT OR IGNORE INTO banned_ips (ip, reason, banned_at) VALUES (?, ?, ?)`
	}
	if _, err := s.db.Exec(query, ip, reason, now); err != nil {
		return fmt.Errorf("insert ban: %w", err)
	}
	return nil
}

// IsBanned reports whether the IP has a ban record.
func (s *Store) IsBanned(ip string) (bool, error) {
	var one int
	err := s.db.QueryRow(s.rebind(
		`SELECT 1 FROM banned_ips WHERE ip = ?`), ip).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check ban: %w", err)
	}
	return true, nil
}

// ListBans returns all ban entries, newest first.
func (s *Store) ListBans() ([]*models.BanEntry, error) {
	rows, err := s.db.Query(
		`SELECT ip, reason, banned_at FROM banned_ips ORDER BY banned_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list bans: %w", err)
	}
	defer rows.Close()

	var bans []*models.BanEntry
	for rows.Next() {
		var b models.BanEntry
		if err := rows.Scan(&b.IP, &b.Reason, &b.BannedAt); err != nil {
			return nil, err
		}
		bans = append(bans, &b)
	}
	return bans, rows.Err()
}

// DeleteBan removes a ban record; the only way a ban ever ends.
func (s *Store) DeleteBan(ip string) error {
	res, err := s.db.Exec(s.rebind(`DELETE FROM banned_ips WHERE ip = ?`), ip)
	if err != nil {
		return fmt.Errorf("delete ban: %w", err)
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
