package database

import (
	"fmt"
	"strconv"

	"github.com/SoraGate-io/soragate/internal/models"
)

// Settings persist as named rows in the settings table, but the runtime
// surface is the typed models.Settings struct only. Unknown keys are
// ignored on load and never written.

const (
	keyCostSora2      = "cost_sora_2"
	keyCostSora2Pro   = "cost_sora_2_pro"
	keyLimitMini      = "limit_mini"
	keyLimitBasic     = "limit_basic"
	keyLimitStandard  = "limit_standard"
	keyLimitPremium   = "limit_premium"
	keyBroadcastMsg   = "broadcast_msg"
	keyBroadcastColor = "broadcast_color"
	keyLatestVersion  = "latest_version"
	keyUpdateDesc     = "update_desc"
	keyUpdateIsLive   = "update_is_live"
	keyUpdateURL      = "update_url"
)

func settingsToRows(st models.Settings) map[string]string {
	live := "0"
	if st.UpdateIsLive {
		live = "1"
	}
	return map[string]string{
		keyCostSora2:      strconv.Itoa(st.CostSora2),
		keyCostSora2Pro:   strconv.Itoa(st.CostSora2Pro),
		keyLimitMini:      strconv.Itoa(st.LimitMini),
		keyLimitBasic:     strconv.Itoa(st.LimitBasic),
		keyLimitStandard:  strconv.Itoa(st.LimitStandard),
		keyLimitPremium:   strconv.Itoa(st.LimitPremium),
		keyBroadcastMsg:   st.BroadcastMsg,
		keyBroadcastColor: st.BroadcastColor,
		keyLatestVersion:  st.LatestVersion,
		keyUpdateDesc:     st.UpdateDesc,
		keyUpdateIsLive:   live,
		keyUpdateURL:      st.UpdateURL,
	}
}

// LoadSettings reads the full settings struct. Missing rows keep their
// seeded defaults.
func (s *Store) LoadSettings() (models.Settings, error) {
	st := models.DefaultSettings()

	rows, err := s.db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return st, fmt.Errorf("load settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return st, err
		}
		switch key {
		case keyCostSora2:
			st.CostSora2 = atoiDefault(value, st.CostSora2)
		case keyCostSora2Pro:
			st.CostSora2Pro = atoiDefault(value, st.CostSora2Pro)
		case keyLimitMini:
			st.LimitMini = atoiDefault(value, st.LimitMini)
		case keyLimitBasic:
			st.LimitBasic = atoiDefault(value, st.LimitBasic)
		case keyLimitStandard:
			st.LimitStandard = atoiDefault(value, st.LimitStandard)
		case keyLimitPremium:
			st.LimitPremium = atoiDefault(value, st.LimitPremium)
		case keyBroadcastMsg:
			st.BroadcastMsg = value
		case keyBroadcastColor:
			st.BroadcastColor = value
		case keyLatestVersion:
			st.LatestVersion = value
		case keyUpdateDesc:
			st.UpdateDesc = value
		case keyUpdateIsLive:
			st.UpdateIsLive = value == "1"
		case keyUpdateURL:
			st.UpdateURL = value
		}
	}
	return st, rows.Err()
}

// SaveSettings writes the full settings struct.
func (s *Store) SaveSettings(st models.Settings) error {
	var query string
	if s.dbType == "postgres" {
		query = `INSERT INTO settings (key, value) VALUES ($1, $2)
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
	} else {
		query = `INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`
	}

	for key, value := range settingsToRows(st) {
		if _, err := s.db.Exec(query, key, value); err != nil {
			return fmt.Errorf("save setting %s: %w", key, err)
		}
	}
	return nil
}

// seedDefaultSettings inserts defaults for any setting row not present.
func (s *Store) seedDefaultSettings() error {
	var query string
	if s.dbType == "postgres" {
		query = `INSERT INTO settings (key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`
	} else {
		query = `INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`
	}

	for key, value := range settingsToRows(models.DefaultSettings()) {
		if _, err := s.db.Exec(query, key, value); err != nil {
			return fmt.Errorf("seed setting %s: %w", key, err)
		}
	}
	return nil
}

func atoiDefault(v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
