package models

import (
	"time"
)

// Plan is a named account tier. Each plan carries a default concurrency
// limit in Settings; per-account overrides win over the plan default.
type Plan string

const (
	PlanMini     Plan = "Mini"
	PlanBasic    Plan = "Basic"
	PlanStandard Plan = "Standard"
	PlanPremium  Plan = "Premium"
)

// ValidPlan reports whether p is one of the known tiers.
func ValidPlan(p Plan) bool {
	switch p {
	case PlanMini, PlanBasic, PlanStandard, PlanPremium:
		return true
	}
	return false
}

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	StatusActive    AccountStatus = "active"
	StatusSuspended AccountStatus = "suspended"
	StatusBanned    AccountStatus = "banned"
	StatusInactive  AccountStatus = "inactive"
)

// ModelClass is the billable class derived from the requested model string.
type ModelClass string

const (
	ClassStandard ModelClass = "standard"
	ClassPro      ModelClass = "pro"
)

// Account is a billable identity with a prepaid credit balance.
type Account struct {
	Username       string        `json:"username" db:"username"`
	LicenseKey     string        `json:"license_key" db:"license_key"`
	Credits        int           `json:"credits" db:"credits"`
	Plan           Plan          `json:"plan" db:"plan"`
	Status         AccountStatus `json:"status" db:"status"`
	ExpiryDate     time.Time     `json:"expiry_date" db:"expiry_date"`
	CustomLimit    *int          `json:"custom_limit,omitempty" db:"custom_limit"`
	CustomCost     *int          `json:"custom_cost,omitempty" db:"custom_cost"`
	CustomCostPro  *int          `json:"custom_cost_pro,omitempty" db:"custom_cost_pro"`
	KeyGroup       *string       `json:"key_group,omitempty" db:"key_group"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	LastSeen       *time.Time    `json:"last_seen,omitempty" db:"last_seen"`
	SessionMinutes int           `json:"session_minutes" db:"session_minutes"`
}

// IsUsable reports whether the account may spend credits: it must be
// active and not past its expiry date. The expiry cutoff is end-of-day
// inclusive, matching how expiry dates are issued (date only).
func (a *Account) IsUsable(now time.Time) bool {
	if a.Status != StatusActive {
		return false
	}
	return !now.After(a.ExpiryDate.Add(24*time.Hour - time.Nanosecond))
}

// Voucher is a redeemable credit code with a global use cap.
type Voucher struct {
	Code        string     `json:"code" db:"code"`
	Amount      int        `json:"amount" db:"amount"`
	MaxUses     int        `json:"max_uses" db:"max_uses"`
	CurrentUses int        `json:"current_uses" db:"current_uses"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty" db:"expiry_date"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// TaskStatus tracks one upstream generation job from acceptance to a
// terminal outcome. A task leaves pending at most once.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskSucceeded TaskStatus = "succeeded"
	TaskRefunded  TaskStatus = "refunded"
)

// Task is one upstream generation job and the cost already charged for it.
type Task struct {
	TaskID    string     `json:"task_id" db:"task_id"`
	Username  string     `json:"username" db:"username"`
	Cost      int        `json:"cost" db:"cost"`
	Status    TaskStatus `json:"status" db:"status"`
	Model     string     `json:"model" db:"model"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// APIKey is an upstream provider credential in the outbound pool.
type APIKey struct {
	ID         int64     `json:"id" db:"id"`
	KeyValue   string    `json:"key_value" db:"key_value"`
	Label      string    `json:"label" db:"label"`
	KeyGroup   *string   `json:"key_group,omitempty" db:"key_group"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	ErrorCount int       `json:"error_count" db:"error_count"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// BanEntry records a permanently banned source IP.
type BanEntry struct {
	IP       string    `json:"ip" db:"ip"`
	Reason   string    `json:"reason" db:"reason"`
	BannedAt time.Time `json:"banned_at" db:"banned_at"`
}

// UsageLog is one row of the activity ledger shown to admins.
type UsageLog struct {
	ID        int64     `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Action    string    `json:"action" db:"action"`
	Cost      int       `json:"cost" db:"cost"`
	Status    string    `json:"status" db:"status"`
	TaskID    string    `json:"task_id" db:"task_id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// Settings is the enumerated runtime configuration stored in the settings
// table. Fields are named and typed; there is no open key/value surface.
type Settings struct {
	CostSora2     int    `json:"cost_sora_2"`
	CostSora2Pro  int    `json:"cost_sora_2_pro"`
	LimitMini     int    `json:"limit_mini"`
	LimitBasic    int    `json:"limit_basic"`
	LimitStandard int    `json:"limit_standard"`
	LimitPremium  int    `json:"limit_premium"`

	BroadcastMsg   string `json:"broadcast_msg"`
	BroadcastColor string `json:"broadcast_color"`

	LatestVersion string `json:"latest_version"`
	UpdateDesc    string `json:"update_desc"`
	UpdateIsLive  bool   `json:"update_is_live"`
	UpdateURL     string `json:"update_url"`
}

// DefaultSettings returns the values seeded on first startup.
func DefaultSettings() Settings {
	return Settings{
		CostSora2:      25,
		CostSora2Pro:   35,
		LimitMini:      1,
		LimitBasic:     2,
		LimitStandard:  3,
		LimitPremium:   5,
		BroadcastColor: "#FF0000",
		LatestVersion:  "1.0.0",
		UpdateDesc:     "Initial Release",
	}
}

// PlanLimit returns the configured default concurrency limit for a plan.
func (s Settings) PlanLimit(p Plan) int {
	switch p {
	case PlanMini:
		return s.LimitMini
	case PlanBasic:
		return s.LimitBasic
	case PlanPremium:
		return s.LimitPremium
	default:
		return s.LimitStandard
	}
}

// ClassCost returns the configured default cost for a model class.
func (s Settings) ClassCost(c ModelClass) int {
	if c == ClassPro {
		return s.CostSora2Pro
	}
	return s.CostSora2
}
