// Package ledger owns credit balance mutation, plan/limit/cost resolution
// and account lifecycle for the prepaid billing model.
package ledger

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/SoraGate-io/soragate/internal/database"
	"github.com/SoraGate-io/soragate/internal/models"
)

// Ledger is the account ledger over the persistent store.
type Ledger struct {
	store *database.Store
}

func New(store *database.Store) *Ledger {
	return &Ledger{store: store}
}

// Resolve looks an account up by its exact username/license-key pair.
// Failure surfaces as an authentication error to the caller.
func (l *Ledger) Resolve(username, licenseKey string) (*models.Account, error) {
	return l.store.GetAccountByCredentials(username, licenseKey)
}

// Get looks an account up by username alone; trusted admin path only.
func (l *Ledger) Get(username string) (*models.Account, error) {
	return l.store.GetAccount(username)
}

// ClassForModel derives the billable class from the requested model
// string: a "pro" marker selects the Pro class.
func ClassForModel(model string) models.ModelClass {
	if strings.Contains(model, "pro") {
		return models.ClassPro
	}
	return models.ClassStandard
}

// ResolveCost returns the charge for one generation: the account override
// for the model class when present, else the configured class default.
func (l *Ledger) ResolveCost(a *models.Account, model string, st models.Settings) int {
	class := ClassForModel(model)
	if class == models.ClassPro && a.CustomCostPro != nil {
		return *a.CustomCostPro
	}
	if class == models.ClassStandard && a.CustomCost != nil {
		return *a.CustomCost
	}
	return st.ClassCost(class)
}

// ResolveConcurrencyLimit returns the account override when present, else
// the configured default for the account's plan.
func (l *Ledger) ResolveConcurrencyLimit(a *models.Account, st models.Settings) int {
	if a.CustomLimit != nil {
		return *a.CustomLimit
	}
	return st.PlanLimit(a.Plan)
}

// Debit charges the account. database.ErrInsufficientCredits when the
// balance cannot cover the amount; the balance never goes negative.
func (l *Ledger) Debit(username string, amount int) error {
	return l.store.DebitAccount(username, amount)
}

// Credit adds to the account balance: refunds, admin top-ups, vouchers.
func (l *Ledger) Credit(username string, amount int) error {
	return l.store.CreditAccount(username, amount)
}

// CreateAccount provisions a new account with a freshly generated license
// key and returns the stored record.
func (l *Ledger) CreateAccount(username string, credits int, plan models.Plan,
	expiry time.Time, keyGroup *string, now time.Time) (*models.Account, error) {
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if !models.ValidPlan(plan) {
		return nil, fmt.Errorf("unknown plan: %s", plan)
	}

	a := &models.Account{
		Username:   username,
		LicenseKey: GenerateLicenseKey(),
		Credits:    credits,
		Plan:       plan,
		Status:     models.StatusActive,
		ExpiryDate: expiry,
		KeyGroup:   keyGroup,
		CreatedAt:  now,
	}
	if err := l.store.CreateAccount(a); err != nil {
		return nil, err
	}
	return a, nil
}

// SetPlan, SetOverrides, SetStatus and AdjustCredits are the trusted admin
// mutations: unconditional writes, allowed regardless of expiry or status.

func (l *Ledger) SetPlan(username string, plan models.Plan) error {
	if !models.ValidPlan(plan) {
		return fmt.Errorf("unknown plan: %s", plan)
	}
	a, err := l.store.GetAccount(username)
	if err != nil {
		return err
	}
	return l.store.UpdateAccountProfile(username, plan,
		a.CustomLimit, a.CustomCost, a.CustomCostPro, a.KeyGroup)
}

func (l *Ledger) SetOverrides(username string, customLimit, customCost, customCostPro *int, keyGroup *string) error {
	a, err := l.store.GetAccount(username)
	if err != nil {
		return err
	}
	return l.store.UpdateAccountProfile(username, a.Plan,
		customLimit, customCost, customCostPro, keyGroup)
}

// UpdateProfile sets plan, overrides and key group in one write.
func (l *Ledger) UpdateProfile(username string, plan models.Plan,
	customLimit, customCost, customCostPro *int, keyGroup *string) error {
	if !models.ValidPlan(plan) {
		return fmt.Errorf("unknown plan: %s", plan)
	}
	return l.store.UpdateAccountProfile(username, plan, customLimit, customCost, customCostPro, keyGroup)
}

func (l *Ledger) SetStatus(username string, status models.AccountStatus) error {
	switch status {
	case models.StatusActive, models.StatusSuspended, models.StatusBanned, models.StatusInactive:
	default:
		return fmt.Errorf("unknown status: %s", status)
	}
	return l.store.SetAccountStatus(username, status)
}

// AdjustCredits applies an admin balance adjustment, flooring at zero.
func (l *Ledger) AdjustCredits(username string, delta int) error {
	return l.store.AdjustCredits(username, delta)
}

func (l *Ledger) SetExpiry(username string, expiry time.Time) error {
	return l.store.SetAccountExpiry(username, expiry)
}

func (l *Ledger) Delete(username string) error {
	return l.store.DeleteAccount(username)
}

func (l *Ledger) List() ([]*models.Account, error) {
	return l.store.ListAccounts()
}

func (l *Ledger) TouchLastSeen(username string, now time.Time) error {
	return l.store.TouchLastSeen(username, now)
}

func (l *Ledger) RecordHeartbeat(username, licenseKey string) error {
	return l.store.IncrementSessionMinutes(username, licenseKey)
}

// GenerateLicenseKey issues an opaque client secret: "SK-" plus 12
// uppercase hex characters.
func GenerateLicenseKey() string {
	buf := make([]byte, 6)
	rand.Read(buf)
	return "SK-" + strings.ToUpper(hex.EncodeToString(buf))
}
