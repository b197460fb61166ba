package ledger

import (
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/SoraGate-io/soragate/internal/config"
	"github.com/SoraGate-io/soragate/internal/database"
	"github.com/SoraGate-io/soragate/internal/models"
	"github.com/stretchr/testify/assert"
)

func newTestLedger(t *testing.T) *Ledger {
	cfg := &config.Config{}
	cfg.Database.Type = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "ledger_test.db")

	store, err := database.New(cfg)
	assert.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store)
}

func TestClassForModel(t *testing.T) {
	assert.Equal(t, models.ClassStandard, ClassForModel("sora-2"))
	assert.Equal(t, models.ClassPro, ClassForModel("sora-2-pro"))
	assert.Equal(t, models.ClassPro, ClassForModel("anything-pro-v2"))
	assert.Equal(t, models.ClassStandard, ClassForModel(""))
}

func TestGenerateLicenseKeyFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^SK-[0-9A-F]{12}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		key := GenerateLicenseKey()
		assert.Regexp(t, pattern, key)
		assert.False(t, seen[key], "keys should not repeat")
		seen[key] = true
	}
}

func TestCreateAccountValidation(t *testing.T) {
	l := newTestLedger(t)
	now := time.Now()
	expiry := now.AddDate(0, 1, 0)

	_, err := l.CreateAccount("", 10, models.PlanBasic, expiry, nil, now)
	assert.Error(t, err)

	_, err = l.CreateAccount("alice", 10, models.Plan("Gold"), expiry, nil, now)
	assert.Error(t, err)

	a, err := l.CreateAccount("alice", 10, models.PlanBasic, expiry, nil, now)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusActive, a.Status)
	assert.Regexp(t, `^SK-[0-9A-F]{12}$`, a.LicenseKey)

	got, err := l.Resolve("alice", a.LicenseKey)
	assert.NoError(t, err)
	assert.Equal(t, 10, got.Credits)
}

func TestCostPrecedence(t *testing.T) {
	l := newTestLedger(t)
	st := models.DefaultSettings()

	a := &models.Account{Plan: models.PlanBasic}
	assert.Equal(t, 25, l.ResolveCost(a, "sora-2", st))
	assert.Equal(t, 35, l.ResolveCost(a, "sora-2-pro", st))

	// A pro override wins over the settings default for pro requests only.
	proCost := 40
	a.CustomCostPro = &proCost
	assert.Equal(t, 40, l.ResolveCost(a, "sora-2-pro", st))
	assert.Equal(t, 25, l.ResolveCost(a, "sora-2", st))

	stdCost := 15
	a.CustomCost = &stdCost
	assert.Equal(t, 15, l.ResolveCost(a, "sora-2", st))
}

func TestConcurrencyLimitPrecedence(t *testing.T) {
	l := newTestLedger(t)
	st := models.DefaultSettings()

	a := &models.Account{Plan: models.PlanBasic}
	assert.Equal(t, 2, l.ResolveConcurrencyLimit(a, st))

	limit := 7
	a.CustomLimit = &limit
	assert.Equal(t, 7, l.ResolveConcurrencyLimit(a, st))

	a = &models.Account{Plan: models.PlanPremium}
	assert.Equal(t, 5, l.ResolveConcurrencyLimit(a, st))
}

func TestAccountUsability(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	a := &models.Account{
		Status:     models.StatusActive,
		ExpiryDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}
	// Usable through the end of the expiry day.
	assert.True(t, a.IsUsable(now))
	assert.False(t, a.IsUsable(now.AddDate(0, 0, 1)))

	a.Status = models.StatusSuspended
	assert.False(t, a.IsUsable(now))
}

func TestAdminMutations(t *testing.T) {
	l := newTestLedger(t)
	now := time.Now()

	a, err := l.CreateAccount("bob", 100, models.PlanMini, now.AddDate(0, 1, 0), nil, now)
	assert.NoError(t, err)

	assert.NoError(t, l.SetPlan("bob", models.PlanPremium))
	assert.Error(t, l.SetPlan("bob", models.Plan("Gold")))

	assert.NoError(t, l.SetStatus("bob", models.StatusSuspended))
	assert.Error(t, l.SetStatus("bob", models.AccountStatus("frozen")))

	// Suspension does not block admin credit adjustments.
	assert.NoError(t, l.AdjustCredits("bob", -200))
	got, _ := l.Get("bob")
	assert.Equal(t, 0, got.Credits)
	assert.Equal(t, models.PlanPremium, got.Plan)

	assert.NoError(t, l.RecordHeartbeat("bob", a.LicenseKey))
	got, _ = l.Get("bob")
	assert.Equal(t, 1, got.SessionMinutes)

	assert.NoError(t, l.Delete("bob"))
	_, err = l.Get("bob")
	assert.ErrorIs(t, err, database.ErrNotFound)
}
