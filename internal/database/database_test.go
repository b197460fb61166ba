package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/SoraGate-io/soragate/internal/config"
	"github.com/SoraGate-io/soragate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// StoreTestSuite exercises the SQLite backend; the PostgreSQL queries
// share the same text through rebind.
type StoreTestSuite struct {
	suite.Suite
	store *Store
}

func (s *StoreTestSuite) SetupTest() {
	cfg := &config.Config{}
	cfg.Database.Type = "sqlite"
	cfg.Database.Path = filepath.Join(s.T().TempDir(), "soragate_test.db")

	store, err := New(cfg)
	assert.NoError(s.T(), err, "store initialization should succeed")
	s.store = store
}

func (s *StoreTestSuite) TearDownTest() {
	if s.store != nil {
		s.store.Close()
	}
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) newAccount(username string, credits int) *models.Account {
	a := &models.Account{
		Username:   username,
		LicenseKey: "SK-AAAA0000" + username,
		Credits:    credits,
		Plan:       models.PlanBasic,
		Status:     models.StatusActive,
		ExpiryDate: time.Now().AddDate(1, 0, 0),
		CreatedAt:  time.Now(),
	}
	err := s.store.CreateAccount(a)
	assert.NoError(s.T(), err)
	return a
}

func (s *StoreTestSuite) TestCreateAndGetAccount() {
	created := s.newAccount("alice", 100)

	got, err := s.store.GetAccount("alice")
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), created.Username, got.Username)
	assert.Equal(s.T(), 100, got.Credits)
	assert.Equal(s.T(), models.PlanBasic, got.Plan)
	assert.Nil(s.T(), got.CustomCost)

	_, err = s.store.GetAccount("nobody")
	assert.ErrorIs(s.T(), err, ErrNotFound)

	err = s.store.CreateAccount(created)
	assert.ErrorIs(s.T(), err, ErrDuplicate)
}

func (s *StoreTestSuite) TestGetAccountByCredentialsExactMatch() {
	a := s.newAccount("bob", 50)

	got, err := s.store.GetAccountByCredentials("bob", a.LicenseKey)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), "bob", got.Username)

	_, err = s.store.GetAccountByCredentials("bob", a.LicenseKey[:len(a.LicenseKey)-1])
	assert.ErrorIs(s.T(), err, ErrNotFound)

	_, err = s.store.GetAccountByCredentials("BOB", a.LicenseKey)
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *StoreTestSuite) TestDebitNeverGoesNegative() {
	s.newAccount("carol", 30)

	err := s.store.DebitAccount("carol", 25)
	assert.NoError(s.T(), err)

	err = s.store.DebitAccount("carol", 25)
	assert.ErrorIs(s.T(), err, ErrInsufficientCredits)

	got, _ := s.store.GetAccount("carol")
	assert.Equal(s.T(), 5, got.Credits)
}

func (s *StoreTestSuite) TestAdjustCreditsFloorsAtZero() {
	s.newAccount("dave", 10)

	err := s.store.AdjustCredits("dave", -50)
	assert.NoError(s.T(), err)

	got, _ := s.store.GetAccount("dave")
	assert.Equal(s.T(), 0, got.Credits)

	err = s.store.AdjustCredits("dave", 15)
	assert.NoError(s.T(), err)
	got, _ = s.store.GetAccount("dave")
	assert.Equal(s.T(), 15, got.Credits)

	err = s.store.AdjustCredits("nobody", 5)
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *StoreTestSuite) TestUpdateAccountProfile() {
	s.newAccount("erin", 10)

	limit := 7
	cost := 20
	group := "pool-a"
	err := s.store.UpdateAccountProfile("erin", models.PlanPremium, &limit, &cost, nil, &group)
	assert.NoError(s.T(), err)

	got, _ := s.store.GetAccount("erin")
	assert.Equal(s.T(), models.PlanPremium, got.Plan)
	assert.Equal(s.T(), 7, *got.CustomLimit)
	assert.Equal(s.T(), 20, *got.CustomCost)
	assert.Nil(s.T(), got.CustomCostPro)
	assert.Equal(s.T(), "pool-a", *got.KeyGroup)

	// Clearing overrides writes NULLs back.
	err = s.store.UpdateAccountProfile("erin", models.PlanPremium, nil, nil, nil, nil)
	assert.NoError(s.T(), err)
	got, _ = s.store.GetAccount("erin")
	assert.Nil(s.T(), got.CustomLimit)
	assert.Nil(s.T(), got.KeyGroup)
}

func (s *StoreTestSuite) TestTaskDebitAndRefundIdempotence() {
	s.newAccount("frank", 100)

	task := &models.Task{
		TaskID:    "task-1",
		Username:  "frank",
		Cost:      25,
		Model:     "sora-2",
		CreatedAt: time.Now(),
	}
	err := s.store.CreateTaskWithDebit(task)
	assert.NoError(s.T(), err)

	got, _ := s.store.GetAccount("frank")
	assert.Equal(s.T(), 75, got.Credits)

	// First refund credits the account; every later call is a no-op.
	refunded, err := s.store.MarkTaskRefunded("task-1")
	assert.NoError(s.T(), err)
	assert.True(s.T(), refunded)

	for i := 0; i < 3; i++ {
		refunded, err = s.store.MarkTaskRefunded("task-1")
		assert.NoError(s.T(), err)
		assert.False(s.T(), refunded)
	}

	got, _ = s.store.GetAccount("frank")
	assert.Equal(s.T(), 100, got.Credits)

	t, err := s.store.GetTask("task-1")
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), models.TaskRefunded, t.Status)
}

func (s *StoreTestSuite) TestTaskDebitRejectsInsufficientBalance() {
	s.newAccount("gina", 10)

	err := s.store.CreateTaskWithDebit(&models.Task{
		TaskID: "task-2", Username: "gina", Cost: 25, CreatedAt: time.Now(),
	})
	assert.ErrorIs(s.T(), err, ErrInsufficientCredits)

	// Nothing committed: no task row, balance untouched.
	_, err = s.store.GetTask("task-2")
	assert.ErrorIs(s.T(), err, ErrNotFound)
	got, _ := s.store.GetAccount("gina")
	assert.Equal(s.T(), 10, got.Credits)
}

func (s *StoreTestSuite) TestSucceededTaskCannotBeRefunded() {
	s.newAccount("henry", 100)
	assert.NoError(s.T(), s.store.CreateTaskWithDebit(&models.Task{
		TaskID: "task-3", Username: "henry", Cost: 35, CreatedAt: time.Now(),
	}))

	completed, err := s.store.MarkTaskSucceeded("task-3")
	assert.NoError(s.T(), err)
	assert.True(s.T(), completed)

	refunded, err := s.store.MarkTaskRefunded("task-3")
	assert.NoError(s.T(), err)
	assert.False(s.T(), refunded)

	got, _ := s.store.GetAccount("henry")
	assert.Equal(s.T(), 65, got.Credits)
}

func (s *StoreTestSuite) TestVoucherRedemptionFlow() {
	s.newAccount("ivy", 0)
	s.newAccount("jack", 0)
	s.newAccount("kate", 0)

	v := &models.Voucher{Code: "SORA-50-TESTCODE", Amount: 50, MaxUses: 2, CreatedAt: time.Now()}
	assert.NoError(s.T(), s.store.CreateVoucher(v))

	now := time.Now()

	amount, err := s.store.RedeemVoucher("SORA-50-TESTCODE", "ivy", now)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), 50, amount)

	// Same user cannot redeem the same code twice.
	_, err = s.store.RedeemVoucher("SORA-50-TESTCODE", "ivy", now)
	assert.ErrorIs(s.T(), err, ErrVoucherAlreadyUsed)

	_, err = s.store.RedeemVoucher("SORA-50-TESTCODE", "jack", now)
	assert.NoError(s.T(), err)

	// Cap reached; a third user is rejected.
	_, err = s.store.RedeemVoucher("SORA-50-TESTCODE", "kate", now)
	assert.ErrorIs(s.T(), err, ErrVoucherExhausted)

	ivy, _ := s.store.GetAccount("ivy")
	assert.Equal(s.T(), 50, ivy.Credits)
	kate, _ := s.store.GetAccount("kate")
	assert.Equal(s.T(), 0, kate.Credits)
}

func (s *StoreTestSuite) TestVoucherRejections() {
	s.newAccount("liam", 0)
	now := time.Now()

	_, err := s.store.RedeemVoucher("SORA-10-MISSING0", "liam", now)
	assert.ErrorIs(s.T(), err, ErrVoucherNotFound)

	past := now.AddDate(0, 0, -1)
	assert.NoError(s.T(), s.store.CreateVoucher(&models.Voucher{
		Code: "SORA-10-EXPIRED0", Amount: 10, MaxUses: 1, ExpiryDate: &past, CreatedAt: now,
	}))
	_, err = s.store.RedeemVoucher("SORA-10-EXPIRED0", "liam", now)
	assert.ErrorIs(s.T(), err, ErrVoucherExpired)

	_, err = s.store.RedeemVoucher("SORA-10-MISSING0", "nouser", now)
	assert.ErrorIs(s.T(), err, ErrVoucherNotFound)
}

func (s *StoreTestSuite) TestRandomActiveKeySelection() {
	_, err := s.store.RandomActiveKey("")
	assert.ErrorIs(s.T(), err, ErrNoKeysAvailable)

	group := "pool-a"
	assert.NoError(s.T(), s.store.CreateAPIKey(&models.APIKey{
		KeyValue: "key-one", Label: "one", IsActive: true, CreatedAt: time.Now(),
	}))
	assert.NoError(s.T(), s.store.CreateAPIKey(&models.APIKey{
		KeyValue: "key-two", Label: "two", KeyGroup: &group, IsActive: true, CreatedAt: time.Now(),
	}))

	k, err := s.store.RandomActiveKey("")
	assert.NoError(s.T(), err)
	assert.Contains(s.T(), []string{"key-one", "key-two"}, k.KeyValue)

	k, err = s.store.RandomActiveKey("pool-a")
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), "key-two", k.KeyValue)

	// Deactivated keys leave the pool.
	keys, _ := s.store.ListAPIKeys()
	for _, key := range keys {
		assert.NoError(s.T(), s.store.SetAPIKeyActive(key.ID, false))
	}
	_, err = s.store.RandomActiveKey("")
	assert.ErrorIs(s.T(), err, ErrNoKeysAvailable)
}

func (s *StoreTestSuite) TestKeyErrorCounter() {
	assert.NoError(s.T(), s.store.CreateAPIKey(&models.APIKey{
		KeyValue: "key-err", Label: "err", IsActive: true, CreatedAt: time.Now(),
	}))

	assert.NoError(s.T(), s.store.IncrementKeyErrors("key-err"))
	assert.NoError(s.T(), s.store.IncrementKeyErrors("key-err"))

	keys, err := s.store.ListAPIKeys()
	assert.NoError(s.T(), err)
	assert.Len(s.T(), keys, 1)
	assert.Equal(s.T(), 2, keys[0].ErrorCount)
}

func (s *StoreTestSuite) TestBans() {
	banned, err := s.store.IsBanned("10.0.0.1")
	assert.NoError(s.T(), err)
	assert.False(s.T(), banned)

	assert.NoError(s.T(), s.store.InsertBan("10.0.0.1", "Excessive scanning: /wp-admin", time.Now()))
	// Double insert is a no-op.
	assert.NoError(s.T(), s.store.InsertBan("10.0.0.1", "again", time.Now()))

	banned, err = s.store.IsBanned("10.0.0.1")
	assert.NoError(s.T(), err)
	assert.True(s.T(), banned)

	bans, err := s.store.ListBans()
	assert.NoError(s.T(), err)
	assert.Len(s.T(), bans, 1)

	assert.NoError(s.T(), s.store.DeleteBan("10.0.0.1"))
	assert.ErrorIs(s.T(), s.store.DeleteBan("10.0.0.1"), ErrNotFound)
}

func (s *StoreTestSuite) TestSettingsRoundTrip() {
	st, err := s.store.LoadSettings()
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), 25, st.CostSora2)
	assert.Equal(s.T(), 35, st.CostSora2Pro)
	assert.Equal(s.T(), 1, st.LimitMini)
	assert.Equal(s.T(), 5, st.LimitPremium)

	st.CostSora2 = 30
	st.BroadcastMsg = "Maintenance at midnight"
	st.UpdateIsLive = true
	assert.NoError(s.T(), s.store.SaveSettings(st))

	reloaded, err := s.store.LoadSettings()
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), 30, reloaded.CostSora2)
	assert.Equal(s.T(), "Maintenance at midnight", reloaded.BroadcastMsg)
	assert.True(s.T(), reloaded.UpdateIsLive)
}

func (s *StoreTestSuite) TestLogs() {
	now := time.Now()
	assert.NoError(s.T(), s.store.AppendLog("alice", "generate", 25, "Pending", "task-9", now))
	assert.NoError(s.T(), s.store.AppendLog("alice", "Refund task-9", 25, "Refunded", "task-9", now))

	logs, err := s.store.ListLogs(10)
	assert.NoError(s.T(), err)
	assert.Len(s.T(), logs, 2)
	assert.Equal(s.T(), "Refund task-9", logs[0].Action)
}

func (s *StoreTestSuite) TestTouchLastSeenAndHeartbeat() {
	a := s.newAccount("mia", 0)
	assert.Nil(s.T(), a.LastSeen)

	assert.NoError(s.T(), s.store.TouchLastSeen("mia", time.Now()))
	got, _ := s.store.GetAccount("mia")
	assert.NotNil(s.T(), got.LastSeen)

	assert.NoError(s.T(), s.store.IncrementSessionMinutes("mia", a.LicenseKey))
	assert.NoError(s.T(), s.store.IncrementSessionMinutes("mia", "wrong-key"))
	got, _ = s.store.GetAccount("mia")
	assert.Equal(s.T(), 1, got.SessionMinutes)
}

func (s *StoreTestSuite) TestRebind() {
	s.store.dbType = "postgres"
	assert.Equal(s.T(), "SELECT $1, $2", s.store.rebind("SELECT ?, ?"))
	s.store.dbType = "sqlite"
	assert.Equal(s.T(), "SELECT ?, ?", s.store.rebind("SELECT ?, ?"))
}
