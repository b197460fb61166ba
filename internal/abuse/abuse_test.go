package abuse

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/SoraGate-io/soragate/internal/config"
	"github.com/SoraGate-io/soragate/internal/database"
	"github.com/stretchr/testify/assert"
)

func newTestGuard(t *testing.T) (*Guard, *database.Store) {
	cfg := &config.Config{}
	cfg.Database.Type = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "abuse_test.db")

	store, err := database.New(cfg)
	assert.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, "secure_login"), store
}

func TestPublicPathsAreAllowed(t *testing.T) {
	g, _ := newTestGuard(t)

	for _, path := range []string{"/", "/secure_login", "/api/verify", "/api/proxy/generate", "/static/app.css"} {
		assert.Equal(t, Allow, g.Check("1.2.3.4", path, false), "path %s should be public", path)
	}
}

func TestFiveStrikesBansTheIP(t *testing.T) {
	g, store := newTestGuard(t)

	for i := 0; i < DefaultThreshold-1; i++ {
		assert.Equal(t, NotFound, g.Check("5.6.7.8", "/wp-admin", false))
	}

	// The fifth suspicious request crosses the threshold.
	assert.Equal(t, Deny, g.Check("5.6.7.8", "/phpmyadmin", false))

	banned, err := store.IsBanned("5.6.7.8")
	assert.NoError(t, err)
	assert.True(t, banned)

	// Once banned, even public paths are denied.
	assert.Equal(t, Deny, g.Check("5.6.7.8", "/", false))
	assert.Equal(t, Deny, g.Check("5.6.7.8", "/api/verify", false))
}

func TestBanPrecedesSession(t *testing.T) {
	g, store := newTestGuard(t)

	assert.NoError(t, store.InsertBan("9.9.9.9", "manual", time.Now()))
	assert.Equal(t, Deny, g.Check("9.9.9.9", "/admin/accounts", true))
}

func TestSessionExemptsFromCounting(t *testing.T) {
	g, store := newTestGuard(t)

	for i := 0; i < DefaultThreshold*2; i++ {
		assert.Equal(t, Allow, g.Check("4.4.4.4", "/admin/accounts", true))
	}

	banned, _ := store.IsBanned("4.4.4.4")
	assert.False(t, banned)
}

func TestCountersAreIndependentPerIP(t *testing.T) {
	g, _ := newTestGuard(t)

	for i := 0; i < DefaultThreshold-1; i++ {
		g.Check("1.1.1.1", "/wp-admin", false)
	}
	assert.Equal(t, NotFound, g.Check("2.2.2.2", "/wp-admin", false))
}

func TestUnbanClearsCounter(t *testing.T) {
	g, store := newTestGuard(t)

	for i := 0; i < DefaultThreshold; i++ {
		g.Check("8.8.8.8", "/probe", false)
	}
	banned, _ := store.IsBanned("8.8.8.8")
	assert.True(t, banned)

	assert.NoError(t, g.Unban("8.8.8.8"))
	banned, _ = store.IsBanned("8.8.8.8")
	assert.False(t, banned)

	// Counter restarted from zero.
	assert.Equal(t, NotFound, g.Check("8.8.8.8", "/probe", false))
}
