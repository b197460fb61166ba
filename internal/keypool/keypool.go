// Package keypool selects upstream provider credentials for outbound
// calls, optionally scoped to a named group.
package keypool

import (
	"time"

	"github.com/SoraGate-io/soragate/internal/database"
	"github.com/SoraGate-io/soragate/internal/models"
)

// Pool is the set of upstream credentials.
type Pool struct {
	store *database.Store
}

func New(store *database.Store) *Pool {
	return &Pool{store: store}
}

// Select picks an active key uniformly at random. When the account carries
// a key-group hint the candidates are restricted to that group; otherwise
// every active key is a candidate. database.ErrNoKeysAvailable when no
// active key matches — the caller surfaces that as service-busy, it is not
// retryable inside the core.
func (p *Pool) Select(group string) (*models.APIKey, error) {
	return p.store.RandomActiveKey(group)
}

// SelectFor applies the account's optional group hint.
func (p *Pool) SelectFor(a *models.Account) (*models.APIKey, error) {
	group := ""
	if a != nil && a.KeyGroup != nil {
		group = *a.KeyGroup
	}
	return p.Select(group)
}

// Add registers a credential.
func (p *Pool) Add(keyValue, label string, group *string, now time.Time) (*models.APIKey, error) {
	k := &models.APIKey{
		KeyValue:  keyValue,
		Label:     label,
		KeyGroup:  group,
		IsActive:  true,
		CreatedAt: now,
	}
	if err := p.store.CreateAPIKey(k); err != nil {
		return nil, err
	}
	return k, nil
}

// SetActive toggles a credential in or out of selection.
func (p *Pool) SetActive(id int64, active bool) error {
	return p.store.SetAPIKeyActive(id, active)
}

// RecordError bumps the error counter for a credential after an upstream
// failure attributed to it.
func (p *Pool) RecordError(keyValue string) error {
	return p.store.IncrementKeyErrors(keyValue)
}

func (p *Pool) List() ([]*models.APIKey, error) {
	return p.store.ListAPIKeys()
}

func (p *Pool) Delete(id int64) error {
	return p.store.DeleteAPIKey(id)
}
