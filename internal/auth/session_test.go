package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestManager(t *testing.T) *SessionManager {
	sm, err := NewSessionManager("hunter2", "test-signing-secret")
	assert.NoError(t, err)
	return sm
}

func TestLoginAndValidate(t *testing.T) {
	sm := newTestManager(t)

	token, err := sm.Login("hunter2")
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := sm.Validate(token)
	assert.NoError(t, err)
	assert.True(t, claims.Admin)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	sm := newTestManager(t)

	_, err := sm.Login("wrong")
	assert.ErrorIs(t, err, ErrInvalidPassword)
}

func TestValidateRejectsGarbage(t *testing.T) {
	sm := newTestManager(t)

	_, err := sm.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	sm := newTestManager(t)
	other, err := NewSessionManager("hunter2", "different-secret")
	assert.NoError(t, err)

	token, err := other.Login("hunter2")
	assert.NoError(t, err)

	_, err = sm.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHasSession(t *testing.T) {
	sm := newTestManager(t)
	token, err := sm.Login("hunter2")
	assert.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/admin/accounts", nil)
	assert.False(t, sm.HasSession(r))

	r = httptest.NewRequest(http.MethodGet, "/admin/accounts", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	assert.True(t, sm.HasSession(r))

	r = httptest.NewRequest(http.MethodGet, "/admin/accounts", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	assert.True(t, sm.HasSession(r))

	r = httptest.NewRequest(http.MethodGet, "/admin/accounts", nil)
	r.Header.Set("Authorization", "Bearer bogus")
	assert.False(t, sm.HasSession(r))
}
