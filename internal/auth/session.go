// Package auth handles the administrative session: a single shared
// password checked with bcrypt and short-lived JWT session tokens.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrExpiredToken    = errors.New("token has expired")
	ErrInvalidPassword = errors.New("invalid password")
)

// SessionCookie is the cookie the admin surface issues on login.
const SessionCookie = "admin_session"

// DefaultSessionTTL bounds how long an admin session lives.
const DefaultSessionTTL = 12 * time.Hour

// SessionClaims are the claims in an admin session token.
type SessionClaims struct {
	Admin bool `json:"admin"`
	jwt.RegisteredClaims
}

// SessionManager issues and validates admin session tokens.
type SessionManager struct {
	secretKey    []byte
	passwordHash []byte
	ttl          time.Duration
}

// NewSessionManager hashes the configured admin password and prepares the
// signing secret.
func NewSessionManager(adminPassword, secret string) (*SessionManager, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &SessionManager{
		secretKey:    []byte(secret),
		passwordHash: hash,
		ttl:          DefaultSessionTTL,
	}, nil
}

// Login verifies the admin password and returns a fresh session token.
func (sm *SessionManager) Login(password string) (string, error) {
	if err := bcrypt.CompareHashAndPassword(sm.passwordHash, []byte(password)); err != nil {
		return "", ErrInvalidPassword
	}

	claims := SessionClaims{
		Admin: true,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(sm.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(sm.secretKey)
}

// Validate checks a session token.
func (sm *SessionManager) Validate(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return sm.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || !claims.Admin {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HasSession reports whether the request carries a valid admin session,
// either as the session cookie or a bearer token.
func (sm *SessionManager) HasSession(r *http.Request) bool {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		if _, err := sm.Validate(cookie.Value); err == nil {
			return true
		}
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			if _, err := sm.Validate(parts[1]); err == nil {
				return true
			}
		}
	}
	return false
}
