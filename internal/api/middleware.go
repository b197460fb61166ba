package api

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/SoraGate-io/soragate/internal/abuse"
	"golang.org/x/time/rate"
)

// GuardMiddleware runs the abuse guard before any routing happens, so
// probes against undeclared paths are counted even when no handler
// exists for them.
func (api *Api) GuardMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		switch api.Guard.Check(ip, r.URL.Path, api.Sessions.HasSession(r)) {
		case abuse.Deny:
			respondJSON(w, http.StatusForbidden, map[string]any{
				"code":    http.StatusForbidden,
				"message": "Access Denied",
			})
			return
		case abuse.NotFound:
			respondJSON(w, http.StatusNotFound, map[string]any{
				"code":    http.StatusNotFound,
				"message": "Not Found",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminAuthMiddleware gates the admin surface on a valid session.
func (api *Api) AdminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !api.Sessions.HasSession(r) {
			respondError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Per-IP token buckets for the client API. Buckets live for the process
// lifetime; the map is small enough that eviction is not worth the churn.
var (
	limiterMu sync.Mutex
	limiters  = make(map[string]*rate.Limiter)
)

func limiterFor(ip string) *rate.Limiter {
	limiterMu.Lock()
	defer limiterMu.Unlock()
	lim, ok := limiters[ip]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(10), 20)
		limiters[ip] = lim
	}
	return lim
}

// RateLimitMiddleware bounds each client IP to a steady request rate on
// the /api surface.
func (api *Api) RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiterFor(clientIP(r)).Allow() {
			respondError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP resolves the source address, honoring the first hop of
// X-Forwarded-For when a proxy sits in front.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseClientAuth splits the Client-Auth header into the credential pair.
func parseClientAuth(r *http.Request) (username, licenseKey string, ok bool) {
	raw := r.Header.Get("Client-Auth")
	if raw == "" {
		return "", "", false
	}
	idx := strings.Index(raw, ":")
	if idx <= 0 || idx == len(raw)-1 {
		return "", "", false
	}
	return raw[:idx], raw[idx+1:], true
}
