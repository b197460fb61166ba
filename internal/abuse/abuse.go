// Package abuse counts suspicious unauthenticated access per source IP
// and permanently bans offenders. The guard runs before every other
// component in the request pipeline.
package abuse

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/SoraGate-io/soragate/internal/database"
)

// DefaultThreshold is the number of suspicious requests that triggers a
// permanent ban.
const DefaultThreshold = 5

// Decision is the guard's verdict for one request.
type Decision int

const (
	// Allow lets the request proceed to the rest of the pipeline.
	Allow Decision = iota
	// Deny rejects the request: the IP is banned, or this request just
	// crossed the ban threshold.
	Deny
	// NotFound rejects a suspicious request below the ban threshold.
	NotFound
)

// Guard holds the in-memory suspicion counters. It is constructed once at
// process start and injected into the request pipeline; counters reset
// only with the process. Ban entries persist in the store.
type Guard struct {
	store     *database.Store
	threshold int

	// Paths a caller may touch without a session: the health root, the
	// admin login path, the client API prefix and static assets.
	exactPaths []string
	prefixes   []string

	mu     sync.Mutex
	counts map[string]int
}

// New builds a guard. loginPath is the configured admin login path
// without the leading slash.
func New(store *database.Store, loginPath string) *Guard {
	return &Guard{
		store:      store,
		threshold:  DefaultThreshold,
		exactPaths: []string{"/", "/" + loginPath},
		prefixes:   []string{"/api/", "/static/"},
		counts:     make(map[string]int),
	}
}

// Check evaluates one request. Ban takes precedence over everything:
// a banned IP is denied even on public paths. Admin sessions are exempt
// from suspicion counting.
func (g *Guard) Check(ip, path string, hasSession bool) Decision {
	banned, err := g.store.IsBanned(ip)
	if err != nil {
		log.Printf("abuse guard: ban lookup failed for %s: %v", ip, err)
		// Fail open on store errors; the counter still applies below.
	}
	if banned {
		return Deny
	}

	if hasSession {
		return Allow
	}

	if g.isPublic(path) {
		return Allow
	}

	g.mu.Lock()
	g.counts[ip]++
	count := g.counts[ip]
	g.mu.Unlock()

	if count >= g.threshold {
		reason := fmt.Sprintf("Excessive scanning: %s", path)
		if err := g.store.InsertBan(ip, reason, time.Now()); err != nil {
			log.Printf("abuse guard: could not persist ban for %s: %v", ip, err)
		}
		return Deny
	}

	return NotFound
}

func (g *Guard) isPublic(path string) bool {
	for _, p := range g.exactPaths {
		if path == p {
			return true
		}
	}
	for _, p := range g.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Unban removes a ban record and clears the in-memory counter for the IP.
func (g *Guard) Unban(ip string) error {
	if err := g.store.DeleteBan(ip); err != nil {
		return err
	}
	g.mu.Lock()
	delete(g.counts, ip)
	g.mu.Unlock()
	return nil
}

// Reset clears all in-memory counters. Test hook; bans are unaffected.
func (g *Guard) Reset() {
	g.mu.Lock()
	g.counts = make(map[string]int)
	g.mu.Unlock()
}
