// Package credential implements the bounded pool of short-lived bearer
// credentials the request pipeline draws from: selection, per-model
// cooldowns, token refresh, and permanent disablement.
package credential

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"geminigate/internal/constants"
)

// Credential is a single process-resident bearer-token holder with
// per-model cooldown state. Every mutating operation is serialized behind
// mu; distinct credentials may be mutated concurrently without contention
// on each other (spec.md §5). Bearer material is kept as an
// oauth2.Token even though the refresh call is a bespoke POST rather than
// a standard grant, since the AccessToken/RefreshToken/Expiry shape is
// exactly what this credential needs to track.
type Credential struct {
	ID string

	limiter *rate.Limiter

	mu        sync.Mutex
	token     oauth2.Token
	disabled  bool
	cooldowns map[string]time.Time // model -> ineligible-until
	calls     int64
	errors    int64
}

func newCredential(id string, rps float64) *Credential {
	limiter := rate.NewLimiter(rate.Limit(rps), 1)
	if rps <= 0 {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	span := constants.MaxCredentialExpiry - constants.MinCredentialExpiry
	jitter := time.Duration(rand.Int63n(int64(span)))
	return &Credential{
		ID:      id,
		limiter: limiter,
		token: oauth2.Token{
			AccessToken:  fmt.Sprintf("mock_bearer_%s", id),
			RefreshToken: fmt.Sprintf("refresh_%s", id),
			TokenType:    "Bearer",
			Expiry:       time.Now().Add(constants.MinCredentialExpiry + jitter),
		},
		cooldowns: make(map[string]time.Time),
	}
}

// Wait paces outbound dispatch on this credential. It paces best-effort:
// a canceled context lets the caller proceed rather than fail the whole
// request over a pacing limiter.
func (c *Credential) Wait(ctx context.Context) {
	_ = c.limiter.Wait(ctx)
}

// BearerToken returns the credential's current access token.
func (c *Credential) BearerToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token.AccessToken
}

// RefreshToken returns the credential's refresh token.
func (c *Credential) RefreshToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token.RefreshToken
}

func (c *Credential) isDisabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disabled
}

func (c *Credential) cooldownActive(model string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.cooldowns[model]
	if !ok {
		return false
	}
	return time.Now().Before(until)
}

func (c *Credential) nearExpiry() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Until(c.token.Expiry) <= constants.RefreshThreshold
}

func (c *Credential) incrementCalls() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

// Stat is a point-in-time snapshot of a credential's public state.
type Stat struct {
	ID           string    `json:"id"`
	Disabled     bool      `json:"disabled"`
	Calls        int64     `json:"calls"`
	Errors       int64     `json:"errors"`
	ExpiresAt    time.Time `json:"expires_at"`
	CooldownSize int       `json:"cooldown_size"`
}

func (c *Credential) snapshot() Stat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stat{
		ID:           c.ID,
		Disabled:     c.disabled,
		Calls:        c.calls,
		Errors:       c.errors,
		ExpiresAt:    c.token.Expiry,
		CooldownSize: len(c.cooldowns),
	}
}
