package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"geminigate/internal/constants"
)

// Pool is a fixed-size, process-resident set of credentials. The set never
// grows or shrinks after New returns (spec.md §3): entries only ever move
// between eligible, cooling-down and disabled.
type Pool struct {
	mu          sync.RWMutex
	credentials []*Credential
	refreshURL  string
	httpClient  *http.Client
}

// New builds a pool of n mock credentials that refresh against refreshURL,
// each paced to rps outbound requests/sec.
func New(n int, refreshURL string, rps float64) *Pool {
	creds := make([]*Credential, 0, n)
	for i := 0; i < n; i++ {
		creds = append(creds, newCredential(fmt.Sprintf("cred_%03d", i+1), rps))
	}
	return &Pool{
		credentials: creds,
		refreshURL:  refreshURL,
		httpClient:  &http.Client{Timeout: constants.RefreshTimeout},
	}
}

// Acquire selects an eligible credential for model, refreshing it first if
// its expiry is imminent. It returns ErrNoneAvailable if every credential
// is disabled or cooling down, or a refresh error if the chosen
// credential's blocking refresh fails.
func (p *Pool) Acquire(ctx context.Context, model string) (*Credential, error) {
	return p.acquire(ctx, model, "")
}

// AcquireExcluding behaves like Acquire but never selects excludeID; the
// pipeline uses this to avoid retrying a request against the credential
// that just failed it.
func (p *Pool) AcquireExcluding(ctx context.Context, model, excludeID string) (*Credential, error) {
	return p.acquire(ctx, model, excludeID)
}

func (p *Pool) acquire(ctx context.Context, model, excludeID string) (*Credential, error) {
	p.mu.RLock()
	eligible := make([]*Credential, 0, len(p.credentials))
	for _, c := range p.credentials {
		if c.ID == excludeID {
			continue
		}
		if c.isDisabled() || c.cooldownActive(model) {
			continue
		}
		eligible = append(eligible, c)
	}
	p.mu.RUnlock()

	if len(eligible) == 0 {
		return nil, ErrNoneAvailable
	}
	chosen := eligible[rand.Intn(len(eligible))]

	if chosen.nearExpiry() {
		if err := p.refresh(ctx, chosen); err != nil {
			return nil, err
		}
	}

	chosen.incrementCalls()
	return chosen, nil
}

// RecordError applies the outcome of a failed upstream call to cred: a
// rate-limit or overload status opens a per-model cooldown, an auth/policy
// status disables the credential outright.
func (p *Pool) RecordError(cred *Credential, status int, model string, cooldown time.Duration) {
	if cooldown < constants.MinCooldown {
		cooldown = constants.MinCooldown
	}
	cred.mu.Lock()
	cred.errors++
	switch {
	case status == 429 || status == 503:
		cred.cooldowns[model] = time.Now().Add(cooldown)
	case status == 400 || status == 403:
		cred.disabled = true
	}
	cred.mu.Unlock()

	log.WithFields(log.Fields{
		"credential_id": cred.ID,
		"status":        status,
		"model":         model,
	}).Warn("credential: recorded upstream error")
}

// Stats returns a snapshot of every credential in pool order.
func (p *Pool) Stats() []Stat {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Stat, 0, len(p.credentials))
	for _, c := range p.credentials {
		out = append(out, c.snapshot())
	}
	return out
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// refresh performs a blocking token refresh against p.refreshURL and
// mutates cred in place. A 400/401/403 disables the credential and returns
// ErrPermanentRefresh; any other failure returns ErrTemporaryRefresh
// leaving the credential enabled for a later retry.
func (p *Pool) refresh(ctx context.Context, cred *Credential) error {
	reqCtx, cancel := context.WithTimeout(ctx, constants.RefreshTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.refreshURL, bytes.NewReader(nil))
	if err != nil {
		return ErrTemporaryRefresh
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.WithFields(log.Fields{"credential_id": cred.ID, "error": err.Error()}).Warn("credential: refresh transport error")
		return ErrTemporaryRefresh
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var body refreshResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.AccessToken == "" {
			return ErrTemporaryRefresh
		}
		ttl := time.Duration(body.ExpiresIn) * time.Second
		if ttl <= 0 {
			ttl = constants.MinCredentialExpiry
		}
		cred.mu.Lock()
		cred.token.AccessToken = body.AccessToken
		cred.token.Expiry = time.Now().Add(ttl)
		if body.TokenType != "" {
			cred.token.TokenType = body.TokenType
		}
		cred.mu.Unlock()
		return nil

	case resp.StatusCode == 400 || resp.StatusCode == 401 || resp.StatusCode == 403:
		cred.mu.Lock()
		cred.disabled = true
		cred.mu.Unlock()
		log.WithFields(log.Fields{"credential_id": cred.ID, "status": resp.StatusCode}).Error("credential: refresh rejected, disabling")
		return ErrPermanentRefresh

	default:
		return ErrTemporaryRefresh
	}
}

// cooldownPattern extracts an upstream-suggested retry delay such as
// "try again in 42 seconds" or "retry after 5s" from an error body.
var cooldownPattern = regexp.MustCompile(`(?i)(?:try again in|retry after|wait)\s+(\d+)\s*(?:seconds?|s)\b`)

// ParseCooldown extracts a suggested cooldown duration from an upstream
// error message, falling back to constants.MinCooldown when absent.
func ParseCooldown(message string) time.Duration {
	m := cooldownPattern.FindStringSubmatch(message)
	if len(m) != 2 {
		return constants.MinCooldown
	}
	secs, err := strconv.Atoi(m[1])
	if err != nil || secs <= 0 {
		return constants.MinCooldown
	}
	d := time.Duration(secs) * time.Second
	if d < constants.MinCooldown {
		d = constants.MinCooldown
	}
	return d
}
