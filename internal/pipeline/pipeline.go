// Package pipeline orchestrates a single caller request end to end:
// credential acquisition, upstream dispatch with retry/continuation,
// conversion through internal/convert, and usage recording (spec.md
// §4.5).
package pipeline

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"geminigate/internal/credential"
	apierrors "geminigate/internal/errors"
	"geminigate/internal/upstream"
	"geminigate/internal/usage"
)

// Pipeline wires the credential pool, usage accountant and upstream
// client into the request-handling flow. One Pipeline is shared by every
// in-flight request; it holds no per-request state itself.
type Pipeline struct {
	pool       *credential.Pool
	accountant *usage.Accountant
	client     *upstream.Client
}

// New builds a Pipeline over the given pool, accountant and client.
func New(pool *credential.Pool, accountant *usage.Accountant, client *upstream.Client) *Pipeline {
	return &Pipeline{pool: pool, accountant: accountant, client: client}
}

func (p *Pipeline) logger(model string) *log.Entry {
	return log.WithFields(log.Fields{"component": "pipeline", "model": model})
}

// logFields builds the attempt/continuation-index and credential-id
// fields that pipeline log lines carry, alongside the stage-specific
// ones, once a credential has been acquired.
func logFields(index int, credentialID string) log.Fields {
	return log.Fields{"attempt": index, "credential_id": credentialID}
}

func noCredentialError() *apierrors.APIError {
	return apierrors.New(502, "no eligible credential available")
}

func exhaustedError(lastSeen string) *apierrors.APIError {
	return apierrors.New(502, fmt.Sprintf("upstream retries exhausted: %s", lastSeen))
}

// acquireOnce makes a single Acquire call; the retry loops in HandleUnary
// and HandleStream supply the repeated attempts and the backoff between
// them.
func acquireOnce(ctx context.Context, pool *credential.Pool, model string) (*credential.Credential, error) {
	return pool.Acquire(ctx, model)
}
