// Package constants collects the fixed protocol-level numbers the request
// pipeline is built around.
package constants

import "time"

const (
	// MaxRetries bounds unary upstream attempts (spec.md §4.5).
	MaxRetries = 3
	// MaxContinuations bounds streaming continuation requests.
	MaxContinuations = 3

	// RefreshThreshold triggers a blocking token refresh inside acquire
	// when a credential's expiry falls within this window.
	RefreshThreshold = 120 * time.Second

	// UpstreamTimeout bounds a single non-streaming upstream call. Streaming
	// calls are not bounded by it; only the caller's context ends them.
	UpstreamTimeout = 120 * time.Second
	// RefreshTimeout bounds a token refresh call.
	RefreshTimeout = 10 * time.Second

	// MinCredentialExpiry / MaxCredentialExpiry bound the random initial
	// expiry assigned to a freshly minted mock credential.
	MinCredentialExpiry = 60 * time.Second
	MaxCredentialExpiry = 3600 * time.Second

	// MinCooldown is the floor applied to any cooldown duration recorded
	// against a credential for a model.
	MinCooldown = 30 * time.Second

	// DoneMarker is the literal, case-sensitive anti-truncation sentinel.
	DoneMarker = "[done]"

	// AntiTruncationInstruction is appended to the system instruction of
	// every upstream request.
	AntiTruncationInstruction = "When you have completed your full response, you must output [done] on a separate line at the very end. Only output [done] when your answer is complete."

	// SSEScannerInitialBufferSize / SSEScannerMaxBufferSize size the
	// bufio.Scanner used to read the upstream's line-oriented SSE body.
	SSEScannerInitialBufferSize = 64 * 1024
	SSEScannerMaxBufferSize     = 4 * 1024 * 1024
)

// Backoff returns the exponential backoff delay for a 0-indexed attempt:
// 100ms * 2^attempt.
func Backoff(attempt int) time.Duration {
	d := 100 * time.Millisecond
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}
