package pipeline

import (
	"context"
	"time"

	"geminigate/internal/constants"
	"geminigate/internal/convert"
	"geminigate/internal/credential"
	apierrors "geminigate/internal/errors"
	"geminigate/internal/upstream"
	"geminigate/internal/usage"
)

// HandleUnary runs the non-streaming request flow (spec.md §4.5, Unary
// flow): up to MAX_RETRIES+1 attempts, each acquiring a credential,
// dispatching to upstream, and reacting to its status.
func (p *Pipeline) HandleUnary(ctx context.Context, model string, rawJSON []byte) ([]byte, *apierrors.APIError) {
	upstreamBody, err := convert.ToUpstream(rawJSON)
	if err != nil {
		return nil, apierrors.New(500, "failed to build upstream request: "+err.Error())
	}
	upstreamBody = injectAntiTruncation(upstreamBody)

	promptText, imageCount := promptStats(rawJSON)
	inputTokens := usage.EstimateInputTokens(promptText, imageCount)

	var lastSeen string
	logger := p.logger(model)

	for attempt := 0; attempt <= constants.MaxRetries; attempt++ {
		cred, acquireErr := acquireOnce(ctx, p.pool, model)
		if acquireErr != nil {
			lastSeen = acquireErr.Error()
			logger.WithField("attempt", attempt).WithError(acquireErr).Warn("unary: no credential available")
			p.sleepBackoff(ctx, attempt)
			continue
		}
		cred.Wait(ctx)

		resp, callErr := p.client.GenerateContent(ctx, model, cred.BearerToken(), upstreamBody)
		if callErr != nil {
			lastSeen = callErr.Error()
			logger.WithFields(logFields(attempt, cred.ID)).WithError(callErr).Warn("unary: upstream call failed")
			p.sleepBackoff(ctx, attempt)
			continue
		}

		switch {
		case upstream.IsRetryable(resp.StatusCode):
			cooldown := credential.ParseCooldown(string(resp.Body))
			p.pool.RecordError(cred, resp.StatusCode, model, cooldown)
			lastSeen = string(resp.Body)
			logger.WithFields(logFields(attempt, cred.ID)).WithField("status", resp.StatusCode).Warn("unary: retryable upstream status")
			p.sleepBackoff(ctx, attempt)
			continue

		case upstream.IsTerminal(resp.StatusCode):
			p.pool.RecordError(cred, resp.StatusCode, model, 0)
			logger.WithFields(logFields(attempt, cred.ID)).WithField("status", resp.StatusCode).Error("unary: terminal upstream status")
			return nil, apierrors.New(resp.StatusCode, string(resp.Body))

		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			cleaned, _ := stripDoneMarker(resp.Body)
			canonical, convErr := convert.ToCanonicalResponse(model, time.Now().Unix(), cleaned)
			if convErr != nil {
				return nil, apierrors.New(500, "failed to convert upstream response: "+convErr.Error())
			}
			outputTokens, _ := candidateOutputTokens(cleaned)
			p.accountant.Record(cred.ID, model, inputTokens, outputTokens)
			logger.WithFields(logFields(attempt, cred.ID)).Info("unary: request completed")
			return canonical, nil

		default:
			logger.WithFields(logFields(attempt, cred.ID)).WithField("status", resp.StatusCode).Error("unary: other upstream status")
			return nil, apierrors.New(502, string(resp.Body))
		}
	}

	logger.WithField("last_seen", lastSeen).Error("unary: retries exhausted")
	return nil, exhaustedError(lastSeen)
}

// sleepBackoff waits the exponential backoff for attempt, returning early
// if ctx is canceled first.
func (p *Pipeline) sleepBackoff(ctx context.Context, attempt int) {
	timer := time.NewTimer(constants.Backoff(attempt))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
