package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"geminigate/internal/constants"
	"geminigate/internal/convert"
	"geminigate/internal/credential"
	apierrors "geminigate/internal/errors"
	"geminigate/internal/upstream"
	"geminigate/internal/usage"
)

// PrepareSSE sets the response headers the streaming contract requires
// and returns the flusher paired with the caller's writer.
func PrepareSSE(w http.ResponseWriter) http.Flusher {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	return flusher
}

// HandleStream runs the streaming request flow (spec.md §4.5, Streaming
// flow): up to MAX_CONTINUATIONS+1 upstream streams, relaying converted
// chunks to the caller as they arrive and re-issuing a continuation
// request when the upstream ends without the done marker.
func (p *Pipeline) HandleStream(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, model string, rawJSON []byte) {
	originalBody, err := convert.ToUpstream(rawJSON)
	if err != nil {
		p.writeStreamError(w, flusher, apierrors.New(500, "failed to build upstream request: "+err.Error()))
		return
	}
	originalBody = injectAntiTruncation(originalBody)

	promptText, imageCount := promptStats(rawJSON)
	inputTokens := usage.EstimateInputTokens(promptText, imageCount)
	chunkID := convert.NextCompletionID()

	var cred *credential.Credential
	var collected strings.Builder
	var lastOutputTokens int64
	logger := p.logger(model)

	for continuation := 0; continuation <= constants.MaxContinuations; continuation++ {
		if continuation == 0 {
			var acquireErr error
			for attempt := 0; attempt <= constants.MaxRetries; attempt++ {
				cred, acquireErr = acquireOnce(ctx, p.pool, model)
				if acquireErr == nil {
					break
				}
				logger.WithField("attempt", attempt).WithError(acquireErr).Warn("stream: no credential available")
				p.sleepBackoff(ctx, attempt)
			}
			if acquireErr != nil {
				p.writeStreamError(w, flusher, noCredentialError())
				return
			}
		}

		body := originalBody
		if continuation > 0 {
			body = buildContinuation(originalBody, collected.String())
		}

		logger.WithFields(logFields(continuation, cred.ID)).Info("stream: opening upstream stream")
		resp, done := p.openStream(ctx, w, flusher, model, &cred, body)
		if done {
			return
		}
		if resp == nil {
			continue // retryable status handled inside openStream, try next continuation attempt
		}

		segmentDone := p.drainStream(w, flusher, model, chunkID, resp.Body, &collected, &lastOutputTokens)
		resp.Body.Close()
		if segmentDone {
			break
		}
		logger.WithFields(logFields(continuation, cred.ID)).Info("stream: segment ended without done marker, continuing")
	}

	_ = writeSSEDone(w, flusher)

	if cred != nil {
		p.accountant.Record(cred.ID, model, inputTokens, lastOutputTokens)
	}
}

// openStream opens one upstream stream, handling the retryable/terminal
// status branches. It returns (nil, true) when the caller's stream has
// been closed with an error and the whole request is finished,
// (nil, false) when the caller should retry with the next continuation
// index (a retryable status was absorbed and *cred may have been
// swapped), or (resp, false) with an open 2xx response to drain.
func (p *Pipeline) openStream(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, model string, cred **credential.Credential, body []byte) (*http.Response, bool) {
	(*cred).Wait(ctx)
	resp, err := p.client.StreamGenerateContent(ctx, model, (*cred).BearerToken(), body)
	if err != nil {
		p.writeStreamError(w, flusher, apierrors.New(502, "upstream connection failed: "+err.Error()))
		return nil, true
	}

	if upstream.IsRetryable(resp.StatusCode) {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cooldown := credential.ParseCooldown(string(data))
		p.pool.RecordError(*cred, resp.StatusCode, model, cooldown)
		if swapped, swapErr := p.pool.AcquireExcluding(ctx, model, (*cred).ID); swapErr == nil {
			*cred = swapped
		}
		p.sleepBackoff(ctx, 0)
		return nil, false
	}

	if upstream.IsTerminal(resp.StatusCode) {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		p.pool.RecordError(*cred, resp.StatusCode, model, 0)
		p.writeStreamError(w, flusher, apierrors.New(resp.StatusCode, string(data)))
		return nil, true
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		p.writeStreamError(w, flusher, apierrors.New(502, string(data)))
		return nil, true
	}

	return resp, false
}

// drainStream reads one upstream stream line by line, converting and
// relaying each decodable chunk, and reports whether the stream should
// stop: true when the done marker was observed anywhere in the segment
// or when a write to the caller failed.
func (p *Pipeline) drainStream(w http.ResponseWriter, flusher http.Flusher, model, chunkID string, body io.Reader, collected *strings.Builder, lastOutputTokens *int64) bool {
	scanner := newUpstreamScanner(body)
	foundDone := false

	for {
		payload, ok := nextUpstreamPayload(scanner)
		if !ok {
			break
		}
		if !json.Valid(payload) {
			continue // malformed lines are skipped, not surfaced as chunks
		}

		text := candidateText(payload)
		chunk := payload
		if strings.Contains(text, constants.DoneMarker) {
			foundDone = true
			chunk, _ = stripDoneMarker(payload)
		}
		collected.WriteString(candidateText(chunk))

		if tok, ok := candidateOutputTokens(payload); ok {
			*lastOutputTokens = tok
		}

		canonicalChunk, err := convert.ToCanonicalChunk(model, chunkID, time.Now().Unix(), chunk)
		if err != nil {
			continue
		}
		if err := writeSSEData(w, flusher, canonicalChunk); err != nil {
			return true
		}
	}
	return foundDone
}

// writeStreamError emits the single SSE error event the caller sees once
// the response stream has already been committed.
func (p *Pipeline) writeStreamError(w http.ResponseWriter, flusher http.Flusher, apiErr *apierrors.APIError) {
	_ = writeSSEData(w, flusher, apiErr.JSON())
}
