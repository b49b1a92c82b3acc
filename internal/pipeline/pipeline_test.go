package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"geminigate/internal/credential"
	"geminigate/internal/upstream"
	"geminigate/internal/usage"
)

func newTestPipeline(t *testing.T, upstreamURL string, poolSize int) *Pipeline {
	t.Helper()
	pool := credential.New(poolSize, upstreamURL+"/oauth2/token", 0)
	acct := usage.New()
	client := upstream.New(upstreamURL)
	return New(pool, acct, client)
}

func TestHandleUnarySuccessE1(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Hi"}],"role":"model"},"finishReason":"STOP","index":0}],"usageMetadata":{"promptTokenCount":5,"candidatesTokenCount":1,"totalTokenCount":6}}`))
	}))
	defer srv.Close()

	p := newTestPipeline(t, srv.URL, 1)
	req := []byte(`{"model":"gemini-pro","messages":[{"role":"user","content":"hello"}],"stream":false}`)

	out, apiErr := p.HandleUnary(context.Background(), "gemini-pro", req)
	require.Nil(t, apiErr)
	require.Equal(t, "Hi", gjson.GetBytes(out, "choices.0.message.content").String())
	require.Equal(t, "stop", gjson.GetBytes(out, "choices.0.finish_reason").String())
	require.EqualValues(t, 5, gjson.GetBytes(out, "usage.prompt_tokens").Int())
	require.EqualValues(t, 1, gjson.GetBytes(out, "usage.completion_tokens").Int())
	require.EqualValues(t, 6, gjson.GetBytes(out, "usage.total_tokens").Int())
}

func TestHandleUnaryDisablesCredentialOnTerminalStatusE2(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/oauth2/token") {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"access_token":"t","expires_in":3600}`))
			return
		}
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"invalid credential"}`))
	}))
	defer srv.Close()

	p := newTestPipeline(t, srv.URL, 2)
	req := []byte(`{"model":"gemini-pro","messages":[{"role":"user","content":"hi"}]}`)

	out, apiErr := p.HandleUnary(context.Background(), "gemini-pro", req)
	require.Nil(t, out)
	require.NotNil(t, apiErr)
	require.Equal(t, 403, apiErr.HTTPStatus)

	stats := p.pool.Stats()
	disabledCount := 0
	for _, s := range stats {
		if s.Disabled {
			disabledCount++
		}
	}
	require.Equal(t, 1, disabledCount)
}

func TestHandleUnaryRetriesOnRateLimitThenSucceedsE3(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/oauth2/token") {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"access_token":"t","expires_in":3600}`))
			return
		}
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("try again in 7 seconds"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"done"}]},"finishReason":"STOP","index":0}]}`))
	}))
	defer srv.Close()

	p := newTestPipeline(t, srv.URL, 3)
	req := []byte(`{"model":"gemini-pro","messages":[{"role":"user","content":"hi"}]}`)

	out, apiErr := p.HandleUnary(context.Background(), "gemini-pro", req)
	require.Nil(t, apiErr)
	require.Equal(t, "done", gjson.GetBytes(out, "choices.0.message.content").String())
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))

	var totalErrors int64
	for _, s := range p.pool.Stats() {
		totalErrors += s.Errors
	}
	require.EqualValues(t, 2, totalErrors)
}

func TestHandleUnaryTerminalStatusSurfacesImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/oauth2/token") {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"access_token":"t","expires_in":3600}`))
			return
		}
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"forbidden"}`))
	}))
	defer srv.Close()

	p := newTestPipeline(t, srv.URL, 1)
	req := []byte(`{"model":"gemini-pro","messages":[{"role":"user","content":"hi"}]}`)

	out, apiErr := p.HandleUnary(context.Background(), "gemini-pro", req)
	require.Nil(t, out)
	require.NotNil(t, apiErr)
	require.Equal(t, 403, apiErr.HTTPStatus)
	require.True(t, p.pool.Stats()[0].Disabled)
}

func TestHandleUnaryExhaustsRetriesAndReturns502(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/oauth2/token") {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"access_token":"t","expires_in":3600}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unavailable"))
	}))
	defer srv.Close()

	p := newTestPipeline(t, srv.URL, 1)
	req := []byte(`{"model":"gemini-pro","messages":[{"role":"user","content":"hi"}]}`)

	out, apiErr := p.HandleUnary(context.Background(), "gemini-pro", req)
	require.Nil(t, out)
	require.NotNil(t, apiErr)
	require.Equal(t, 502, apiErr.HTTPStatus)
}

// fakeFlusher lets the streaming tests run against an httptest.ResponseRecorder.
type fakeFlusher struct{}

func (fakeFlusher) Flush() {}

func TestHandleStreamStripsDoneMarkerAndEmitsDoneE4(t *testing.T) {
	texts := []string{"The ", "answer ", "is 42.[done]"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/oauth2/token") {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"access_token":"t","expires_in":3600}`))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fl := w.(http.Flusher)
		for _, txt := range texts {
			fmt.Fprintf(w, "data: {\"candidates\":[{\"index\":0,\"content\":{\"parts\":[{\"text\":%q}]}}]}\n\n", txt)
			fl.Flush()
		}
	}))
	defer srv.Close()

	p := newTestPipeline(t, srv.URL, 1)
	req := []byte(`{"model":"gemini-pro","messages":[{"role":"user","content":"hi"}],"stream":true}`)

	rec := httptest.NewRecorder()
	p.HandleStream(context.Background(), rec, fakeFlusher{}, "gemini-pro", req)

	body := rec.Body.String()
	require.NotContains(t, body, "[done]")
	require.True(t, strings.HasSuffix(strings.TrimRight(body, "\n"), "data: [DONE]"))

	lines := scanDataLines(body)
	require.Len(t, lines, 4) // 3 chunks + terminal [DONE]
	require.Equal(t, "The ", gjson.Parse(lines[0]).Get("choices.0.delta.content").String())
	require.Equal(t, "answer ", gjson.Parse(lines[1]).Get("choices.0.delta.content").String())
	require.Equal(t, "is 42.", gjson.Parse(lines[2]).Get("choices.0.delta.content").String())
}

func TestHandleStreamContinuesWithoutMarkerE5(t *testing.T) {
	var upstreamCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/oauth2/token") {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"access_token":"t","expires_in":3600}`))
			return
		}
		n := atomic.AddInt32(&upstreamCalls, 1)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fl := w.(http.Flusher)
		if n == 1 {
			_, _ = w.Write([]byte(`data: {"candidates":[{"index":0,"content":{"parts":[{"text":"part A"}]}}]}` + "\n\n"))
			fl.Flush()
			return
		}
		body, _ := gjsonBody(r)
		contentsArr := gjson.GetBytes(body, "contents").Array()
		require.GreaterOrEqual(t, len(contentsArr), 2)
		modelContent := contentsArr[len(contentsArr)-2]
		require.Equal(t, "model", modelContent.Get("role").String())
		require.Contains(t, modelContent.Get("parts.0.text").String(), "part A")
		userContent := contentsArr[len(contentsArr)-1]
		require.Equal(t, "user", userContent.Get("role").String())
		_, _ = w.Write([]byte(`data: {"candidates":[{"index":0,"content":{"parts":[{"text":"rest[done]"}]}}]}` + "\n\n"))
		fl.Flush()
	}))
	defer srv.Close()

	p := newTestPipeline(t, srv.URL, 1)
	req := []byte(`{"model":"gemini-pro","messages":[{"role":"user","content":"hi"}],"stream":true}`)

	rec := httptest.NewRecorder()
	p.HandleStream(context.Background(), rec, fakeFlusher{}, "gemini-pro", req)

	require.EqualValues(t, 2, atomic.LoadInt32(&upstreamCalls))
	require.Contains(t, rec.Body.String(), "part A")
}

func gjsonBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(r.Body)
}

func scanDataLines(body string) []string {
	var out []string
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") && line != "data: [DONE]" {
			out = append(out, strings.TrimPrefix(line, "data: "))
		} else if line == "data: [DONE]" {
			out = append(out, line)
		}
	}
	return out
}
