package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"geminigate/internal/credential"
	"geminigate/internal/pipeline"
	"geminigate/internal/upstream"
	"geminigate/internal/usage"
)

func newTestServer(t *testing.T, upstreamURL string) http.Handler {
	t.Helper()
	pool := credential.New(1, upstreamURL+"/oauth2/token", 0)
	accountant := usage.New()
	client := upstream.New(upstreamURL)
	pl := pipeline.New(pool, accountant, client)
	return New(pl, pool, accountant)
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestServer(t, "http://unused.invalid")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", gjson.GetBytes(rec.Body.Bytes(), "status").String())
}

func TestListModelsEndpoint(t *testing.T) {
	router := newTestServer(t, "http://unused.invalid")
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := gjson.GetBytes(rec.Body.Bytes(), "data").Array()
	require.Len(t, data, 3)
	for _, m := range data {
		require.Equal(t, "google", m.Get("owned_by").String())
	}
}

func TestMetricsEndpointReflectsUsage(t *testing.T) {
	router := newTestServer(t, "http://unused.invalid")
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, gjson.GetBytes(rec.Body.Bytes(), "tokens").Exists())
	require.True(t, gjson.GetBytes(rec.Body.Bytes(), "credentials").Exists())
	require.Len(t, gjson.GetBytes(rec.Body.Bytes(), "credentials").Array(), 1)
}

func TestChatCompletionsMissingModelIsBadRequest(t *testing.T) {
	router := newTestServer(t, "http://unused.invalid")
	body := `{"messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "gateway_error", gjson.GetBytes(rec.Body.Bytes(), "error.type").String())
}

func TestChatCompletionsUnarySuccess(t *testing.T) {
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Hi"}]},"finishReason":"STOP","index":0}]}`))
	}))
	defer upstreamSrv.Close()

	router := newTestServer(t, upstreamSrv.URL)
	body := `{"model":"gemini-2.5-pro","messages":[{"role":"user","content":"hello"}],"stream":false}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Hi", gjson.GetBytes(rec.Body.Bytes(), "choices.0.message.content").String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestChatCompletionsStreamingSuccess(t *testing.T) {
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/oauth2/token") {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"access_token":"t","expires_in":3600}`))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`data: {"candidates":[{"index":0,"content":{"parts":[{"text":"hi[done]"}]}}]}` + "\n\n"))
	}))
	defer upstreamSrv.Close()

	router := newTestServer(t, upstreamSrv.URL)
	body := `{"model":"gemini-2.5-pro","messages":[{"role":"user","content":"hello"}],"stream":true}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), "\"hi\"")
	require.Contains(t, rec.Body.String(), "data: [DONE]")
}
