package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateContentSendsBearerAndReturnsBody(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	resp, err := c.GenerateContent(context.Background(), "gemini-pro", "tok123", []byte(`{}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"ok":true}`, string(resp.Body))
	require.Equal(t, "Bearer tok123", gotAuth)
	require.Equal(t, "/v1/models/gemini-pro:generateContent", gotPath)
}

func TestStreamGenerateContentReturnsOpenBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models/gemini-pro:streamGenerateContent", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("data: {}\n\n"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	resp, err := c.StreamGenerateContent(context.Background(), "gemini-pro", "tok", []byte(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	require.Contains(t, string(data), "data: {}")
}

func TestIsRetryableAndTerminal(t *testing.T) {
	require.True(t, IsRetryable(429))
	require.True(t, IsRetryable(503))
	require.False(t, IsRetryable(500))
	require.True(t, IsTerminal(400))
	require.True(t, IsTerminal(403))
	require.False(t, IsTerminal(401))
}
