package errors

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestNewSetsEnvelopeFields(t *testing.T) {
	err := New(429, "rate limited")
	require.Equal(t, 429, err.HTTPStatus)
	require.Equal(t, "gateway_error", err.Type)
	require.Equal(t, 429, err.Code)
	require.Equal(t, "rate limited", err.Error())
}

func TestJSONWrapsErrorEnvelope(t *testing.T) {
	err := New(502, "upstream unavailable")
	body := err.JSON()

	require.Equal(t, "upstream unavailable", gjson.GetBytes(body, "error.message").String())
	require.Equal(t, "gateway_error", gjson.GetBytes(body, "error.type").String())
	require.EqualValues(t, 502, gjson.GetBytes(body, "error.code").Int())
	require.False(t, gjson.GetBytes(body, "error.details").Exists())
}

func TestJSONOmitsEmptyDetails(t *testing.T) {
	err := &APIError{HTTPStatus: 400, Message: "bad", Type: "gateway_error", Code: 400}
	body := err.JSON()
	require.NotContains(t, string(body), "details")
}
