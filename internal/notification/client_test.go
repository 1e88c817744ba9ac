package notification

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/skillboard-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendDeliversPayload(t *testing.T) {
	var received payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(&config.NotificationConfig{
		ServiceURL: server.URL,
		Timeout:    5 * time.Second,
		Enabled:    true,
	}, testLogger())

	err := client.Send(context.Background(), 42, "tok-1", "New Endorsement!", "body text")
	require.NoError(t, err)

	assert.Equal(t, int64(42), received.FID)
	assert.Equal(t, "tok-1", received.Token)
	assert.Equal(t, "New Endorsement!", received.Title)
	assert.Equal(t, "body text", received.Body)
}

func TestSendGatewayFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(&config.NotificationConfig{
		ServiceURL: server.URL,
		Timeout:    5 * time.Second,
		Enabled:    true,
	}, testLogger())

	err := client.Send(context.Background(), 42, "tok-1", "t", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestSendDisabledIsNoop(t *testing.T) {
	hit := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))
	defer server.Close()

	client := NewClient(&config.NotificationConfig{
		ServiceURL: server.URL,
		Timeout:    5 * time.Second,
		Enabled:    false,
	}, testLogger())

	require.NoError(t, client.Send(context.Background(), 42, "tok-1", "t", "b"))
	assert.False(t, hit)
}

func TestMissingURLDisablesClient(t *testing.T) {
	client := NewClient(&config.NotificationConfig{
		Timeout: 5 * time.Second,
		Enabled: true,
	}, testLogger())

	assert.NoError(t, client.Send(context.Background(), 42, "tok-1", "t", "b"))
}
