package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookPostMessage(t *testing.T) {
	var got webhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, time.Second).PostMessage(context.Background(), "#billing-alerts", "activation failed")
	require.NoError(t, err)
	assert.Equal(t, "#billing-alerts", got.Channel)
	assert.Equal(t, "activation failed", got.Text)
}

func TestWebhookPostMessageStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, time.Second).PostMessage(context.Background(), "", "x")
	assert.ErrorContains(t, err, "status 403")
}
