package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smallbiznis/futorumeshi/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWebhookProviderPostsJSON(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewWebhookProvider(srv.URL, "#orders", srv.Client(), zap.NewNop())
	require.NoError(t, p.PostMessage(context.Background(), "", "新規注文"))

	assert.Equal(t, "#orders", got.Channel)
	assert.Equal(t, "新規注文", got.Text)
}

func TestWebhookProviderExplicitChannel(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	p := NewWebhookProvider(srv.URL, "#orders", srv.Client(), zap.NewNop())
	require.NoError(t, p.PostMessage(context.Background(), "#deliveries", "digest"))
	assert.Equal(t, "#deliveries", got.Channel)
}

func TestWebhookProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewWebhookProvider(srv.URL, "", srv.Client(), zap.NewNop())
	err := p.PostMessage(context.Background(), "", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestWebhookProviderRejectsEmptyMessage(t *testing.T) {
	p := NewWebhookProvider("http://127.0.0.1:0", "", nil, zap.NewNop())
	assert.ErrorIs(t, p.PostMessage(context.Background(), "", "  "), ErrEmptyMessage)
}

func TestWebhookProviderHonorsCanceledContext(t *testing.T) {
	p := NewWebhookProvider("http://127.0.0.1:0", "", nil, zap.NewNop())
	// drain the burst so Wait has to block
	for i := 0; i < messageBurst; i++ {
		p.limiter.Allow()
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, p.PostMessage(ctx, "", "hello"))
}

func TestNewProviderWithoutURLIsNoOp(t *testing.T) {
	p := NewProvider(config.Config{}, zap.NewNop())
	_, ok := p.(*NoOpProvider)
	assert.True(t, ok)
}
