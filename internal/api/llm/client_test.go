package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/answerdesk/internal/apperr"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(5*time.Second, zap.NewNop())
	c.SetConfig(Config{APIKey: "sk-test", APIBase: srv.URL + "/v1/", Model: "gpt-4o-mini"})
	return c
}

func TestComplete(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"你好"},"finish_reason":"stop"}]}`)
	})

	reply, err := c.Complete(context.Background(), "请回复：连接成功")
	require.NoError(t, err)
	assert.Equal(t, "你好", reply)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, []Message{{Role: "user", Content: "请回复：连接成功"}}, got.Messages)
	assert.Equal(t, 0.7, got.Temperature)
	assert.Equal(t, 2000, got.MaxTokens)
}

func TestCompleteWithoutConfig(t *testing.T) {
	c := NewClient(time.Second, zap.NewNop())

	_, err := c.Complete(context.Background(), "hi")
	assert.True(t, apperr.Is(err, apperr.KindConfigMissing))

	_, ok := c.Config()
	assert.False(t, ok)
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   apperr.Kind
	}{
		{"http status", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, apperr.KindUpstream},
		{"error field", http.StatusOK, `{"error":{"message":"model overloaded","code":"overloaded"}}`, apperr.KindUpstream},
		{"not json", http.StatusOK, `<html>`, apperr.KindProtocol},
		{"no choices", http.StatusOK, `{"choices":[]}`, apperr.KindProtocol},
		{"choice without message", http.StatusOK, `{"choices":[{"finish_reason":"length"}]}`, apperr.KindProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.Complete(context.Background(), "hi")
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestCompleteStatusErrorCarriesBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, "rate limited")
	})

	_, err := c.Complete(context.Background(), "hi")
	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, http.StatusTooManyRequests, e.Status)
	assert.Equal(t, "rate limited", e.Body)
}

func TestCompleteNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := NewClient(time.Second, zap.NewNop())
	c.SetConfig(Config{APIKey: "k", APIBase: srv.URL, Model: "m"})

	_, err := c.Complete(context.Background(), "hi")
	assert.True(t, apperr.Is(err, apperr.KindNetwork))
}
