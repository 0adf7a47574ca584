package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alijeyrad/tabib_backend/config"
)

func newTestServer(t *testing.T, status int, answer string, seen *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if seen != nil {
			_ = json.Unmarshal(body, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":"nope"}`))
			return
		}
		resp := map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": answer}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testClient(url string) *Client {
	return New(Config{
		Enabled:     true,
		BaseURL:     url + "/v1/",
		APIKey:      "secret",
		Model:       "text-model",
		VisionModel: "vision-model",
		Timeout:     5 * time.Second,
	})
}

func TestChat(t *testing.T) {
	var seen chatRequest
	srv := newTestServer(t, http.StatusOK, "hello", &seen)

	got, err := testClient(srv.URL).Chat(context.Background(), Prompt{System: "sys", Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Equal(t, "text-model", seen.Model)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, "system", seen.Messages[0].Role)
	assert.Nil(t, seen.ResponseFormat)
}

func TestChatJSONWithImage(t *testing.T) {
	var seen chatRequest
	srv := newTestServer(t, http.StatusOK, "```json\n{\"text\":\"ok\"}\n```", &seen)

	var out struct {
		Text string `json:"text"`
	}
	err := testClient(srv.URL).ChatJSON(context.Background(), Prompt{
		Text:   "read",
		Images: []Image{{MIME: "image/png", Data: []byte{1, 2, 3}}},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Text)
	assert.Equal(t, "vision-model", seen.Model)
	require.NotNil(t, seen.ResponseFormat)
	assert.Equal(t, "json_object", seen.ResponseFormat.Type)
}

func TestChatErrors(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		c := New(Config{BaseURL: "http://127.0.0.1:1"})
		_, err := c.Chat(context.Background(), Prompt{Text: "x"})
		assert.ErrorIs(t, err, ErrDisabled)
	})

	t.Run("upstream status", func(t *testing.T) {
		srv := newTestServer(t, http.StatusBadGateway, "", nil)
		_, err := testClient(srv.URL).Chat(context.Background(), Prompt{Text: "x"})
		var se *StatusError
		require.True(t, errors.As(err, &se), "got %v", err)
		assert.Equal(t, http.StatusBadGateway, se.Code)
	})

	t.Run("empty answer", func(t *testing.T) {
		srv := newTestServer(t, http.StatusOK, "  ", nil)
		_, err := testClient(srv.URL).Chat(context.Background(), Prompt{Text: "x"})
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
}

func TestStripFences(t *testing.T) {
	tests := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n[1]\n```", `[1]`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripFences(tt.in))
	}
}

func TestFromCentralConfigDefaults(t *testing.T) {
	cfg := FromCentralConfig(config.AIConfig{Enabled: true})
	assert.Equal(t, "https://api.openai.com/v1", cfg.BaseURL)
	assert.Equal(t, cfg.Model, cfg.VisionModel)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
}
