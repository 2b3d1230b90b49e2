package telegram

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	telegramPorts "github.com/kpizzy812/TMAMARKET/internal/ports/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestClientSend(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botsecret/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, `{"ok":true,"result":{"message_id":42}}`)
	}))
	defer srv.Close()

	thread := int64(7)
	client := NewClient(srv.URL, "secret", 0, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := client.Send(context.Background(), telegramPorts.Message{ChatID: -100, ThreadID: &thread, Text: "hi", HTML: true})
	require.NoError(t, err)

	assert.Equal(t, float64(-100), got["chat_id"])
	assert.Equal(t, float64(7), got["message_thread_id"])
	assert.Equal(t, "HTML", got["parse_mode"])
	assert.Equal(t, true, got["disable_web_page_preview"])
}

func TestClientSendPlainText(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, `{"ok":true,"result":{"message_id":1}}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, client.Send(context.Background(), telegramPorts.Message{ChatID: 5, Text: "plain"}))

	assert.NotContains(t, got, "parse_mode")
	assert.NotContains(t, got, "message_thread_id")
}

func TestClientSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := client.Send(context.Background(), telegramPorts.Message{ChatID: 5, Text: "x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}
