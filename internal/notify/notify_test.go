package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name  string
	err   error
	calls []string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.calls = append(f.calls, title)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifier_FiltersEvents(t *testing.T) {
	s := &fakeSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{"transfer_ownership", " set_enabled "}, quietLogger())

	require.NoError(t, n.Notify(context.Background(), "set_price_feed", "feed", ""))
	require.NoError(t, n.Notify(context.Background(), "set_enabled", "enabled", ""))
	assert.Equal(t, []string{"enabled"}, s.calls)
}

func TestNotifier_EmptyFilterAllowsAll(t *testing.T) {
	s := &fakeSender{name: "a"}
	n := NewNotifier([]Sender{s}, nil, quietLogger())
	require.NoError(t, n.Notify(context.Background(), "anything", "t", ""))
	assert.Len(t, s.calls, 1)
}

func TestNotifier_OneFailureDoesNotStopOthers(t *testing.T) {
	boom := errors.New("boom")
	bad := &fakeSender{name: "bad", err: boom}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, quietLogger())

	err := n.Notify(context.Background(), "e", "t", "m")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "1 sender(s) failed")
	assert.Len(t, good.calls, 1)
}

func TestFromConfig(t *testing.T) {
	assert.Nil(t, FromConfig(Config{TelegramToken: "tok"}, quietLogger()), "chat id required")

	n := FromConfig(Config{
		TelegramToken:     "tok",
		TelegramChatID:    "42",
		DiscordWebhookURL: "https://discord.example/hook",
	}, quietLogger())
	require.NotNil(t, n)
	assert.Equal(t, []string{"telegram", "discord"}, n.Channels())
}

func TestTelegramSender_Send(t *testing.T) {
	var gotPath string
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.baseURL = srv.URL
	require.NoError(t, s.Send(context.Background(), "Ownership transferred", "to 0xabc"))

	assert.Equal(t, "/bottok/sendMessage", gotPath)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Ownership transferred*\nto 0xabc", got["text"])
}

func TestDiscordSender_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 429")
}
