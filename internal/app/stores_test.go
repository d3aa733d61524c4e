package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lako-services/lako-web/internal/history"
)

func TestOpenHistoryStoreBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cases := map[string]*Config{
		HistoryMemory: {HistoryBackend: HistoryMemory},
		HistoryFile:   {HistoryBackend: HistoryFile, HistoryDir: filepath.Join(t.TempDir(), "history")},
		HistoryRedis:  {HistoryBackend: HistoryRedis, RedisAddr: mr.Addr()},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			store, closeFn, err := OpenHistoryStore(ctx, cfg, nil)
			require.NoError(t, err)
			defer closeFn()

			require.NoError(t, store.Set(ctx, "efaktura:p:seller", []byte(`{"pib":"123456789"}`)))
			got, err := store.Get(ctx, "efaktura:p:seller")
			require.NoError(t, err)
			assert.JSONEq(t, `{"pib":"123456789"}`, string(got))

			_, err = store.Get(ctx, "efaktura:p:missing")
			assert.ErrorIs(t, err, history.ErrNotFound)
		})
	}
	assert.True(t, mr.Exists("lako:efaktura:p:seller"))
}

func TestOpenHistoryStoreRedisDown(t *testing.T) {
	_, _, err := OpenHistoryStore(context.Background(), &Config{HistoryBackend: HistoryRedis, RedisAddr: "127.0.0.1:1"}, nil)
	assert.Error(t, err)
}

func TestNewNotifiersSelectsConfiguredSinks(t *testing.T) {
	cfg := &Config{
		TelegramBotToken:   "token",
		TelegramChatID:     "-1",
		RegistrationSecret: "secret",
		RegistrationAPIURL: "http://127.0.0.1:0",
	}
	n := NewNotifiers(cfg, nil, nil)
	defer func() { _ = n.Close() }()

	assert.Equal(t, []string{"telegram", "registry"}, n.Dispatcher.Sinks())

	cfg.ResendAPIKey = "re_key"
	cfg.SMTPHost = "smtp.example.com"
	cfg.KafkaBrokers = []string{"127.0.0.1:9092"}
	n = NewNotifiers(cfg, nil, nil)
	defer func() { _ = n.Close() }()
	assert.Equal(t, []string{"resend", "telegram", "registry", "smtp", "kafka"}, n.Dispatcher.Sinks())
}
