package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"faqbot/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeTelegram entrega uma única mensagem em getUpdates e guarda os envios.
type fakeTelegram struct {
	mu        sync.Mutex
	delivered bool
	sent      []string
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var params map[string]any
	_ = json.NewDecoder(r.Body).Decode(&params)
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	if method == "getUpdates" && f.wasDelivered() {
		// imita o long polling sem prender o poller num laço apertado
		select {
		case <-r.Context().Done():
		case <-time.After(20 * time.Millisecond):
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	switch method {
	case "getUpdates":
		if !f.delivered {
			f.delivered = true
			_, _ = w.Write([]byte(`{"ok":true,"result":[{"update_id":7,"message":{"message_id":1,` +
				`"from":{"id":42,"is_bot":false,"first_name":"Ana"},"chat":{"id":42,"type":"private"},` +
				`"date":0,"text":"what r ur hours"}}]}`))
		}
	case "sendMessage":
		f.sent = append(f.sent, params["text"].(string))
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	case "sendPhoto":
		f.sent = append(f.sent, "photo:"+params["photo"].(string))
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	default:
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}
}

func (f *fakeTelegram) wasDelivered() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delivered
}

func (f *fakeTelegram) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func testConfig(t *testing.T, apiURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	rules := filepath.Join(dir, "rules.csv")
	require.NoError(t, os.WriteFile(rules, []byte("Question,Sentence\nWhat are your hours?,We open at 9.\n"), 0o600))
	admins := filepath.Join(dir, "admins.txt")
	require.NoError(t, os.WriteFile(admins, []byte("1\n"), 0o600))

	return &config.Config{
		Telegram: config.TelegramConfig{
			Token: "T", APIURL: apiURL, Mode: config.ModePolling,
			SendRate: 100, SendBurst: 10,
		},
		Knowledge: config.KnowledgeConfig{Backend: config.BackendCSV, Path: rules},
		Admins:    config.AdminsConfig{Path: admins},
		Matcher:   config.MatcherConfig{Threshold: 70, Scorer: "token_set"},
		Sessions:  config.SessionsConfig{IdleTimeout: time.Minute, SweepInterval: time.Second},
		Replies: config.RepliesConfig{
			NoMatch: "sem resposta",
			Thanks:  "obrigado, {name}",
		},
		Log: config.LogConfig{ChatDir: filepath.Join(dir, "chats")},
	}
}

func TestRun_AnswersPolledMessage(t *testing.T) {
	tg := &fakeTelegram{}
	srv := httptest.NewServer(tg)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, zaptest.NewLogger(t)) }()

	require.Eventually(t, func() bool { return len(tg.messages()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"We open at 9.", "obrigado, Ana"}, tg.messages())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run não encerrou")
	}

	transcript, err := os.ReadFile(filepath.Join(cfg.Log.ChatDir, "chats.log"))
	require.NoError(t, err)
	assert.Contains(t, string(transcript), "what r ur hours")
}

func TestRun_FailsWithoutKnowledgeFile(t *testing.T) {
	tg := &fakeTelegram{}
	srv := httptest.NewServer(tg)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.Knowledge.Path = filepath.Join(t.TempDir(), "nao-existe.csv")

	err := Run(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}
