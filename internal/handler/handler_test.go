package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"faqbot/internal/domain"
	"faqbot/pkg/telegram"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const updateJSON = `{"update_id":99,"message":{"message_id":1,"from":{"id":5,"is_bot":false,"first_name":"Ana"},"chat":{"id":7,"type":"private","first_name":"Ana"},"text":"what r ur hours"}}`

func TestFromUpdate(t *testing.T) {
	msg, ok := FromUpdate(telegram.Update{Message: &telegram.Message{
		From: &telegram.User{ID: 5, FirstName: "Ana"},
		Chat: telegram.Chat{ID: 7},
		Text: "oi",
	}})
	require.True(t, ok)
	assert.Equal(t, domain.Message{UserID: 5, ChatID: 7, Name: "Ana", Text: "oi"}, msg)

	_, ok = FromUpdate(telegram.Update{})
	assert.False(t, ok)
	_, ok = FromUpdate(telegram.Update{Message: &telegram.Message{From: &telegram.User{ID: 1, IsBot: true}, Text: "x"}})
	assert.False(t, ok)
	_, ok = FromUpdate(telegram.Update{Message: &telegram.Message{From: &telegram.User{ID: 1}, Text: "  "}})
	assert.False(t, ok)
}

func TestInbox_CloseDrainsQueued(t *testing.T) {
	in := NewInbox(2)
	ctx := context.Background()
	require.NoError(t, in.Put(ctx, domain.Message{Text: "a"}))
	in.Close()

	assert.ErrorIs(t, in.Put(ctx, domain.Message{Text: "b"}), ErrInboxClosed)

	msg, err := in.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", msg.Text)

	_, err = in.Next(ctx)
	assert.ErrorIs(t, err, ErrInboxClosed)
}

func TestWebhookHandler(t *testing.T) {
	in := NewInbox(1)
	h := NewWebhookHandler(in, "s3cret", zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(updateJSON))
	req.Header.Set(secretHeader, "s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	msg, err := in.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "what r ur hours", msg.Text)
	assert.Equal(t, int64(5), msg.UserID)
}

func TestWebhookHandler_Rejections(t *testing.T) {
	in := NewInbox(1)
	h := NewWebhookHandler(in, "s3cret", zap.NewNop())

	tests := []struct {
		name   string
		method string
		secret string
		body   string
		want   int
	}{
		{"metodo", http.MethodGet, "s3cret", "", http.StatusMethodNotAllowed},
		{"segredo", http.MethodPost, "errado", updateJSON, http.StatusUnauthorized},
		{"json", http.MethodPost, "s3cret", "{", http.StatusBadRequest},
		{"sem texto", http.MethodPost, "s3cret", `{"update_id":1}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/webhook", strings.NewReader(tt.body))
			req.Header.Set(secretHeader, tt.secret)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := in.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "nada deveria ter sido enfileirado")
}

type scriptedFetcher struct {
	mu      sync.Mutex
	offsets []int64
	batches [][]telegram.Update
}

func (f *scriptedFetcher) GetUpdates(ctx context.Context, offset int64, _ int) ([]telegram.Update, error) {
	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	if len(f.batches) == 0 {
		f.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	f.mu.Unlock()
	if batch == nil {
		return nil, errors.New("falha temporária")
	}
	return batch, nil
}

func update(id, user int64, text string) telegram.Update {
	return telegram.Update{UpdateID: id, Message: &telegram.Message{
		From: &telegram.User{ID: user, FirstName: "U"},
		Chat: telegram.Chat{ID: user},
		Text: text,
	}}
}

func TestPoller_AdvancesOffset(t *testing.T) {
	fetcher := &scriptedFetcher{batches: [][]telegram.Update{
		{update(10, 1, "a"), update(11, 2, "")},
		nil,
		{update(12, 1, "b")},
	}}
	in := NewInbox(10)
	p := NewPoller(fetcher, in, 30*time.Second, zap.NewNop())
	p.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	first, err := in.Next(ctx)
	require.NoError(t, err)
	second, err := in.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", first.Text)
	assert.Equal(t, "b", second.Text)

	offsets := func() []int64 {
		fetcher.mu.Lock()
		defer fetcher.mu.Unlock()
		return append([]int64(nil), fetcher.offsets...)
	}
	require.Eventually(t, func() bool { return len(offsets()) == 4 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []int64{0, 12, 12, 13}, offsets())
}
