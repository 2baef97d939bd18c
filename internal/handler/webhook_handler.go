package handler

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"faqbot/pkg/telegram"

	"go.uber.org/zap"
)

const (
	secretHeader = "X-Telegram-Bot-Api-Secret-Token"
	maxBodyBytes = 1 << 20
)

// WebhookHandler recebe os updates enviados pelo Telegram e os coloca na Inbox.
type WebhookHandler struct {
	inbox  *Inbox
	secret string
	logger *zap.Logger
}

// NewWebhookHandler cria o handler. Com secret não vazio o cabeçalho
// X-Telegram-Bot-Api-Secret-Token precisa conferir.
func NewWebhookHandler(inbox *Inbox, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{inbox: inbox, secret: secret, logger: logger}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Metodo nao permitido", http.StatusMethodNotAllowed)
		return
	}
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(secretHeader)), []byte(h.secret)) != 1 {
		http.Error(w, "Nao autorizado", http.StatusUnauthorized)
		return
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Erro ao ler body", http.StatusInternalServerError)
		return
	}

	var update telegram.Update
	if err := json.Unmarshal(bodyBytes, &update); err != nil {
		http.Error(w, "Erro ao decodificar a mensagem", http.StatusBadRequest)
		return
	}

	msg, ok := FromUpdate(update)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := h.inbox.Put(r.Context(), msg); err != nil {
		// o Telegram reenvia o update quando a resposta não é 2xx
		h.logger.Warn("inbox indisponível, update recusado", zap.Int64("update_id", update.UpdateID), zap.Error(err))
		http.Error(w, "Indisponivel", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
