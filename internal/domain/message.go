package domain

import "strings"

// Message é uma mensagem recebida do transporte, já sem o enquadramento do provedor.
type Message struct {
	UserID int64
	ChatID int64
	Name   string
	Text   string
}

// Command extrai o comando reservado da mensagem, quando ela começa com "/".
// O sufixo "@nome_do_bot" é descartado e o nome volta em minúsculas.
func (m Message) Command() (string, bool) {
	text := strings.TrimSpace(m.Text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}

	token := strings.Fields(text)[0]
	token = strings.TrimPrefix(token, "/")
	if at := strings.IndexByte(token, '@'); at >= 0 {
		token = token[:at]
	}
	if token == "" {
		return "", false
	}
	return strings.ToLower(token), true
}
