package handler

import (
	"context"
	"errors"
	"strings"
	"sync"

	"faqbot/internal/domain"
	"faqbot/pkg/telegram"
)

// ErrInboxClosed é retornado por Next depois que a Inbox foi fechada e esvaziada.
var ErrInboxClosed = errors.New("inbox fechada")

// Inbox é a fila de mensagens entre o transporte e o Dispatcher.
type Inbox struct {
	ch        chan domain.Message
	closeOnce sync.Once
	done      chan struct{}
}

func NewInbox(size int) *Inbox {
	return &Inbox{ch: make(chan domain.Message, size), done: make(chan struct{})}
}

// Put enfileira a mensagem, bloqueando se a fila estiver cheia.
func (in *Inbox) Put(ctx context.Context, msg domain.Message) error {
	select {
	case <-in.done:
		return ErrInboxClosed
	default:
	}

	select {
	case in.ch <- msg:
		return nil
	case <-in.done:
		return ErrInboxClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next devolve a próxima mensagem.
func (in *Inbox) Next(ctx context.Context) (domain.Message, error) {
	select {
	case msg := <-in.ch:
		return msg, nil
	case <-ctx.Done():
		return domain.Message{}, ctx.Err()
	case <-in.done:
		// entrega o que já estava na fila antes de encerrar
		select {
		case msg := <-in.ch:
			return msg, nil
		default:
			return domain.Message{}, ErrInboxClosed
		}
	}
}

// Close impede novos Put. Mensagens já enfileiradas continuam saindo em Next.
func (in *Inbox) Close() {
	in.closeOnce.Do(func() { close(in.done) })
}

// FromUpdate converte um update do Telegram. Updates sem texto ou vindos de
// bots são descartados.
func FromUpdate(u telegram.Update) (domain.Message, bool) {
	m := u.Message
	if m == nil || m.From == nil || m.From.IsBot || strings.TrimSpace(m.Text) == "" {
		return domain.Message{}, false
	}

	name := m.From.FirstName
	if name == "" {
		name = m.Chat.FirstName
	}
	return domain.Message{
		UserID: m.From.ID,
		ChatID: m.Chat.ID,
		Name:   name,
		Text:   m.Text,
	}, true
}
