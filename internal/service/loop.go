package service

import (
	"context"
	"errors"
	"sync"

	"faqbot/internal/domain"

	"go.uber.org/zap"
)

// Source é a entrada do transporte: bloqueia até a próxima mensagem.
type Source interface {
	Next(ctx context.Context) (domain.Message, error)
}

// Run lê mensagens de src até o contexto ser cancelado ou a fonte se esgotar.
// Mensagens de um mesmo usuário são tratadas em ordem de chegada; usuários
// diferentes rodam em paralelo. O tratamento usa um contexto que não é
// cancelado no desligamento, e Run só retorna depois que todas as filas esvaziam.
func (d *Dispatcher) Run(ctx context.Context, src Source) error {
	handlerCtx := context.WithoutCancel(ctx)
	l := newLanes(func(msg domain.Message) { d.ProcessMessage(handlerCtx, msg) })
	defer l.wait()

	for {
		msg, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
				d.logger.Info("fonte de mensagens encerrada", zap.Error(err))
			}
			return nil
		}
		l.submit(msg)
	}
}

// lanes mantém uma fila por usuário, cada uma drenada por uma goroutine que
// termina quando a fila fica vazia.
type lanes struct {
	mu     sync.Mutex
	queues map[int64][]domain.Message
	handle func(domain.Message)
	wg     sync.WaitGroup
}

func newLanes(handle func(domain.Message)) *lanes {
	return &lanes{queues: make(map[int64][]domain.Message), handle: handle}
}

func (l *lanes) submit(msg domain.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	q, running := l.queues[msg.UserID]
	l.queues[msg.UserID] = append(q, msg)
	if running {
		return
	}
	l.wg.Add(1)
	go l.drain(msg.UserID)
}

func (l *lanes) drain(userID int64) {
	defer l.wg.Done()
	for {
		l.mu.Lock()
		q := l.queues[userID]
		if len(q) == 0 {
			delete(l.queues, userID)
			l.mu.Unlock()
			return
		}
		msg := q[0]
		l.queues[userID] = q[1:]
		l.mu.Unlock()

		l.handle(msg)
	}
}

func (l *lanes) wait() {
	l.wg.Wait()
}
