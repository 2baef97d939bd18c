package handler

import (
	"context"
	"time"

	"faqbot/pkg/telegram"

	"go.uber.org/zap"
)

// UpdateFetcher é a parte do cliente Telegram usada pelo Poller.
type UpdateFetcher interface {
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]telegram.Update, error)
}

// Poller busca updates por long polling e os entrega na Inbox.
type Poller struct {
	client  UpdateFetcher
	inbox   *Inbox
	timeout int
	backoff time.Duration
	logger  *zap.Logger
}

func NewPoller(client UpdateFetcher, inbox *Inbox, timeout time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		client:  client,
		inbox:   inbox,
		timeout: int(timeout / time.Second),
		backoff: 3 * time.Second,
		logger:  logger,
	}
}

// Run roda até o contexto ser cancelado. O offset avança para o último
// update_id + 1, confirmando os updates já entregues.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64
	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := p.client.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Warn("erro ao buscar updates", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.backoff):
			}
			continue
		}

		for _, u := range updates {
			if msg, ok := FromUpdate(u); ok {
				if err := p.inbox.Put(ctx, msg); err != nil {
					return nil
				}
			} else {
				p.logger.Debug("update ignorado", zap.Int64("update_id", u.UpdateID))
			}
			offset = u.UpdateID + 1
		}
	}
}
