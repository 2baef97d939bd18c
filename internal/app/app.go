// Package app monta os componentes do bot a partir da configuração e os
// mantém rodando até o contexto ser cancelado.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"faqbot/config"
	"faqbot/internal/access"
	"faqbot/internal/database"
	"faqbot/internal/fuzzy"
	"faqbot/internal/handler"
	"faqbot/internal/logging"
	"faqbot/internal/rag"
	"faqbot/internal/service"
	"faqbot/internal/sessions"
	"faqbot/pkg/telegram"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	inboxSize       = 256
	shutdownTimeout = 10 * time.Second
)

// Run sobe o bot e bloqueia até ctx ser cancelado ou algum componente falhar.
// Falha ao carregar a base de conhecimento interrompe a inicialização.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	transcript, err := logging.NewTranscript(cfg.Log.ChatDir)
	if err != nil {
		return err
	}
	defer transcript.Close()

	repo, db, err := openRepository(ctx, cfg.Knowledge, logger.Named("knowledge"))
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	kb := rag.NewKnowledgeBase(repo, logger.Named("knowledge"))
	if err := kb.Load(ctx); err != nil {
		return fmt.Errorf("erro ao carregar a base de conhecimento: %w", err)
	}

	scorer, err := fuzzy.Lookup(cfg.Matcher.Scorer)
	if err != nil {
		return err
	}
	matcher := rag.NewMatcher(scorer, cfg.Matcher.Threshold)

	registry := sessions.NewRegistry(cfg.Sessions.IdleTimeout, logger.Named("sessions"))
	admins := access.NewAllowList(cfg.Admins.Path, logger.Named("access"))

	client := telegram.New(cfg.Telegram.Token,
		telegram.WithAPIURL(cfg.Telegram.APIURL),
		telegram.WithSendRate(cfg.Telegram.SendRate, cfg.Telegram.SendBurst),
	)
	inbox := handler.NewInbox(inboxSize)

	dispatcher := service.NewDispatcher(kb, matcher, registry, admins, client, service.Replies{
		Welcome:         cfg.Replies.Welcome,
		Help:            cfg.Replies.Help,
		NoMatch:         cfg.Replies.NoMatch,
		Thanks:          cfg.Replies.Thanks,
		PhotoURL:        cfg.Replies.PhotoURL,
		ThanksOnNoMatch: cfg.Replies.ThanksOnNoMatch,
	}, logger.Named("dispatcher"), service.WithRecorder(transcript))

	if err := configureTransport(ctx, client, cfg.Telegram, logger); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	// O Dispatcher só para quando a Inbox fecha e esvazia, para não perder
	// mensagens já aceitas pelo transporte.
	g.Go(func() error {
		return dispatcher.Run(context.WithoutCancel(gctx), inbox)
	})
	g.Go(func() error {
		<-gctx.Done()
		inbox.Close()
		return nil
	})
	g.Go(func() error { return registry.Run(gctx, cfg.Sessions.SweepInterval) })
	g.Go(func() error {
		if err := admins.Watch(gctx); err != nil {
			// sem watcher, mudanças no arquivo só valem depois de reiniciar
			logger.Warn("lista de administradores sem recarga automática", zap.Error(err))
		}
		return nil
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.Telegram.Mode == config.ModeWebhook {
		mux.Handle("/webhook", handler.NewWebhookHandler(inbox, cfg.Telegram.WebhookSecret, logger.Named("webhook")))
	} else {
		poller := handler.NewPoller(client, inbox, cfg.Telegram.PollTimeout, logger.Named("poller"))
		g.Go(func() error { return poller.Run(gctx) })
	}

	if cfg.HTTP.Addr != "" {
		srv := &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		}
		g.Go(func() error {
			logger.Info("servidor HTTP iniciado", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("erro no servidor HTTP: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info("bot iniciado",
		zap.String("mode", cfg.Telegram.Mode),
		zap.String("backend", cfg.Knowledge.Backend),
		zap.String("scorer", cfg.Matcher.Scorer),
		zap.Int("threshold", cfg.Matcher.Threshold))

	err = g.Wait()
	logger.Info("bot encerrado")
	return err
}

// configureTransport registra o webhook ou, no modo polling, remove um
// webhook antigo, porque getUpdates é recusado enquanto houver um registrado.
func configureTransport(ctx context.Context, client *telegram.Client, cfg config.TelegramConfig, logger *zap.Logger) error {
	if cfg.Mode == config.ModeWebhook {
		if err := client.SetWebhook(ctx, cfg.WebhookURL, cfg.WebhookSecret); err != nil {
			return fmt.Errorf("erro ao registrar webhook: %w", err)
		}
		logger.Info("webhook registrado no Telegram", zap.String("url", cfg.WebhookURL))
		return nil
	}
	if err := client.DeleteWebhook(ctx); err != nil {
		logger.Warn("erro ao remover webhook", zap.Error(err))
	}
	return nil
}

// openRepository escolhe o armazenamento da base. O *sql.DB devolvido, se
// houver, precisa ser fechado pelo chamador.
func openRepository(ctx context.Context, cfg config.KnowledgeConfig, logger *zap.Logger) (rag.KnowledgeRepository, *sql.DB, error) {
	if cfg.Backend == config.BackendCSV {
		return rag.NewCSVKnowledgeRepository(cfg.Path, logger), nil, nil
	}

	db, err := database.Open(ctx, cfg.Backend, cfg.DSN, logger)
	if err != nil {
		return nil, nil, err
	}
	return rag.NewSQLKnowledgeRepository(db, cfg.Backend, logger), db, nil
}
