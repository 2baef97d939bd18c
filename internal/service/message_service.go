package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"faqbot/internal/access"
	"faqbot/internal/domain"
	"faqbot/internal/metrics"
	"faqbot/internal/rag"
	"faqbot/internal/sessions"
	"faqbot/internal/utils"

	"go.uber.org/zap"
)

// Comandos reservados. Qualquer outro "/token" é texto comum.
const (
	CmdStart       = "start"
	CmdHelp        = "help"
	CmdQuestions   = "questions"
	CmdNewQuestion = "newquestion"
	CmdDone        = "done"
	CmdCancel      = "cancel"
	CmdReload      = "reload"
)

// Sender é a parte de saída do transporte.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, photo string) error
}

// Authorizer decide o acesso aos comandos administrativos.
type Authorizer interface {
	IsAuthorized(userID int64) (bool, error)
}

// Recorder guarda o histórico das mensagens recebidas.
type Recorder interface {
	Record(msg domain.Message)
}

// Replies são os textos configuráveis. {name} é trocado pelo nome do usuário.
type Replies struct {
	Welcome         string
	Help            string
	NoMatch         string
	Thanks          string
	PhotoURL        string
	ThanksOnNoMatch bool
}

// reply é uma saída: texto ou foto.
type reply struct {
	text  string
	photo string
}

func text(s string) reply { return reply{text: s} }

func textf(format string, args ...any) reply { return reply{text: fmt.Sprintf(format, args...)} }

// Dispatcher classifica cada mensagem e produz a sequência de respostas.
type Dispatcher struct {
	kb       *rag.KnowledgeBase
	matcher  rag.Matcher
	registry *sessions.Registry
	auth     Authorizer
	sender   Sender
	recorder Recorder
	replies  Replies
	logger   *zap.Logger
}

type Option func(*Dispatcher)

func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

func NewDispatcher(
	kb *rag.KnowledgeBase,
	matcher rag.Matcher,
	registry *sessions.Registry,
	auth Authorizer,
	sender Sender,
	replies Replies,
	logger *zap.Logger,
	opts ...Option,
) *Dispatcher {
	d := &Dispatcher{
		kb:       kb,
		matcher:  matcher,
		registry: registry,
		auth:     auth,
		sender:   sender,
		replies:  replies,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var _ Authorizer = (*access.AllowList)(nil)

// ProcessMessage trata uma mensagem e envia todas as respostas dela, em ordem.
func (d *Dispatcher) ProcessMessage(ctx context.Context, msg domain.Message) {
	if d.recorder != nil {
		d.recorder.Record(msg)
	}
	log := d.logger.With(zap.Int64("user_id", msg.UserID), zap.Int64("chat_id", msg.ChatID))
	log.Debug("processando mensagem", zap.String("text", msg.Text))

	var out []reply
	if cmd, ok := msg.Command(); ok && isReserved(cmd) {
		metrics.Messages.WithLabelValues("command").Inc()
		out = d.handleCommand(ctx, cmd, msg, log)
	} else if _, open := d.registry.Get(msg.UserID); open {
		metrics.Messages.WithLabelValues("session").Inc()
		out = d.continueSession(msg, log)
	} else {
		metrics.Messages.WithLabelValues("query").Inc()
		out = d.answer(ctx, msg, log)
	}

	d.send(ctx, msg.ChatID, out, log)
}

func isReserved(cmd string) bool {
	switch cmd {
	case CmdStart, CmdHelp, CmdQuestions, CmdNewQuestion, CmdDone, CmdCancel, CmdReload:
		return true
	}
	return false
}

func (d *Dispatcher) handleCommand(ctx context.Context, cmd string, msg domain.Message, log *zap.Logger) []reply {
	switch cmd {
	case CmdStart:
		return []reply{text(utils.Personalize(d.replies.Welcome, msg.Name))}
	case CmdHelp:
		if d.replies.Help != "" {
			return []reply{text(utils.Personalize(d.replies.Help, msg.Name))}
		}
		return []reply{text(utils.BuildHelp())}
	case CmdQuestions:
		return d.listQuestions(ctx, log)
	case CmdNewQuestion:
		if !d.authorize(msg, cmd, log) {
			return d.deny(msg)
		}
		return d.startSession(msg, log)
	case CmdReload:
		if !d.authorize(msg, cmd, log) {
			return d.deny(msg)
		}
		return d.reload(ctx, log)
	case CmdDone:
		return d.commitSession(ctx, msg, log)
	case CmdCancel:
		if !d.registry.Cancel(msg.UserID) {
			return []reply{text(utils.MsgNoSession)}
		}
		return []reply{text(utils.MsgCancelled)}
	}
	return nil
}

// authorize consulta a lista de administradores. Erro de leitura nega o acesso.
func (d *Dispatcher) authorize(msg domain.Message, cmd string, log *zap.Logger) bool {
	ok, err := d.auth.IsAuthorized(msg.UserID)
	if err != nil {
		log.Error("falha ao consultar administradores, acesso negado", zap.String("command", cmd), zap.Error(err))
		return false
	}
	if !ok {
		log.Info("comando restrito negado", zap.String("command", cmd))
	}
	return ok
}

func (d *Dispatcher) deny(msg domain.Message) []reply {
	return []reply{textf(utils.MsgNotAuthorized, msg.Name)}
}

func (d *Dispatcher) startSession(msg domain.Message, log *zap.Logger) []reply {
	if _, err := d.registry.Start(msg.UserID); err != nil {
		if errors.Is(err, sessions.ErrSessionOpen) {
			return []reply{text(utils.MsgSessionOpen)}
		}
		log.Error("erro ao iniciar cadastro", zap.Error(err))
		return []reply{text(utils.MsgUnavailable)}
	}
	return []reply{text(utils.MsgAskQuestion)}
}

func (d *Dispatcher) continueSession(msg domain.Message, log *zap.Logger) []reply {
	draft, err := d.registry.Advance(msg.UserID, msg.Text)
	switch {
	case errors.Is(err, sessions.ErrNoSession):
		// expirou entre o Get e o Advance
		return []reply{text(utils.MsgNoSession)}
	case errors.Is(err, sessions.ErrEmptyText):
		return []reply{text(utils.MsgEmptyText)}
	case err != nil:
		log.Error("erro ao avançar cadastro", zap.Error(err))
		return []reply{text(utils.MsgUnavailable)}
	}

	if len(draft.Answers) == 0 {
		return []reply{textf(utils.MsgAskReplies, draft.Question)}
	}
	return []reply{textf(utils.MsgReplyAdded, len(draft.Answers))}
}

func (d *Dispatcher) commitSession(ctx context.Context, msg domain.Message, log *zap.Logger) []reply {
	draft, err := d.registry.Commit(ctx, msg.UserID, d.kb.Append)
	switch {
	case errors.Is(err, sessions.ErrNoSession):
		return []reply{text(utils.MsgNoSession)}
	case errors.Is(err, sessions.ErrAwaitingQuestion):
		return []reply{text(utils.MsgNeedQuestion)}
	case errors.Is(err, sessions.ErrNoReplies):
		return []reply{text(utils.MsgNeedReply)}
	case err != nil:
		log.Error("erro ao salvar cadastro, sessão mantida", zap.String("session_id", draft.ID), zap.Error(err))
		return []reply{text(utils.MsgSaveFailed)}
	}
	return []reply{textf(utils.MsgSaved, draft.Question, len(draft.Answers))}
}

func (d *Dispatcher) reload(ctx context.Context, log *zap.Logger) []reply {
	if err := d.kb.Load(ctx); err != nil {
		log.Error("erro ao recarregar base de conhecimento", zap.Error(err))
		return []reply{text(utils.MsgReloadFailed)}
	}
	snap, err := d.kb.Snapshot(ctx)
	if err != nil {
		log.Error("erro ao ler base de conhecimento", zap.Error(err))
		return []reply{text(utils.MsgReloadFailed)}
	}
	return []reply{textf(utils.MsgReloaded, len(snap.Questions()))}
}

func (d *Dispatcher) listQuestions(ctx context.Context, log *zap.Logger) []reply {
	snap, err := d.kb.Snapshot(ctx)
	if err != nil {
		log.Error("erro ao ler base de conhecimento", zap.Error(err))
		return []reply{text(utils.MsgUnavailable)}
	}
	var out []reply
	for _, chunk := range utils.BuildQuestionList(snap.Questions()) {
		out = append(out, text(chunk))
	}
	return out
}

// answer busca a pergunta mais parecida. Com match: respostas, agradecimento e
// foto. Sem match: mensagem de fallback, e agradecimento/foto só se configurado.
func (d *Dispatcher) answer(ctx context.Context, msg domain.Message, log *zap.Logger) []reply {
	snap, err := d.kb.Snapshot(ctx)
	if err != nil {
		metrics.Matches.WithLabelValues("error").Inc()
		log.Error("erro ao ler base de conhecimento", zap.Error(err))
		return []reply{text(utils.MsgUnavailable)}
	}

	res, cand, ok := d.matcher.Match(msg.Text, snap)
	if cand.Question != "" {
		metrics.MatchScore.Observe(float64(cand.Score))
	}

	var out []reply
	if ok {
		metrics.Matches.WithLabelValues("match").Inc()
		log.Info("pergunta encontrada", zap.String("question", res.Question), zap.Int("score", res.Score))
		for _, a := range res.Answers {
			out = append(out, text(a))
		}
	} else {
		metrics.Matches.WithLabelValues("no_match").Inc()
		log.Info("nenhuma pergunta acima do limiar",
			zap.String("query", msg.Text),
			zap.String("best_question", cand.Question),
			zap.Int("best_score", cand.Score),
			zap.Int("threshold", d.matcher.Threshold()))
		out = append(out, text(utils.Personalize(d.replies.NoMatch, msg.Name)))
		if !d.replies.ThanksOnNoMatch {
			return out
		}
	}

	if d.replies.Thanks != "" {
		out = append(out, text(utils.Personalize(d.replies.Thanks, msg.Name)))
	}
	if d.replies.PhotoURL != "" {
		out = append(out, reply{photo: d.replies.PhotoURL})
	}
	return out
}

// send entrega as respostas em ordem. Textos acima do limite do Telegram
// viram várias mensagens. Na primeira falha o restante é descartado para não
// quebrar a sequência.
func (d *Dispatcher) send(ctx context.Context, chatID int64, out []reply, log *zap.Logger) {
	for i, r := range out {
		if err := d.deliver(ctx, chatID, r); err != nil {
			metrics.SendFailures.Inc()
			log.Error("erro ao enviar resposta",
				zap.Int("index", i), zap.Int("skipped", len(out)-i-1), zap.Error(err))
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, chatID int64, r reply) error {
	if r.photo != "" {
		return d.sender.SendPhoto(ctx, chatID, r.photo)
	}
	for _, part := range utils.Chunk(strings.Split(r.text, "\n"), utils.MaxMessageLength) {
		if err := d.sender.SendMessage(ctx, chatID, part); err != nil {
			return err
		}
	}
	return nil
}
