package sessions

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"faqbot/internal/domain"
	"faqbot/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSessionOpen      = errors.New("já existe um cadastro aberto")
	ErrNoSession        = errors.New("nenhum cadastro aberto")
	ErrAwaitingQuestion = errors.New("cadastro ainda aguarda a pergunta")
	ErrNoReplies        = errors.New("nenhuma resposta coletada")
	ErrEmptyText        = errors.New("mensagem vazia")
)

// Draft é a cópia dos dados coletados numa conversa de cadastro.
type Draft struct {
	ID       string
	UserID   int64
	State    domain.SessionState
	Question string
	Answers  []string
}

// CommitFunc grava o rascunho. Se retornar erro a sessão continua aberta.
type CommitFunc func(ctx context.Context, entry domain.KnowledgeEntry) error

type session struct {
	mu       sync.Mutex
	id       string
	userID   int64
	state    domain.SessionState
	question string
	answers  []string
	lastSeen time.Time
	closed   bool
}

func (s *session) draft() Draft {
	return Draft{
		ID:       s.id,
		UserID:   s.userID,
		State:    s.state,
		Question: s.question,
		Answers:  append([]string(nil), s.answers...),
	}
}

// Registry guarda no máximo uma conversa de cadastro por usuário.
// Cada transição acontece com o lock da própria sessão; o lock do mapa só
// protege a busca, então usuários diferentes não se bloqueiam.
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]*session
	idle     time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// Option configura o Registry.
type Option func(*Registry)

// WithClock troca o relógio usado para expiração.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry cria o registro. idle <= 0 desativa a expiração.
func NewRegistry(idle time.Duration, logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[int64]*session),
		idle:     idle,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start abre uma conversa em AWAIT_QUESTION. Nunca sobrescreve um rascunho existente.
func (r *Registry) Start(userID int64) (Draft, error) {
	// acquire já descarta uma sessão expirada
	if s, ok := r.acquire(userID); ok {
		s.mu.Unlock()
		return Draft{}, ErrSessionOpen
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[userID]; ok {
		return Draft{}, ErrSessionOpen
	}

	s := &session{
		id:       uuid.NewString(),
		userID:   userID,
		state:    domain.StateAwaitQuestion,
		lastSeen: r.now(),
	}
	r.sessions[userID] = s
	metrics.SessionsOpen.Inc()
	r.logger.Info("cadastro iniciado", zap.Int64("user_id", userID), zap.String("session_id", s.id))
	return s.draft(), nil
}

// Get devolve o estado atual da conversa do usuário, se houver.
func (r *Registry) Get(userID int64) (Draft, bool) {
	s, ok := r.acquire(userID)
	if !ok {
		return Draft{}, false
	}
	defer s.mu.Unlock()
	return s.draft(), true
}

// Advance consome um texto: em AWAIT_QUESTION vira a pergunta, em AWAIT_REPLIES
// é anexado às respostas.
func (r *Registry) Advance(userID int64, text string) (Draft, error) {
	text = strings.TrimSpace(text)

	s, ok := r.acquire(userID)
	if !ok {
		return Draft{}, ErrNoSession
	}
	defer s.mu.Unlock()

	if text == "" {
		return s.draft(), ErrEmptyText
	}

	switch s.state {
	case domain.StateAwaitQuestion:
		s.question = text
		s.answers = []string{}
		s.state = domain.StateAwaitReplies
	case domain.StateAwaitReplies:
		s.answers = append(s.answers, text)
	}
	s.lastSeen = r.now()
	return s.draft(), nil
}

// Commit grava o rascunho com fn e encerra a conversa. Sem respostas, ou se fn
// falhar, a conversa continua em AWAIT_REPLIES sem alterações.
func (r *Registry) Commit(ctx context.Context, userID int64, fn CommitFunc) (Draft, error) {
	s, ok := r.acquire(userID)
	if !ok {
		return Draft{}, ErrNoSession
	}
	defer s.mu.Unlock()

	switch {
	case s.state == domain.StateAwaitQuestion:
		return s.draft(), ErrAwaitingQuestion
	case len(s.answers) == 0:
		return s.draft(), ErrNoReplies
	}

	d := s.draft()
	if err := fn(ctx, domain.KnowledgeEntry{Question: d.Question, Answers: d.Answers}); err != nil {
		s.lastSeen = r.now()
		return d, err
	}

	r.mu.Lock()
	r.dropLocked(s, "concluída")
	r.mu.Unlock()
	return d, nil
}

// Cancel descarta a conversa do usuário. Retorna false se não havia nenhuma.
func (r *Registry) Cancel(userID int64) bool {
	s, ok := r.acquire(userID)
	if !ok {
		return false
	}
	defer s.mu.Unlock()

	r.mu.Lock()
	r.dropLocked(s, "cancelada")
	r.mu.Unlock()
	return true
}

// Len devolve quantas conversas estão abertas, incluindo as já expiradas ainda não varridas.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep remove as conversas ociosas e devolve quantas foram removidas.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	candidates := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		candidates = append(candidates, s)
	}
	r.mu.Unlock()

	removed := 0
	for _, s := range candidates {
		// sessões ocupadas numa transição ficam para a próxima varredura
		if !s.mu.TryLock() {
			continue
		}
		r.mu.Lock()
		if !s.closed && r.expired(s) {
			r.dropLocked(s, "expirada")
			removed++
		}
		r.mu.Unlock()
		s.mu.Unlock()
	}
	return removed
}

// Run varre as conversas ociosas a cada intervalo até o contexto ser cancelado.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if r.idle <= 0 || interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Info("cadastros ociosos removidos", zap.Int("count", n))
			}
		}
	}
}

// acquire devolve a sessão do usuário com o lock dela já adquirido.
// Sessões expiradas são removidas e tratadas como inexistentes.
func (r *Registry) acquire(userID int64) (*session, bool) {
	for {
		r.mu.Lock()
		s, ok := r.sessions[userID]
		r.mu.Unlock()
		if !ok {
			return nil, false
		}

		s.mu.Lock()
		if s.closed {
			// encerrada enquanto esperávamos; pode haver uma nova no lugar
			s.mu.Unlock()
			continue
		}

		r.mu.Lock()
		if r.expired(s) {
			r.dropLocked(s, "expirada")
			r.mu.Unlock()
			s.mu.Unlock()
			return nil, false
		}
		r.mu.Unlock()
		return s, true
	}
}

func (r *Registry) expired(s *session) bool {
	return r.idle > 0 && r.now().Sub(s.lastSeen) >= r.idle
}

// dropLocked encerra a sessão. Exige r.mu; s.mu deve estar com quem chama ou a sessão inalcançável.
func (r *Registry) dropLocked(s *session, reason string) {
	s.closed = true
	if cur, ok := r.sessions[s.userID]; ok && cur == s {
		delete(r.sessions, s.userID)
		metrics.SessionsOpen.Dec()
	}
	r.logger.Info("cadastro encerrado",
		zap.Int64("user_id", s.userID), zap.String("session_id", s.id), zap.String("reason", reason))
}
