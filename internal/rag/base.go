package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"faqbot/internal/domain"
	"faqbot/internal/metrics"

	"go.uber.org/zap"
)

// ErrEmptyEntry é retornado ao tentar gravar uma pergunta sem respostas.
var ErrEmptyEntry = errors.New("pergunta precisa de pelo menos uma resposta")

// Snapshot é uma visão imutável da base carregada.
type Snapshot struct {
	rows      []domain.Row
	questions []string
	answers   map[string][]string
}

func newSnapshot(rows []domain.Row) *Snapshot {
	s := &Snapshot{rows: rows, answers: make(map[string][]string)}
	for _, row := range rows {
		if _, ok := s.answers[row.Question]; !ok {
			s.questions = append(s.questions, row.Question)
		}
		s.answers[row.Question] = append(s.answers[row.Question], row.Sentence)
	}
	return s
}

// Questions devolve as perguntas distintas na ordem da primeira ocorrência.
func (s *Snapshot) Questions() []string {
	return s.questions
}

// Answers devolve todas as respostas da pergunta, na ordem de armazenamento.
func (s *Snapshot) Answers(question string) []string {
	return s.answers[question]
}

// Rows devolve as linhas carregadas.
func (s *Snapshot) Rows() []domain.Row {
	return s.rows
}

// KnowledgeBase mantém em memória as linhas do repositório.
// O cache é descartado na mesma seção crítica em que um novo lote é gravado,
// então nenhum leitor enxerga o snapshot anterior depois do commit.
type KnowledgeBase struct {
	repo   KnowledgeRepository
	logger *zap.Logger

	mu       sync.RWMutex
	snapshot *Snapshot
}

func NewKnowledgeBase(repo KnowledgeRepository, logger *zap.Logger) *KnowledgeBase {
	return &KnowledgeBase{repo: repo, logger: logger}
}

// Load força a leitura do repositório. Usado na inicialização e no comando /reload.
func (kb *KnowledgeBase) Load(ctx context.Context) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return kb.loadLocked(ctx)
}

// Snapshot devolve a visão atual, carregando do repositório se o cache estiver vazio.
func (kb *KnowledgeBase) Snapshot(ctx context.Context) (*Snapshot, error) {
	kb.mu.RLock()
	s := kb.snapshot
	kb.mu.RUnlock()
	if s != nil {
		return s, nil
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()
	if kb.snapshot == nil {
		if err := kb.loadLocked(ctx); err != nil {
			return nil, err
		}
	}
	return kb.snapshot, nil
}

// Append grava a pergunta com suas respostas e invalida o cache.
// Gravações concorrentes são serializadas pelo lock de escrita.
func (kb *KnowledgeBase) Append(ctx context.Context, entry domain.KnowledgeEntry) error {
	entry.Question = strings.TrimSpace(entry.Question)
	if entry.Question == "" || len(entry.Answers) == 0 {
		return ErrEmptyEntry
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	if err := kb.repo.Append(ctx, entry.Rows()); err != nil {
		metrics.KnowledgeCommits.WithLabelValues("error").Inc()
		return fmt.Errorf("falha ao gravar pergunta: %w", err)
	}
	metrics.KnowledgeCommits.WithLabelValues("ok").Inc()
	kb.snapshot = nil

	kb.logger.Info("pergunta adicionada à base",
		zap.String("question", entry.Question), zap.Int("answers", len(entry.Answers)))
	return nil
}

func (kb *KnowledgeBase) loadLocked(ctx context.Context) error {
	rows, err := kb.repo.Load(ctx)
	if err != nil {
		return err
	}
	kb.snapshot = newSnapshot(rows)
	metrics.KnowledgeRows.Set(float64(len(rows)))
	kb.logger.Info("base de conhecimento carregada",
		zap.Int("rows", len(rows)), zap.Int("questions", len(kb.snapshot.questions)))
	return nil
}
