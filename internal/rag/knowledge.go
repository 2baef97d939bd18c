package rag

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"faqbot/internal/database"
	"faqbot/internal/domain"

	"go.uber.org/zap"
)

// KnowledgeRepository define a interface para persistir e recuperar as linhas de conhecimento.
type KnowledgeRepository interface {
	// Load lê todas as linhas na ordem de armazenamento.
	Load(ctx context.Context) ([]domain.Row, error)
	// Append grava as linhas de forma atômica e só retorna depois de persistidas.
	Append(ctx context.Context, rows []domain.Row) error
}

// SQLKnowledgeRepository é uma implementação do KnowledgeRepository sobre database/sql.
type SQLKnowledgeRepository struct {
	db     *sql.DB
	driver string
	logger *zap.Logger
}

// NewSQLKnowledgeRepository cria o repositório sobre uma conexão já aberta por database.Open.
func NewSQLKnowledgeRepository(db *sql.DB, driver string, logger *zap.Logger) *SQLKnowledgeRepository {
	return &SQLKnowledgeRepository{db: db, driver: driver, logger: logger}
}

func (r *SQLKnowledgeRepository) Load(ctx context.Context) ([]domain.Row, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, question, sentence FROM faq_entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("erro ao buscar conhecimento no banco de dados: %w", err)
	}
	defer rows.Close()

	var out []domain.Row
	for rows.Next() {
		var (
			id       int64
			question sql.NullString
			sentence sql.NullString
		)
		if err := rows.Scan(&id, &question, &sentence); err != nil {
			r.logger.Warn("linha de conhecimento ilegível, ignorando", zap.Error(err))
			continue
		}
		q, s := strings.TrimSpace(question.String), strings.TrimSpace(sentence.String)
		if q == "" || s == "" {
			r.logger.Warn("linha de conhecimento incompleta, ignorando", zap.Int64("id", id))
			continue
		}
		out = append(out, domain.Row{Question: q, Sentence: s})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("erro durante iteração das linhas de conhecimento: %w", err)
	}
	return out, nil
}

func (r *SQLKnowledgeRepository) Append(ctx context.Context, rows []domain.Row) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("erro ao iniciar transação: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`INSERT INTO faq_entries (question, sentence) VALUES (%s, %s)`,
		database.Placeholder(r.driver, 1), database.Placeholder(r.driver, 2))
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("erro ao preparar inserção: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.Question, row.Sentence); err != nil {
			return fmt.Errorf("erro ao salvar conhecimento no banco de dados: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("erro ao confirmar transação: %w", err)
	}

	r.logger.Info("conhecimento salvo", zap.Int("rows", len(rows)))
	return nil
}
