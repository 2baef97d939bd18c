package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open abre a conexão com o banco, confere com ping e garante a tabela de perguntas.
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (*sql.DB, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("driver de banco nao suportado: %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("erro ao abrir conexão com o banco de dados: %w", err)
	}
	if driver == DriverSQLite {
		// sqlite serializa escritas; uma conexão evita SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("erro ao conectar com o banco de dados (ping): %w", err)
	}

	logger.Info("conexão com o banco de dados estabelecida", zap.String("driver", driver))
	if err := createFAQTableIfNotExists(ctx, db, driver); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Placeholder devolve o marcador do n-ésimo parâmetro (a partir de 1) para o driver.
func Placeholder(driver string, n int) string {
	if driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// createFAQTableIfNotExists cria a tabela de linhas pergunta/resposta, se ela não existir.
func createFAQTableIfNotExists(ctx context.Context, db *sql.DB, driver string) error {
	id := "BIGSERIAL PRIMARY KEY"
	ts := "TIMESTAMPTZ"
	if driver == DriverSQLite {
		id = "INTEGER PRIMARY KEY AUTOINCREMENT"
		ts = "TIMESTAMP"
	}

	query := strings.NewReplacer("{id}", id, "{ts}", ts).Replace(`
    CREATE TABLE IF NOT EXISTS faq_entries (
        id {id},
        question TEXT NOT NULL,
        sentence TEXT NOT NULL,
        created_at {ts} DEFAULT CURRENT_TIMESTAMP
    );`)

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("erro ao criar tabela faq_entries: %w", err)
	}
	return nil
}
