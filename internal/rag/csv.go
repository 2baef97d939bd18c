package rag

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"faqbot/internal/domain"

	"go.uber.org/zap"
)

const (
	columnQuestion = "Question"
	columnSentence = "Sentence"
)

// CSVKnowledgeRepository guarda as linhas num arquivo CSV com cabeçalho.
// Só as colunas Question e Sentence são usadas; as demais são preservadas vazias ao anexar.
type CSVKnowledgeRepository struct {
	path   string
	logger *zap.Logger
	open   func(path string) (appendFile, error)
}

// appendFile é o que Append usa de um *os.File.
type appendFile interface {
	io.Writer
	Stat() (os.FileInfo, error)
	Sync() error
	Truncate(size int64) error
	Close() error
}

func NewCSVKnowledgeRepository(path string, logger *zap.Logger) *CSVKnowledgeRepository {
	return &CSVKnowledgeRepository{path: path, logger: logger, open: openForAppend}
}

func openForAppend(path string) (appendFile, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
}

type csvLayout struct {
	width    int
	question int
	sentence int
}

// Load lê todas as linhas válidas. Linhas malformadas são registradas e
// ignoradas; uma aspa sem fechamento descarta só a linha onde começou.
func (r *CSVKnowledgeRepository) Load(ctx context.Context) ([]domain.Row, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("erro ao abrir base de conhecimento %s: %w", r.path, err)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	layout, err := readHeader(reader)
	if err != nil {
		return nil, fmt.Errorf("base de conhecimento %s: %w", r.path, err)
	}

	var (
		rows []domain.Row
		base int // linhas do arquivo antes do início do reader atual
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			line := base + parseErr.StartLine
			r.logger.Warn("linha malformada na base de conhecimento, ignorando",
				zap.Int("line", line), zap.Error(parseErr.Err))
			if errors.Is(parseErr.Err, csv.ErrQuote) {
				// o reader consumiu o resto do arquivo procurando a aspa final
				next := lineOffset(data, line)
				if next >= len(data) {
					break
				}
				reader = csv.NewReader(bytes.NewReader(data[next:]))
				reader.FieldsPerRecord = layout.width
				base = line
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("erro ao ler base de conhecimento: %w", err)
		}

		line, _ := reader.FieldPos(0)
		q := strings.TrimSpace(record[layout.question])
		s := strings.TrimSpace(record[layout.sentence])
		if q == "" || s == "" {
			r.logger.Warn("linha sem pergunta ou resposta, ignorando", zap.Int("line", base+line))
			continue
		}
		rows = append(rows, domain.Row{Question: q, Sentence: s})
	}

	r.logger.Debug("base de conhecimento carregada", zap.String("path", r.path), zap.Int("rows", len(rows)))
	return rows, nil
}

// lineOffset devolve a posição do primeiro byte depois da n-ésima quebra de linha.
func lineOffset(data []byte, n int) int {
	off := 0
	for i := 0; i < n; i++ {
		idx := bytes.IndexByte(data[off:], '\n')
		if idx < 0 {
			return len(data)
		}
		off += idx + 1
	}
	return off
}

func (r *CSVKnowledgeRepository) Append(ctx context.Context, rows []domain.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	layout, needsNewline, err := r.inspect()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if needsNewline {
		buf.WriteByte('\n')
	}
	w := csv.NewWriter(&buf)
	for _, row := range rows {
		record := make([]string, layout.width)
		record[layout.question] = row.Question
		record[layout.sentence] = row.Sentence
		if err := w.Write(record); err != nil {
			return fmt.Errorf("erro ao montar linha CSV: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("erro ao montar linhas CSV: %w", err)
	}

	f, err := r.open(r.path)
	if err != nil {
		return fmt.Errorf("erro ao abrir base de conhecimento para escrita: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("erro ao inspecionar base de conhecimento: %w", err)
	}
	size := info.Size()

	// uma única escrita mantém o lote inteiro junto no arquivo
	if _, err := f.Write(buf.Bytes()); err != nil {
		return r.rollback(f, size, fmt.Errorf("erro ao gravar base de conhecimento: %w", err))
	}
	if err := f.Sync(); err != nil {
		return r.rollback(f, size, fmt.Errorf("erro ao sincronizar base de conhecimento: %w", err))
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("erro ao fechar base de conhecimento: %w", err)
	}

	r.logger.Info("conhecimento salvo", zap.String("path", r.path), zap.Int("rows", len(rows)))
	return nil
}

// rollback corta o arquivo de volta ao tamanho anterior ao lote, para que
// uma falha não deixe linhas parciais e a nova tentativa não as duplique.
func (r *CSVKnowledgeRepository) rollback(f appendFile, size int64, cause error) error {
	defer f.Close()
	if err := f.Truncate(size); err != nil {
		r.logger.Error("erro ao desfazer escrita parcial na base de conhecimento",
			zap.String("path", r.path), zap.Int64("size", size), zap.Error(err))
		return errors.Join(cause, err)
	}
	if err := f.Sync(); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// inspect relê o cabeçalho e verifica se o arquivo termina em quebra de linha.
func (r *CSVKnowledgeRepository) inspect() (csvLayout, bool, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return csvLayout{}, false, fmt.Errorf("erro ao abrir base de conhecimento %s: %w", r.path, err)
	}
	defer f.Close()

	layout, err := readHeader(csv.NewReader(f))
	if err != nil {
		return csvLayout{}, false, fmt.Errorf("base de conhecimento %s: %w", r.path, err)
	}

	info, err := f.Stat()
	if err != nil {
		return csvLayout{}, false, fmt.Errorf("erro ao inspecionar base de conhecimento: %w", err)
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return csvLayout{}, false, fmt.Errorf("erro ao inspecionar base de conhecimento: %w", err)
	}
	return layout, last[0] != '\n', nil
}

func readHeader(reader *csv.Reader) (csvLayout, error) {
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return csvLayout{}, errors.New("arquivo vazio, cabeçalho ausente")
	}
	if err != nil {
		return csvLayout{}, fmt.Errorf("erro ao ler cabeçalho: %w", err)
	}

	layout := csvLayout{width: len(header), question: -1, sentence: -1}
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case columnQuestion:
			layout.question = i
		case columnSentence:
			layout.sentence = i
		}
	}
	if layout.question < 0 || layout.sentence < 0 {
		return csvLayout{}, fmt.Errorf("cabeçalho precisa das colunas %s e %s", columnQuestion, columnSentence)
	}
	return layout, nil
}
