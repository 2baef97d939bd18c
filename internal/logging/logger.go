// Package logging monta os loggers zap do bot.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"faqbot/internal/domain"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New cria o logger principal. format aceita "json" ou "console".
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("nível de log inválido %q: %w", level, err)
	}
	if format != "json" && format != "console" {
		return nil, fmt.Errorf("formato de log inválido %q", format)
	}

	core := zapcore.NewCore(newEncoder(format), zapcore.Lock(os.Stderr), lvl)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

// Transcript grava cada mensagem recebida, uma linha JSON por mensagem.
type Transcript struct {
	logger *zap.Logger
	file   *os.File
}

// NewTranscript abre (ou cria) dir/chats.log. Com dir vazio devolve um
// Transcript que não grava nada.
func NewTranscript(dir string) (*Transcript, error) {
	if dir == "" {
		return &Transcript{logger: zap.NewNop()}, nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("erro ao criar diretório de conversas: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "chats.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("erro ao abrir registro de conversas: %w", err)
	}

	core := zapcore.NewCore(newEncoder("json"), zapcore.Lock(f), zapcore.InfoLevel)
	return &Transcript{logger: zap.New(core), file: f}, nil
}

// Record registra a mensagem recebida.
func (t *Transcript) Record(msg domain.Message) {
	t.logger.Info("message",
		zap.Int64("user_id", msg.UserID),
		zap.Int64("chat_id", msg.ChatID),
		zap.String("name", msg.Name),
		zap.String("text", msg.Text),
	)
}

func (t *Transcript) Close() error {
	if t.file == nil {
		return nil
	}
	_ = t.logger.Sync()
	return t.file.Close()
}
