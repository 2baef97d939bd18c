package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"faqbot/internal/database"
	"faqbot/internal/fuzzy"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	ModePolling = "polling"
	ModeWebhook = "webhook"

	BackendCSV = "csv"

	envPrefix = "FAQBOT_"
)

// defaults é carregado antes do arquivo e das variáveis de ambiente.
const defaults = `
telegram:
  api_url: https://api.telegram.org
  mode: polling
  poll_timeout: 30s
  send_rate: 25
  send_burst: 5
knowledge:
  backend: csv
  path: rules.csv
admins:
  path: admins.txt
matcher:
  threshold: 70
  scorer: token_set
sessions:
  idle_timeout: 30m
  sweep_interval: 1m
replies:
  welcome: "Olá {name}! Eu respondo às perguntas frequentes. Envie sua dúvida ou use /help."
  no_match: "Desculpe {name}, não encontrei uma resposta para isso. Tente reformular a pergunta ou use /questions."
  thanks: "Obrigado pelo contato, {name}! Espero ter ajudado."
  thanks_on_no_match: false
log:
  level: info
  format: json
`

type Config struct {
	Telegram  TelegramConfig  `koanf:"telegram"`
	Knowledge KnowledgeConfig `koanf:"knowledge"`
	Admins    AdminsConfig    `koanf:"admins"`
	Matcher   MatcherConfig   `koanf:"matcher"`
	Sessions  SessionsConfig  `koanf:"sessions"`
	Replies   RepliesConfig   `koanf:"replies"`
	HTTP      HTTPConfig      `koanf:"http"`
	Log       LogConfig       `koanf:"log"`
}

type TelegramConfig struct {
	Token         string        `koanf:"token"`
	APIURL        string        `koanf:"api_url"`
	Mode          string        `koanf:"mode"`
	WebhookURL    string        `koanf:"webhook_url"`
	WebhookSecret string        `koanf:"webhook_secret"`
	PollTimeout   time.Duration `koanf:"poll_timeout"`
	SendRate      float64       `koanf:"send_rate"`
	SendBurst     int           `koanf:"send_burst"`
}

// KnowledgeConfig escolhe onde ficam as perguntas: arquivo CSV em Path ou
// banco (postgres, sqlite) em DSN.
type KnowledgeConfig struct {
	Backend string `koanf:"backend"`
	Path    string `koanf:"path"`
	DSN     string `koanf:"dsn"`
}

type AdminsConfig struct {
	Path string `koanf:"path"`
}

type MatcherConfig struct {
	Threshold int    `koanf:"threshold"`
	Scorer    string `koanf:"scorer"`
}

type SessionsConfig struct {
	IdleTimeout   time.Duration `koanf:"idle_timeout"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// RepliesConfig são os textos enviados ao usuário. {name} vira o primeiro nome.
type RepliesConfig struct {
	Welcome         string `koanf:"welcome"`
	Help            string `koanf:"help"`
	NoMatch         string `koanf:"no_match"`
	Thanks          string `koanf:"thanks"`
	PhotoURL        string `koanf:"photo_url"`
	ThanksOnNoMatch bool   `koanf:"thanks_on_no_match"`
}

// HTTPConfig controla o servidor de /metrics, /healthz e /webhook.
type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

type LogConfig struct {
	Level   string `koanf:"level"`
	Format  string `koanf:"format"`
	ChatDir string `koanf:"chat_dir"`
}

// Load monta a configuração em camadas: valores padrão, arquivo YAML em path
// (opcional) e variáveis de ambiente FAQBOT_SECAO_CAMPO. O .env do diretório
// atual, se existir, é carregado antes.
//
//	FAQBOT_TELEGRAM_TOKEN        -> telegram.token
//	FAQBOT_MATCHER_THRESHOLD     -> matcher.threshold
//	FAQBOT_SESSIONS_IDLE_TIMEOUT -> sessions.idle_timeout
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("erro ao carregar o arquivo .env: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider([]byte(defaults)), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("erro ao carregar valores padrão: %w", err)
	}

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("erro ao ler arquivo de configuração: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("erro ao interpretar %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("erro ao carregar variáveis de ambiente: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("erro ao decodificar configuração: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuração inválida: %w", err)
	}
	return &cfg, nil
}

// envKey separa só no primeiro "_": o resto pertence ao nome do campo.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	section, field, found := strings.Cut(lower, "_")
	if !found {
		return lower
	}
	return section + "." + field
}

func (c *Config) Validate() error {
	var errs []error

	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token é obrigatório"))
	}
	switch c.Telegram.Mode {
	case ModePolling:
	case ModeWebhook:
		if c.Telegram.WebhookURL == "" {
			errs = append(errs, errors.New("telegram.webhook_url é obrigatório no modo webhook"))
		}
		if c.HTTP.Addr == "" {
			errs = append(errs, errors.New("http.addr é obrigatório no modo webhook"))
		}
	default:
		errs = append(errs, fmt.Errorf("telegram.mode desconhecido: %q", c.Telegram.Mode))
	}
	if c.Telegram.SendRate <= 0 || c.Telegram.SendBurst <= 0 {
		errs = append(errs, errors.New("telegram.send_rate e telegram.send_burst devem ser positivos"))
	}

	switch c.Knowledge.Backend {
	case BackendCSV:
		if c.Knowledge.Path == "" {
			errs = append(errs, errors.New("knowledge.path é obrigatório com backend csv"))
		}
	case database.DriverPostgres, database.DriverSQLite:
		if c.Knowledge.DSN == "" {
			errs = append(errs, fmt.Errorf("knowledge.dsn é obrigatório com backend %s", c.Knowledge.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("knowledge.backend desconhecido: %q", c.Knowledge.Backend))
	}

	if c.Admins.Path == "" {
		errs = append(errs, errors.New("admins.path é obrigatório"))
	}
	if c.Matcher.Threshold < 0 || c.Matcher.Threshold > 100 {
		errs = append(errs, fmt.Errorf("matcher.threshold deve estar entre 0 e 100, recebido %d", c.Matcher.Threshold))
	}
	if _, err := fuzzy.Lookup(c.Matcher.Scorer); err != nil {
		errs = append(errs, fmt.Errorf("matcher.scorer: %w", err))
	}
	if c.Sessions.IdleTimeout <= 0 {
		errs = append(errs, errors.New("sessions.idle_timeout deve ser positivo"))
	}
	if c.Sessions.SweepInterval <= 0 {
		errs = append(errs, errors.New("sessions.sweep_interval deve ser positivo"))
	}

	return errors.Join(errs...)
}
