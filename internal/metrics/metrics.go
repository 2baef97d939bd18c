// Package metrics expõe os contadores Prometheus do bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "faqbot"

var (
	// Messages conta mensagens recebidas por tipo.
	// Labels: kind (command, session, query)
	Messages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total de mensagens recebidas por tipo",
		},
		[]string{"kind"},
	)

	// Matches conta buscas por resultado.
	// Labels: outcome (match, no_match, error)
	Matches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_total",
			Help:      "Total de buscas por resultado",
		},
		[]string{"outcome"},
	)

	MatchScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_score",
			Help:      "Nota do melhor candidato de cada busca",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		},
	)

	SessionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_open",
			Help:      "Conversas de cadastro abertas",
		},
	)

	KnowledgeRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "kb_rows",
			Help:      "Linhas carregadas da base de conhecimento",
		},
	)

	// KnowledgeCommits conta gravações na base.
	// Labels: result (ok, error)
	KnowledgeCommits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kb_commits_total",
			Help:      "Gravações de novas perguntas na base",
		},
		[]string{"result"},
	)

	SendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Falhas ao enviar respostas pelo transporte",
		},
	)
)
