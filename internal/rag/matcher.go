package rag

import (
	"faqbot/internal/domain"
	"faqbot/internal/fuzzy"
)

// DefaultThreshold é a nota mínima para considerar uma pergunta respondida.
const DefaultThreshold = 70

// Candidate é a melhor pergunta encontrada, antes de aplicar o limiar.
type Candidate struct {
	Question string
	Score    int
}

// Matcher escolhe a pergunta mais parecida com o texto recebido.
type Matcher struct {
	scorer    fuzzy.Scorer
	threshold int
}

func NewMatcher(scorer fuzzy.Scorer, threshold int) Matcher {
	if scorer == nil {
		scorer = fuzzy.TokenSetRatio
	}
	return Matcher{scorer: scorer, threshold: threshold}
}

func (m Matcher) Threshold() int {
	return m.threshold
}

// Best devolve o candidato de maior nota sem aplicar o limiar.
// Empates ficam com o primeiro da lista; uma pergunta idêntica ao texto
// (após normalização) vence qualquer outra.
func (m Matcher) Best(query string, questions []string) (Candidate, bool) {
	if len(questions) == 0 {
		return Candidate{}, false
	}

	normalized := fuzzy.Normalize(query)
	best := Candidate{Score: -1}
	for _, q := range questions {
		if normalized != "" && fuzzy.Normalize(q) == normalized {
			return Candidate{Question: q, Score: 100}, true
		}
		if score := m.scorer(query, q); score > best.Score {
			best = Candidate{Question: q, Score: score}
		}
	}
	return best, true
}

// Match aplica o limiar sobre Best e resolve as respostas no snapshot.
// Devolve também o candidato para diagnóstico quando não há match.
func (m Matcher) Match(query string, snap *Snapshot) (domain.MatchResult, Candidate, bool) {
	cand, ok := m.Best(query, snap.Questions())
	if !ok || cand.Score < m.threshold {
		return domain.MatchResult{}, cand, false
	}
	return domain.MatchResult{
		Question: cand.Question,
		Score:    cand.Score,
		Answers:  snap.Answers(cand.Question),
	}, cand, true
}
