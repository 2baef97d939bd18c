package domain

// Row é uma linha do arquivo de conhecimento: uma pergunta e um trecho de resposta.
type Row struct {
	Question string
	Sentence string
}

// KnowledgeEntry agrupa todas as linhas de uma mesma pergunta, na ordem do arquivo.
type KnowledgeEntry struct {
	Question string
	Answers  []string
}

// MatchResult é o resultado de uma busca aproximada bem sucedida.
type MatchResult struct {
	Question string
	Score    int
	Answers  []string
}

// Rows expande a entrada em linhas, uma por resposta.
func (e KnowledgeEntry) Rows() []Row {
	rows := make([]Row, 0, len(e.Answers))
	for _, a := range e.Answers {
		rows = append(rows, Row{Question: e.Question, Sentence: a})
	}
	return rows
}
