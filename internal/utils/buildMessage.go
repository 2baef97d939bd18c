package utils

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxMessageLength é o limite de caracteres de uma mensagem no Telegram.
const MaxMessageLength = 4096

const (
	MsgAskQuestion     = "Vamos cadastrar uma nova pergunta. Envie o texto da pergunta.\n\nUse /cancel para desistir."
	MsgAskReplies      = "Pergunta anotada: \"%s\"\n\nAgora envie as respostas, uma por mensagem. Quando terminar, use /done."
	MsgReplyAdded      = "Resposta %d anotada. Envie outra ou use /done para salvar."
	MsgSaved           = "✅ Pergunta \"%s\" salva com %d resposta(s)."
	MsgSaveFailed      = "Não consegui salvar agora. Nada foi perdido, tente /done de novo em instantes."
	MsgNeedReply       = "Envie pelo menos uma resposta antes de usar /done."
	MsgNeedQuestion    = "Primeiro envie o texto da pergunta."
	MsgCancelled       = "Cadastro cancelado. Nada foi salvo."
	MsgNoSession       = "Nenhum cadastro em andamento. Use /newquestion para começar."
	MsgSessionOpen     = "Já existe um cadastro aberto. Use /cancel para descartá-lo antes de começar outro."
	MsgNotAuthorized   = "Desculpe %s, esse comando é restrito aos administradores."
	MsgEmptyText       = "Mensagem vazia ignorada."
	MsgReloaded        = "Base recarregada: %d pergunta(s)."
	MsgReloadFailed    = "Não consegui recarregar a base. Veja os logs."
	MsgUnavailable     = "Estou com problemas para consultar as respostas. Tente novamente mais tarde."
	MsgNoQuestions     = "Ainda não há perguntas cadastradas."
	MsgQuestionsHeader = "Perguntas disponíveis:"
)

// Personalize troca {name} pelo nome do usuário.
func Personalize(template, name string) string {
	return strings.ReplaceAll(template, "{name}", name)
}

// BuildHelp gera a lista de comandos.
func BuildHelp() string {
	return "Envie sua dúvida em texto livre e eu procuro a resposta.\n\n" +
		"/questions - lista as perguntas cadastradas\n" +
		"/help - mostra esta ajuda\n\n" +
		"Administradores:\n" +
		"/newquestion - cadastra uma nova pergunta\n" +
		"/done - salva o cadastro\n" +
		"/cancel - descarta o cadastro\n" +
		"/reload - recarrega a base de conhecimento"
}

// BuildQuestionList numera as perguntas e quebra o texto em mensagens que
// respeitam o limite do Telegram.
func BuildQuestionList(questions []string) []string {
	if len(questions) == 0 {
		return []string{MsgNoQuestions}
	}

	lines := make([]string, 0, len(questions)+1)
	lines = append(lines, MsgQuestionsHeader)
	for i, q := range questions {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, q))
	}
	return Chunk(lines, MaxMessageLength)
}

// Chunk junta as linhas com "\n" em blocos de no máximo limit caracteres.
// Uma linha maior que o limite é cortada.
func Chunk(lines []string, limit int) []string {
	var (
		out []string
		cur strings.Builder
		n   int
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
			n = 0
		}
	}

	for _, line := range lines {
		for utf8.RuneCountInString(line) > limit {
			flush()
			r := []rune(line)
			out = append(out, string(r[:limit]))
			line = string(r[limit:])
		}

		size := utf8.RuneCountInString(line)
		if n > 0 && n+1+size > limit {
			flush()
		}
		if n > 0 {
			cur.WriteByte('\n')
			n++
		}
		cur.WriteString(line)
		n += size
	}
	flush()
	return out
}
