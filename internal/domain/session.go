package domain

// SessionState é o estado de uma conversa de cadastro de pergunta.
type SessionState int

const (
	StateNone SessionState = iota
	StateAwaitQuestion
	StateAwaitReplies
)

func (s SessionState) String() string {
	switch s {
	case StateAwaitQuestion:
		return "await_question"
	case StateAwaitReplies:
		return "await_replies"
	default:
		return "none"
	}
}
