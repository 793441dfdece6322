package domain

// Message roles. The gateway only ever appends user and assistant turns to a
// conversation; system is reserved for LLM prompt scaffolding.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single chat turn inside a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Conversation is an ordered, append-only message history identified by an
// opaque token. Histories are never pruned; lifetime is process uptime.
type Conversation struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
}
