package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/antoniostano/robotbuddy/internal/inference"
	"github.com/antoniostano/robotbuddy/internal/mode"
)

const (
	// MaxHistory is how many of the most recent turns are forwarded to the model.
	MaxHistory = 12
	// MaxFactsUsed is how many ranked facts are reported back to the caller.
	MaxFactsUsed = 5
)

// FallbackAnswer is returned when the inference backend cannot be reached.
const FallbackAnswer = "Ik kan het model nu niet bereiken. Start Ollama en probeer opnieuw."

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one earlier message of the conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a single-shot chat call.
type Request struct {
	UserText       string `json:"user_text"`
	History        []Turn `json:"history"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Result is the reply to a chat call. It is fully populated even when the backend
// was unavailable.
type Result struct {
	Mode           mode.Mode `json:"mode"`
	Answer         string    `json:"answer"`
	FactsUsed      []string  `json:"facts_used"`
	ConversationID string    `json:"-"`
}

type EventKind string

const (
	EventChunk EventKind = "chunk"
	EventDone  EventKind = "done"
	EventError EventKind = "error"
)

// Event is one item of a stream relay. On the wire it is {"chunk"}, {"done","mode",
// "facts_used"} or {"error","mode"} depending on Kind.
type Event struct {
	Kind      EventKind
	Chunk     string
	Mode      mode.Mode
	FactsUsed []string
	Error     string
}

func (e Event) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}

func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case EventChunk:
		return json.Marshal(struct {
			Chunk string `json:"chunk"`
		}{e.Chunk})
	case EventDone:
		facts := e.FactsUsed
		if facts == nil {
			facts = []string{}
		}
		return json.Marshal(struct {
			Done      bool      `json:"done"`
			Mode      mode.Mode `json:"mode"`
			FactsUsed []string  `json:"facts_used"`
		}{true, e.Mode, facts})
	case EventError:
		return json.Marshal(struct {
			Error string    `json:"error"`
			Mode  mode.Mode `json:"mode"`
		}{e.Error, e.Mode})
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
}

// BuildMessages orders the model input: system prompt, the last MaxHistory turns,
// then the current user text. Any role other than assistant is sent as user.
func BuildMessages(systemPrompt string, history []Turn, userText string) []inference.Message {
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}
	msgs := make([]inference.Message, 0, len(history)+2)
	msgs = append(msgs, inference.Message{Role: inference.RoleSystem, Content: systemPrompt})
	for _, turn := range history {
		role := inference.RoleUser
		if Role(strings.ToLower(strings.TrimSpace(string(turn.Role)))) == RoleAssistant {
			role = inference.RoleAssistant
		}
		msgs = append(msgs, inference.Message{Role: role, Content: turn.Content})
	}
	msgs = append(msgs, inference.Message{Role: inference.RoleUser, Content: userText})
	return msgs
}

func headFacts(facts []string) []string {
	n := len(facts)
	if n > MaxFactsUsed {
		n = MaxFactsUsed
	}
	out := make([]string, n)
	copy(out, facts[:n])
	return out
}
