package runloop

import (
	"encoding/json"
	"time"

	"github.com/martinemde/reactor/thinking"
)

// TurnKind discriminates loop history entries.
type TurnKind string

const (
	TurnThought     TurnKind = "thought"
	TurnAction      TurnKind = "action"
	TurnObservation TurnKind = "observation"
	TurnFeedback    TurnKind = "feedback"
)

// Turn is a single entry in a loop's history.
type Turn struct {
	Kind      TurnKind  `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	// Thought: the raw reasoning output.
	Text string `json:"text,omitempty"`

	// Action: the dispatched tool call.
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`

	// Observation: the tool's textual result.
	Observation string `json:"observation,omitempty"`
	IsError     bool   `json:"is_error,omitempty"`
}

// NewThoughtTurn records raw reasoning output.
func NewThoughtTurn(text string) Turn {
	return Turn{Kind: TurnThought, Timestamp: time.Now(), Text: text}
}

// NewActionTurn records a dispatched tool call.
func NewActionTurn(toolName string, input json.RawMessage) Turn {
	return Turn{Kind: TurnAction, Timestamp: time.Now(), ToolName: toolName, ToolInput: input}
}

// NewObservationTurn records a tool result.
func NewObservationTurn(toolName, observation string, isError bool) Turn {
	return Turn{
		Kind:        TurnObservation,
		Timestamp:   time.Now(),
		ToolName:    toolName,
		Observation: observation,
		IsError:     isError,
	}
}

// NewFeedbackTurn records an injected feedback message.
func NewFeedbackTurn(text string) Turn {
	return Turn{Kind: TurnFeedback, Timestamp: time.Now(), Text: text}
}

// HistoryToMessages converts loop history into reasoning-stage messages.
func HistoryToMessages(history []Turn) []thinking.Message {
	msgs := make([]thinking.Message, 0, len(history))
	for _, turn := range history {
		switch turn.Kind {
		case TurnThought:
			msgs = append(msgs, thinking.Message{Role: thinking.RoleAssistant, Content: turn.Text})
		case TurnAction:
			msgs = append(msgs, thinking.Message{
				Role:    thinking.RoleAssistant,
				Content: "Action: " + turn.ToolName + "\nAction Input: " + string(turn.ToolInput),
			})
		case TurnObservation:
			prefix := "Observation"
			if turn.IsError {
				prefix = "Observation (error)"
			}
			msgs = append(msgs, thinking.Message{
				Role:    thinking.RoleUser,
				Content: prefix + ": " + turn.Observation,
			})
		case TurnFeedback:
			msgs = append(msgs, thinking.Message{Role: thinking.RoleFeedback, Content: turn.Text})
		}
	}
	return msgs
}
