package thinking

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FinalAnswerMarker and ActionMarker define the output grammar the
// reasoning stage is instructed to follow. The loop controller's parser
// scans for the same markers.
const (
	FinalAnswerMarker = "Final Answer:"
	ActionMarker      = "Action:"
	ActionInputMarker = "Action Input:"
)

// BuildInstructions renders the system instruction block: the task, the
// available tools, and the output grammar.
func BuildInstructions(task string, tools []ToolDescription) string {
	var sb strings.Builder

	sb.WriteString("You are an autonomous reasoning agent working on the following task:\n\n")
	sb.WriteString(task)
	sb.WriteString("\n\n")

	if len(tools) > 0 {
		sb.WriteString("You have access to the following tools:\n\n")
		for _, t := range tools {
			sb.WriteString("- ")
			sb.WriteString(t.Name)
			if t.Description != "" {
				sb.WriteString(": ")
				sb.WriteString(t.Description)
			}
			if len(t.Parameters) > 0 {
				if params, err := json.Marshal(t.Parameters); err == nil {
					sb.WriteString(" (input schema: ")
					sb.Write(params)
					sb.WriteString(")")
				}
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("To use a tool, respond with:\n")
	sb.WriteString(ActionMarker + " the tool name\n")
	sb.WriteString(ActionInputMarker + " a JSON object with the tool input\n\n")
	sb.WriteString("When you have the answer, or no tool is needed, respond with:\n")
	sb.WriteString(FinalAnswerMarker + " the final answer to the task\n")

	return sb.String()
}

// RenderHistory flattens the message history into a single prompt body.
// gollm prompts are single-shot, so prior turns are included as labeled
// context lines.
func RenderHistory(history []Message, feedback string) string {
	var parts []string
	for _, msg := range history {
		switch msg.Role {
		case RoleUser:
			parts = append(parts, msg.Content)
		case RoleAssistant:
			if msg.Content != "" {
				parts = append(parts, "[Assistant]: "+msg.Content)
			}
		case RoleFeedback:
			parts = append(parts, "[Feedback]: "+msg.Content)
		case RoleSystem:
			// System content belongs in the instruction block, but a
			// stray system message is still surfaced rather than lost.
			parts = append(parts, "[System]: "+msg.Content)
		}
	}
	if feedback != "" {
		parts = append(parts, fmt.Sprintf("[Feedback]: %s", feedback))
	}
	if len(parts) == 0 {
		return "Begin."
	}
	return strings.Join(parts, "\n")
}
