// Package thinking provides the reasoning-stage contract for the loop
// controller, plus a gollm-backed implementation with retry and a typed
// error taxonomy.
package thinking

import "time"

// Role identifies who produced a message in the reasoning history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFeedback  Role = "feedback"
)

// Message is one entry of the history handed to the reasoning stage.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ToolDescription advertises one available tool to the reasoning stage.
type ToolDescription struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// Request is one think call: the accumulated history, an optional
// feedback message to inject, and the task identity for observability.
type Request struct {
	AgentID  string
	TaskID   string
	Task     string
	History  []Message
	Feedback string
	Tools    []ToolDescription
	Timeout  time.Duration // 0 = stage default
}

// Usage holds token accounting reported by the provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Thought is the raw result of one reasoning call. The text is opaque
// to this package; the loop controller's parser interprets it.
type Thought struct {
	RawText string `json:"raw_text"`
	Model   string `json:"model,omitempty"`
	Usage   Usage  `json:"usage"`
}
