package runloop

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Tool is the capability contract: tools receive structured input and
// return a textual observation. Implementations must honor context
// cancellation; an attempt abandoned by the dispatcher has its context
// cancelled.
type Tool interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, input json.RawMessage) (string, error)
}

// ToolFunc adapts a function to the Tool interface.
type ToolFunc struct {
	ToolName        string
	ToolDescription string
	Fn              func(ctx context.Context, input json.RawMessage) (string, error)
}

func (t ToolFunc) Name() string        { return t.ToolName }
func (t ToolFunc) Description() string { return t.ToolDescription }

func (t ToolFunc) Invoke(ctx context.Context, input json.RawMessage) (string, error) {
	return t.Fn(ctx, input)
}

// ToolSet manages tool registration and lookup for one agent.
type ToolSet struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewToolSet creates an empty ToolSet.
func NewToolSet() *ToolSet {
	return &ToolSet{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool in the set.
func (s *ToolSet) Register(tool Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[tool.Name()] = tool
}

// Unregister removes a tool from the set.
func (s *ToolSet) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tools, name)
}

// Get returns a registered tool by name, or nil if not found.
func (s *ToolSet) Get(name string) Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tools[name]
}

// Names returns the names of all registered tools.
func (s *ToolSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	return names
}

// Count returns the number of registered tools.
func (s *ToolSet) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tools)
}

// ParseToolInput unmarshals tool input into a map for validation and
// access.
func ParseToolInput(raw json.RawMessage) (map[string]interface{}, error) {
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid tool input: %w", err)
	}
	return args, nil
}

// GetStringArg extracts a string argument from parsed tool input.
func GetStringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetIntArg extracts an integer argument from parsed tool input.
func GetIntArg(args map[string]interface{}, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
