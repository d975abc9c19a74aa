package runloop

import (
	"encoding/json"
	"strings"
)

// DecisionKind discriminates parsed reasoning output.
type DecisionKind string

const (
	DecisionFinal       DecisionKind = "final_answer"
	DecisionAction      DecisionKind = "action"
	DecisionUnparseable DecisionKind = "unparseable"
)

// Decision is the structured interpretation of one reasoning-stage
// output. Exactly one variant applies per response.
type Decision struct {
	Kind        DecisionKind    `json:"kind"`
	FinalAnswer string          `json:"final_answer,omitempty"`
	ToolName    string          `json:"tool_name,omitempty"`
	ToolInput   json.RawMessage `json:"tool_input,omitempty"`
}

// Output grammar markers. These match the instruction block the
// thinking package emits.
const (
	finalAnswerMarker = "Final Answer:"
	actionMarker      = "Action:"
	actionInputMarker = "Action Input:"
)

var emptyInput = json.RawMessage("{}")

// Parse extracts a Decision from raw reasoning text. It is deliberately
// permissive: reasoning output is unreliable free text, and the loop
// controller tolerates parser misses rather than aborting.
func Parse(raw string) Decision {
	// A final answer wins even if an action marker also appears earlier
	// in the text; the model has declared it is done.
	if idx := strings.Index(raw, finalAnswerMarker); idx >= 0 {
		return Decision{
			Kind:        DecisionFinal,
			FinalAnswer: strings.TrimSpace(raw[idx+len(finalAnswerMarker):]),
		}
	}

	idx := strings.Index(raw, actionMarker)
	if idx < 0 {
		return Decision{Kind: DecisionUnparseable}
	}

	rest := raw[idx+len(actionMarker):]
	name, afterName := firstToken(rest)
	if name == "" {
		return Decision{Kind: DecisionUnparseable}
	}

	// Optional Action Input block. A missing or malformed block falls
	// back to an empty object: fail open, not fail closed.
	input := emptyInput
	if j := strings.Index(afterName, actionInputMarker); j >= 0 {
		if block, ok := extractJSON(afterName[j+len(actionInputMarker):]); ok {
			input = block
		}
	}

	return Decision{
		Kind:      DecisionAction,
		ToolName:  name,
		ToolInput: input,
	}
}

// firstToken returns the first whitespace-delimited token of s and the
// remainder after it.
func firstToken(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")
	end := strings.IndexAny(s, " \t\r\n")
	if end < 0 {
		return strings.TrimSpace(s), ""
	}
	return s[:end], s[end:]
}

// extractJSON finds the first balanced JSON object in s and validates
// it parses. Reports false on malformed or absent input.
func extractJSON(s string) (json.RawMessage, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return nil, false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := s[start : i+1]
				if json.Valid([]byte(candidate)) {
					return json.RawMessage(candidate), true
				}
				return nil, false
			}
		}
	}
	return nil, false
}
