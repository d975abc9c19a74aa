package runloop

import (
	"crypto/sha256"
	"fmt"
)

// actionSignature computes a deterministic signature for an action
// (tool name + hash of its input).
func actionSignature(toolName string, input []byte) string {
	h := sha256.Sum256(input)
	return fmt.Sprintf("%s:%x", toolName, h[:8])
}

// recentActionSignatures extracts the signatures of the most recent
// action turns, in chronological order.
func recentActionSignatures(history []Turn, count int) []string {
	var sigs []string
	for i := len(history) - 1; i >= 0 && len(sigs) < count; i-- {
		turn := history[i]
		if turn.Kind == TurnAction {
			sigs = append(sigs, actionSignature(turn.ToolName, turn.ToolInput))
		}
	}
	// Reverse to chronological order.
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
	return sigs
}

// DetectRepeatedActions reports whether the last windowSize actions
// follow a repeating pattern of length 1, 2, or 3. The controller
// responds with a steering feedback message rather than aborting.
func DetectRepeatedActions(history []Turn, windowSize int) bool {
	sigs := recentActionSignatures(history, windowSize)
	if len(sigs) < windowSize {
		return false
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 {
			continue
		}
		pattern := sigs[:patternLen]
		matches := true
		for i := patternLen; i < len(sigs) && matches; i++ {
			if sigs[i] != pattern[i%patternLen] {
				matches = false
			}
		}
		if matches {
			return true
		}
	}
	return false
}
