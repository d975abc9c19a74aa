package runloop

import (
	"fmt"
	"strings"
)

// Default observation bounds applied before a tool result enters the
// loop history. The full output still flows to the event stream.
const (
	DefaultObservationCharLimit = 20000
	DefaultObservationLineLimit = 256
)

// TruncateObservation bounds a tool observation to maxChars characters
// and maxLines lines, keeping the head and tail and removing the
// middle. Non-positive limits fall back to the defaults.
func TruncateObservation(observation string, maxChars, maxLines int) string {
	if maxChars <= 0 {
		maxChars = DefaultObservationCharLimit
	}
	if maxLines <= 0 {
		maxLines = DefaultObservationLineLimit
	}

	out := observation
	if len(out) > maxChars {
		half := maxChars / 2
		removed := len(out) - maxChars
		out = out[:half] +
			fmt.Sprintf("\n\n[Observation truncated: %d characters removed from the middle. "+
				"The full output is available in the event stream.]\n\n", removed) +
			out[len(out)-half:]
	}

	lines := strings.Split(out, "\n")
	if len(lines) > maxLines {
		half := maxLines / 2
		removed := len(lines) - maxLines
		kept := append([]string{}, lines[:half]...)
		kept = append(kept, fmt.Sprintf("[Observation truncated: %d lines removed from the middle.]", removed))
		kept = append(kept, lines[len(lines)-half:]...)
		out = strings.Join(kept, "\n")
	}

	return out
}
