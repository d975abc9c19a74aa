package runloop

// VerdictKind discriminates iteration policy outcomes.
type VerdictKind string

const (
	VerdictContinue   VerdictKind = "continue"
	VerdictForceFinal VerdictKind = "force_final"
	VerdictStop       VerdictKind = "stop"
)

// Stop reasons.
const (
	ReasonCompleted            = "completed"
	ReasonMaxIterationsReached = "max_iterations_reached"
)

// Verdict is the policy's decision for the next turn.
type Verdict struct {
	Kind    VerdictKind
	Message string // force-final feedback, when Kind is VerdictForceFinal
	Reason  string // stop reason, when Kind is VerdictStop
}

// DefaultForceFinalMessage is the convergence nudge injected when the
// iteration budget is nearly exhausted.
const DefaultForceFinalMessage = "You are almost out of iterations. " +
	"Stop exploring and produce your best final answer now, starting " +
	"your response with \"Final Answer:\"."

// IterationPolicy decides whether a loop continues, receives a
// convergence nudge, or stops. Without the force-final nudge, loops
// with tight budgets tend to run out of iterations mid-plan; warning
// one step ahead materially improves completion rates.
type IterationPolicy struct {
	// ForceFinalMessage overrides DefaultForceFinalMessage when set.
	ForceFinalMessage string
}

// Decide applies the policy after an iteration has been committed.
func (p IterationPolicy) Decide(iterations, maxIterations int, d Decision) Verdict {
	if d.Kind == DecisionFinal {
		return Verdict{Kind: VerdictStop, Reason: ReasonCompleted}
	}
	if iterations >= maxIterations {
		return Verdict{Kind: VerdictStop, Reason: ReasonMaxIterationsReached}
	}
	if iterations == maxIterations-2 {
		msg := p.ForceFinalMessage
		if msg == "" {
			msg = DefaultForceFinalMessage
		}
		// A soft nudge, not a hard stop: the agent may still take one
		// more action before the budget runs out.
		return Verdict{Kind: VerdictForceFinal, Message: msg}
	}
	return Verdict{Kind: VerdictContinue}
}
