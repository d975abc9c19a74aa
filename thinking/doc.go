// Package thinking is the reasoning-stage boundary for the loop
// controller: it turns a task, its turn history, and the available
// tools into one LLM call and returns the raw model output.
//
// # Stage
//
// The Stage interface is the only contract the loop controller depends
// on:
//
//	type Stage interface {
//	    Think(ctx context.Context, req Request) (*Thought, error)
//	}
//
// StageFunc adapts a plain function, which is how tests script
// deterministic reasoning output.
//
// # GollmStage
//
// GollmStage backs Stage with the gollm library
// (github.com/teilomillet/gollm), supporting OpenAI, Anthropic, and the
// other providers gollm supports:
//
//	stage, err := thinking.NewGollmStage("anthropic",
//	    thinking.WithModel("claude-sonnet-4-5"),
//	    thinking.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY")),
//	)
//	thought, err := stage.Think(ctx, thinking.Request{
//	    Task:  "Summarize the release notes",
//	    Tools: tools,
//	})
//
// Provider calls are retried with exponential backoff and jitter per
// RetryPolicy; failures are classified into the typed error taxonomy
// (AuthenticationError, RateLimitError, ServerError, ...) and
// IsRetryable decides which ones the retry loop may repeat.
//
// # Output grammar
//
// BuildInstructions advertises the tool set and instructs the model to
// answer with either an Action / Action Input pair or a Final Answer
// line. The loop controller's parser scans for the same markers, so
// the constants live here and are shared.
package thinking
