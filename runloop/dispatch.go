package runloop

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultAttemptTimeout bounds one tool attempt.
	DefaultAttemptTimeout = 300 * time.Second

	// DefaultMaxAttempts is the total attempt budget per invocation.
	DefaultMaxAttempts = 3

	// DefaultRetryBaseDelay seeds the linear backoff: the delay after
	// attempt n is base * n.
	DefaultRetryBaseDelay = 1 * time.Second
)

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	AttemptTimeout time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
	Logger         zerolog.Logger
}

// DefaultDispatcherConfig returns the default dispatch configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		AttemptTimeout: DefaultAttemptTimeout,
		MaxAttempts:    DefaultMaxAttempts,
		RetryBaseDelay: DefaultRetryBaseDelay,
		Logger:         zerolog.Nop(),
	}
}

// DispatchResult reports a successful invocation: the observation plus
// how hard the dispatcher had to work for it.
type DispatchResult struct {
	ToolName    string
	Observation string
	Retries     int // failed attempts before the successful one
	Elapsed     time.Duration
}

// Dispatcher resolves tool names against a ToolSet and invokes them
// with a per-attempt timeout and bounded linear-backoff retry. One
// Dispatcher serves many loops; it holds no per-invocation state.
type Dispatcher struct {
	tools  *ToolSet
	cfg    DispatcherConfig
	tracer trace.Tracer
}

// NewDispatcher creates a Dispatcher over the given tool set.
func NewDispatcher(tools *ToolSet, cfg *DispatcherConfig) *Dispatcher {
	c := DefaultDispatcherConfig()
	if cfg != nil {
		c = *cfg
		if c.AttemptTimeout <= 0 {
			c.AttemptTimeout = DefaultAttemptTimeout
		}
		if c.MaxAttempts <= 0 {
			c.MaxAttempts = DefaultMaxAttempts
		}
		if c.RetryBaseDelay <= 0 {
			c.RetryBaseDelay = DefaultRetryBaseDelay
		}
	}
	return &Dispatcher{
		tools:  tools,
		cfg:    c,
		tracer: otel.Tracer("runloop"),
	}
}

// Tools returns the underlying tool set.
func (d *Dispatcher) Tools() *ToolSet { return d.tools }

// attemptOutcome carries one attempt's result across the goroutine
// boundary.
type attemptOutcome struct {
	observation string
	err         error
}

// Invoke resolves toolName and invokes it. An unknown tool fails with
// *NotFoundError and is never retried. A tool panic fails with
// *ContractError and is never retried. Timeouts and tool errors are
// retried up to the attempt budget; exhaustion fails with a
// non-retryable *ExecutionError.
func (d *Dispatcher) Invoke(ctx context.Context, toolName string, input json.RawMessage) (*DispatchResult, error) {
	tool := d.tools.Get(toolName)
	if tool == nil {
		return nil, newNotFoundError(toolName, "tool %q is not in the agent's tool set", toolName)
	}
	if len(input) == 0 {
		input = emptyInput
	}

	ctx, span := d.tracer.Start(ctx, "runloop.dispatch", trace.WithAttributes(
		attribute.String("tool.name", toolName),
	))
	defer span.End()

	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		observation, err := d.runAttempt(ctx, tool, input)
		if err == nil {
			result := &DispatchResult{
				ToolName:    toolName,
				Observation: observation,
				Retries:     attempt - 1,
				Elapsed:     time.Since(start),
			}
			span.SetAttributes(attribute.Int("tool.retries", result.Retries))
			return result, nil
		}

		if _, ok := err.(*ContractError); ok {
			// Programmer error in the tool; retrying cannot help.
			span.RecordError(err)
			return nil, err
		}
		if ctx.Err() != nil {
			// Caller cancelled; stop burning the attempt budget.
			span.RecordError(ctx.Err())
			return nil, &ExecutionError{
				LoopError: LoopError{Message: fmt.Sprintf("tool %s cancelled", toolName), Cause: ctx.Err()},
				Kind:      KindToolFailure,
				Retryable: false,
			}
		}

		lastErr = err
		d.cfg.Logger.Debug().
			Str("tool", toolName).
			Int("attempt", attempt).
			Err(err).
			Msg("tool attempt failed")

		if attempt < d.cfg.MaxAttempts {
			delay := d.cfg.RetryBaseDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				span.RecordError(ctx.Err())
				return nil, &ExecutionError{
					LoopError: LoopError{Message: fmt.Sprintf("tool %s cancelled during backoff", toolName), Cause: ctx.Err()},
					Kind:      KindToolFailure,
					Retryable: false,
				}
			case <-time.After(delay):
			}
		}
	}

	err := &ExecutionError{
		LoopError: LoopError{
			Message: fmt.Sprintf("tool %s failed after %d attempts", toolName, d.cfg.MaxAttempts),
			Cause:   lastErr,
		},
		Kind:      KindToolFailure,
		Retryable: false,
	}
	span.RecordError(err)
	return nil, err
}

// runAttempt executes one attempt under its own timeout. The attempt
// context is cancelled on deadline so a cooperative tool stops doing
// work; a result that arrives after abandonment is discarded.
func (d *Dispatcher) runAttempt(ctx context.Context, tool Tool, input json.RawMessage) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
	defer cancel()

	start := time.Now()
	outcome := make(chan attemptOutcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				outcome <- attemptOutcome{err: &ContractError{
					LoopError: LoopError{Message: fmt.Sprintf("tool %s panicked: %v", tool.Name(), r)},
					ToolName:  tool.Name(),
				}}
			}
		}()
		observation, err := tool.Invoke(attemptCtx, input)
		outcome <- attemptOutcome{observation: observation, err: err}
	}()

	select {
	case out := <-outcome:
		if out.err != nil {
			return "", out.err
		}
		return out.observation, nil
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			// Parent cancellation, not the attempt deadline.
			return "", ctx.Err()
		}
		return "", &TimeoutError{
			LoopError: LoopError{Message: "tool attempt exceeded its timeout"},
			ToolName:  tool.Name(),
			Elapsed:   time.Since(start),
		}
	}
}
