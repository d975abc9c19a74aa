package runloop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/martinemde/reactor/thinking"
)

// LoopParams describes one loop to run.
type LoopParams struct {
	AgentID         string
	TaskID          string
	Task            string // task text handed to the reasoning stage; defaults to TaskID
	MaxIterations   int
	InitialFeedback string // injected into the first think call only
}

// LoopResult is the terminal outcome of a loop. Budget exhaustion is a
// first-class unsuccessful result, not an error; Err is set only for
// genuine failures.
type LoopResult struct {
	Success    bool
	Result     string
	Reason     string
	Iterations int
	Err        error
}

// ControllerConfig tunes a Controller.
type ControllerConfig struct {
	Policy               IterationPolicy
	Metrics              Collector // optional
	EventBufferSize      int
	RepeatWindow         int // action-repeat detection window; <=0 uses the default
	ObservationCharLimit int
	ObservationLineLimit int
	ThinkTimeout         time.Duration // per think call; 0 uses the stage default
	Logger               zerolog.Logger
}

// DefaultRepeatWindow is the action-repeat detection window.
const DefaultRepeatWindow = 6

// Controller owns the per-(agent,task) loop: it calls the reasoning
// stage, interprets output, dispatches tools, records transitions in
// the transaction log, and applies the iteration policy until a
// terminal state. All collaborators are injected; one Controller serves
// many concurrent loops.
type Controller struct {
	stage      thinking.Stage
	dispatcher *Dispatcher
	txns       *TransactionLog
	registry   *LoopRegistry
	emitter    *Emitter
	cfg        ControllerConfig
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// NewController wires a Controller from its collaborators.
func NewController(stage thinking.Stage, dispatcher *Dispatcher, txns *TransactionLog, registry *LoopRegistry, cfg *ControllerConfig) *Controller {
	c := ControllerConfig{Logger: zerolog.Nop()}
	if cfg != nil {
		c = *cfg
	}
	if c.RepeatWindow <= 0 {
		c.RepeatWindow = DefaultRepeatWindow
	}
	return &Controller{
		stage:      stage,
		dispatcher: dispatcher,
		txns:       txns,
		registry:   registry,
		emitter:    NewEmitter(c.EventBufferSize),
		cfg:        c,
		logger:     c.Logger,
		tracer:     otel.Tracer("runloop"),
	}
}

// Events returns the lifecycle event channel shared by all loops this
// controller runs.
func (c *Controller) Events() <-chan LoopEvent {
	return c.emitter.Events()
}

// Close closes the event channel. Call after all loops have finished.
func (c *Controller) Close() {
	c.emitter.Close()
}

// RunLoop executes one bounded think→act→observe loop to a terminal
// state. The returned error is non-nil only for invalid parameters;
// every failure after validation is folded into the LoopResult.
func (c *Controller) RunLoop(ctx context.Context, params LoopParams) (*LoopResult, error) {
	if params.AgentID == "" || params.TaskID == "" {
		return nil, newValidationError("agent and task identity are required")
	}
	if params.MaxIterations <= 0 {
		return nil, newValidationError("maxIterations must be positive, got %d", params.MaxIterations)
	}
	if c.stage == nil || c.dispatcher == nil || c.txns == nil || c.registry == nil {
		return nil, newValidationError("controller is missing a collaborator")
	}
	if params.Task == "" {
		params.Task = params.TaskID
	}

	loopCtx := newLoopContext(params.AgentID, params.TaskID, params.MaxIterations)
	key := loopCtx.Key()
	c.registry.Register(loopCtx)

	ctx, span := c.tracer.Start(ctx, "runloop.run", trace.WithAttributes(
		attribute.String("agent.id", params.AgentID),
		attribute.String("task.id", params.TaskID),
		attribute.Int("loop.max_iterations", params.MaxIterations),
	))
	defer span.End()

	c.emitter.Emit(key, EventLoopStart, map[string]interface{}{
		"agent_id":       params.AgentID,
		"task_id":        params.TaskID,
		"max_iterations": params.MaxIterations,
	})

	result := c.run(ctx, loopCtx, params)

	now := time.Now()
	loopCtx.EndTime = &now
	if result.Success || result.Err == nil {
		loopCtx.Status = StatusCompleted
	} else {
		loopCtx.Status = StatusError
		span.RecordError(result.Err)
	}

	c.registry.Deregister(key)
	c.txns.Cleanup(key)
	c.emitter.Emit(key, EventLoopEnd, map[string]interface{}{
		"success":    result.Success,
		"reason":     result.Reason,
		"iterations": result.Iterations,
	})
	c.logger.Debug().
		Str("loop_key", key).
		Bool("success", result.Success).
		Int("iterations", result.Iterations).
		Msg("loop finished")

	return result, nil
}

// run drives iterations until a terminal outcome. The caller handles
// registry/cleanup bookkeeping around it.
func (c *Controller) run(ctx context.Context, loopCtx *LoopContext, params LoopParams) *LoopResult {
	var history []Turn
	feedback := params.InitialFeedback

	for {
		if err := ctx.Err(); err != nil {
			return c.fail(loopCtx, &ExecutionError{
				LoopError: LoopError{Message: "loop cancelled", Cause: err},
				Kind:      KindThinkingFailure,
			})
		}

		// 1. Snapshot state before this iteration mutates it.
		txnID, err := c.txns.Begin(loopCtx.Key(), loopCtx.Snapshot())
		if err != nil {
			return c.fail(loopCtx, err)
		}

		iteration := loopCtx.Iterations + 1
		c.emitter.Emit(loopCtx.Key(), EventIterationStart, map[string]interface{}{
			"iteration": iteration,
		})

		// 2. Reasoning stage.
		thought, err := c.think(ctx, loopCtx, params, history, feedback)
		feedback = ""
		if err != nil {
			// Not retried: a reasoning stage with no usable output
			// terminates the loop.
			if _, rbErr := c.txns.Rollback(txnID); rbErr != nil {
				c.logger.Warn().Err(rbErr).Msg("rollback after thinking failure failed")
			}
			return c.fail(loopCtx, &ExecutionError{
				LoopError: LoopError{Message: "reasoning stage returned no usable output", Cause: err},
				Kind:      KindThinkingFailure,
			})
		}
		loopCtx.LastOutput = thought.RawText

		// 3. Interpret.
		decision := Parse(thought.RawText)
		c.emitter.Emit(loopCtx.Key(), EventDecision, map[string]interface{}{
			"iteration": iteration,
			"kind":      string(decision.Kind),
			"tool":      decision.ToolName,
		})

		switch decision.Kind {
		case DecisionFinal:
			if err := c.txns.Commit(txnID); err != nil {
				return c.fail(loopCtx, err)
			}
			c.advance(loopCtx)
			c.emitIterationEnd(loopCtx, iteration, decision)
			return &LoopResult{
				Success:    true,
				Result:     decision.FinalAnswer,
				Reason:     ReasonCompleted,
				Iterations: loopCtx.Iterations,
			}

		case DecisionAction:
			history = append(history, NewActionTurn(decision.ToolName, decision.ToolInput))
			obs, dispatchErr := c.dispatch(ctx, loopCtx, decision)
			if dispatchErr != nil {
				prev, rbErr := c.txns.Rollback(txnID)
				if rbErr != nil {
					c.logger.Warn().Err(rbErr).Msg("rollback after tool failure failed")
				} else if prev != nil {
					loopCtx.restore(*prev)
				}
				c.emitter.Emit(loopCtx.Key(), EventRollback, map[string]interface{}{
					"iteration": iteration,
					"tool":      decision.ToolName,
				})
				return c.fail(loopCtx, dispatchErr)
			}
			history = append(history, NewObservationTurn(decision.ToolName, obs, false))
			if err := c.txns.Commit(txnID); err != nil {
				return c.fail(loopCtx, err)
			}
			c.advance(loopCtx)

		case DecisionUnparseable:
			// A no-op turn: transient formatting noise in reasoning
			// output is tolerated rather than aborting the loop.
			history = append(history, NewThoughtTurn(thought.RawText))
			if err := c.txns.Commit(txnID); err != nil {
				return c.fail(loopCtx, err)
			}
			c.advance(loopCtx)
		}

		c.collectMetrics(loopCtx)
		c.emitIterationEnd(loopCtx, iteration, decision)

		// 4. Iteration policy.
		verdict := c.cfg.Policy.Decide(loopCtx.Iterations, loopCtx.MaxIterations, decision)
		switch verdict.Kind {
		case VerdictStop:
			return &LoopResult{
				Success:    false,
				Result:     loopCtx.LastOutput,
				Reason:     verdict.Reason,
				Iterations: loopCtx.Iterations,
			}
		case VerdictForceFinal:
			feedback = verdict.Message
			c.emitter.Emit(loopCtx.Key(), EventForcedFinal, map[string]interface{}{
				"iteration": loopCtx.Iterations,
			})
		}

		// 5. Steer away from repeating action patterns.
		if decision.Kind == DecisionAction && DetectRepeatedActions(history, c.cfg.RepeatWindow) {
			warning := fmt.Sprintf(
				"The last %d tool calls follow a repeating pattern. Try a different approach.",
				c.cfg.RepeatWindow)
			history = append(history, NewFeedbackTurn(warning))
			c.emitter.Emit(loopCtx.Key(), EventWarning, map[string]interface{}{
				"message": warning,
			})
		}
	}
}

// think invokes the reasoning stage and rejects empty output.
func (c *Controller) think(ctx context.Context, loopCtx *LoopContext, params LoopParams, history []Turn, feedback string) (*thinking.Thought, error) {
	ctx, span := c.tracer.Start(ctx, "runloop.think", trace.WithAttributes(
		attribute.Int("loop.iteration", loopCtx.Iterations+1),
	))
	defer span.End()

	thought, err := c.stage.Think(ctx, thinking.Request{
		AgentID:  loopCtx.AgentID,
		TaskID:   loopCtx.TaskID,
		Task:     params.Task,
		History:  HistoryToMessages(history),
		Feedback: feedback,
		Tools:    c.toolDescriptions(),
		Timeout:  c.cfg.ThinkTimeout,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if thought == nil || strings.TrimSpace(thought.RawText) == "" {
		return nil, fmt.Errorf("empty reasoning output")
	}
	return thought, nil
}

// dispatch runs one tool call and returns the truncated observation.
func (c *Controller) dispatch(ctx context.Context, loopCtx *LoopContext, decision Decision) (string, error) {
	c.emitter.Emit(loopCtx.Key(), EventToolCallStart, map[string]interface{}{
		"tool": decision.ToolName,
	})

	result, err := c.dispatcher.Invoke(ctx, decision.ToolName, decision.ToolInput)
	if err != nil {
		c.emitter.Emit(loopCtx.Key(), EventToolCallEnd, map[string]interface{}{
			"tool":  decision.ToolName,
			"error": err.Error(),
		})
		return "", err
	}

	// The event stream carries the full output; history gets the
	// truncated form.
	c.emitter.Emit(loopCtx.Key(), EventToolCallEnd, map[string]interface{}{
		"tool":    decision.ToolName,
		"retries": result.Retries,
		"output":  result.Observation,
	})
	return TruncateObservation(result.Observation, c.cfg.ObservationCharLimit, c.cfg.ObservationLineLimit), nil
}

// advance commits an iteration's effect on the live context.
func (c *Controller) advance(loopCtx *LoopContext) {
	loopCtx.Iterations++
	loopCtx.LastUpdateTime = time.Now()
}

// collectMetrics attaches collaborator-supplied snapshots.
func (c *Controller) collectMetrics(loopCtx *LoopContext) {
	if c.cfg.Metrics == nil {
		return
	}
	perf, res, usage, costs := c.cfg.Metrics.Collect(loopCtx.Key())
	if perf != nil {
		loopCtx.Performance = perf
	}
	if res != nil {
		loopCtx.Resources = res
	}
	if usage != nil {
		loopCtx.Usage = usage
	}
	if costs != nil {
		loopCtx.Costs = costs
	}
}

func (c *Controller) emitIterationEnd(loopCtx *LoopContext, iteration int, decision Decision) {
	c.emitter.Emit(loopCtx.Key(), EventIterationEnd, map[string]interface{}{
		"iteration": iteration,
		"decision":  string(decision.Kind),
	})
}

// fail folds a terminal failure into the result shape.
func (c *Controller) fail(loopCtx *LoopContext, err error) *LoopResult {
	c.emitter.Emit(loopCtx.Key(), EventError, map[string]interface{}{
		"error": err.Error(),
	})
	return &LoopResult{
		Success:    false,
		Iterations: loopCtx.Iterations,
		Err:        err,
	}
}

// toolDescriptions advertises the dispatcher's tool set to the
// reasoning stage.
func (c *Controller) toolDescriptions() []thinking.ToolDescription {
	if c.dispatcher == nil || c.dispatcher.Tools() == nil {
		return nil
	}
	set := c.dispatcher.Tools()
	names := set.Names()
	descs := make([]thinking.ToolDescription, 0, len(names))
	for _, name := range names {
		tool := set.Get(name)
		if tool == nil {
			continue
		}
		descs = append(descs, thinking.ToolDescription{
			Name:        tool.Name(),
			Description: tool.Description(),
		})
	}
	return descs
}
