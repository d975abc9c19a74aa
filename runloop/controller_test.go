package runloop

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/martinemde/reactor/thinking"
)

// scriptedStage replays canned outputs and records each request.
type scriptedStage struct {
	mu       sync.Mutex
	outputs  []string
	err      error
	calls    int
	requests []thinking.Request
}

func (s *scriptedStage) Think(_ context.Context, req thinking.Request) (*thinking.Thought, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	out := s.outputs[len(s.outputs)-1]
	if s.calls <= len(s.outputs) {
		out = s.outputs[s.calls-1]
	}
	return &thinking.Thought{RawText: out}, nil
}

func (s *scriptedStage) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *scriptedStage) feedbacks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requests))
	for i, r := range s.requests {
		out[i] = r.Feedback
	}
	return out
}

func newTestController(stage thinking.Stage, tools *ToolSet) *Controller {
	if tools == nil {
		tools = NewToolSet()
	}
	return NewController(
		stage,
		NewDispatcher(tools, fastDispatcherConfig()),
		NewTransactionLog(),
		NewLoopRegistry(),
		&ControllerConfig{Logger: zerolog.Nop()},
	)
}

func runParams(max int) LoopParams {
	return LoopParams{
		AgentID:       "agent-1",
		TaskID:        "task-1",
		Task:          "answer the question",
		MaxIterations: max,
	}
}

func TestRunLoopValidation(t *testing.T) {
	c := newTestController(&scriptedStage{outputs: []string{"x"}}, nil)

	tests := []struct {
		name   string
		params LoopParams
	}{
		{"missing agent", LoopParams{TaskID: "t", MaxIterations: 5}},
		{"missing task", LoopParams{AgentID: "a", MaxIterations: 5}},
		{"zero iterations", LoopParams{AgentID: "a", TaskID: "t"}},
		{"negative iterations", LoopParams{AgentID: "a", TaskID: "t", MaxIterations: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.RunLoop(context.Background(), tt.params)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("expected *ValidationError, got %v", err)
			}
		})
	}
}

// Scenario: the reasoning stage never produces a parseable decision.
func TestRunLoopExhaustsBudgetOnUnparseableTurns(t *testing.T) {
	stage := &scriptedStage{outputs: []string{"hmm, let me think some more"}}
	c := newTestController(stage, nil)

	result, err := c.RunLoop(context.Background(), runParams(5))
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Error("expected unsuccessful result")
	}
	if result.Reason != ReasonMaxIterationsReached {
		t.Errorf("expected reason %q, got %q", ReasonMaxIterationsReached, result.Reason)
	}
	if result.Iterations != 5 {
		t.Errorf("expected 5 iterations, got %d", result.Iterations)
	}
	if result.Err != nil {
		t.Errorf("budget exhaustion is not an error, got %v", result.Err)
	}
	if result.Result == "" {
		t.Error("result must carry the last reasoning output")
	}
	if stage.callCount() != 5 {
		t.Errorf("reasoning stage must be invoked at most maxIterations times, got %d", stage.callCount())
	}
}

// Scenario: a final answer arrives mid-budget.
func TestRunLoopFinalAnswer(t *testing.T) {
	stage := &scriptedStage{outputs: []string{
		"thinking...",
		"still thinking...",
		"Final Answer: the capital is Lisbon",
	}}
	tool := &scriptedTool{name: "never", fn: func(_ context.Context, _ int, _ json.RawMessage) (string, error) {
		return "", nil
	}}
	tools := NewToolSet()
	tools.Register(tool)
	c := newTestController(stage, tools)

	result, err := c.RunLoop(context.Background(), runParams(10))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Result != "the capital is Lisbon" {
		t.Errorf("unexpected result: %q", result.Result)
	}
	if result.Iterations != 3 {
		t.Errorf("expected 3 iterations, got %d", result.Iterations)
	}
	if got := int(tool.calls.Load()); got != 0 {
		t.Errorf("no tool dispatch expected, got %d", got)
	}
}

// Scenario: the model asks for a tool the agent does not have.
func TestRunLoopUnknownToolFailsWithoutRetry(t *testing.T) {
	stage := &scriptedStage{outputs: []string{`Action: ghost_tool
Action Input: {}`}}
	c := newTestController(stage, nil)

	result, err := c.RunLoop(context.Background(), runParams(10))
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Error("expected failure")
	}
	var nfe *NotFoundError
	if !errors.As(result.Err, &nfe) {
		t.Fatalf("expected *NotFoundError, got %v", result.Err)
	}
	if stage.callCount() != 1 {
		t.Errorf("loop must fail on iteration 1, think calls: %d", stage.callCount())
	}
}

// Scenario: a tool recovers on its second attempt and the loop goes on.
func TestRunLoopToolRecoversAfterTimeout(t *testing.T) {
	stage := &scriptedStage{outputs: []string{
		`Action: lookup
Action Input: {"q": "x"}`,
		"Final Answer: found it",
	}}
	tool := &scriptedTool{name: "lookup", fn: func(ctx context.Context, call int, _ json.RawMessage) (string, error) {
		if call == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "result for x", nil
	}}
	tools := NewToolSet()
	tools.Register(tool)
	c := newTestController(stage, tools)

	result, err := c.RunLoop(context.Background(), runParams(10))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Iterations != 2 {
		t.Errorf("expected 2 iterations, got %d", result.Iterations)
	}
	if got := int(tool.calls.Load()); got != 2 {
		t.Errorf("expected 2 tool attempts, got %d", got)
	}
}

func TestRunLoopToolFailureRollsBackAndTerminates(t *testing.T) {
	stage := &scriptedStage{outputs: []string{`Action: broken
Action Input: {}`}}
	tool := &scriptedTool{name: "broken", fn: func(_ context.Context, _ int, _ json.RawMessage) (string, error) {
		return "", errors.New("boom")
	}}
	tools := NewToolSet()
	tools.Register(tool)
	c := newTestController(stage, tools)

	result, err := c.RunLoop(context.Background(), runParams(10))
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Error("expected failure")
	}
	var ee *ExecutionError
	if !errors.As(result.Err, &ee) {
		t.Fatalf("expected *ExecutionError, got %v", result.Err)
	}
	if ee.Kind != KindToolFailure {
		t.Errorf("expected tool failure, got %s", ee.Kind)
	}

	c.Close()
	var sawRollback bool
	for ev := range c.Events() {
		if ev.Kind == EventRollback {
			sawRollback = true
		}
	}
	if !sawRollback {
		t.Error("expected a rollback event")
	}
}

func TestRunLoopThinkingFailureTerminates(t *testing.T) {
	stage := &scriptedStage{err: errors.New("provider exploded")}
	c := newTestController(stage, nil)

	result, err := c.RunLoop(context.Background(), runParams(10))
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Error("expected failure")
	}
	var ee *ExecutionError
	if !errors.As(result.Err, &ee) {
		t.Fatalf("expected *ExecutionError, got %v", result.Err)
	}
	if ee.Kind != KindThinkingFailure {
		t.Errorf("expected thinking failure, got %s", ee.Kind)
	}
	if stage.callCount() != 1 {
		t.Errorf("thinking failures are not retried, got %d calls", stage.callCount())
	}
}

func TestRunLoopEmptyOutputIsThinkingFailure(t *testing.T) {
	stage := &scriptedStage{outputs: []string{"   \n"}}
	c := newTestController(stage, nil)

	result, err := c.RunLoop(context.Background(), runParams(10))
	if err != nil {
		t.Fatal(err)
	}
	var ee *ExecutionError
	if !errors.As(result.Err, &ee) || ee.Kind != KindThinkingFailure {
		t.Fatalf("expected thinking failure, got %v", result.Err)
	}
}

func TestRunLoopForcedFinalNudge(t *testing.T) {
	stage := &scriptedStage{outputs: []string{"noise"}}
	c := newTestController(stage, nil)

	initial := "start with the docs"
	params := runParams(5)
	params.InitialFeedback = initial
	if _, err := c.RunLoop(context.Background(), params); err != nil {
		t.Fatal(err)
	}

	feedbacks := stage.feedbacks()
	if len(feedbacks) != 5 {
		t.Fatalf("expected 5 think calls, got %d", len(feedbacks))
	}
	if feedbacks[0] != initial {
		t.Errorf("first think call must carry the initial feedback, got %q", feedbacks[0])
	}
	for _, fb := range feedbacks[1:3] {
		if fb != "" {
			t.Errorf("mid-loop feedback should be empty, got %q", fb)
		}
	}
	// After iteration 3 (== maxIterations-2) the nudge is injected into
	// think call 4.
	nudge := feedbacks[3]
	if nudge == "" {
		t.Fatal("expected a forced-final nudge on the 4th think call")
	}
	if nudge == initial {
		t.Error("nudge must be distinct from the initial feedback")
	}
	if !strings.Contains(nudge, "Final Answer") {
		t.Errorf("nudge should steer toward the final-answer grammar, got %q", nudge)
	}
}

func TestRunLoopRegistryLifecycle(t *testing.T) {
	registry := NewLoopRegistry()
	var duringRun int
	stage := thinking.StageFunc(func(_ context.Context, _ thinking.Request) (*thinking.Thought, error) {
		duringRun = registry.Count()
		return &thinking.Thought{RawText: "Final Answer: done"}, nil
	})

	c := NewController(stage, NewDispatcher(NewToolSet(), fastDispatcherConfig()),
		NewTransactionLog(), registry, nil)

	if _, err := c.RunLoop(context.Background(), runParams(3)); err != nil {
		t.Fatal(err)
	}
	if duringRun != 1 {
		t.Errorf("expected 1 registered loop during run, got %d", duringRun)
	}
	if registry.Count() != 0 {
		t.Errorf("expected loop deregistered at terminal state, got %d", registry.Count())
	}
}

func TestRunLoopConcurrentLoopsAreIsolated(t *testing.T) {
	stage := &scriptedStage{outputs: []string{
		"thinking...",
		"Final Answer: done",
	}}
	registry := NewLoopRegistry()
	txns := NewTransactionLog()
	c := NewController(stage, NewDispatcher(NewToolSet(), fastDispatcherConfig()), txns, registry, nil)

	const loops = 8
	results := make(chan *LoopResult, loops)
	errs := make(chan error, loops)

	for i := 0; i < loops; i++ {
		go func(i int) {
			result, err := c.RunLoop(context.Background(), LoopParams{
				AgentID:       "agent",
				TaskID:        "task",
				Task:          "concurrent work",
				MaxIterations: 10,
			})
			results <- result
			errs <- err
		}(i)
	}

	for i := 0; i < loops; i++ {
		if err := <-errs; err != nil {
			t.Fatal(err)
		}
		result := <-results
		if result.Err != nil {
			t.Fatalf("loop failed: %v", result.Err)
		}
	}
	if registry.Count() != 0 {
		t.Errorf("expected empty registry after all loops, got %d", registry.Count())
	}
}

func TestRunLoopCancellation(t *testing.T) {
	stage := thinking.StageFunc(func(ctx context.Context, _ thinking.Request) (*thinking.Thought, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return &thinking.Thought{RawText: "noise"}, nil
		}
	})
	c := newTestController(stage, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result, err := c.RunLoop(ctx, runParams(10))
	if err != nil {
		t.Fatal(err)
	}
	if result.Success || result.Err == nil {
		t.Errorf("expected a failed result after cancellation, got %+v", result)
	}
}
