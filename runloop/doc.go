// Package runloop implements a bounded think→act→observe loop
// controller for autonomous reasoning agents.
//
// A loop repeatedly calls a reasoning stage, parses its output into a
// structured decision, dispatches tool calls with timeout and bounded
// retry, and snapshots state transactionally for rollback, until the
// agent produces a final answer or exhausts its iteration budget.
// Budget exhaustion is a first-class result, not an error.
//
// # Architecture
//
// The package is organized around these core concepts:
//
//   - Controller: the orchestrator owning the per-(agent,task) loop,
//     with the reasoning stage, dispatcher, transaction log, and loop
//     registry injected as explicit collaborators.
//   - Parse: a permissive best-effort parser extracting a final answer
//     or a tool action from raw reasoning text.
//   - Dispatcher: tool resolution and invocation with a per-attempt
//     timeout, true cancellation of abandoned attempts, and linear
//     backoff retry.
//   - TransactionLog: per-iteration state snapshots with
//     begin/commit/rollback and bounded per-loop history.
//   - IterationPolicy: continue, force an early final answer, or stop,
//     based on iteration count against the budget.
//   - LoopRegistry and Emitter: concurrency-safe active-loop tracking
//     and a non-blocking lifecycle event stream.
//
// # Quick Start
//
//	stage, _ := thinking.NewGollmStage("anthropic")
//	tools := runloop.NewToolSet()
//	tools.Register(myTool)
//
//	controller := runloop.NewController(stage,
//	    runloop.NewDispatcher(tools, nil),
//	    runloop.NewTransactionLog(),
//	    runloop.NewLoopRegistry(), nil)
//	defer controller.Close()
//
//	result, err := controller.RunLoop(ctx, runloop.LoopParams{
//	    AgentID:       "researcher",
//	    TaskID:        "task-1",
//	    Task:          "Summarize the latest release notes",
//	    MaxIterations: 10,
//	})
package runloop
