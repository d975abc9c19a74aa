package runloop

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LoopStatus is the lifecycle state of one running loop.
type LoopStatus string

const (
	StatusRunning   LoopStatus = "running"
	StatusCompleted LoopStatus = "completed"
	StatusError     LoopStatus = "error"
)

// LoopContext is the mutable state of one running loop. The owning
// controller mutates it once per iteration; snapshots of it flow
// through the transaction log.
type LoopContext struct {
	AgentID        string     `json:"agent_id"`
	TaskID         string     `json:"task_id"`
	StartTime      time.Time  `json:"start_time"`
	LastUpdateTime time.Time  `json:"last_update_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`

	Iterations    int `json:"iterations"`
	MaxIterations int `json:"max_iterations"`

	Status     LoopStatus `json:"status"`
	LastOutput string     `json:"last_output,omitempty"`

	// Accumulated metrics snapshots, supplied by an external Collector.
	// The loop controller attaches these; it never computes them.
	Performance *PerformanceSnapshot `json:"performance,omitempty"`
	Resources   *ResourceSnapshot    `json:"resources,omitempty"`
	Usage       *UsageSnapshot       `json:"usage,omitempty"`
	Costs       *CostSnapshot        `json:"costs,omitempty"`

	key string
}

// newLoopContext creates the context for a starting loop. The loop key
// embeds a start timestamp so concurrent loops for the same (agent,
// task) pair stay isolated.
func newLoopContext(agentID, taskID string, maxIterations int) *LoopContext {
	now := time.Now()
	return &LoopContext{
		AgentID:        agentID,
		TaskID:         taskID,
		StartTime:      now,
		LastUpdateTime: now,
		MaxIterations:  maxIterations,
		Status:         StatusRunning,
		// The timestamp suffix isolates concurrent loops for the same
		// pair; the uuid fragment guards against same-nanosecond starts.
		key: fmt.Sprintf("%s:%s:%d-%s", agentID, taskID, now.UnixNano(), uuid.New().String()[:8]),
	}
}

// Key returns the unique loop key (agentId:taskId:timestamp).
func (c *LoopContext) Key() string { return c.key }

// Snapshot returns a copy of the context suitable for the transaction
// log. Metric snapshots are value copies, not shared pointers.
func (c *LoopContext) Snapshot() LoopContext {
	snap := *c
	if c.Performance != nil {
		p := *c.Performance
		snap.Performance = &p
	}
	if c.Resources != nil {
		r := *c.Resources
		snap.Resources = &r
	}
	if c.Usage != nil {
		u := *c.Usage
		snap.Usage = &u
	}
	if c.Costs != nil {
		cs := *c.Costs
		snap.Costs = &cs
	}
	return snap
}

// restore copies a snapshot's mutable fields back into the live
// context, preserving its identity and key.
func (c *LoopContext) restore(snap LoopContext) {
	c.LastUpdateTime = snap.LastUpdateTime
	c.Iterations = snap.Iterations
	c.Status = snap.Status
	c.LastOutput = snap.LastOutput
	c.Performance = snap.Performance
	c.Resources = snap.Resources
	c.Usage = snap.Usage
	c.Costs = snap.Costs
}
