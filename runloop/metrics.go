package runloop

import "time"

// PerformanceSnapshot holds timing metrics for a loop.
type PerformanceSnapshot struct {
	ThinkDuration    time.Duration `json:"think_duration"`
	DispatchDuration time.Duration `json:"dispatch_duration"`
	TotalDuration    time.Duration `json:"total_duration"`
}

// ResourceSnapshot holds process resource metrics.
type ResourceSnapshot struct {
	HeapBytes  uint64 `json:"heap_bytes"`
	Goroutines int    `json:"goroutines"`
}

// UsageSnapshot holds accumulated token accounting.
type UsageSnapshot struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// CostSnapshot holds accumulated spend estimates.
type CostSnapshot struct {
	TotalUSD float64 `json:"total_usd"`
}

// Collector supplies metrics snapshots for a loop. The controller calls
// it once per iteration and attaches whatever it returns; nil fields
// are left untouched. Implementations live outside this package.
type Collector interface {
	Collect(loopKey string) (*PerformanceSnapshot, *ResourceSnapshot, *UsageSnapshot, *CostSnapshot)
}
