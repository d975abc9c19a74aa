package thinking

import "context"

// Stage is the reasoning-stage contract the loop controller depends on.
// Implementations must honor context cancellation and the per-request
// timeout; failures surface as errors from the taxonomy in errors.go.
type Stage interface {
	Think(ctx context.Context, req Request) (*Thought, error)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc func(ctx context.Context, req Request) (*Thought, error)

func (f StageFunc) Think(ctx context.Context, req Request) (*Thought, error) {
	return f(ctx, req)
}
