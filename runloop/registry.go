package runloop

import "sync"

// LoopRegistry tracks the LoopContexts of all currently running loops,
// keyed by loop key. It is the only structure shared across concurrent
// loops besides the transaction log; all access is keyed and
// mutex-guarded.
type LoopRegistry struct {
	loops map[string]*LoopContext
	mu    sync.RWMutex
}

// NewLoopRegistry creates an empty registry.
func NewLoopRegistry() *LoopRegistry {
	return &LoopRegistry{loops: make(map[string]*LoopContext)}
}

// Register inserts a loop context under its key.
func (r *LoopRegistry) Register(ctx *LoopContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loops[ctx.Key()] = ctx
}

// Deregister removes a loop context; called at terminal state.
func (r *LoopRegistry) Deregister(loopKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.loops, loopKey)
}

// Get returns the context for a loop key, or nil.
func (r *LoopRegistry) Get(loopKey string) *LoopContext {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loops[loopKey]
}

// ActiveKeys returns the keys of all running loops.
func (r *LoopRegistry) ActiveKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.loops))
	for k := range r.loops {
		keys = append(keys, k)
	}
	return keys
}

// Count returns the number of running loops.
func (r *LoopRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.loops)
}
