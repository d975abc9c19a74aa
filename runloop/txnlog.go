package runloop

import (
	"fmt"
	"sync"
	"time"
)

// TxStatus is the lifecycle state of a state transaction.
type TxStatus string

const (
	TxPending    TxStatus = "pending"
	TxCommitted  TxStatus = "committed"
	TxRolledBack TxStatus = "rolled_back"
)

// StateTransaction is an immutable record of one proposed state change:
// the snapshot taken at begin, plus the previous committed snapshot for
// rollback.
type StateTransaction struct {
	ID        string
	LoopKey   string
	Timestamp time.Time
	Context   LoopContext
	Previous  *LoopContext
	Status    TxStatus
}

// DefaultMaxHistory bounds the committed snapshots retained per loop
// key; the oldest entries are evicted.
const DefaultMaxHistory = 100

// TransactionLog snapshots loop state per iteration with
// begin/commit/rollback semantics and bounded per-key history. It is
// safe for concurrent use; all state is keyed by loop key.
type TransactionLog struct {
	mu         sync.Mutex
	txns       map[string]*StateTransaction
	pending    map[string]string // loop key -> pending transaction id
	history    map[string][]LoopContext
	maxHistory int
}

// NewTransactionLog creates an initialized TransactionLog. A zero-value
// TransactionLog is not usable: Begin fails with *NotInitializedError.
func NewTransactionLog() *TransactionLog {
	return &TransactionLog{
		txns:       make(map[string]*StateTransaction),
		pending:    make(map[string]string),
		history:    make(map[string][]LoopContext),
		maxHistory: DefaultMaxHistory,
	}
}

// Begin opens a transaction snapshotting ctx under loopKey. At most one
// transaction may be pending per loop key; the pending one must be
// committed or rolled back before the next Begin.
func (l *TransactionLog) Begin(loopKey string, ctx LoopContext) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.txns == nil {
		return "", &NotInitializedError{LoopError: LoopError{
			Message: "transaction log is not initialized; use NewTransactionLog",
		}}
	}
	if pendingID, ok := l.pending[loopKey]; ok {
		return "", &LoopError{Message: fmt.Sprintf(
			"loop %s already has pending transaction %s", loopKey, pendingID)}
	}

	now := time.Now()
	id := fmt.Sprintf("%s:%d", loopKey, now.UnixNano())
	for n := 1; ; n++ {
		if _, taken := l.txns[id]; !taken {
			break
		}
		// Same-nanosecond collision on a coarse clock.
		id = fmt.Sprintf("%s:%d-%d", loopKey, now.UnixNano(), n)
	}

	txn := &StateTransaction{
		ID:        id,
		LoopKey:   loopKey,
		Timestamp: now,
		Context:   ctx,
		Status:    TxPending,
	}
	if hist := l.history[loopKey]; len(hist) > 0 {
		prev := hist[len(hist)-1]
		txn.Previous = &prev
	}

	l.txns[id] = txn
	l.pending[loopKey] = id
	return id, nil
}

// Commit resolves a pending transaction and appends its snapshot to the
// loop's history, evicting the oldest entry past the bound.
func (l *TransactionLog) Commit(transactionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	txn, err := l.takePending(transactionID)
	if err != nil {
		return err
	}
	txn.Status = TxCommitted

	hist := append(l.history[txn.LoopKey], txn.Context)
	if len(hist) > l.maxHistory {
		hist = hist[len(hist)-l.maxHistory:]
	}
	l.history[txn.LoopKey] = hist
	return nil
}

// Rollback resolves a pending transaction and returns the previous
// committed snapshot, if any, so the caller can restore it. History is
// not mutated.
func (l *TransactionLog) Rollback(transactionID string) (*LoopContext, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	txn, err := l.takePending(transactionID)
	if err != nil {
		return nil, err
	}
	txn.Status = TxRolledBack
	return txn.Previous, nil
}

// takePending resolves the pending bookkeeping for a transaction id.
// Unknown or already-resolved ids fail with *NotFoundError.
func (l *TransactionLog) takePending(transactionID string) (*StateTransaction, error) {
	txn, ok := l.txns[transactionID]
	if !ok || txn.Status != TxPending {
		return nil, newNotFoundError(transactionID,
			"transaction %s is unknown or already resolved", transactionID)
	}
	delete(l.pending, txn.LoopKey)
	return txn, nil
}

// History returns the committed snapshots for a loop key, most recent
// first.
func (l *TransactionLog) History(loopKey string) []LoopContext {
	l.mu.Lock()
	defer l.mu.Unlock()

	hist := l.history[loopKey]
	out := make([]LoopContext, len(hist))
	for i, ctx := range hist {
		out[len(hist)-1-i] = ctx
	}
	return out
}

// Cleanup purges all transactions and history for a loop key; called at
// terminal state so memory stays bounded to active loops.
func (l *TransactionLog) Cleanup(loopKey string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.history, loopKey)
	delete(l.pending, loopKey)
	for id, txn := range l.txns {
		if txn.LoopKey == loopKey {
			delete(l.txns, id)
		}
	}
}
