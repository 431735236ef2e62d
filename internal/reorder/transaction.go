package reorder

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Transaction.
type Status string

const (
	StatusPending    Status = "pending"
	StatusCommitted  Status = "committed"
	StatusRolledBack Status = "rolled-back"
)

// Transaction is one optimistic reorder awaiting confirmation from storage.
type Transaction struct {
	ID         string
	Collection string
	Previous   []string
	Proposed   []string
	CreatedAt  time.Time

	mu     sync.Mutex
	status Status
	err    error
	done   chan struct{}
}

func newTransaction(collection string, previous, proposed []string) *Transaction {
	return &Transaction{
		ID:         uuid.NewString(),
		Collection: collection,
		Previous:   previous,
		Proposed:   proposed,
		CreatedAt:  time.Now(),
		status:     StatusPending,
		done:       make(chan struct{}),
	}
}

func (t *Transaction) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Err returns the persistence failure for a rolled-back transaction.
func (t *Transaction) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Done is closed once the transaction leaves the pending state.
func (t *Transaction) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the transaction settles or ctx ends.
func (t *Transaction) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transaction) settle(status Status, err error) {
	t.mu.Lock()
	t.status = status
	t.err = err
	t.mu.Unlock()
	close(t.done)
}
