// Package reorder turns drag and keyboard gestures on an ordered collection
// into optimistic whole-list reorders that are confirmed by storage, or
// reconciled by re-fetching the authoritative order when storage fails.
package reorder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"sitecms/api/internal/order"
)

var (
	// ErrBusy rejects a gesture while a save for the same collection is pending.
	ErrBusy = errors.New("reorder save in progress")
	// ErrInvalidGesture rejects a drag event the current drag state does not accept.
	ErrInvalidGesture = errors.New("invalid drag gesture")
)

const defaultSaveTimeout = 10 * time.Second

// Fetcher reads the authoritative order of a collection.
type Fetcher interface {
	FetchOrderedCollection(ctx context.Context, collectionType string) ([]order.Item, error)
}

// Saver persists a full ordering. persist.Adapter satisfies it.
type Saver interface {
	Save(ctx context.Context, collectionType string, positions []order.Position) error
}

// SaveError is surfaced after a failed save has been rolled back.
type SaveError struct {
	Collection string
	Err        error
	RefetchErr error
}

func (e *SaveError) Error() string {
	if e.RefetchErr != nil {
		return fmt.Sprintf("save %s order: %v (refetch failed: %v)", e.Collection, e.Err, e.RefetchErr)
	}
	return fmt.Sprintf("save %s order: %v", e.Collection, e.Err)
}

func (e *SaveError) Unwrap() []error {
	if e.RefetchErr != nil {
		return []error{e.Err, e.RefetchErr}
	}
	return []error{e.Err}
}

// Snapshot is a read-only view of an engine.
type Snapshot struct {
	Collection string       `json:"collection"`
	Items      []order.Item `json:"items"`
	Saving     bool         `json:"saving"`
	DragState  string       `json:"dragState"`
	DragSource int          `json:"dragSource"`
	DragTarget int          `json:"dragTarget"`
	Error      string       `json:"error,omitempty"`
}

type Option func(*Engine)

// WithSaveTimeout bounds each persistence call and the follow-up re-fetch.
func WithSaveTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.saveTimeout = d
		}
	}
}

// WithSettled registers a callback run after every transaction settles.
func WithSettled(fn func(*Transaction)) Option {
	return func(e *Engine) {
		e.settled = fn
	}
}

// Engine owns one collection. At most one Transaction is pending at a time.
type Engine struct {
	collection  string
	fetcher     Fetcher
	saver       Saver
	saveTimeout time.Duration
	settled     func(*Transaction)

	mu      sync.Mutex
	items   []order.Item
	drag    dragMachine
	pending *Transaction
	lastErr error
}

func NewEngine(collection string, fetcher Fetcher, saver Saver, opts ...Option) *Engine {
	e := &Engine{
		collection:  collection,
		fetcher:     fetcher,
		saver:       saver,
		saveTimeout: defaultSaveTimeout,
		drag:        newDragMachine(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Collection() string {
	return e.collection
}

// Load replaces local state with the authoritative order.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	busy := e.pending != nil
	e.mu.Unlock()
	if busy {
		return ErrBusy
	}

	items, err := e.fetcher.FetchOrderedCollection(ctx, e.collection)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", e.collection, err)
	}
	if err := order.Validate(items); err != nil {
		return fmt.Errorf("fetch %s: %w", e.collection, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending != nil {
		return ErrBusy
	}
	e.items = items
	return nil
}

// Items returns a copy of the current (possibly optimistic) order.
func (e *Engine) Items() []order.Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	return order.Clone(e.items)
}

// Saving reports whether a transaction is pending. Input should be disabled
// while it is true.
func (e *Engine) Saving() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending != nil
}

// Pending returns the in-flight transaction, or nil.
func (e *Engine) Pending() *Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// Err returns the last surfaced failure until it is dismissed.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func (e *Engine) DismissError() {
	e.mu.Lock()
	e.lastErr = nil
	e.mu.Unlock()
}

func (e *Engine) DragState() DragState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drag.state
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := Snapshot{
		Collection: e.collection,
		Items:      order.Clone(e.items),
		Saving:     e.pending != nil,
		DragState:  e.drag.state.String(),
		DragSource: e.drag.source,
		DragTarget: e.drag.target,
	}
	if snap.Items == nil {
		snap.Items = []order.Item{}
	}
	if e.lastErr != nil {
		snap.Error = e.lastErr.Error()
	}
	return snap
}

// DragStart marks the item at index as the drag source.
func (e *Engine) DragStart(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending != nil {
		return ErrBusy
	}
	if index < 0 || index >= len(e.items) {
		return fmt.Errorf("%w: drag source %d", order.ErrIndexOutOfRange, index)
	}
	if !e.drag.start(index) {
		return fmt.Errorf("%w: cannot start drag from %s", ErrInvalidGesture, e.drag.state)
	}
	return nil
}

// DragOver records index as the candidate drop target without touching the list.
func (e *Engine) DragOver(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.items) {
		return fmt.Errorf("%w: drop target %d", order.ErrIndexOutOfRange, index)
	}
	if !e.drag.over(index) {
		return fmt.Errorf("%w: cannot hover while %s", ErrInvalidGesture, e.drag.state)
	}
	return nil
}

// Drop applies the recorded move. A drop without a target, or onto the
// source, cancels and returns a nil transaction.
func (e *Engine) Drop() (*Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending != nil {
		e.drag.end()
		return nil, ErrBusy
	}
	from, to, ok := e.drag.drop()
	if !ok {
		return nil, nil
	}
	proposed, err := order.Move(e.items, from, to)
	if err != nil {
		e.drag.state = StateCancelled
		return nil, err
	}
	return e.beginLocked(proposed), nil
}

// DragEnd clears transient drag state. It runs whether or not a drop happened.
func (e *Engine) DragEnd() {
	e.mu.Lock()
	e.drag.end()
	e.mu.Unlock()
}

// MoveUp swaps the item at index with its predecessor. Moving the first item
// is a no-op.
func (e *Engine) MoveUp(index int) (*Transaction, error) {
	return e.keyboardMove(index, index-1)
}

// MoveDown swaps the item at index with its successor. Moving the last item
// is a no-op.
func (e *Engine) MoveDown(index int) (*Transaction, error) {
	return e.keyboardMove(index, index+1)
}

func (e *Engine) keyboardMove(index, neighbour int) (*Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending != nil {
		return nil, ErrBusy
	}
	if index < 0 || index >= len(e.items) {
		return nil, fmt.Errorf("%w: %d", order.ErrIndexOutOfRange, index)
	}
	if neighbour < 0 || neighbour >= len(e.items) {
		return nil, nil
	}
	proposed, err := order.Swap(e.items, index, neighbour)
	if err != nil {
		return nil, err
	}
	return e.beginLocked(proposed), nil
}

// MoveTo moves the item at from to position to, using the same splice
// semantics as a drop.
func (e *Engine) MoveTo(from, to int) (*Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending != nil {
		return nil, ErrBusy
	}
	if from == to && from >= 0 && from < len(e.items) {
		return nil, nil
	}
	proposed, err := order.Move(e.items, from, to)
	if err != nil {
		return nil, err
	}
	return e.beginLocked(proposed), nil
}

// beginLocked applies proposed locally and starts persisting it. Callers hold e.mu.
func (e *Engine) beginLocked(proposed []order.Item) *Transaction {
	previous := e.items
	tx := newTransaction(e.collection, order.IDs(previous), order.IDs(proposed))
	e.items = proposed
	e.pending = tx
	go e.persist(tx, previous, order.Positions(proposed))
	return tx
}

func (e *Engine) persist(tx *Transaction, previous []order.Item, positions []order.Position) {
	ctx, cancel := context.WithTimeout(context.Background(), e.saveTimeout)
	err := e.saver.Save(ctx, e.collection, positions)
	cancel()

	if err == nil {
		e.mu.Lock()
		e.pending = nil
		e.mu.Unlock()
		tx.settle(StatusCommitted, nil)
		e.notify(tx)
		return
	}

	log.Printf("reorder: save %s failed, reloading authoritative order: %v", e.collection, err)
	fetchCtx, fetchCancel := context.WithTimeout(context.Background(), e.saveTimeout)
	fetched, fetchErr := e.fetcher.FetchOrderedCollection(fetchCtx, e.collection)
	fetchCancel()
	if fetchErr == nil {
		fetchErr = order.Validate(fetched)
	}

	saveErr := &SaveError{Collection: e.collection, Err: err}
	e.mu.Lock()
	if fetchErr == nil {
		e.items = fetched
	} else {
		saveErr.RefetchErr = fetchErr
		e.items = previous
	}
	e.lastErr = saveErr
	e.pending = nil
	e.mu.Unlock()

	tx.settle(StatusRolledBack, saveErr)
	e.notify(tx)
}

func (e *Engine) notify(tx *Transaction) {
	if e.settled != nil {
		e.settled(tx)
	}
}
