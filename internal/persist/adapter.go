// Package persist sends whole-collection orderings to the backing store.
package persist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"sitecms/api/internal/order"
)

var ErrInvalidCollection = errors.New("collection type is required")

// OrderWriter is the storage collaborator. PersistOrder must be safe to call
// again with the same payload.
type OrderWriter interface {
	PersistOrder(ctx context.Context, collectionType string, positions []order.Position) error
}

// Adapter validates orderings, tracks in-flight saves per collection and
// delegates to an OrderWriter. It never retries.
type Adapter struct {
	writer   OrderWriter
	mu       sync.Mutex
	inflight map[string]int
}

func New(writer OrderWriter) *Adapter {
	return &Adapter{
		writer:   writer,
		inflight: make(map[string]int),
	}
}

// Save writes positions for collectionType.
func (a *Adapter) Save(ctx context.Context, collectionType string, positions []order.Position) error {
	collectionType = strings.TrimSpace(collectionType)
	if collectionType == "" {
		return ErrInvalidCollection
	}
	if err := order.ValidatePositions(positions); err != nil {
		return fmt.Errorf("validate %s order: %w", collectionType, err)
	}

	a.begin(collectionType)
	defer a.end(collectionType)

	if err := a.writer.PersistOrder(ctx, collectionType, positions); err != nil {
		return fmt.Errorf("persist %s order: %w", collectionType, err)
	}
	return nil
}

// Saving reports whether a save for collectionType is in flight.
func (a *Adapter) Saving(collectionType string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inflight[collectionType] > 0
}

func (a *Adapter) begin(collectionType string) {
	a.mu.Lock()
	a.inflight[collectionType]++
	a.mu.Unlock()
}

func (a *Adapter) end(collectionType string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inflight[collectionType]--
	if a.inflight[collectionType] <= 0 {
		delete(a.inflight, collectionType)
	}
}
