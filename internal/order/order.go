// Package order holds the ordering model shared by every reorderable
// collection: items are identified by an opaque ID and their position is
// always their index in the slice.
package order

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrDuplicateID     = errors.New("duplicate item id")
	ErrNotContiguous   = errors.New("positions are not contiguous")
	ErrUnknownID       = errors.New("unknown item id")
)

// Uncategorized is the label an orphaned reference degrades to.
const Uncategorized = "uncategorized"

// Item is one entry of an ordered collection.
type Item struct {
	ID      string         `json:"id"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Position is the wire form of an item's place in its collection.
type Position struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}

// IDs returns the identities of items in order.
func IDs(items []Item) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}

// Positions assigns each item its index.
func Positions(items []Item) []Position {
	positions := make([]Position, len(items))
	for i, item := range items {
		positions[i] = Position{ID: item.ID, Position: i}
	}
	return positions
}

// Validate reports whether every item has a non-blank, unique ID.
func Validate(items []Item) error {
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		if strings.TrimSpace(item.ID) == "" {
			return fmt.Errorf("item %d: id is required", i)
		}
		if _, ok := seen[item.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}

// ValidatePositions checks that positions cover exactly 0..n-1 with unique IDs.
func ValidatePositions(positions []Position) error {
	ids := make(map[string]struct{}, len(positions))
	slots := make([]bool, len(positions))
	for _, p := range positions {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("position %d: id is required", p.Position)
		}
		if _, ok := ids[p.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, p.ID)
		}
		ids[p.ID] = struct{}{}
		if p.Position < 0 || p.Position >= len(positions) || slots[p.Position] {
			return fmt.Errorf("%w: %s at %d", ErrNotContiguous, p.ID, p.Position)
		}
		slots[p.Position] = true
	}
	return nil
}

// Clone copies the slice; payload maps are shared.
func Clone(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

// Move removes the item at from and inserts it at to, where to is an index
// into the shortened slice. The input slice is not modified.
func Move(items []Item, from, to int) ([]Item, error) {
	if from < 0 || from >= len(items) {
		return nil, fmt.Errorf("%w: from %d", ErrIndexOutOfRange, from)
	}
	if to < 0 || to >= len(items) {
		return nil, fmt.Errorf("%w: to %d", ErrIndexOutOfRange, to)
	}
	moved := items[from]
	out := make([]Item, 0, len(items))
	out = append(out, items[:from]...)
	out = append(out, items[from+1:]...)
	out = append(out[:to], append([]Item{moved}, out[to:]...)...)
	return out, nil
}

// Swap exchanges two items. The input slice is not modified.
func Swap(items []Item, i, j int) ([]Item, error) {
	if i < 0 || i >= len(items) || j < 0 || j >= len(items) {
		return nil, fmt.Errorf("%w: swap %d,%d", ErrIndexOutOfRange, i, j)
	}
	out := Clone(items)
	out[i], out[j] = out[j], out[i]
	return out, nil
}

// Apply rearranges items to match positions. Every item must be named exactly once.
func Apply(items []Item, positions []Position) ([]Item, error) {
	if len(items) != len(positions) {
		return nil, fmt.Errorf("%w: %d positions for %d items", ErrNotContiguous, len(positions), len(items))
	}
	if err := ValidatePositions(positions); err != nil {
		return nil, err
	}
	byID := make(map[string]Item, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	out := make([]Item, len(items))
	for _, p := range positions {
		item, ok := byID[p.ID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownID, p.ID)
		}
		out[p.Position] = item
	}
	return out, nil
}

// Remove drops the item with id; the remaining items keep their relative order.
func Remove(items []Item, id string) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if item.ID != id {
			out = append(out, item)
		}
	}
	return out
}

// IndexOf returns the index of id, or -1.
func IndexOf(items []Item, id string) int {
	for i, item := range items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// SameOrder reports whether both slices list the same IDs in the same order.
func SameOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ResolveReference returns ref when it names a known entity and
// Uncategorized otherwise.
func ResolveReference(ref string, known map[string]struct{}) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Uncategorized
	}
	if _, ok := known[ref]; !ok {
		return Uncategorized
	}
	return ref
}
