// Package fields keeps the in-memory editable content of one section.
package fields

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
)

// VisibleField is present on every section and defaults to true.
const VisibleField = "visible"

var ErrInvalidPath = errors.New("invalid field path")

// Content maps field names to values. Nested records are map[string]any and
// may be addressed one level deep as "parent.child".
type Content map[string]any

// Saver is the storage collaborator for section content. It returns the
// server's save timestamp.
type Saver interface {
	SaveSectionContent(ctx context.Context, sectionID string, content map[string]any) (time.Time, error)
}

// Listener observes every successful mutation.
type Listener func(path string, value any)

// Store holds the Field Edit State of one section.
type Store struct {
	sectionID string

	mu          sync.Mutex
	content     Content
	baseline    Content
	dirty       bool
	lastSavedAt *time.Time
	revision    uint64
	listeners   []Listener
}

// New builds a clean store from loaded content. updatedAt may be zero for a
// section that has never been saved.
func New(sectionID string, content map[string]any, updatedAt time.Time) *Store {
	loaded := normalize(content)
	s := &Store{
		sectionID: sectionID,
		content:   loaded,
		baseline:  clone(loaded),
	}
	if !updatedAt.IsZero() {
		ts := updatedAt
		s.lastSavedAt = &ts
	}
	return s
}

func (s *Store) SectionID() string {
	return s.sectionID
}

// Subscribe registers fn to be called after each mutation, outside the lock.
func (s *Store) Subscribe(fn Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Get returns the value at path.
func (s *Store) Get(path string) (any, bool) {
	parent, child, err := splitPath(path)
	if err != nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.content[parent]
	if child == "" || !ok {
		return cloneValue(value), ok
	}
	record, isRecord := value.(map[string]any)
	if !isRecord {
		return nil, false
	}
	nested, ok := record[child]
	return cloneValue(nested), ok
}

// Set writes value at path and marks the store dirty.
func (s *Store) Set(path string, value any) error {
	parent, child, err := splitPath(path)
	if err != nil {
		return err
	}
	if parent == VisibleField && child == "" {
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%w: %s must be a boolean", ErrInvalidPath, VisibleField)
		}
	}

	s.mu.Lock()
	if child == "" {
		s.content[parent] = cloneValue(value)
	} else {
		record, ok := s.content[parent].(map[string]any)
		if !ok {
			if existing, exists := s.content[parent]; exists && existing != nil {
				s.mu.Unlock()
				return fmt.Errorf("%w: %s is not a record", ErrInvalidPath, parent)
			}
			record = make(map[string]any)
			s.content[parent] = record
		}
		record[child] = cloneValue(value)
	}
	s.dirty = true
	s.revision++
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(path, cloneValue(value))
	}
	return nil
}

func (s *Store) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	visible, _ := s.content[VisibleField].(bool)
	return visible
}

func (s *Store) SetVisible(visible bool) error {
	return s.Set(VisibleField, visible)
}

func (s *Store) ToggleVisible() (bool, error) {
	next := !s.Visible()
	return next, s.SetVisible(next)
}

// Snapshot returns a deep copy of the whole content record.
func (s *Store) Snapshot() Content {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.content)
}

func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Store) LastSavedAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSavedAt == nil {
		return nil
	}
	ts := *s.lastSavedAt
	return &ts
}

// Save submits the entire content record. On success the server timestamp
// becomes lastSavedAt. If the content changed while the save was in flight
// the store stays dirty unless it ended up equal to what was saved. On
// failure content is left untouched.
func (s *Store) Save(ctx context.Context, saver Saver) (time.Time, error) {
	s.mu.Lock()
	snapshot := clone(s.content)
	revision := s.revision
	s.mu.Unlock()

	savedAt, err := saver.SaveSectionContent(ctx, s.sectionID, snapshot)
	if err != nil {
		return time.Time{}, fmt.Errorf("save section %s: %w", s.sectionID, err)
	}
	if savedAt.IsZero() {
		return time.Time{}, fmt.Errorf("save section %s: missing server timestamp", s.sectionID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ts := savedAt
	s.lastSavedAt = &ts
	s.baseline = snapshot
	if s.revision == revision {
		s.dirty = false
	} else {
		s.dirty = !reflect.DeepEqual(s.content, snapshot)
	}
	return savedAt, nil
}

// Discard restores the last loaded or saved content and returns it.
func (s *Store) Discard() Content {
	restored, _ := s.Revert()
	return restored
}

// Revert is Discard that also reports the fields the dropped edits had
// added: nil for a top-level field, or a record of nils for children added
// to a record that still exists.
func (s *Store) Revert() (Content, map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := removedFields(s.content, s.baseline)
	s.content = clone(s.baseline)
	s.dirty = false
	s.revision++
	return clone(s.content), removed
}

func removedFields(edited, restored Content) map[string]any {
	removed := make(map[string]any)
	for key, value := range edited {
		kept, ok := restored[key]
		if !ok {
			removed[key] = nil
			continue
		}
		record, isRecord := value.(map[string]any)
		keptRecord, keptIsRecord := kept.(map[string]any)
		if !isRecord || !keptIsRecord {
			continue
		}
		var children map[string]any
		for child := range record {
			if _, ok := keptRecord[child]; ok {
				continue
			}
			if children == nil {
				children = make(map[string]any)
			}
			children[child] = nil
		}
		if children != nil {
			removed[key] = children
		}
	}
	return removed
}

func splitPath(path string) (parent, child string, err error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	parts := strings.Split(path, ".")
	switch len(parts) {
	case 1:
		return parts[0], "", nil
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
		if parts[0] == VisibleField {
			return "", "", fmt.Errorf("%w: %s has no children", ErrInvalidPath, VisibleField)
		}
		return parts[0], parts[1], nil
	default:
		return "", "", fmt.Errorf("%w: %q nests deeper than one level", ErrInvalidPath, path)
	}
}

func normalize(content map[string]any) Content {
	out := clone(content)
	if out == nil {
		out = Content{}
	}
	if _, ok := out[VisibleField].(bool); !ok {
		out[VisibleField] = true
	}
	return out
}

func clone(content map[string]any) Content {
	if content == nil {
		return nil
	}
	out := make(Content, len(content))
	for key, value := range content {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, nested := range v {
			out[key] = cloneValue(nested)
		}
		return out
	case Content:
		return map[string]any(clone(v))
	case []any:
		out := make([]any, len(v))
		for i, nested := range v {
			out[i] = cloneValue(nested)
		}
		return out
	default:
		return v
	}
}
