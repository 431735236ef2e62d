package preview

import (
	"context"
	"strings"
	"sync"
)

// Surface is the receiving side: it renders the latest value of every field
// it has been told about and never writes back.
type Surface struct {
	mu       sync.Mutex
	state    map[string]any
	rendered int
	ignored  int
	onRender func(map[string]any)
}

func NewSurface() *Surface {
	return &Surface{state: make(map[string]any)}
}

// OnRender registers fn to receive the merged state after each applied message.
func (s *Surface) OnRender(fn func(map[string]any)) {
	s.mu.Lock()
	s.onRender = fn
	s.mu.Unlock()
}

// Receive applies raw if it is a valid envelope. Anything else is dropped
// silently. A null value removes the field, or the child of a record.
func (s *Surface) Receive(raw string) bool {
	msg, ok := Decode(raw)
	if !ok {
		s.mu.Lock()
		s.ignored++
		s.mu.Unlock()
		return false
	}

	s.mu.Lock()
	for key, value := range msg.Content {
		if value == nil {
			delete(s.state, key)
			continue
		}
		incoming, isRecord := value.(map[string]any)
		if !isRecord {
			s.state[key] = value
			continue
		}
		existing, hasRecord := s.state[key].(map[string]any)
		if !hasRecord {
			existing = make(map[string]any, len(incoming))
			s.state[key] = existing
		}
		for child, nested := range incoming {
			if nested == nil {
				delete(existing, child)
				continue
			}
			existing[child] = nested
		}
	}
	s.rendered++
	fn := s.onRender
	view := copyState(s.state)
	s.mu.Unlock()

	if fn != nil {
		fn(view)
	}
	return true
}

// Run consumes messages until ctx ends or the stream closes.
func (s *Surface) Run(ctx context.Context, messages <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-messages:
			if !ok {
				return
			}
			s.Receive(raw)
		}
	}
}

// Get reads a rendered value by "field" or "parent.child".
func (s *Surface) Get(path string) (any, bool) {
	parent, child, nested := strings.Cut(path, ".")
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.state[parent]
	if !nested || !ok {
		return value, ok
	}
	record, isRecord := value.(map[string]any)
	if !isRecord {
		return nil, false
	}
	v, ok := record[child]
	return v, ok
}

func (s *Surface) State() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyState(s.state)
}

// Stats returns how many messages were rendered and ignored.
func (s *Surface) Stats() (rendered, ignored int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rendered, s.ignored
}

func copyState(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for key, value := range state {
		if record, ok := value.(map[string]any); ok {
			nested := make(map[string]any, len(record))
			for child, v := range record {
				nested[child] = v
			}
			out[key] = nested
			continue
		}
		out[key] = value
	}
	return out
}
