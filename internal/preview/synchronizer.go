package preview

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
)

const (
	DefaultDebounce   = 150 * time.Millisecond
	DefaultReadyDelay = 500 * time.Millisecond
	postTimeout       = 2 * time.Second
)

type Options struct {
	// Debounce is the quiet window that coalesces mutations into one message.
	Debounce time.Duration
	// ReadyDelay stands in for a ready handshake: the baseline is sent this
	// long after Mount. Zero means DefaultReadyDelay, negative means at once.
	ReadyDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.ReadyDelay < 0 {
		o.ReadyDelay = 0
	} else if o.ReadyDelay == 0 {
		o.ReadyDelay = DefaultReadyDelay
	}
	return o
}

// Synchronizer sends a full baseline once the surface is assumed ready, then
// debounced partial updates naming only the fields changed since the last
// message.
type Synchronizer struct {
	channel  Channel
	snapshot func() map[string]any
	opts     Options
	debounce *Debouncer

	sendMu sync.Mutex

	mu         sync.Mutex
	changed    map[string]map[string]struct{}
	ready      bool
	closed     bool
	readyTimer *time.Timer
	sent       int
}

// NewSynchronizer wires channel to a content source. snapshot must return
// the current full content.
func NewSynchronizer(channel Channel, snapshot func() map[string]any, opts Options) *Synchronizer {
	s := &Synchronizer{
		channel:  channel,
		snapshot: snapshot,
		opts:     opts.withDefaults(),
		changed:  make(map[string]map[string]struct{}),
	}
	s.debounce = NewDebouncer(s.opts.Debounce, s.flushPartial)
	return s
}

// Mount schedules a baseline message after the ready delay. Calling it again,
// for example when another surface attaches, schedules a fresh baseline.
func (s *Synchronizer) Mount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.readyTimer != nil {
		s.readyTimer.Stop()
	}
	s.readyTimer = time.AfterFunc(s.opts.ReadyDelay, func() {
		if err := s.SendFull(context.Background()); err != nil {
			log.Printf("preview: baseline: %v", err)
		}
	})
}

// Notify records a mutation at path and restarts the debounce window.
func (s *Synchronizer) Notify(path string, _ any) {
	parent, child, _ := strings.Cut(strings.TrimSpace(path), ".")
	if parent == "" {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	children, seen := s.changed[parent]
	switch {
	case child == "":
		s.changed[parent] = nil
	case seen && children == nil:
	default:
		if children == nil {
			children = make(map[string]struct{})
			s.changed[parent] = children
		}
		children[child] = struct{}{}
	}
	s.mu.Unlock()

	s.debounce.Trigger()
}

// SendFull sends the whole content record now and marks the surface ready.
func (s *Synchronizer) SendFull(ctx context.Context) error {
	return s.sendFull(ctx, nil)
}

// SendReset sends the whole content record plus a null for every field in
// removed that the record no longer holds. Surfaces merge what they receive,
// so the nulls are what makes them drop those fields. removed has the shape
// returned by fields.Store.Revert.
func (s *Synchronizer) SendReset(ctx context.Context, removed map[string]any) error {
	return s.sendFull(ctx, removed)
}

func (s *Synchronizer) sendFull(ctx context.Context, removed map[string]any) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrChannelClosed
	}
	content := s.snapshot()
	if len(removed) > 0 {
		content = withRemovals(copyState(content), removed)
	}
	s.changed = make(map[string]map[string]struct{})
	s.ready = true
	s.mu.Unlock()

	return s.post(ctx, content)
}

func withRemovals(content, removed map[string]any) map[string]any {
	for key, value := range removed {
		children, isRecord := value.(map[string]any)
		if !isRecord {
			if _, ok := content[key]; !ok {
				content[key] = nil
			}
			continue
		}
		record, ok := content[key].(map[string]any)
		if !ok {
			continue
		}
		for child := range children {
			if _, kept := record[child]; !kept {
				record[child] = nil
			}
		}
	}
	return content
}

// Flush sends pending changes without waiting for the debounce window.
func (s *Synchronizer) Flush() {
	s.debounce.Flush()
}

func (s *Synchronizer) flushPartial() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if s.closed || !s.ready || len(s.changed) == 0 {
		s.mu.Unlock()
		return
	}
	content := partialContent(s.snapshot(), s.changed)
	s.changed = make(map[string]map[string]struct{})
	s.mu.Unlock()

	if err := s.post(context.Background(), content); err != nil {
		log.Printf("preview: partial update: %v", err)
	}
}

func (s *Synchronizer) post(ctx context.Context, content map[string]any) error {
	payload, err := Encode(content)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postTimeout)
	defer cancel()
	err = s.channel.Post(ctx, payload)

	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
	return err
}

// Ready reports whether the baseline has been sent.
func (s *Synchronizer) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Sent counts messages handed to the channel.
func (s *Synchronizer) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

func (s *Synchronizer) Close() {
	s.debounce.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.readyTimer != nil {
		s.readyTimer.Stop()
	}
}

// partialContent picks the changed fields out of the current content. A
// nested change yields a record holding only the changed children.
func partialContent(current map[string]any, changed map[string]map[string]struct{}) map[string]any {
	out := make(map[string]any, len(changed))
	for parent, children := range changed {
		value := current[parent]
		record, isRecord := value.(map[string]any)
		if children == nil || !isRecord {
			out[parent] = value
			continue
		}
		partial := make(map[string]any, len(children))
		for child := range children {
			partial[child] = record[child]
		}
		out[parent] = partial
	}
	return out
}
