package preview

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrChannelFull   = errors.New("preview channel full")
	ErrChannelClosed = errors.New("preview channel closed")
)

// Channel carries serialized envelopes one way. Post must not wait for the
// receiver; delivery is fire-and-forget.
type Channel interface {
	Post(ctx context.Context, payload string) error
}

// LocalChannel is an in-process FIFO channel.
type LocalChannel struct {
	messages chan string
	once     sync.Once
	closed   chan struct{}
}

func NewLocalChannel(buffer int) *LocalChannel {
	if buffer <= 0 {
		buffer = 64
	}
	return &LocalChannel{
		messages: make(chan string, buffer),
		closed:   make(chan struct{}),
	}
}

func (c *LocalChannel) Post(_ context.Context, payload string) error {
	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}
	select {
	case c.messages <- payload:
		return nil
	default:
		return ErrChannelFull
	}
}

// Messages is the receiving end.
func (c *LocalChannel) Messages() <-chan string {
	return c.messages
}

func (c *LocalChannel) Close() {
	c.once.Do(func() { close(c.closed) })
}

// Hub fans one stream out to every attached channel.
type Hub struct {
	mu       sync.RWMutex
	next     int
	channels map[int]Channel
}

func NewHub() *Hub {
	return &Hub{channels: make(map[int]Channel)}
}

// Attach adds ch and returns a function that detaches it.
func (h *Hub) Attach(ch Channel) func() {
	h.mu.Lock()
	id := h.next
	h.next++
	h.channels[id] = ch
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.channels, id)
		h.mu.Unlock()
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

// Post delivers payload to every attached channel and joins their errors.
func (h *Hub) Post(ctx context.Context, payload string) error {
	h.mu.RLock()
	targets := make([]Channel, 0, len(h.channels))
	for _, ch := range h.channels {
		targets = append(targets, ch)
	}
	h.mu.RUnlock()

	var errs []error
	for _, ch := range targets {
		if err := ch.Post(ctx, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
