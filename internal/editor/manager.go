package editor

import (
	"context"
	"sort"
	"sync"

	"sitecms/api/internal/preview"
)

// ChannelFunc supplies an extra preview channel for a newly opened section,
// such as a redis relay. It may return nil.
type ChannelFunc func(sectionID string) preview.Channel

// Manager is the editing session: it keeps one shell per section and the
// device viewport they all share.
type Manager struct {
	deps       Deps
	opts       Options
	channelFor ChannelFunc

	mu       sync.Mutex
	shells   map[string]*Shell
	viewport *preview.Viewport
}

func NewManager(deps Deps, opts Options, channelFor ChannelFunc) *Manager {
	return &Manager{
		deps:       deps,
		opts:       opts,
		channelFor: channelFor,
		shells:     make(map[string]*Shell),
	}
}

// Open returns the shell for sectionID, opening it on first use. The device
// preference is read once, when the first shell opens. Section content is
// fetched without holding the manager lock; if two callers race on the same
// section the first one stored wins and the other shell is closed.
func (m *Manager) Open(ctx context.Context, sectionID string) (*Shell, error) {
	m.mu.Lock()
	if shell, ok := m.shells[sectionID]; ok {
		m.mu.Unlock()
		return shell, nil
	}
	if m.viewport == nil {
		m.viewport = preview.NewViewport(loadDevice(ctx, m.deps.Devices))
	}
	deps := m.deps
	deps.Viewport = m.viewport
	m.mu.Unlock()

	shell, err := Open(ctx, sectionID, deps, m.opts)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.shells[shell.SectionID()]; ok {
		shell.Close()
		return existing, nil
	}
	if m.channelFor != nil {
		if ch := m.channelFor(shell.SectionID()); ch != nil {
			shell.Attach(ch)
		}
	}
	m.shells[shell.SectionID()] = shell
	return shell, nil
}

// Lookup returns an already open shell.
func (m *Manager) Lookup(sectionID string) (*Shell, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	shell, ok := m.shells[sectionID]
	return shell, ok
}

// Device is the session-wide preview device.
func (m *Manager) Device(ctx context.Context) preview.Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.viewport == nil {
		m.viewport = preview.NewViewport(loadDevice(ctx, m.deps.Devices))
	}
	return m.viewport.Device()
}

// SetDevice switches every open editor and persists the choice.
func (m *Manager) SetDevice(ctx context.Context, device preview.Device) error {
	if _, err := preview.ParseDevice(string(device)); err != nil {
		return err
	}
	m.mu.Lock()
	if m.viewport == nil {
		m.viewport = preview.NewViewport(device)
	} else {
		m.viewport.Switch(device)
	}
	m.mu.Unlock()

	if m.deps.Devices == nil {
		return nil
	}
	return m.deps.Devices.SaveDevice(ctx, device)
}

// Close closes the shell for sectionID and forgets it.
func (m *Manager) Close(sectionID string) {
	m.mu.Lock()
	shell, ok := m.shells[sectionID]
	delete(m.shells, sectionID)
	m.mu.Unlock()
	if ok {
		shell.Close()
	}
}

// Sections lists open section ids.
func (m *Manager) Sections() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.shells))
	for id := range m.shells {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) CloseAll() {
	m.mu.Lock()
	shells := m.shells
	m.shells = make(map[string]*Shell)
	m.mu.Unlock()
	for _, shell := range shells {
		shell.Close()
	}
}
