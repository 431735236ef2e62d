// Package editor composes the field store, preview synchronizer and device
// viewport into the section editor.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"sitecms/api/internal/fields"
	"sitecms/api/internal/media"
	"sitecms/api/internal/preview"
	"sitecms/api/internal/settings"
	"sitecms/api/internal/store"
)

var (
	ErrSaveInProgress = errors.New("save already in progress")
	ErrNoMediaLibrary = errors.New("media library not configured")
	ErrClosed         = errors.New("editor closed")
)

const (
	DefaultNoticeTTL   = 2500 * time.Millisecond
	DefaultSaveTimeout = 10 * time.Second
)

// Sections is the storage collaborator for section content.
type Sections interface {
	FetchSectionContent(ctx context.Context, sectionID string) (store.Section, error)
	SaveSectionContent(ctx context.Context, sectionID string, content map[string]any) (time.Time, error)
}

// SavedFunc observes every confirmed save.
type SavedFunc func(sectionID string, content map[string]any, savedAt time.Time)

type Deps struct {
	Sections Sections
	Devices  settings.DeviceStore
	Media    media.Library
	// Viewport is shared by every editor of a session. When nil the shell
	// reads the stored preference and owns its own viewport.
	Viewport *preview.Viewport
	OnSaved  SavedFunc
}

type Options struct {
	Preview     preview.Options
	NoticeTTL   time.Duration
	SaveTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.NoticeTTL <= 0 {
		o.NoticeTTL = DefaultNoticeTTL
	}
	if o.SaveTimeout <= 0 {
		o.SaveTimeout = DefaultSaveTimeout
	}
	return o
}

type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is the transient save indication.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
}

// State is a point-in-time view of the shell.
type State struct {
	SectionID   string         `json:"sectionId"`
	Content     map[string]any `json:"content"`
	Dirty       bool           `json:"dirty"`
	LastSavedAt *time.Time     `json:"lastSavedAt"`
	Saving      bool           `json:"saving"`
	Notice      *Notice        `json:"notice"`
	Viewport    preview.Frame  `json:"viewport"`
	Surfaces    int            `json:"surfaces"`
	PreviewSent int            `json:"previewSent"`
}

// Shell is one open section editor.
type Shell struct {
	sectionID string
	deps      Deps
	opts      Options

	fields   *fields.Store
	hub      *preview.Hub
	sync     *preview.Synchronizer
	viewport *preview.Viewport

	mu          sync.Mutex
	saving      bool
	notice      *Notice
	noticeTimer *time.Timer
	noticeGen   uint64
	closed      bool
}

// Open loads the section and mounts its preview. A section that was never
// saved opens empty.
func Open(ctx context.Context, sectionID string, deps Deps, opts Options) (*Shell, error) {
	sectionID = strings.TrimSpace(sectionID)
	if sectionID == "" {
		return nil, fmt.Errorf("section id is required")
	}
	if deps.Sections == nil {
		return nil, fmt.Errorf("sections collaborator is required")
	}
	opts = opts.withDefaults()

	section, err := deps.Sections.FetchSectionContent(ctx, sectionID)
	if errors.Is(err, store.ErrNotFound) {
		section = store.Section{ID: sectionID}
	} else if err != nil {
		return nil, fmt.Errorf("load section %s: %w", sectionID, err)
	}

	viewport := deps.Viewport
	if viewport == nil {
		viewport = preview.NewViewport(loadDevice(ctx, deps.Devices))
	}

	s := &Shell{
		sectionID: sectionID,
		deps:      deps,
		opts:      opts,
		fields:    fields.New(sectionID, section.Content, section.UpdatedAt),
		hub:       preview.NewHub(),
		viewport:  viewport,
	}
	s.sync = preview.NewSynchronizer(s.hub, func() map[string]any { return s.fields.Snapshot() }, opts.Preview)
	s.fields.Subscribe(s.sync.Notify)
	s.sync.Mount()
	return s, nil
}

func loadDevice(ctx context.Context, devices settings.DeviceStore) preview.Device {
	if devices == nil {
		return preview.DeviceDesktop
	}
	device, err := devices.LoadDevice(ctx)
	if err != nil {
		log.Printf("editor: load device preference: %v", err)
		return preview.DeviceDesktop
	}
	return device
}

func (s *Shell) SectionID() string {
	return s.sectionID
}

func (s *Shell) Get(path string) (any, bool) {
	return s.fields.Get(path)
}

// Set edits one field; the preview follows after the debounce window.
func (s *Shell) Set(path string, value any) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.fields.Set(path, value)
}

func (s *Shell) SetVisible(visible bool) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.fields.SetVisible(visible)
}

func (s *Shell) ToggleVisible() (bool, error) {
	if s.isClosed() {
		return false, ErrClosed
	}
	return s.fields.ToggleVisible()
}

func (s *Shell) Dirty() bool {
	return s.fields.Dirty()
}

// Save writes the whole content record and shows a transient notice.
func (s *Shell) Save(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return time.Time{}, ErrClosed
	}
	if s.saving {
		s.mu.Unlock()
		return time.Time{}, ErrSaveInProgress
	}
	s.saving = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.opts.SaveTimeout)
	savedAt, err := s.fields.Save(ctx, s.deps.Sections)
	cancel()

	s.mu.Lock()
	s.saving = false
	s.mu.Unlock()

	if err != nil {
		log.Printf("editor: %v", err)
		s.showNotice(NoticeError, "Save failed: "+rootCause(err))
		return time.Time{}, err
	}

	s.showNotice(NoticeSuccess, "Saved")
	if s.deps.OnSaved != nil {
		s.deps.OnSaved(s.sectionID, s.fields.Snapshot(), savedAt)
	}
	return savedAt, nil
}

func rootCause(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// Cancel throws away unsaved edits without calling the store and resends
// the restored content to the preview, nulling fields the edits had added.
// It is refused while a save is in flight.
func (s *Shell) Cancel(ctx context.Context) error {
	s.mu.Lock()
	closed, saving := s.closed, s.saving
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if saving {
		return ErrSaveInProgress
	}
	_, removed := s.fields.Revert()
	if !s.sync.Ready() {
		return nil
	}
	if err := s.sync.SendReset(ctx, removed); err != nil {
		log.Printf("editor: resend after cancel: %v", err)
	}
	return nil
}

// HandleKey dispatches keyboard shortcuts. It reports whether key was
// recognised.
func (s *Shell) HandleKey(ctx context.Context, key string) (bool, error) {
	switch normalizeKey(key) {
	case "ctrl+s", "meta+s":
		_, err := s.Save(ctx)
		return true, err
	case "escape":
		return true, s.Cancel(ctx)
	default:
		return false, nil
	}
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.ReplaceAll(key, " ", ""))
	key = strings.ReplaceAll(key, "cmd+", "meta+")
	key = strings.ReplaceAll(key, "control+", "ctrl+")
	if key == "esc" {
		return "escape"
	}
	return key
}

// Guarded reports whether leaving the editor needs confirmation.
func (s *Shell) Guarded() bool {
	return s.fields.Dirty()
}

// Leave asks to navigate away. With unsaved edits it only proceeds when
// confirm is true, and the edits are dropped.
func (s *Shell) Leave(confirm bool) bool {
	if !s.fields.Dirty() {
		return true
	}
	if !confirm {
		return false
	}
	s.fields.Discard()
	return true
}

// SetDevice resizes the preview container and remembers the choice. No
// preview message is sent.
func (s *Shell) SetDevice(ctx context.Context, device preview.Device) error {
	if _, err := preview.ParseDevice(string(device)); err != nil {
		return err
	}
	if !s.viewport.Switch(device) {
		return nil
	}
	if s.deps.Devices == nil {
		return nil
	}
	if err := s.deps.Devices.SaveDevice(ctx, device); err != nil {
		return fmt.Errorf("save device preference: %w", err)
	}
	return nil
}

func (s *Shell) Viewport() preview.Frame {
	return s.viewport.Frame()
}

// Attach connects another preview surface and schedules a fresh baseline
// for it. The returned function detaches it.
func (s *Shell) Attach(ch preview.Channel) func() {
	detach := s.hub.Attach(ch)
	s.sync.Mount()
	return detach
}

// UploadImage stores an image and puts its URL into the field at path.
func (s *Shell) UploadImage(ctx context.Context, path, folder string, upload media.Upload) (media.Image, error) {
	if s.deps.Media == nil {
		return media.Image{}, ErrNoMediaLibrary
	}
	img, err := s.deps.Media.UploadImage(ctx, folder, upload)
	if err != nil {
		return media.Image{}, err
	}
	if err := s.Set(path, img.URL); err != nil {
		return media.Image{}, err
	}
	return img, nil
}

func (s *Shell) ListImages(ctx context.Context, folder string) ([]media.Image, error) {
	if s.deps.Media == nil {
		return nil, ErrNoMediaLibrary
	}
	return s.deps.Media.ListImages(ctx, folder)
}

func (s *Shell) Notice() *Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notice == nil {
		return nil
	}
	n := *s.notice
	return &n
}

func (s *Shell) showNotice(kind NoticeKind, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.notice = &Notice{Kind: kind, Message: message, At: time.Now().UTC()}
	s.noticeGen++
	gen := s.noticeGen
	if s.noticeTimer != nil {
		s.noticeTimer.Stop()
	}
	s.noticeTimer = time.AfterFunc(s.opts.NoticeTTL, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.noticeGen == gen {
			s.notice = nil
		}
	})
}

func (s *Shell) State() State {
	s.mu.Lock()
	saving := s.saving
	var notice *Notice
	if s.notice != nil {
		n := *s.notice
		notice = &n
	}
	s.mu.Unlock()

	return State{
		SectionID:   s.sectionID,
		Content:     s.fields.Snapshot(),
		Dirty:       s.fields.Dirty(),
		LastSavedAt: s.fields.LastSavedAt(),
		Saving:      saving,
		Notice:      notice,
		Viewport:    s.viewport.Frame(),
		Surfaces:    s.hub.Len(),
		PreviewSent: s.sync.Sent(),
	}
}

func (s *Shell) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Shell) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.noticeTimer != nil {
		s.noticeTimer.Stop()
	}
	s.mu.Unlock()
	s.sync.Close()
}
