package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"sitecms/api/internal/config"
	"sitecms/api/internal/editor"
	"sitecms/api/internal/media"
	"sitecms/api/internal/order"
	"sitecms/api/internal/persist"
	"sitecms/api/internal/preview"
	"sitecms/api/internal/reorder"
	"sitecms/api/internal/search"
	"sitecms/api/internal/settings"
	"sitecms/api/internal/store"
)

type dataStore interface {
	Ping(context.Context) error
	FetchOrderedCollection(context.Context, string) ([]order.Item, error)
	PersistOrder(context.Context, string, []order.Position) error
	InsertItem(context.Context, string, order.Item) error
	DeleteItem(context.Context, string, string) error
	FetchSectionContent(context.Context, string) (store.Section, error)
	SaveSectionContent(context.Context, string, map[string]any) (time.Time, error)
}

type sectionSearch interface {
	Search(search.Query) search.Response
	IndexSection(search.SectionRecord)
	DeleteSection(string)
	ReindexAllFromPG(context.Context)
}

// Deps are the optional collaborators of a Service. Nil members disable the
// matching feature.
type Deps struct {
	Devices  settings.DeviceStore
	Media    media.Library
	Search   sectionSearch
	Channels editor.ChannelFunc
}

type Service struct {
	cfg     config.Config
	store   dataStore
	board   *reorder.Board
	editors *editor.Manager
	search  sectionSearch
	media   media.Library
}

type DragInput struct {
	Event string `json:"event"`
	Index int    `json:"index"`
	Wait  bool   `json:"wait"`
}

type MoveInput struct {
	Index     *int   `json:"index"`
	Direction string `json:"direction"`
	From      *int   `json:"from"`
	To        *int   `json:"to"`
	Wait      bool   `json:"wait"`
}

type TransactionView struct {
	ID       string         `json:"id"`
	Status   reorder.Status `json:"status"`
	Previous []string       `json:"previous"`
	Proposed []string       `json:"proposed"`
	Error    string         `json:"error,omitempty"`
}

type CollectionView struct {
	reorder.Snapshot
	Transaction *TransactionView `json:"transaction,omitempty"`
}

func New(cfg config.Config, data dataStore, deps Deps) *Service {
	s := &Service{
		cfg:    cfg,
		store:  data,
		search: deps.Search,
		media:  deps.Media,
	}
	s.board = reorder.NewBoard(data, persist.New(data),
		reorder.WithSaveTimeout(cfg.SaveTimeout),
		reorder.WithSettled(func(tx *reorder.Transaction) {
			log.Printf("reorder: %s transaction %s %s", tx.Collection, tx.ID, tx.Status())
		}),
	)
	s.editors = editor.NewManager(editor.Deps{
		Sections: data,
		Devices:  deps.Devices,
		Media:    deps.Media,
		OnSaved:  s.sectionSaved,
	}, editor.Options{
		Preview: preview.Options{
			Debounce:   cfg.PreviewDebounce,
			ReadyDelay: cfg.PreviewReadyDelay,
		},
		NoticeTTL:   cfg.NoticeTTL,
		SaveTimeout: cfg.SaveTimeout,
	}, deps.Channels)
	return s
}

// Bootstrap rebuilds the search index from stored section content.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.search == nil {
		return nil
	}
	s.search.ReindexAllFromPG(ctx)
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Close() {
	s.editors.CloseAll()
}

func (s *Service) sectionSaved(sectionID string, content map[string]any, savedAt time.Time) {
	if s.search == nil {
		return
	}
	s.search.IndexSection(search.RecordFromContent(sectionID, content, savedAt))
}

func collectionType(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", validationError("collection type is required")
	}
	return name, nil
}

func (s *Service) Collection(ctx context.Context, collection string) (CollectionView, error) {
	name, err := collectionType(collection)
	if err != nil {
		return CollectionView{}, err
	}
	engine, err := s.board.Open(ctx, name)
	if err != nil {
		return CollectionView{}, err
	}
	return CollectionView{Snapshot: engine.Snapshot()}, nil
}

// ReloadCollection replaces the local order with the stored one.
func (s *Service) ReloadCollection(ctx context.Context, collection string) (CollectionView, error) {
	name, err := collectionType(collection)
	if err != nil {
		return CollectionView{}, err
	}
	engine, err := s.board.Open(ctx, name)
	if err != nil {
		return CollectionView{}, err
	}
	if err := engine.Load(ctx); err != nil {
		return CollectionView{}, err
	}
	return CollectionView{Snapshot: engine.Snapshot()}, nil
}

func (s *Service) DismissError(ctx context.Context, collection string) (CollectionView, error) {
	name, err := collectionType(collection)
	if err != nil {
		return CollectionView{}, err
	}
	engine, err := s.board.Open(ctx, name)
	if err != nil {
		return CollectionView{}, err
	}
	engine.DismissError()
	return CollectionView{Snapshot: engine.Snapshot()}, nil
}

func (s *Service) Drag(ctx context.Context, collection string, input DragInput) (CollectionView, error) {
	name, err := collectionType(collection)
	if err != nil {
		return CollectionView{}, err
	}
	engine, err := s.board.Open(ctx, name)
	if err != nil {
		return CollectionView{}, err
	}

	var tx *reorder.Transaction
	switch strings.ToLower(strings.TrimSpace(input.Event)) {
	case "start":
		err = engine.DragStart(input.Index)
	case "over":
		err = engine.DragOver(input.Index)
	case "drop":
		tx, err = engine.Drop()
		engine.DragEnd()
	case "end":
		engine.DragEnd()
	default:
		return CollectionView{}, validationError("event must be one of start, over, drop, end")
	}
	if err != nil {
		return CollectionView{}, err
	}
	return s.settle(ctx, engine, tx, input.Wait)
}

func (s *Service) Move(ctx context.Context, collection string, input MoveInput) (CollectionView, error) {
	name, err := collectionType(collection)
	if err != nil {
		return CollectionView{}, err
	}
	engine, err := s.board.Open(ctx, name)
	if err != nil {
		return CollectionView{}, err
	}

	var tx *reorder.Transaction
	switch {
	case input.From != nil && input.To != nil:
		tx, err = engine.MoveTo(*input.From, *input.To)
	case input.Index != nil:
		switch strings.ToLower(strings.TrimSpace(input.Direction)) {
		case "up":
			tx, err = engine.MoveUp(*input.Index)
		case "down":
			tx, err = engine.MoveDown(*input.Index)
		default:
			return CollectionView{}, validationError("direction must be 'up' or 'down'")
		}
	default:
		return CollectionView{}, validationError("either index and direction or from and to are required")
	}
	if err != nil {
		return CollectionView{}, err
	}
	return s.settle(ctx, engine, tx, input.Wait)
}

// settle optionally waits for tx and reports it alongside the engine state.
// A rolled back transaction is not an error of the request: the failure is
// carried in the snapshot until dismissed.
func (s *Service) settle(ctx context.Context, engine *reorder.Engine, tx *reorder.Transaction, wait bool) (CollectionView, error) {
	if tx != nil && wait {
		if err := tx.Wait(ctx); err != nil && ctx.Err() != nil {
			return CollectionView{}, ctx.Err()
		}
	}
	view := CollectionView{Snapshot: engine.Snapshot()}
	if tx != nil {
		view.Transaction = &TransactionView{
			ID:       tx.ID,
			Status:   tx.Status(),
			Previous: tx.Previous,
			Proposed: tx.Proposed,
		}
		if err := tx.Err(); err != nil {
			view.Transaction.Error = err.Error()
		}
	}
	return view, nil
}

// AddItem appends an item to the end of its collection.
func (s *Service) AddItem(ctx context.Context, collection string, item order.Item) (CollectionView, error) {
	name, err := collectionType(collection)
	if err != nil {
		return CollectionView{}, err
	}
	item.ID = strings.TrimSpace(item.ID)
	if item.ID == "" {
		return CollectionView{}, validationError("id is required")
	}
	return s.mutateCollection(ctx, name, func(ctx context.Context) error {
		return s.store.InsertItem(ctx, name, item)
	})
}

// DeleteItem removes an item and compacts the positions behind it.
func (s *Service) DeleteItem(ctx context.Context, collection, id string) (CollectionView, error) {
	name, err := collectionType(collection)
	if err != nil {
		return CollectionView{}, err
	}
	return s.mutateCollection(ctx, name, func(ctx context.Context) error {
		return s.store.DeleteItem(ctx, name, id)
	})
}

func (s *Service) mutateCollection(ctx context.Context, name string, mutate func(context.Context) error) (CollectionView, error) {
	engine := s.board.Engine(name)
	if engine.Saving() {
		return CollectionView{}, reorder.ErrBusy
	}
	if err := mutate(ctx); err != nil {
		return CollectionView{}, err
	}
	engine, err := s.board.Open(ctx, name)
	if err != nil {
		return CollectionView{}, err
	}
	if err := engine.Load(ctx); err != nil {
		return CollectionView{}, err
	}
	return CollectionView{Snapshot: engine.Snapshot()}, nil
}

func sectionID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", validationError("section id is required")
	}
	return id, nil
}

func (s *Service) shell(ctx context.Context, raw string) (*editor.Shell, error) {
	id, err := sectionID(raw)
	if err != nil {
		return nil, err
	}
	return s.editors.Open(ctx, id)
}

func (s *Service) Section(ctx context.Context, id string) (editor.State, error) {
	shell, err := s.shell(ctx, id)
	if err != nil {
		return editor.State{}, err
	}
	return shell.State(), nil
}

func (s *Service) SetField(ctx context.Context, id, path string, value any) (editor.State, error) {
	shell, err := s.shell(ctx, id)
	if err != nil {
		return editor.State{}, err
	}
	if err := shell.Set(path, value); err != nil {
		return editor.State{}, err
	}
	return shell.State(), nil
}

func (s *Service) SetVisible(ctx context.Context, id string, visible bool) (editor.State, error) {
	shell, err := s.shell(ctx, id)
	if err != nil {
		return editor.State{}, err
	}
	if err := shell.SetVisible(visible); err != nil {
		return editor.State{}, err
	}
	return shell.State(), nil
}

func (s *Service) SaveSection(ctx context.Context, id string) (editor.State, error) {
	shell, err := s.shell(ctx, id)
	if err != nil {
		return editor.State{}, err
	}
	if _, err := shell.Save(ctx); err != nil {
		if errors.Is(err, editor.ErrSaveInProgress) || errors.Is(err, editor.ErrClosed) {
			return editor.State{}, err
		}
		return editor.State{}, domainError(http.StatusBadGateway, codeSaveFailed, "Save failed", shell.State())
	}
	return shell.State(), nil
}

func (s *Service) CancelSection(ctx context.Context, id string) (editor.State, error) {
	shell, err := s.shell(ctx, id)
	if err != nil {
		return editor.State{}, err
	}
	if err := shell.Cancel(ctx); err != nil {
		return editor.State{}, err
	}
	return shell.State(), nil
}

// HandleKey reports whether key is a shortcut together with the editor state
// after it ran.
func (s *Service) HandleKey(ctx context.Context, id, key string) (bool, editor.State, error) {
	shell, err := s.shell(ctx, id)
	if err != nil {
		return false, editor.State{}, err
	}
	handled, err := shell.HandleKey(ctx, key)
	if err != nil && (errors.Is(err, editor.ErrSaveInProgress) || errors.Is(err, editor.ErrClosed)) {
		return handled, editor.State{}, err
	}
	// A failed save already shows its notice in the state.
	return handled, shell.State(), nil
}

// Leave closes the editor unless it holds unsaved edits and confirm is false.
func (s *Service) Leave(ctx context.Context, id string, confirm bool) (bool, error) {
	key, err := sectionID(id)
	if err != nil {
		return false, err
	}
	shell, ok := s.editors.Lookup(key)
	if !ok {
		return true, nil
	}
	if !shell.Leave(confirm) {
		return false, nil
	}
	s.editors.Close(key)
	return true, nil
}

func (s *Service) UploadImage(ctx context.Context, id, path, folder string, upload media.Upload) (media.Image, editor.State, error) {
	shell, err := s.shell(ctx, id)
	if err != nil {
		return media.Image{}, editor.State{}, err
	}
	img, err := shell.UploadImage(ctx, path, folder, upload)
	if err != nil {
		return media.Image{}, editor.State{}, err
	}
	return img, shell.State(), nil
}

func (s *Service) ListImages(ctx context.Context, folder string) ([]media.Image, error) {
	if s.media == nil {
		return nil, editor.ErrNoMediaLibrary
	}
	images, err := s.media.ListImages(ctx, folder)
	if err != nil {
		return nil, err
	}
	if images == nil {
		images = []media.Image{}
	}
	return images, nil
}

// AttachPreview connects a preview surface to the section editor. The
// returned function detaches it.
func (s *Service) AttachPreview(ctx context.Context, id string, ch preview.Channel) (func(), error) {
	shell, err := s.shell(ctx, id)
	if err != nil {
		return nil, err
	}
	return shell.Attach(ch), nil
}

func (s *Service) Device(ctx context.Context) preview.Frame {
	device := s.editors.Device(ctx)
	return preview.Frame{Device: device, Width: device.CSSWidth()}
}

func (s *Service) SetDevice(ctx context.Context, raw string) (preview.Frame, error) {
	device, err := preview.ParseDevice(raw)
	if err != nil {
		return preview.Frame{}, err
	}
	if err := s.editors.SetDevice(ctx, device); err != nil {
		return preview.Frame{}, fmt.Errorf("set device: %w", err)
	}
	return preview.Frame{Device: device, Width: device.CSSWidth()}, nil
}

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}
