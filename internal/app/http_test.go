package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"sitecms/api/internal/config"
	"sitecms/api/internal/media"
	"sitecms/api/internal/order"
	"sitecms/api/internal/preview"
	"sitecms/api/internal/search"
	"sitecms/api/internal/settings"
	"sitecms/api/internal/store"
)

type fakeStore struct {
	pingFn    func(context.Context) error
	persistFn func(context.Context, string, []order.Position) error
	saveFn    func(context.Context, string, map[string]any) (time.Time, error)

	mu          sync.Mutex
	collections map[string][]order.Item
	sections    map[string]store.Section
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		collections: make(map[string][]order.Item),
		sections:    make(map[string]store.Section),
	}
}

func (f *fakeStore) seed(collection string, ids ...string) {
	items := make([]order.Item, len(ids))
	for i, id := range ids {
		items[i] = order.Item{ID: id}
	}
	f.mu.Lock()
	f.collections[collection] = items
	f.mu.Unlock()
}

func (f *fakeStore) ids(collection string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return order.IDs(f.collections[collection])
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) FetchOrderedCollection(_ context.Context, collectionType string) ([]order.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return order.Clone(f.collections[collectionType]), nil
}

func (f *fakeStore) PersistOrder(ctx context.Context, collectionType string, positions []order.Position) error {
	if f.persistFn != nil {
		if err := f.persistFn(ctx, collectionType, positions); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	applied, err := order.Apply(f.collections[collectionType], positions)
	if err != nil {
		return err
	}
	f.collections[collectionType] = applied
	return nil
}

func (f *fakeStore) InsertItem(_ context.Context, collectionType string, item order.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections[collectionType] = append(f.collections[collectionType], item)
	return nil
}

func (f *fakeStore) DeleteItem(_ context.Context, collectionType, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := f.collections[collectionType]
	if order.IndexOf(items, id) < 0 {
		return store.ErrNotFound
	}
	f.collections[collectionType] = order.Remove(items, id)
	return nil
}

func (f *fakeStore) FetchSectionContent(_ context.Context, sectionID string) (store.Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	section, ok := f.sections[sectionID]
	if !ok {
		return store.Section{}, store.ErrNotFound
	}
	return section, nil
}

func (f *fakeStore) SaveSectionContent(ctx context.Context, sectionID string, content map[string]any) (time.Time, error) {
	if f.saveFn != nil {
		return f.saveFn(ctx, sectionID, content)
	}
	savedAt := time.Now().UTC()
	f.mu.Lock()
	f.sections[sectionID] = store.Section{ID: sectionID, Content: content, UpdatedAt: savedAt}
	f.mu.Unlock()
	return savedAt, nil
}

type fakeSearch struct {
	mu      sync.Mutex
	indexed []search.SectionRecord
}

func (f *fakeSearch) Search(q search.Query) search.Response {
	return search.Response{Results: []search.Result{{SectionID: "hero", Title: q.Text}}, Total: 1, Query: q.Text}
}

func (f *fakeSearch) IndexSection(rec search.SectionRecord) {
	f.mu.Lock()
	f.indexed = append(f.indexed, rec)
	f.mu.Unlock()
}

func (f *fakeSearch) DeleteSection(string) {}

func (f *fakeSearch) ReindexAllFromPG(context.Context) {}

func (f *fakeSearch) records() []search.SectionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]search.SectionRecord(nil), f.indexed...)
}

func testConfig() config.Config {
	return config.Config{
		PreviewDebounce:   25 * time.Millisecond,
		PreviewReadyDelay: 20 * time.Millisecond,
		NoticeTTL:         time.Second,
		SaveTimeout:       time.Second,
	}
}

func newTestService(t *testing.T, fs *fakeStore, deps Deps) *Service {
	t.Helper()
	svc := New(testConfig(), fs, deps)
	t.Cleanup(svc.Close)
	return svc
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("%s %s: failed to parse response %q: %v", method, path, rr.Body.String(), err)
	}
	return rr, response
}

func itemIDs(t *testing.T, response map[string]any) []string {
	t.Helper()
	raw, ok := response["items"].([]any)
	if !ok {
		t.Fatalf("expected items array, got %v", response["items"])
	}
	ids := make([]string, len(raw))
	for i, item := range raw {
		ids[i], _ = item.(map[string]any)["id"].(string)
	}
	return ids
}

func TestCollectionSnapshot(t *testing.T) {
	fs := newFakeStore()
	fs.seed("faqs", "a", "b", "c")
	handler := NewHTTPServer(newTestService(t, fs, Deps{}), "*").Handler()

	rr, response := doJSON(t, handler, http.MethodGet, "/api/collections/faqs", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rr.Code, response)
	}
	if got := strings.Join(itemIDs(t, response), ","); got != "a,b,c" {
		t.Errorf("expected a,b,c, got %s", got)
	}
	if response["saving"] != false {
		t.Errorf("expected saving=false, got %v", response["saving"])
	}
}

func TestMoveDownPersists(t *testing.T) {
	fs := newFakeStore()
	fs.seed("faqs", "a", "b", "c")
	handler := NewHTTPServer(newTestService(t, fs, Deps{}), "*").Handler()

	rr, response := doJSON(t, handler, http.MethodPost, "/api/collections/faqs/move", map[string]any{
		"index": 0, "direction": "down", "wait": true,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rr.Code, response)
	}
	if got := strings.Join(itemIDs(t, response), ","); got != "b,a,c" {
		t.Errorf("expected b,a,c, got %s", got)
	}
	tx, _ := response["transaction"].(map[string]any)
	if tx["status"] != "committed" {
		t.Errorf("expected committed transaction, got %v", tx)
	}
	if got := strings.Join(fs.ids("faqs"), ","); got != "b,a,c" {
		t.Errorf("expected stored b,a,c, got %s", got)
	}
}

func TestMoveBoundaryIsNoop(t *testing.T) {
	fs := newFakeStore()
	fs.seed("faqs", "a", "b")
	handler := NewHTTPServer(newTestService(t, fs, Deps{}), "*").Handler()

	rr, response := doJSON(t, handler, http.MethodPost, "/api/collections/faqs/move", map[string]any{
		"index": 0, "direction": "up",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rr.Code, response)
	}
	if _, ok := response["transaction"]; ok {
		t.Errorf("expected no transaction for a boundary move, got %v", response["transaction"])
	}
}

func TestMoveValidation(t *testing.T) {
	fs := newFakeStore()
	fs.seed("faqs", "a", "b")
	handler := NewHTTPServer(newTestService(t, fs, Deps{}), "*").Handler()

	rr, _ := doJSON(t, handler, http.MethodPost, "/api/collections/faqs/move", map[string]any{"index": 0, "direction": "sideways"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for bad direction, got %d", rr.Code)
	}
	rr, _ = doJSON(t, handler, http.MethodPost, "/api/collections/faqs/move", map[string]any{"index": 9, "direction": "down"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for out of range index, got %d", rr.Code)
	}
}

func TestDragDropPersists(t *testing.T) {
	fs := newFakeStore()
	fs.seed("team", "a", "b", "c", "d")
	handler := NewHTTPServer(newTestService(t, fs, Deps{}), "*").Handler()

	for _, step := range []map[string]any{
		{"event": "start", "index": 0},
		{"event": "over", "index": 2},
	} {
		rr, response := doJSON(t, handler, http.MethodPost, "/api/collections/team/drag", step)
		if rr.Code != http.StatusOK {
			t.Fatalf("%v: expected 200, got %d: %v", step, rr.Code, response)
		}
	}
	rr, response := doJSON(t, handler, http.MethodPost, "/api/collections/team/drag", map[string]any{"event": "drop", "wait": true})
	if rr.Code != http.StatusOK {
		t.Fatalf("drop: expected 200, got %d: %v", rr.Code, response)
	}
	if got := strings.Join(itemIDs(t, response), ","); got != "b,c,a,d" {
		t.Errorf("expected b,c,a,d, got %s", got)
	}
	if response["dragState"] != "idle" {
		t.Errorf("expected idle drag state after drop, got %v", response["dragState"])
	}
	if got := strings.Join(fs.ids("team"), ","); got != "b,c,a,d" {
		t.Errorf("expected stored b,c,a,d, got %s", got)
	}
}

func TestDragOverWithoutStartRejected(t *testing.T) {
	fs := newFakeStore()
	fs.seed("team", "a", "b")
	handler := NewHTTPServer(newTestService(t, fs, Deps{}), "*").Handler()

	rr, response := doJSON(t, handler, http.MethodPost, "/api/collections/team/drag", map[string]any{"event": "over", "index": 1})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %v", rr.Code, response)
	}
}

func TestMoveWhileSavingConflicts(t *testing.T) {
	fs := newFakeStore()
	fs.seed("faqs", "a", "b", "c")
	release := make(chan struct{})
	fs.persistFn = func(ctx context.Context, _ string, _ []order.Position) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	handler := NewHTTPServer(newTestService(t, fs, Deps{}), "*").Handler()

	rr, response := doJSON(t, handler, http.MethodPost, "/api/collections/faqs/move", map[string]any{"index": 0, "direction": "down"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rr.Code, response)
	}
	if response["saving"] != true {
		t.Errorf("expected saving=true while persisting, got %v", response["saving"])
	}

	rr, response = doJSON(t, handler, http.MethodPost, "/api/collections/faqs/move", map[string]any{"index": 1, "direction": "down"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 while saving, got %d: %v", rr.Code, response)
	}
	if response["code"] != "SAVE_IN_PROGRESS" {
		t.Errorf("expected SAVE_IN_PROGRESS, got %v", response["code"])
	}
	close(release)
}

func TestFailedMoveRollsBackAndSurfacesError(t *testing.T) {
	fs := newFakeStore()
	fs.seed("faqs", "a", "b", "c")
	fs.persistFn = func(context.Context, string, []order.Position) error {
		return errors.New("write timeout")
	}
	handler := NewHTTPServer(newTestService(t, fs, Deps{}), "*").Handler()

	rr, response := doJSON(t, handler, http.MethodPost, "/api/collections/faqs/move", map[string]any{"from": 0, "to": 2, "wait": true})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rr.Code, response)
	}
	if got := strings.Join(itemIDs(t, response), ","); got != "a,b,c" {
		t.Errorf("expected authoritative a,b,c after rollback, got %s", got)
	}
	if msg, _ := response["error"].(string); !strings.Contains(msg, "write timeout") {
		t.Errorf("expected surfaced error, got %v", response["error"])
	}

	rr, response = doJSON(t, handler, http.MethodPost, "/api/collections/faqs/dismiss", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("dismiss: expected 200, got %d", rr.Code)
	}
	if _, ok := response["error"]; ok {
		t.Errorf("expected error cleared, got %v", response["error"])
	}
}

func TestAddAndDeleteItems(t *testing.T) {
	fs := newFakeStore()
	fs.seed("faqs", "a", "b", "c")
	handler := NewHTTPServer(newTestService(t, fs, Deps{}), "*").Handler()

	rr, response := doJSON(t, handler, http.MethodPost, "/api/collections/faqs/items", map[string]any{"id": "d"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", rr.Code, response)
	}
	if got := strings.Join(itemIDs(t, response), ","); got != "a,b,c,d" {
		t.Errorf("expected a,b,c,d, got %s", got)
	}

	rr, response = doJSON(t, handler, http.MethodDelete, "/api/collections/faqs/items/b", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rr.Code, response)
	}
	if got := strings.Join(itemIDs(t, response), ","); got != "a,c,d" {
		t.Errorf("expected a,c,d, got %s", got)
	}

	rr, _ = doJSON(t, handler, http.MethodDelete, "/api/collections/faqs/items/zzz", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown item, got %d", rr.Code)
	}
}

func TestSectionEditAndSave(t *testing.T) {
	fs := newFakeStore()
	fs.sections["hero"] = store.Section{
		ID:        "hero",
		Content:   map[string]any{"headline": "Old", "visible": true},
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	index := &fakeSearch{}
	handler := NewHTTPServer(newTestService(t, fs, Deps{Search: index}), "*").Handler()

	rr, response := doJSON(t, handler, http.MethodPut, "/api/sections/hero/fields", map[string]any{"path": "headline", "value": "New"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rr.Code, response)
	}
	if response["dirty"] != true {
		t.Errorf("expected dirty after edit, got %v", response["dirty"])
	}

	rr, response = doJSON(t, handler, http.MethodPost, "/api/sections/hero/save", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rr.Code, response)
	}
	if response["dirty"] != false {
		t.Errorf("expected clean after save, got %v", response["dirty"])
	}
	notice, _ := response["notice"].(map[string]any)
	if notice["kind"] != "success" {
		t.Errorf("expected success notice, got %v", response["notice"])
	}
	if fs.sections["hero"].Content["headline"] != "New" {
		t.Errorf("expected stored headline New, got %v", fs.sections["hero"].Content)
	}
	records := index.records()
	if len(records) != 1 || records[0].Title != "New" {
		t.Errorf("expected saved section indexed, got %+v", records)
	}
}

func TestSectionFieldValidation(t *testing.T) {
	handler := NewHTTPServer(newTestService(t, newFakeStore(), Deps{}), "*").Handler()

	rr, response := doJSON(t, handler, http.MethodPut, "/api/sections/hero/fields", map[string]any{"path": "a.b.c", "value": 1})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %v", rr.Code, response)
	}
}

func TestSectionSaveFailure(t *testing.T) {
	fs := newFakeStore()
	fs.saveFn = func(context.Context, string, map[string]any) (time.Time, error) {
		return time.Time{}, errors.New("disk full")
	}
	handler := NewHTTPServer(newTestService(t, fs, Deps{}), "*").Handler()

	doJSON(t, handler, http.MethodPut, "/api/sections/hero/fields", map[string]any{"path": "headline", "value": "New"})
	rr, response := doJSON(t, handler, http.MethodPost, "/api/sections/hero/save", nil)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %v", rr.Code, response)
	}
	details, _ := response["details"].(map[string]any)
	if details["dirty"] != true {
		t.Errorf("expected edits kept after failure, got %v", details)
	}
	notice, _ := details["notice"].(map[string]any)
	if msg, _ := notice["message"].(string); !strings.Contains(msg, "disk full") {
		t.Errorf("expected error notice naming the cause, got %v", notice)
	}
}

func TestSectionKeysAndCancel(t *testing.T) {
	fs := newFakeStore()
	fs.sections["hero"] = store.Section{ID: "hero", Content: map[string]any{"headline": "Old"}, UpdatedAt: time.Now()}
	handler := NewHTTPServer(newTestService(t, fs, Deps{}), "*").Handler()

	doJSON(t, handler, http.MethodPut, "/api/sections/hero/fields", map[string]any{"path": "headline", "value": "Draft"})
	rr, response := doJSON(t, handler, http.MethodPost, "/api/sections/hero/keys", map[string]any{"key": "Escape"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rr.Code, response)
	}
	if response["handled"] != true {
		t.Errorf("expected escape handled, got %v", response["handled"])
	}
	state, _ := response["state"].(map[string]any)
	content, _ := state["content"].(map[string]any)
	if content["headline"] != "Old" {
		t.Errorf("expected edits discarded, got %v", content)
	}

	_, response = doJSON(t, handler, http.MethodPost, "/api/sections/hero/keys", map[string]any{"key": "ctrl+k"})
	if response["handled"] != false {
		t.Errorf("expected unknown shortcut unhandled, got %v", response["handled"])
	}

	doJSON(t, handler, http.MethodPut, "/api/sections/hero/fields", map[string]any{"path": "headline", "value": "Saved by key"})
	_, response = doJSON(t, handler, http.MethodPost, "/api/sections/hero/keys", map[string]any{"key": "Meta+S"})
	state, _ = response["state"].(map[string]any)
	if state["dirty"] != false {
		t.Errorf("expected meta+s to save, got %v", state)
	}
}

func TestSectionCancelDuringSaveConflicts(t *testing.T) {
	fs := newFakeStore()
	release := make(chan struct{})
	entered := make(chan struct{})
	fs.saveFn = func(context.Context, string, map[string]any) (time.Time, error) {
		close(entered)
		<-release
		return time.Now().UTC(), nil
	}
	handler := NewHTTPServer(newTestService(t, fs, Deps{}), "*").Handler()

	doJSON(t, handler, http.MethodPut, "/api/sections/hero/fields", map[string]any{"path": "headline", "value": "New"})
	saved := make(chan int, 1)
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/api/sections/hero/save", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		saved <- rr.Code
	}()
	<-entered

	rr, response := doJSON(t, handler, http.MethodPost, "/api/sections/hero/cancel", nil)
	if rr.Code != http.StatusConflict || response["code"] != "SAVE_IN_PROGRESS" {
		t.Errorf("expected 409 SAVE_IN_PROGRESS, got %d: %v", rr.Code, response)
	}
	close(release)
	if code := <-saved; code != http.StatusOK {
		t.Fatalf("save returned %d", code)
	}

	_, response = doJSON(t, handler, http.MethodGet, "/api/sections/hero", nil)
	content, _ := response["content"].(map[string]any)
	if content["headline"] != "New" || response["dirty"] != false {
		t.Errorf("expected the saved edit kept and clean, got %v", response)
	}
}

func TestSectionLeaveGuard(t *testing.T) {
	handler := NewHTTPServer(newTestService(t, newFakeStore(), Deps{}), "*").Handler()

	doJSON(t, handler, http.MethodPut, "/api/sections/hero/fields", map[string]any{"path": "headline", "value": "Unsaved"})

	rr, response := doJSON(t, handler, http.MethodPost, "/api/sections/hero/leave", map[string]any{"confirm": false})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 with unsaved edits, got %d: %v", rr.Code, response)
	}
	rr, response = doJSON(t, handler, http.MethodPost, "/api/sections/hero/leave", map[string]any{"confirm": true})
	if rr.Code != http.StatusOK || response["left"] != true {
		t.Fatalf("expected confirmed leave, got %d: %v", rr.Code, response)
	}

	_, response = doJSON(t, handler, http.MethodGet, "/api/sections/hero", nil)
	if response["dirty"] != false {
		t.Errorf("expected reopened editor to be clean, got %v", response)
	}
}

func TestVisibleRequiresValue(t *testing.T) {
	handler := NewHTTPServer(newTestService(t, newFakeStore(), Deps{}), "*").Handler()

	rr, _ := doJSON(t, handler, http.MethodPost, "/api/sections/hero/visible", map[string]any{})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rr.Code)
	}
	rr, response := doJSON(t, handler, http.MethodPost, "/api/sections/hero/visible", map[string]any{"visible": false})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	content, _ := response["content"].(map[string]any)
	if content["visible"] != false {
		t.Errorf("expected visible=false, got %v", content)
	}
}

func TestDevicePreference(t *testing.T) {
	devices := settings.NewMemoryStore()
	handler := NewHTTPServer(newTestService(t, newFakeStore(), Deps{Devices: devices}), "*").Handler()

	rr, response := doJSON(t, handler, http.MethodGet, "/api/preferences/device", nil)
	if rr.Code != http.StatusOK || response["device"] != "desktop" || response["width"] != "100%" {
		t.Fatalf("expected desktop default, got %d: %v", rr.Code, response)
	}

	rr, response = doJSON(t, handler, http.MethodPut, "/api/preferences/device", map[string]any{"device": "mobile"})
	if rr.Code != http.StatusOK || response["width"] != "375px" {
		t.Fatalf("expected mobile frame, got %d: %v", rr.Code, response)
	}
	stored, err := devices.LoadDevice(context.Background())
	if err != nil || stored != preview.DeviceMobile {
		t.Errorf("expected mobile persisted, got %v %v", stored, err)
	}

	rr, _ = doJSON(t, handler, http.MethodPut, "/api/preferences/device", map[string]any{"device": "watch"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for unknown device, got %d", rr.Code)
	}
}

func TestUploadImageSetsField(t *testing.T) {
	library := media.NewMemory("https://cdn.example.com")
	handler := NewHTTPServer(newTestService(t, newFakeStore(), Deps{Media: library}), "*").Handler()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("path", "image.src")
	_ = writer.WriteField("folder", "heroes")
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="banner.png"`)
	header.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	_, _ = part.Write([]byte("\x89PNG fake"))
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/sections/hero/images", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var response struct {
		Image media.Image `json:"image"`
		State struct {
			Content map[string]any `json:"content"`
		} `json:"state"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !strings.HasPrefix(response.Image.URL, "https://cdn.example.com/heroes/") {
		t.Errorf("unexpected image url %q", response.Image.URL)
	}
	image, _ := response.State.Content["image"].(map[string]any)
	if image["src"] != response.Image.URL {
		t.Errorf("expected field set to image url, got %v", response.State.Content)
	}

	rr, listed := doJSON(t, handler, http.MethodGet, "/api/media/heroes", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if images, _ := listed["images"].([]any); len(images) != 1 {
		t.Errorf("expected one listed image, got %v", listed["images"])
	}
}

func TestMediaUnavailable(t *testing.T) {
	handler := NewHTTPServer(newTestService(t, newFakeStore(), Deps{}), "*").Handler()

	rr, response := doJSON(t, handler, http.MethodGet, "/api/media/heroes", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %v", rr.Code, response)
	}
}

func TestSearchEndpoint(t *testing.T) {
	handler := NewHTTPServer(newTestService(t, newFakeStore(), Deps{Search: &fakeSearch{}}), "*").Handler()

	rr, _ := doJSON(t, handler, http.MethodGet, "/api/search", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 without q, got %d", rr.Code)
	}
	rr, response := doJSON(t, handler, http.MethodGet, "/api/search?q=launch", nil)
	if rr.Code != http.StatusOK || response["query"] != "launch" {
		t.Fatalf("expected search response, got %d: %v", rr.Code, response)
	}
}

func TestPreviewWebsocketReceivesBaseline(t *testing.T) {
	fs := newFakeStore()
	fs.sections["hero"] = store.Section{ID: "hero", Content: map[string]any{"headline": "Live"}, UpdatedAt: time.Now()}
	srv := httptest.NewServer(NewHTTPServer(newTestService(t, fs, Deps{}), "*").Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/sections/hero/preview", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read baseline: %v", err)
	}
	msg, ok := preview.Decode(string(raw))
	if !ok {
		t.Fatalf("expected preview envelope, got %s", raw)
	}
	if msg.Content["headline"] != "Live" || msg.Content["visible"] != true {
		t.Errorf("expected full baseline, got %v", msg.Content)
	}
}
