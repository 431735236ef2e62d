package fields

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeSaver struct {
	saveSectionContentFn func(context.Context, string, map[string]any) (time.Time, error)
	saved                map[string]any
}

func (f *fakeSaver) SaveSectionContent(ctx context.Context, sectionID string, content map[string]any) (time.Time, error) {
	if f.saveSectionContentFn != nil {
		return f.saveSectionContentFn(ctx, sectionID, content)
	}
	f.saved = content
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), nil
}

func TestNewDefaultsVisible(t *testing.T) {
	store := New("hero", map[string]any{"title": "Hello"}, time.Time{})
	if !store.Visible() {
		t.Fatal("expected visible to default to true")
	}
	if store.Dirty() {
		t.Fatal("expected clean store after load")
	}
	if store.LastSavedAt() != nil {
		t.Fatal("expected nil lastSavedAt for never-saved section")
	}

	hidden := New("faq", map[string]any{"visible": false}, time.Time{})
	if hidden.Visible() {
		t.Fatal("expected explicit visible=false to be kept")
	}
}

func TestGetSetNested(t *testing.T) {
	store := New("hero", map[string]any{
		"title": "Hello",
		"cta":   map[string]any{"label": "Start", "href": "/start"},
	}, time.Time{})

	if err := store.Set("cta.label", "Begin"); err != nil {
		t.Fatalf("set nested: %v", err)
	}
	got, ok := store.Get("cta.label")
	if !ok || got != "Begin" {
		t.Fatalf("Get(cta.label) = %v, %v", got, ok)
	}
	href, _ := store.Get("cta.href")
	if href != "/start" {
		t.Fatalf("sibling field changed: %v", href)
	}

	if err := store.Set("stats.count", 3); err != nil {
		t.Fatalf("set into missing parent: %v", err)
	}
	if v, _ := store.Get("stats.count"); v != 3 {
		t.Fatalf("expected 3, got %v", v)
	}
}

func TestSetRejectsInvalidPaths(t *testing.T) {
	store := New("hero", map[string]any{"title": "Hello"}, time.Time{})
	for _, path := range []string{"", "a.b.c", ".x", "x.", "title.sub", "visible.x"} {
		if err := store.Set(path, "v"); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Set(%q) error = %v, want ErrInvalidPath", path, err)
		}
	}
	if err := store.Set("visible", "yes"); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected non-bool visible to be rejected, got %v", err)
	}
	if store.Dirty() {
		t.Fatal("rejected sets must not dirty the store")
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	store := New("hero", map[string]any{"cta": map[string]any{"label": "Start"}}, time.Time{})
	snap := store.Snapshot()
	snap["cta"].(map[string]any)["label"] = "mutated"
	if v, _ := store.Get("cta.label"); v != "Start" {
		t.Fatalf("snapshot aliasing leaked into store: %v", v)
	}
}

func TestDirtyLifecycle(t *testing.T) {
	store := New("hero", map[string]any{"title": "Hello"}, time.Time{})
	saver := &fakeSaver{}

	if store.Dirty() {
		t.Fatal("expected clean after load")
	}
	if err := store.Set("title", "Hi"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !store.Dirty() {
		t.Fatal("expected dirty after mutation")
	}

	savedAt, err := store.Save(context.Background(), saver)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if store.Dirty() {
		t.Fatal("expected clean after successful save")
	}
	if last := store.LastSavedAt(); last == nil || !last.Equal(savedAt) {
		t.Fatalf("lastSavedAt = %v, want server timestamp %v", last, savedAt)
	}
	if saver.saved["title"] != "Hi" || saver.saved["visible"] != true {
		t.Fatalf("expected full content record to be saved, got %v", saver.saved)
	}
}

func TestFailedSaveKeepsEdits(t *testing.T) {
	store := New("hero", map[string]any{"title": "Hello"}, time.Time{})
	saver := &fakeSaver{
		saveSectionContentFn: func(context.Context, string, map[string]any) (time.Time, error) {
			return time.Time{}, errors.New("timeout")
		},
	}
	if err := store.Set("title", "Draft"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := store.Save(context.Background(), saver); err == nil {
		t.Fatal("expected save error")
	}
	if !store.Dirty() {
		t.Fatal("expected still dirty after failed save")
	}
	if v, _ := store.Get("title"); v != "Draft" {
		t.Fatalf("edits lost after failed save: %v", v)
	}
	if store.LastSavedAt() != nil {
		t.Fatal("lastSavedAt must not change on failure")
	}
}

func TestSaveWithoutTimestampFails(t *testing.T) {
	store := New("hero", nil, time.Time{})
	saver := &fakeSaver{
		saveSectionContentFn: func(context.Context, string, map[string]any) (time.Time, error) {
			return time.Time{}, nil
		},
	}
	_ = store.Set("title", "x")
	if _, err := store.Save(context.Background(), saver); err == nil {
		t.Fatal("expected error without server timestamp")
	}
	if !store.Dirty() {
		t.Fatal("expected dirty to remain")
	}
}

func TestEditDuringSaveStaysDirty(t *testing.T) {
	store := New("hero", map[string]any{"title": "Hello"}, time.Time{})
	saver := &fakeSaver{
		saveSectionContentFn: func(context.Context, string, map[string]any) (time.Time, error) {
			if err := store.Set("title", "typed while saving"); err != nil {
				t.Errorf("set during save: %v", err)
			}
			return time.Now(), nil
		},
	}
	_ = store.Set("title", "Hi")
	if _, err := store.Save(context.Background(), saver); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !store.Dirty() {
		t.Fatal("expected dirty because of an edit made during the save")
	}
}

func TestDiscardRestoresBaseline(t *testing.T) {
	store := New("hero", map[string]any{"title": "Hello"}, time.Time{})
	_ = store.Set("title", "Changed")
	_ = store.SetVisible(false)

	restored := store.Discard()
	if restored["title"] != "Hello" || restored["visible"] != true {
		t.Fatalf("unexpected restored content %v", restored)
	}
	if store.Dirty() {
		t.Fatal("expected clean after discard")
	}
}

func TestDiscardDuringSaveStaysDirty(t *testing.T) {
	store := New("hero", map[string]any{"title": "Old"}, time.Time{})
	saver := &fakeSaver{
		saveSectionContentFn: func(context.Context, string, map[string]any) (time.Time, error) {
			store.Discard()
			return time.Now(), nil
		},
	}
	_ = store.Set("title", "New")
	if _, err := store.Save(context.Background(), saver); err != nil {
		t.Fatalf("save: %v", err)
	}
	if v, _ := store.Get("title"); v != "Old" {
		t.Fatalf("title = %v, want Old", v)
	}
	if !store.Dirty() {
		t.Fatal("expected dirty: the editor differs from what was saved")
	}
	if restored := store.Discard(); restored["title"] != "New" {
		t.Fatalf("discard restored %v, want the saved title", restored["title"])
	}
}

func TestEditRevertedDuringSaveIsClean(t *testing.T) {
	store := New("hero", map[string]any{"title": "Old"}, time.Time{})
	saver := &fakeSaver{
		saveSectionContentFn: func(context.Context, string, map[string]any) (time.Time, error) {
			_ = store.Set("title", "Newer")
			_ = store.Set("title", "New")
			return time.Now(), nil
		},
	}
	_ = store.Set("title", "New")
	if _, err := store.Save(context.Background(), saver); err != nil {
		t.Fatalf("save: %v", err)
	}
	if store.Dirty() {
		t.Fatal("expected clean: content equals what was saved")
	}
}

func TestRevertReportsAddedFields(t *testing.T) {
	store := New("hero", map[string]any{
		"title": "Hello",
		"cta":   map[string]any{"label": "Go"},
	}, time.Time{})
	_ = store.Set("title", "Changed")
	_ = store.Set("promo", "Sale!")
	_ = store.Set("cta.sub", "now")
	_ = store.Set("badge.text", "New")

	restored, removed := store.Revert()
	if restored["title"] != "Hello" {
		t.Fatalf("title = %v", restored["title"])
	}
	if v, ok := removed["promo"]; !ok || v != nil {
		t.Errorf("promo removal = %v, %v", v, ok)
	}
	if v, ok := removed["badge"]; !ok || v != nil {
		t.Errorf("badge removal = %v, %v", v, ok)
	}
	cta, ok := removed["cta"].(map[string]any)
	if !ok || len(cta) != 1 {
		t.Fatalf("cta removal = %#v", removed["cta"])
	}
	if v, ok := cta["sub"]; !ok || v != nil {
		t.Errorf("cta.sub removal = %v, %v", v, ok)
	}
	if _, ok := removed["title"]; ok {
		t.Error("title still exists and must not be removed")
	}
}

func TestToggleVisibleAndListeners(t *testing.T) {
	store := New("hero", nil, time.Time{})
	var seen []string
	store.Subscribe(func(path string, value any) {
		seen = append(seen, path)
	})

	visible, err := store.ToggleVisible()
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if visible || store.Visible() {
		t.Fatal("expected visible to toggle to false")
	}
	_ = store.Set("title", "x")
	if len(seen) != 2 || seen[0] != "visible" || seen[1] != "title" {
		t.Fatalf("unexpected listener calls %v", seen)
	}
}
