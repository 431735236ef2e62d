package media

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateImage(t *testing.T) {
	body := strings.NewReader("png")
	tests := []struct {
		name   string
		upload Upload
		ok     bool
	}{
		{"png", Upload{ContentType: "image/png", Size: 3, Body: body}, true},
		{"jpeg with params", Upload{ContentType: "Image/JPEG; charset=binary", Size: 3, Body: body}, true},
		{"pdf", Upload{ContentType: "application/pdf", Size: 3, Body: body}, false},
		{"empty", Upload{ContentType: "image/png", Size: 0, Body: body}, false},
		{"too large", Upload{ContentType: "image/png", Size: MaxImageBytes + 1, Body: body}, false},
		{"no body", Upload{ContentType: "image/png", Size: 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateImage(tt.upload)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidImage) {
				t.Errorf("expected ErrInvalidImage, got %v", err)
			}
		})
	}
}

func TestCleanFolder(t *testing.T) {
	tests := map[string]string{
		"":                "",
		"Heroes":          "heroes",
		"../../etc":       "etc",
		"blog/2026 posts": "blog/2026-posts",
		"/a//b/":          "a/b",
	}
	for in, want := range tests {
		if got := CleanFolder(in); got != want {
			t.Errorf("CleanFolder(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestObjectKey(t *testing.T) {
	a := ObjectKey("Heroes", "image/webp")
	b := ObjectKey("Heroes", "image/webp")
	if a == b {
		t.Error("keys collided")
	}
	if !strings.HasPrefix(a, "heroes/") || !strings.HasSuffix(a, ".webp") {
		t.Errorf("key = %q", a)
	}
	if root := ObjectKey("", "image/png"); strings.Contains(root, "/") {
		t.Errorf("root key = %q", root)
	}
}

func TestMemoryUploadAndList(t *testing.T) {
	ctx := context.Background()
	lib := NewMemory("https://cdn.example.com/site-media/")
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	lib.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	first, err := lib.UploadImage(ctx, "heroes", Upload{Name: "a.png", ContentType: "image/png", Size: 3, Body: strings.NewReader("abc")})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(first.URL, "https://cdn.example.com/site-media/heroes/") {
		t.Errorf("url = %q", first.URL)
	}
	second, err := lib.UploadImage(ctx, "heroes", Upload{Name: "b.jpg", ContentType: "image/jpeg", Size: 2, Body: strings.NewReader("xy")})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := lib.UploadImage(ctx, "heroes/nested", Upload{Name: "c.gif", ContentType: "image/gif", Size: 1, Body: strings.NewReader("z")}); err != nil {
		t.Fatalf("upload nested: %v", err)
	}

	images, err := lib.ListImages(ctx, "heroes")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("listed %d images, want 2", len(images))
	}
	if images[0].Key != second.Key || images[1].Key != first.Key {
		t.Errorf("order = %s, %s", images[0].Key, images[1].Key)
	}

	if _, err := lib.UploadImage(ctx, "", Upload{Name: "x.txt", ContentType: "text/plain", Size: 1, Body: strings.NewReader("x")}); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("expected ErrInvalidImage, got %v", err)
	}
}
