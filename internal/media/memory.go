package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Library for local development and tests.
type Memory struct {
	mu        sync.Mutex
	publicURL string
	images    map[string]Image
	data      map[string][]byte
	now       func() time.Time
}

func NewMemory(publicURL string) *Memory {
	if publicURL == "" {
		publicURL = "/media"
	}
	return &Memory{
		publicURL: publicURL,
		images:    make(map[string]Image),
		data:      make(map[string][]byte),
		now:       time.Now,
	}
}

func (m *Memory) UploadImage(ctx context.Context, folder string, upload Upload) (Image, error) {
	if err := ctx.Err(); err != nil {
		return Image{}, err
	}
	if err := ValidateImage(upload); err != nil {
		return Image{}, err
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(upload.Body, MaxImageBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("read image: %w", err)
	}
	if n > MaxImageBytes {
		return Image{}, fmt.Errorf("%w: body exceeds limit", ErrInvalidImage)
	}

	key := ObjectKey(folder, upload.ContentType)
	img := Image{
		Key:         key,
		URL:         publicURL(m.publicURL, key),
		Name:        path.Base(upload.Name),
		Size:        n,
		ContentType: normalizeType(upload.ContentType),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	img.UploadedAt = m.now().UTC()
	m.images[key] = img
	m.data[key] = buf.Bytes()
	return img, nil
}

func (m *Memory) ListImages(ctx context.Context, folder string) ([]Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := folderPrefix(folder)

	m.mu.Lock()
	defer m.mu.Unlock()
	images := make([]Image, 0)
	for key, img := range m.images {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		images = append(images, img)
	}
	sortNewestFirst(images)
	return images, nil
}
