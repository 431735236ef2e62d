// Package media stores images picked in the section editor.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidImage = errors.New("invalid image")

// MaxImageBytes bounds a single upload.
const MaxImageBytes = 10 << 20

var allowedTypes = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
}

// Image describes one stored object.
type Image struct {
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Upload is an image on its way into the library.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Library is the media collaborator used by the editor.
type Library interface {
	UploadImage(ctx context.Context, folder string, upload Upload) (Image, error)
	ListImages(ctx context.Context, folder string) ([]Image, error)
}

// ValidateImage checks content type and size.
func ValidateImage(upload Upload) error {
	if _, ok := allowedTypes[normalizeType(upload.ContentType)]; !ok {
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidImage, upload.ContentType)
	}
	if upload.Size <= 0 {
		return fmt.Errorf("%w: empty file", ErrInvalidImage)
	}
	if upload.Size > MaxImageBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit", ErrInvalidImage, upload.Size)
	}
	if upload.Body == nil {
		return fmt.Errorf("%w: missing body", ErrInvalidImage)
	}
	return nil
}

var unsafeSegment = regexp.MustCompile(`[^a-z0-9_-]+`)

// CleanFolder lowercases folder and strips anything that could escape the
// bucket prefix. An empty result means the library root.
func CleanFolder(folder string) string {
	parts := strings.Split(strings.ToLower(folder), "/")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(unsafeSegment.ReplaceAllString(part, "-"), "-")
		if part == "" {
			continue
		}
		cleaned = append(cleaned, part)
	}
	return strings.Join(cleaned, "/")
}

// ObjectKey names a new object under folder. Keys never collide, so a
// re-upload of the same file yields a new URL.
func ObjectKey(folder, contentType string) string {
	name := uuid.NewString() + allowedTypes[normalizeType(contentType)]
	if folder = CleanFolder(folder); folder != "" {
		return path.Join(folder, name)
	}
	return name
}

func folderPrefix(folder string) string {
	if folder = CleanFolder(folder); folder != "" {
		return folder + "/"
	}
	return ""
}

func normalizeType(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func publicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
