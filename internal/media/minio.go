package media

import (
	"context"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is the base images are served from, bucket included.
	PublicURL string
}

// Minio is a Library on any S3-compatible store.
type Minio struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

func NewMinio(ctx context.Context, cfg MinioConfig) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	base := cfg.PublicURL
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}

	m := &Minio{client: client, bucket: cfg.Bucket, publicURL: base}
	if err := m.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Minio) ensureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", m.bucket, err)
	}
	return nil
}

func (m *Minio) UploadImage(ctx context.Context, folder string, upload Upload) (Image, error) {
	if err := ValidateImage(upload); err != nil {
		return Image{}, err
	}

	key := ObjectKey(folder, upload.ContentType)
	info, err := m.client.PutObject(ctx, m.bucket, key, upload.Body, upload.Size, minio.PutObjectOptions{
		ContentType:  normalizeType(upload.ContentType),
		UserMetadata: map[string]string{"original-name": path.Base(upload.Name)},
	})
	if err != nil {
		return Image{}, fmt.Errorf("upload image: %w", err)
	}

	return Image{
		Key:         key,
		URL:         publicURL(m.publicURL, key),
		Name:        path.Base(upload.Name),
		Size:        info.Size,
		ContentType: normalizeType(upload.ContentType),
		UploadedAt:  time.Now().UTC(),
	}, nil
}

// ListImages returns images directly under folder, newest first.
func (m *Minio) ListImages(ctx context.Context, folder string) ([]Image, error) {
	images := make([]Image, 0)
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix: folderPrefix(folder),
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list images: %w", obj.Err)
		}
		if obj.Size == 0 || obj.Key == "" || obj.Key[len(obj.Key)-1] == '/' {
			continue
		}
		images = append(images, Image{
			Key:         obj.Key,
			URL:         publicURL(m.publicURL, obj.Key),
			Name:        path.Base(obj.Key),
			Size:        obj.Size,
			ContentType: obj.ContentType,
			UploadedAt:  obj.LastModified,
		})
	}
	sortNewestFirst(images)
	return images, nil
}

func sortNewestFirst(images []Image) {
	sort.SliceStable(images, func(i, j int) bool {
		return images[i].UploadedAt.After(images[j].UploadedAt)
	})
}
