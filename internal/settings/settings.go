// Package settings keeps editor preferences that outlive a single session.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"sitecms/api/internal/preview"
)

// DeviceKey is where the preview viewport choice is stored.
const DeviceKey = "device-viewport"

const preferencesBucket = "preferences"

// DeviceStore remembers the last preview device.
type DeviceStore interface {
	LoadDevice(ctx context.Context) (preview.Device, error)
	SaveDevice(ctx context.Context, device preview.Device) error
}

// BoltStore is a DeviceStore backed by a local bbolt file.
type BoltStore struct {
	db *bbolt.DB
}

func Open(path string) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(preferencesBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create preferences bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LoadDevice returns the stored device. A missing or unrecognized value
// yields desktop.
func (s *BoltStore) LoadDevice(ctx context.Context) (preview.Device, error) {
	if err := ctx.Err(); err != nil {
		return preview.DeviceDesktop, err
	}

	var raw string
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(preferencesBucket))
		if bucket == nil {
			return errors.New("preferences bucket is missing")
		}
		raw = string(bucket.Get([]byte(DeviceKey)))
		return nil
	})
	if err != nil {
		return preview.DeviceDesktop, err
	}
	return deviceOrDefault(raw), nil
}

func (s *BoltStore) SaveDevice(ctx context.Context, device preview.Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := preview.ParseDevice(string(device)); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(preferencesBucket))
		if bucket == nil {
			return errors.New("preferences bucket is missing")
		}
		return bucket.Put([]byte(DeviceKey), []byte(device))
	})
}

// MemoryStore keeps the preference in memory. Used when no settings path is
// configured and in tests.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) LoadDevice(ctx context.Context) (preview.Device, error) {
	if err := ctx.Err(); err != nil {
		return preview.DeviceDesktop, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return deviceOrDefault(s.values[DeviceKey]), nil
}

func (s *MemoryStore) SaveDevice(ctx context.Context, device preview.Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := preview.ParseDevice(string(device)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[DeviceKey] = string(device)
	return nil
}

func deviceOrDefault(raw string) preview.Device {
	if raw == "" {
		return preview.DeviceDesktop
	}
	device, err := preview.ParseDevice(raw)
	if err != nil {
		log.Printf("settings: ignoring stored device %q", raw)
		return preview.DeviceDesktop
	}
	return device
}
