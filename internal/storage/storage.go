// Package storage persists encrypted submission envelopes in object
// storage. Backends (MinIO, GCS) are interchangeable behind ObjectStorage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when an envelope blob does not exist in the
// bucket. Callers distinguish this from a missing submission record.
var ErrNotFound = errors.New("object not found")

const envelopeContentType = "application/json"

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// IsNotFound reports whether err is the backend's missing-object error.
	IsNotFound(err error) bool
	Bucket() string
}

// Storage wraps an ObjectStorage backend with a stable API.
type Storage struct {
	backend ObjectStorage
}

// NewStorage constructs a Storage wrapper for the provided backend.
func NewStorage(backend ObjectStorage) *Storage {
	return &Storage{backend: backend}
}

// EnsureBucket ensures the configured bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// PutEnvelope stores a serialized envelope under key.
func (s *Storage) PutEnvelope(ctx context.Context, key string, data []byte) error {
	return s.backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), envelopeContentType)
}

// GetEnvelope reads the serialized envelope stored under key. A missing
// object yields ErrNotFound.
func (s *Storage) GetEnvelope(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.backend.Get(ctx, key)
	if err != nil {
		if s.backend.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		// Some backends defer the missing-object error to read time.
		if s.backend.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Delete removes the envelope stored under key.
func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}
