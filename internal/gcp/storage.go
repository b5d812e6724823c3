package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// ErrDocumentNotFound is returned when no finished document exists under a
// key.
var ErrDocumentNotFound = errors.New("gcp: document not found")

const writeTimeout = 50 * time.Second

// DocumentStore persists finished gallery documents in a GCS bucket. Keys
// are derived from the provider's documentUrl.
type DocumentStore struct {
	client *storage.Client
	bucket string
}

// NewDocumentStore creates a store over the given bucket.
func NewDocumentStore(ctx context.Context, bucket string) (*DocumentStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket must be provided to create a document store")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	return &DocumentStore{client: client, bucket: bucket}, nil
}

// Get returns the stored document bytes, or ErrDocumentNotFound.
func (s *DocumentStore) Get(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", s.bucket, key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}

// Exists reports whether a document is locatable under key.
func (s *DocumentStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat gs://%s/%s: %w", s.bucket, key, err)
	}
	return true, nil
}

// SaveAtomically writes document bytes only if the object doesn't already
// exist. A concurrent writer winning the race is not a failure; production
// is idempotent per gallery.
func (s *DocumentStore) SaveAtomically(ctx context.Context, key string, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	writer := s.client.Bucket(s.bucket).Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(writeCtx)

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			slog.Info("Document object already exists, skipping write.", "key", key)
			return nil
		}
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			slog.Info("Document object already exists, skipping write.", "key", key)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 412
}
