package gcp

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/gallerybot/gallerybot/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the
// given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// GalleryRecordStore persists per-gallery job records: production status and
// the manual recheck counter. The counter increment runs in a transaction so
// concurrent requests for the same gallery stay consistent.
type GalleryRecordStore struct {
	client     *firestore.Client
	collection string
}

// NewGalleryRecordStore creates a record store over the given collection.
func NewGalleryRecordStore(client *firestore.Client, collection string) *GalleryRecordStore {
	return &GalleryRecordStore{client: client, collection: collection}
}

func (s *GalleryRecordStore) ref(galleryID int64) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(strconv.FormatInt(galleryID, 10))
}

// Record reads a gallery's record. A missing record is returned as a fresh
// one with zero values, not an error.
func (s *GalleryRecordStore) Record(ctx context.Context, galleryID int64) (*models.GalleryRecord, error) {
	snap, err := s.ref(galleryID).Get(ctx)
	if grpcstatus.Code(err) == codes.NotFound {
		return &models.GalleryRecord{GalleryID: galleryID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read gallery record %d: %w", galleryID, err)
	}

	var rec models.GalleryRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode gallery record %d: %w", galleryID, err)
	}
	rec.GalleryID = galleryID
	return &rec, nil
}

// SetStatus transitions a gallery's production status, recording error
// details alongside failures. Creates the record on first write.
func (s *GalleryRecordStore) SetStatus(ctx context.Context, galleryID int64, status, errDetails string) error {
	now := time.Now()
	data := map[string]any{
		"galleryId": galleryID,
		"status":    status,
		"updatedAt": now,
	}
	if errDetails != "" {
		data["errorDetails"] = errDetails
	}
	if _, err := s.ref(galleryID).Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to set status %s for gallery %d: %w", status, galleryID, err)
	}
	return nil
}

// SetDocumentKey records where the finished document was stored.
func (s *GalleryRecordStore) SetDocumentKey(ctx context.Context, galleryID int64, key string, pageCount int) error {
	data := map[string]any{
		"galleryId":   galleryID,
		"documentKey": key,
		"pageCount":   pageCount,
		"updatedAt":   time.Now(),
	}
	if _, err := s.ref(galleryID).Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to set document key for gallery %d: %w", galleryID, err)
	}
	return nil
}

// IncrementCheckCount bumps the gallery's manual recheck counter and returns
// the new value. The counter never decreases within a gallery's lifetime.
func (s *GalleryRecordStore) IncrementCheckCount(ctx context.Context, galleryID int64) (int, error) {
	ref := s.ref(galleryID)
	var count int

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && grpcstatus.Code(err) != codes.NotFound {
			return err
		}

		count = 1
		if snap != nil && snap.Exists() {
			var rec models.GalleryRecord
			if err := snap.DataTo(&rec); err != nil {
				return err
			}
			count = rec.CheckCount + 1
		}

		return tx.Set(ref, map[string]any{
			"galleryId":  galleryID,
			"checkCount": count,
			"updatedAt":  time.Now(),
		}, firestore.MergeAll)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment check count for gallery %d: %w", galleryID, err)
	}
	return count, nil
}
