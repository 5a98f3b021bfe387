package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"shutterhub/internal/server/blobstore"
	"shutterhub/internal/server/database"

	"github.com/google/uuid"
)

var (
	ErrNoPhotoKeys     = errors.New("photo keys are required")
	ErrNoPhotosMatched = errors.New("no matching photos found")
)

// PhotoView is the client-facing shape of a stored photo.
type PhotoView struct {
	BlobKey    string `json:"blobKey"`
	URL        string `json:"url"`
	Size       string `json:"size"`
	IsSelected bool   `json:"isSelected"`
}

// BatchView is the client-facing shape of a photo batch.
type BatchView struct {
	BatchName  string      `json:"batchName"`
	CoverImage *string     `json:"coverImage,omitempty"`
	Photos     []PhotoView `json:"photos"`
}

// EventSnapshot is the full client-facing view of an event, its batches and
// its selected set.
type EventSnapshot struct {
	ID             uuid.UUID   `json:"id"`
	Name           string      `json:"name"`
	Slug           string      `json:"slug"`
	Status         string      `json:"status"`
	OwnerID        uuid.UUID   `json:"ownerId"`
	PhotographerID uuid.UUID   `json:"photographerId"`
	PackageID      *uuid.UUID  `json:"packageId,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	PhotoBatches   []BatchView `json:"photoBatches"`
	Selected       []string    `json:"selected"`
}

// LedgerStore is the slice of the repository the ledger needs.
type LedgerStore interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*database.Event, error)
	EventBatches(ctx context.Context, eventID uuid.UUID) ([]database.PhotoBatch, error)
	EventPhotoQuota(ctx context.Context, eventID uuid.UUID) (*int, error)
	SelectPhotos(ctx context.Context, eventID uuid.UUID, keys []string, limit *int) (int64, error)
	DeselectPhotos(ctx context.Context, eventID uuid.UUID, keys []string) (int64, error)
	PhotosInBatch(ctx context.Context, eventID uuid.UUID, batchName string) (uuid.UUID, []database.Photo, error)
	DeletePhotos(ctx context.Context, batchID uuid.UUID, keys []string, ownerID uuid.UUID) (int64, error)
}

// Ledger mutates and reads the persistent photo ledger of an event. All
// selection mutations are keyed by blob key and leave unnamed photos
// untouched.
type Ledger struct {
	store LedgerStore
	blobs blobstore.Store
}

// NewLedger creates a photo ledger service.
func NewLedger(store LedgerStore, blobs blobstore.Store) *Ledger {
	return &Ledger{store: store, blobs: blobs}
}

// SelectPhotos marks the named photos selected and returns the refreshed
// event snapshot. When the event carries a photo package, the selection may
// not grow past the package's photo count.
func (l *Ledger) SelectPhotos(ctx context.Context, eventID uuid.UUID, keys []string) (*EventSnapshot, error) {
	if len(keys) == 0 {
		return nil, ErrNoPhotoKeys
	}

	limit, err := l.store.EventPhotoQuota(ctx, eventID)
	if err != nil {
		return nil, mapLedgerError(err)
	}

	if _, err := l.store.SelectPhotos(ctx, eventID, keys, limit); err != nil {
		return nil, mapLedgerError(err)
	}

	return l.Snapshot(ctx, eventID)
}

// DeselectPhotos clears the selected flag on the named photos only.
func (l *Ledger) DeselectPhotos(ctx context.Context, eventID uuid.UUID, keys []string) error {
	if len(keys) == 0 {
		return ErrNoPhotoKeys
	}

	if _, err := l.store.GetEvent(ctx, eventID); err != nil {
		return mapLedgerError(err)
	}
	if _, err := l.store.DeselectPhotos(ctx, eventID, keys); err != nil {
		return mapLedgerError(err)
	}
	return nil
}

// DeletePhotos removes the named photos from the batch and their objects
// from blob storage. Storage failures are logged per key and never block
// the removal of the ledger rows, so storage and metadata may briefly
// diverge until a sweep reconciles them.
func (l *Ledger) DeletePhotos(ctx context.Context, eventID uuid.UUID, batchName string, keys []string) ([]PhotoView, error) {
	if len(keys) == 0 {
		return nil, ErrNoPhotoKeys
	}

	event, err := l.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, mapLedgerError(err)
	}

	batchID, photos, err := l.store.PhotosInBatch(ctx, eventID, batchName)
	if err != nil {
		return nil, mapLedgerError(err)
	}

	wanted := make(map[string]bool, len(keys))
	for _, key := range keys {
		wanted[key] = true
	}
	var matched []database.Photo
	for _, photo := range photos {
		if wanted[photo.BlobKey] {
			matched = append(matched, photo)
		}
	}
	if len(matched) == 0 {
		return nil, ErrNoPhotosMatched
	}

	deletedKeys := make([]string, 0, len(matched))
	views := make([]PhotoView, 0, len(matched))
	for _, photo := range matched {
		if err := l.blobs.Remove(ctx, photo.BlobKey); err != nil {
			slog.Error("failed to remove photo blob", "blob_key", photo.BlobKey, "error", err)
		}
		deletedKeys = append(deletedKeys, photo.BlobKey)
		views = append(views, l.photoView(photo))
	}

	if _, err := l.store.DeletePhotos(ctx, batchID, deletedKeys, event.OwnerID); err != nil {
		return nil, mapLedgerError(err)
	}

	slog.Info("photos deleted",
		"event_id", eventID,
		"batch", batchName,
		"deleted", len(deletedKeys),
	)
	return views, nil
}

// Snapshot assembles the full client-facing view of an event.
func (l *Ledger) Snapshot(ctx context.Context, eventID uuid.UUID) (*EventSnapshot, error) {
	event, err := l.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	batches, err := l.store.EventBatches(ctx, eventID)
	if err != nil {
		return nil, mapLedgerError(err)
	}

	snapshot := &EventSnapshot{
		ID:             event.ID,
		Name:           event.Name,
		Slug:           event.Slug,
		Status:         event.Status,
		OwnerID:        event.OwnerID,
		PhotographerID: event.PhotographerID,
		PackageID:      event.PackageID,
		CreatedAt:      event.CreatedAt,
		PhotoBatches:   make([]BatchView, 0, len(batches)),
		Selected:       []string{},
	}
	for _, batch := range batches {
		view := BatchView{
			BatchName:  batch.BatchName,
			CoverImage: batch.CoverImage,
			Photos:     make([]PhotoView, 0, len(batch.Photos)),
		}
		for _, photo := range batch.Photos {
			view.Photos = append(view.Photos, l.photoView(photo))
			if photo.IsSelected {
				snapshot.Selected = append(snapshot.Selected, photo.BlobKey)
			}
		}
		snapshot.PhotoBatches = append(snapshot.PhotoBatches, view)
	}
	return snapshot, nil
}

func (l *Ledger) photoView(photo database.Photo) PhotoView {
	return PhotoView{
		BlobKey:    photo.BlobKey,
		URL:        l.blobs.ObjectURL(photo.BlobKey),
		Size:       photo.SizeLabel,
		IsSelected: photo.IsSelected,
	}
}

// mapLedgerError translates repository sentinels into service sentinels.
func mapLedgerError(err error) error {
	switch {
	case errors.Is(err, database.ErrEventNotFound):
		return ErrEventNotFound
	case errors.Is(err, database.ErrBatchNotFound):
		return ErrBatchNotFound
	case errors.Is(err, database.ErrSelectionLimitExceeded):
		return ErrSelectionLimitExceeded
	default:
		return err
	}
}
