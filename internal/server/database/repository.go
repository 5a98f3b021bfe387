package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrEventNotFound          = errors.New("event not found")
	ErrBatchNotFound          = errors.New("photo batch not found")
	ErrBatchExists            = errors.New("photo batch already exists")
	ErrUserNotFound           = errors.New("user not found")
	ErrPackageNotFound        = errors.New("package not found")
	ErrShareNotFound          = errors.New("share not found")
	ErrSelectionLimitExceeded = errors.New("selection exceeds package photo count")
)

// Repository provides persistence for events, batches and photos.
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// CreateEvent inserts a new event row.
func (r *Repository) CreateEvent(ctx context.Context, event *Event) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO events (id, name, slug, status, owner_id, photographer_id, package_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		event.ID,
		event.Name,
		event.Slug,
		event.Status,
		event.OwnerID,
		event.PhotographerID,
		event.PackageID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// GetEvent retrieves an event with the owner and photographer phone numbers
// joined in, as the storage key layout needs both.
func (r *Repository) GetEvent(ctx context.Context, id uuid.UUID) (*Event, error) {
	event := &Event{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT e.id, e.name, e.slug, e.status, e.owner_id, e.photographer_id,
		       e.package_id, e.created_at, o.phone_number, p.phone_number
		FROM events e
		JOIN users o ON o.id = e.owner_id
		JOIN users p ON p.id = e.photographer_id
		WHERE e.id = $1
	`, id).Scan(
		&event.ID,
		&event.Name,
		&event.Slug,
		&event.Status,
		&event.OwnerID,
		&event.PhotographerID,
		&event.PackageID,
		&event.CreatedAt,
		&event.OwnerPhone,
		&event.PhotographerPhone,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

// ListEvents returns events filtered by owner and/or photographer.
func (r *Repository) ListEvents(ctx context.Context, ownerID, photographerID *uuid.UUID) ([]*Event, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT e.id, e.name, e.slug, e.status, e.owner_id, e.photographer_id,
		       e.package_id, e.created_at, o.phone_number, p.phone_number
		FROM events e
		JOIN users o ON o.id = e.owner_id
		JOIN users p ON p.id = e.photographer_id
		WHERE ($1::uuid IS NULL OR e.owner_id = $1)
		  AND ($2::uuid IS NULL OR e.photographer_id = $2)
		ORDER BY e.created_at DESC
	`, ownerID, photographerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event := &Event{}
		if err := rows.Scan(
			&event.ID,
			&event.Name,
			&event.Slug,
			&event.Status,
			&event.OwnerID,
			&event.PhotographerID,
			&event.PackageID,
			&event.CreatedAt,
			&event.OwnerPhone,
			&event.PhotographerPhone,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// UpdateEvent updates the mutable fields of an event.
func (r *Repository) UpdateEvent(ctx context.Context, event *Event) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE events SET name = $2, slug = $3, status = $4, package_id = $5
		WHERE id = $1
	`, event.ID, event.Name, event.Slug, event.Status, event.PackageID)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// DeleteEvent removes an event and, via cascade, its batches and photos.
// It returns the blob keys of all photos the event held so the caller can
// reclaim the backing objects.
func (r *Repository) DeleteEvent(ctx context.Context, id uuid.UUID) ([]string, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, "SELECT blob_key FROM photos WHERE event_id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("failed to list event photos: %w", err)
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan blob key: %w", err)
		}
		keys = append(keys, key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, "DELETE FROM events WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrEventNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit event deletion: %w", err)
	}
	return keys, nil
}

// BatchExists reports whether the event already has a batch with this name.
func (r *Repository) BatchExists(ctx context.Context, eventID uuid.UUID, batchName string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM photo_batches WHERE event_id = $1 AND batch_name = $2)
	`, eventID, batchName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check batch: %w", err)
	}
	return exists, nil
}

// CommitBatch appends uploaded photos to the event's named batch in a single
// transaction. In create mode the batch row is inserted and a concurrent
// writer racing on the same name loses with ErrBatchExists; in append mode
// the existing batch is resolved inside the same transaction. Photo rows are
// inserted under the (event_id, blob_key) unique constraint, so no concurrent
// request can silently drop this batch's photos.
func (r *Repository) CommitBatch(ctx context.Context, eventID uuid.UUID, batchName string, photos []Photo, mustCreate bool) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var batchID uuid.UUID
	if mustCreate {
		batchID = uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO photo_batches (id, event_id, batch_name) VALUES ($1, $2, $3)
		`, batchID, eventID, batchName)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrBatchExists
			}
			if isForeignKeyViolation(err) {
				return ErrEventNotFound
			}
			return fmt.Errorf("failed to create batch: %w", err)
		}
	} else {
		err := tx.QueryRow(ctx, `
			SELECT id FROM photo_batches WHERE event_id = $1 AND batch_name = $2
		`, eventID, batchName).Scan(&batchID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrBatchNotFound
			}
			return fmt.Errorf("failed to resolve batch: %w", err)
		}
	}

	for _, photo := range photos {
		_, err := tx.Exec(ctx, `
			INSERT INTO photos (id, batch_id, event_id, blob_key, size_bytes, size_label, is_selected)
			VALUES ($1, $2, $3, $4, $5, $6, FALSE)
			ON CONFLICT (event_id, blob_key) DO NOTHING
		`, uuid.New(), batchID, eventID, photo.BlobKey, photo.SizeBytes, photo.SizeLabel)
		if err != nil {
			return fmt.Errorf("failed to insert photo %s: %w", photo.BlobKey, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// EventBatches returns all batches of an event with their photos, in upload
// order.
func (r *Repository) EventBatches(ctx context.Context, eventID uuid.UUID) ([]PhotoBatch, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, event_id, batch_name, cover_image, created_at
		FROM photo_batches WHERE event_id = $1
		ORDER BY created_at, batch_name
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var batches []PhotoBatch
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		batch := PhotoBatch{}
		if err := rows.Scan(&batch.ID, &batch.EventID, &batch.BatchName, &batch.CoverImage, &batch.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		index[batch.ID] = len(batches)
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	photoRows, err := r.db.Pool.Query(ctx, `
		SELECT id, batch_id, event_id, blob_key, size_bytes, size_label, is_selected, created_at
		FROM photos WHERE event_id = $1
		ORDER BY created_at, blob_key
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	defer photoRows.Close()

	for photoRows.Next() {
		photo := Photo{}
		if err := photoRows.Scan(
			&photo.ID,
			&photo.BatchID,
			&photo.EventID,
			&photo.BlobKey,
			&photo.SizeBytes,
			&photo.SizeLabel,
			&photo.IsSelected,
			&photo.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		if i, ok := index[photo.BatchID]; ok {
			batches[i].Photos = append(batches[i].Photos, photo)
		}
	}
	return batches, photoRows.Err()
}

// SelectPhotos marks the matching photos selected. Photos not named in keys
// are left untouched. When limit is non-nil the total selected count after
// the update may not exceed it; the whole update rolls back otherwise.
func (r *Repository) SelectPhotos(ctx context.Context, eventID uuid.UUID, keys []string, limit *int) (int64, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE photos SET is_selected = TRUE
		WHERE event_id = $1 AND blob_key = ANY($2)
	`, eventID, keys)
	if err != nil {
		return 0, fmt.Errorf("failed to select photos: %w", err)
	}

	if limit != nil {
		var selected int
		err := tx.QueryRow(ctx,
			"SELECT COUNT(*) FROM photos WHERE event_id = $1 AND is_selected", eventID,
		).Scan(&selected)
		if err != nil {
			return 0, fmt.Errorf("failed to count selected photos: %w", err)
		}
		if selected > *limit {
			return 0, ErrSelectionLimitExceeded
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit selection: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeselectPhotos clears the selected flag on the matching photos only.
func (r *Repository) DeselectPhotos(ctx context.Context, eventID uuid.UUID, keys []string) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE photos SET is_selected = FALSE
		WHERE event_id = $1 AND blob_key = ANY($2)
	`, eventID, keys)
	if err != nil {
		return 0, fmt.Errorf("failed to deselect photos: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PhotosInBatch returns all photos of the named batch. ErrBatchNotFound is
// returned when the batch does not exist at all.
func (r *Repository) PhotosInBatch(ctx context.Context, eventID uuid.UUID, batchName string) (uuid.UUID, []Photo, error) {
	var batchID uuid.UUID
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id FROM photo_batches WHERE event_id = $1 AND batch_name = $2
	`, eventID, batchName).Scan(&batchID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, nil, ErrBatchNotFound
		}
		return uuid.Nil, nil, fmt.Errorf("failed to resolve batch: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, batch_id, event_id, blob_key, size_bytes, size_label, is_selected, created_at
		FROM photos WHERE batch_id = $1
		ORDER BY created_at, blob_key
	`, batchID)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("failed to list batch photos: %w", err)
	}
	defer rows.Close()

	var photos []Photo
	for rows.Next() {
		photo := Photo{}
		if err := rows.Scan(
			&photo.ID,
			&photo.BatchID,
			&photo.EventID,
			&photo.BlobKey,
			&photo.SizeBytes,
			&photo.SizeLabel,
			&photo.IsSelected,
			&photo.CreatedAt,
		); err != nil {
			return uuid.Nil, nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, photo)
	}
	return batchID, photos, rows.Err()
}

// DeletePhotos removes the matching photo rows and gives the freed bytes
// back to the owner's active storage package, all in one transaction.
func (r *Repository) DeletePhotos(ctx context.Context, batchID uuid.UUID, keys []string, ownerID uuid.UUID) (int64, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		DELETE FROM photos WHERE batch_id = $1 AND blob_key = ANY($2)
		RETURNING size_bytes
	`, batchID, keys)
	if err != nil {
		return 0, fmt.Errorf("failed to delete photos: %w", err)
	}
	var deleted, freedBytes int64
	for rows.Next() {
		var size int64
		if err := rows.Scan(&size); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan deleted photo: %w", err)
		}
		deleted++
		freedBytes += size
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if freedBytes > 0 {
		_, err := tx.Exec(ctx, `
			UPDATE purchased_packages
			SET used_bytes = GREATEST(0, used_bytes - $2)
			WHERE user_id = $1 AND is_active AND end_date > NOW()
		`, ownerID, freedBytes)
		if err != nil {
			return 0, fmt.Errorf("failed to release storage: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit photo deletion: %w", err)
	}
	return deleted, nil
}

// EventPhotoQuota returns the photo count of the event's attached package,
// or nil when the event has no package.
func (r *Repository) EventPhotoQuota(ctx context.Context, eventID uuid.UUID) (*int, error) {
	var quota *int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT pp.photo_count
		FROM events e
		LEFT JOIN photo_packages pp ON pp.id = e.package_id
		WHERE e.id = $1
	`, eventID).Scan(&quota)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get photo quota: %w", err)
	}
	return quota, nil
}

// ActiveStoragePackage returns the user's current storage entitlement, or
// nil when none is active.
func (r *Repository) ActiveStoragePackage(ctx context.Context, userID uuid.UUID) (*PurchasedPackage, error) {
	pkg := &PurchasedPackage{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, user_id, package_id, storage_limit_bytes, used_bytes, start_date, end_date, is_active
		FROM purchased_packages
		WHERE user_id = $1 AND is_active AND end_date > NOW()
		ORDER BY end_date DESC
		LIMIT 1
	`, userID).Scan(
		&pkg.ID,
		&pkg.UserID,
		&pkg.PackageID,
		&pkg.StorageLimitBytes,
		&pkg.UsedBytes,
		&pkg.StartDate,
		&pkg.EndDate,
		&pkg.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active package: %w", err)
	}
	return pkg, nil
}

// TryReserveStorage atomically adds n bytes to the active package's usage,
// refusing when the limit would be exceeded. Returns false when no row
// qualified, which under an active package means the quota is exhausted.
func (r *Repository) TryReserveStorage(ctx context.Context, userID uuid.UUID, n int64) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE purchased_packages
		SET used_bytes = used_bytes + $2
		WHERE user_id = $1 AND is_active AND end_date > NOW()
		  AND used_bytes + $2 <= storage_limit_bytes
	`, userID, n)
	if err != nil {
		return false, fmt.Errorf("failed to reserve storage: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseStorage gives n reserved bytes back, flooring at zero.
func (r *Repository) ReleaseStorage(ctx context.Context, userID uuid.UUID, n int64) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE purchased_packages
		SET used_bytes = GREATEST(0, used_bytes - $2)
		WHERE user_id = $1 AND is_active AND end_date > NOW()
	`, userID, n)
	if err != nil {
		return fmt.Errorf("failed to release storage: %w", err)
	}
	return nil
}
