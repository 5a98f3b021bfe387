package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrPhoneTaken = errors.New("phone number already registered")

// CreateUser inserts a new account.
func (r *Repository) CreateUser(ctx context.Context, user *User) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO users (id, name, phone_number, user_type) VALUES ($1, $2, $3, $4)
	`, user.ID, user.Name, user.PhoneNumber, user.UserType)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrPhoneTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves an account by ID.
func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	user := &User{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, name, phone_number, user_type, created_at FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Name, &user.PhoneNumber, &user.UserType, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// CreatePhotoPackage inserts a photographer's selection package.
func (r *Repository) CreatePhotoPackage(ctx context.Context, pkg *PhotoPackage) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO photo_packages (id, photographer_id, name, photo_count, price_cents)
		VALUES ($1, $2, $3, $4, $5)
	`, pkg.ID, pkg.PhotographerID, pkg.Name, pkg.PhotoCount, pkg.PriceCents)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to create photo package: %w", err)
	}
	return nil
}

// CreateStoragePackage inserts a storage tier.
func (r *Repository) CreateStoragePackage(ctx context.Context, pkg *StoragePackage) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO storage_packages (id, name, storage_limit_bytes, price_cents, duration_months, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, pkg.ID, pkg.Name, pkg.StorageLimitBytes, pkg.PriceCents, pkg.DurationMonths, pkg.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create storage package: %w", err)
	}
	return nil
}

// ListStoragePackages returns all active storage tiers.
func (r *Repository) ListStoragePackages(ctx context.Context) ([]*StoragePackage, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, name, storage_limit_bytes, price_cents, duration_months, is_active, created_at
		FROM storage_packages WHERE is_active ORDER BY price_cents
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage packages: %w", err)
	}
	defer rows.Close()

	var packages []*StoragePackage
	for rows.Next() {
		pkg := &StoragePackage{}
		if err := rows.Scan(
			&pkg.ID,
			&pkg.Name,
			&pkg.StorageLimitBytes,
			&pkg.PriceCents,
			&pkg.DurationMonths,
			&pkg.IsActive,
			&pkg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan storage package: %w", err)
		}
		packages = append(packages, pkg)
	}
	return packages, rows.Err()
}

// GetStoragePackage retrieves one storage tier.
func (r *Repository) GetStoragePackage(ctx context.Context, id uuid.UUID) (*StoragePackage, error) {
	pkg := &StoragePackage{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, name, storage_limit_bytes, price_cents, duration_months, is_active, created_at
		FROM storage_packages WHERE id = $1
	`, id).Scan(
		&pkg.ID,
		&pkg.Name,
		&pkg.StorageLimitBytes,
		&pkg.PriceCents,
		&pkg.DurationMonths,
		&pkg.IsActive,
		&pkg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPackageNotFound
		}
		return nil, fmt.Errorf("failed to get storage package: %w", err)
	}
	return pkg, nil
}

// CreatePurchase records a storage package purchase and its transaction in
// one transaction.
func (r *Repository) CreatePurchase(ctx context.Context, purchase *PurchasedPackage, txn *Transaction) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO purchased_packages (id, user_id, package_id, storage_limit_bytes, used_bytes, start_date, end_date, is_active)
		VALUES ($1, $2, $3, $4, 0, $5, $6, TRUE)
	`,
		purchase.ID,
		purchase.UserID,
		purchase.PackageID,
		purchase.StorageLimitBytes,
		purchase.StartDate,
		purchase.EndDate,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to create purchased package: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (id, actor_type, user_id, package_id, amount_cents, payment_status, payment_method, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		txn.ID,
		txn.ActorType,
		txn.UserID,
		txn.PackageID,
		txn.AmountCents,
		txn.PaymentStatus,
		txn.PaymentMethod,
		txn.Reference,
	)
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit purchase: %w", err)
	}
	return nil
}

// CreateReview inserts a review row.
func (r *Repository) CreateReview(ctx context.Context, review *Review) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO reviews (id, user_id, photographer_id, stars, comment, image_url)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, review.ID, review.UserID, review.PhotographerID, review.Stars, review.Comment, review.ImageURL)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to create review: %w", err)
	}
	return nil
}

// ListReviewsByPhotographer returns a photographer's reviews, newest first.
func (r *Repository) ListReviewsByPhotographer(ctx context.Context, photographerID uuid.UUID) ([]*Review, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, user_id, photographer_id, stars, comment, image_url, created_at
		FROM reviews WHERE photographer_id = $1 ORDER BY created_at DESC
	`, photographerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*Review
	for rows.Next() {
		review := &Review{}
		if err := rows.Scan(
			&review.ID,
			&review.UserID,
			&review.PhotographerID,
			&review.Stars,
			&review.Comment,
			&review.ImageURL,
			&review.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, review)
	}
	return reviews, rows.Err()
}

// CreateShare inserts a guest share link.
func (r *Repository) CreateShare(ctx context.Context, share *EventShare) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO event_shares (id, event_id, token, mobile, password_hash)
		VALUES ($1, $2, $3, $4, $5)
	`, share.ID, share.EventID, share.Token, share.Mobile, share.PasswordHash)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrEventNotFound
		}
		return fmt.Errorf("failed to create share: %w", err)
	}
	return nil
}

// GetShareByToken resolves a share link.
func (r *Repository) GetShareByToken(ctx context.Context, token string) (*EventShare, error) {
	share := &EventShare{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, event_id, token, mobile, password_hash, created_at
		FROM event_shares WHERE token = $1
	`, token).Scan(
		&share.ID,
		&share.EventID,
		&share.Token,
		&share.Mobile,
		&share.PasswordHash,
		&share.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShareNotFound
		}
		return nil, fmt.Errorf("failed to get share: %w", err)
	}
	return share, nil
}

// LogOrphan records a blob that escaped the photo ledger.
func (r *Repository) LogOrphan(ctx context.Context, blobKey, reason string) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO orphan_blobs (id, blob_key, reason) VALUES ($1, $2, $3)
	`, uuid.New(), blobKey, reason)
	if err != nil {
		return fmt.Errorf("failed to log orphan blob: %w", err)
	}
	return nil
}

// UnsweptOrphans returns orphan records that still have a backing object.
func (r *Repository) UnsweptOrphans(ctx context.Context, limit int) ([]*OrphanBlob, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, blob_key, reason, logged_at, swept_at
		FROM orphan_blobs WHERE swept_at IS NULL
		ORDER BY logged_at LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphan blobs: %w", err)
	}
	defer rows.Close()

	var orphans []*OrphanBlob
	for rows.Next() {
		orphan := &OrphanBlob{}
		if err := rows.Scan(&orphan.ID, &orphan.BlobKey, &orphan.Reason, &orphan.LoggedAt, &orphan.SweptAt); err != nil {
			return nil, fmt.Errorf("failed to scan orphan blob: %w", err)
		}
		orphans = append(orphans, orphan)
	}
	return orphans, rows.Err()
}

// MarkOrphanSwept stamps an orphan record as reclaimed.
func (r *Repository) MarkOrphanSwept(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, "UPDATE orphan_blobs SET swept_at = NOW() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to mark orphan swept: %w", err)
	}
	return nil
}

// GetStats returns aggregate marketplace statistics.
func (r *Repository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM events),
			(SELECT COUNT(*) FROM photos),
			(SELECT COUNT(*) FROM photos WHERE is_selected),
			(SELECT COALESCE(SUM(size_bytes), 0) FROM photos)
	`).Scan(
		&stats.TotalEvents,
		&stats.TotalPhotos,
		&stats.SelectedCount,
		&stats.StorageUsed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}
