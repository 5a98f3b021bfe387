package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"shutterhub/internal/server/database"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrPhoneTaken       = errors.New("phone number already registered")
	ErrPackageNotFound  = errors.New("package not found")
	ErrShareNotFound    = errors.New("share link not found")
	ErrPasswordRequired = errors.New("password required")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrInvalidStars     = errors.New("stars must be between 1 and 5")
	ErrNameRequired     = errors.New("name is required")
)

// Marketplace covers the non-upload operations: accounts, events, packages,
// purchases, reviews and guest shares.
type Marketplace struct {
	repo    *database.Repository
	orphans OrphanSink
}

// NewMarketplace creates the marketplace service.
func NewMarketplace(repo *database.Repository, orphans OrphanSink) *Marketplace {
	return &Marketplace{repo: repo, orphans: orphans}
}

// CreateUser registers an account.
func (m *Marketplace) CreateUser(ctx context.Context, name, phone, userType string) (*database.User, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrNameRequired
	}
	switch userType {
	case database.RoleAdmin, database.RolePhotographer, database.RoleUser:
	default:
		return nil, fmt.Errorf("unknown user type %q", userType)
	}

	user := &database.User{
		ID:          uuid.New(),
		Name:        name,
		PhoneNumber: phone,
		UserType:    userType,
	}
	if err := m.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrPhoneTaken) {
			return nil, ErrPhoneTaken
		}
		return nil, err
	}
	return user, nil
}

// GetUser looks up an account.
func (m *Marketplace) GetUser(ctx context.Context, id uuid.UUID) (*database.User, error) {
	user, err := m.repo.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// CreateEvent opens a new engagement between an owner and a photographer.
func (m *Marketplace) CreateEvent(ctx context.Context, name string, ownerID, photographerID uuid.UUID, packageID *uuid.UUID) (*database.Event, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrNameRequired
	}

	event := &database.Event{
		ID:             uuid.New(),
		Name:           name,
		Slug:           slug.Make(name),
		Status:         database.EventUpcoming,
		OwnerID:        ownerID,
		PhotographerID: photographerID,
		PackageID:      packageID,
	}
	if err := m.repo.CreateEvent(ctx, event); err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	slog.Info("event created", "event_id", event.ID, "slug", event.Slug)
	return event, nil
}

// GetEvent looks up one event.
func (m *Marketplace) GetEvent(ctx context.Context, id uuid.UUID) (*database.Event, error) {
	event, err := m.repo.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrEventNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return event, nil
}

// ListEvents returns events, optionally filtered by owner or photographer.
func (m *Marketplace) ListEvents(ctx context.Context, ownerID, photographerID *uuid.UUID) ([]*database.Event, error) {
	return m.repo.ListEvents(ctx, ownerID, photographerID)
}

// UpdateEvent renames an event or moves it through its status lifecycle.
func (m *Marketplace) UpdateEvent(ctx context.Context, id uuid.UUID, name, status string) (*database.Event, error) {
	event, err := m.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(name) != "" {
		event.Name = name
		event.Slug = slug.Make(name)
	}
	if status != "" {
		switch status {
		case database.EventUpcoming, database.EventCompleted, database.EventCanceled:
			event.Status = status
		default:
			return nil, fmt.Errorf("unknown event status %q", status)
		}
	}

	if err := m.repo.UpdateEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// DeleteEvent removes an event with all its batches and photos. The stored
// objects are handed to the orphan sink rather than deleted inline, so the
// request stays fast and a storage outage cannot strand the metadata.
func (m *Marketplace) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	keys, err := m.repo.DeleteEvent(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrEventNotFound) {
			return ErrEventNotFound
		}
		return err
	}

	for _, key := range keys {
		m.orphans.LogOrphan(ctx, key, "event deleted")
	}

	slog.Info("event deleted", "event_id", id, "orphaned_blobs", len(keys))
	return nil
}

// CreatePhotoPackage publishes a photographer's selection offering.
func (m *Marketplace) CreatePhotoPackage(ctx context.Context, photographerID uuid.UUID, name string, photoCount int, priceCents int64) (*database.PhotoPackage, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrNameRequired
	}
	if photoCount < 1 {
		return nil, fmt.Errorf("photo count must be positive")
	}

	pkg := &database.PhotoPackage{
		ID:             uuid.New(),
		PhotographerID: photographerID,
		Name:           name,
		PhotoCount:     photoCount,
		PriceCents:     priceCents,
	}
	if err := m.repo.CreatePhotoPackage(ctx, pkg); err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return pkg, nil
}

// CreateStoragePackage publishes a storage tier.
func (m *Marketplace) CreateStoragePackage(ctx context.Context, name string, limitBytes, priceCents int64, durationMonths int) (*database.StoragePackage, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrNameRequired
	}
	if limitBytes <= 0 {
		return nil, fmt.Errorf("storage limit must be positive")
	}

	pkg := &database.StoragePackage{
		ID:                uuid.New(),
		Name:              name,
		StorageLimitBytes: limitBytes,
		PriceCents:        priceCents,
		DurationMonths:    durationMonths,
		IsActive:          true,
	}
	if err := m.repo.CreateStoragePackage(ctx, pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}

// ListStoragePackages returns the purchasable storage tiers.
func (m *Marketplace) ListStoragePackages(ctx context.Context) ([]*database.StoragePackage, error) {
	return m.repo.ListStoragePackages(ctx)
}

// PurchaseStorage buys a storage tier for a user and records the payment.
// The gateway has already settled by the time this is called; we only keep
// the books.
func (m *Marketplace) PurchaseStorage(ctx context.Context, userID, packageID uuid.UUID, paymentMethod, reference string) (*database.PurchasedPackage, error) {
	pkg, err := m.repo.GetStoragePackage(ctx, packageID)
	if err != nil {
		if errors.Is(err, database.ErrPackageNotFound) {
			return nil, ErrPackageNotFound
		}
		return nil, err
	}

	now := time.Now()
	purchase := &database.PurchasedPackage{
		ID:                uuid.New(),
		UserID:            userID,
		PackageID:         pkg.ID,
		StorageLimitBytes: pkg.StorageLimitBytes,
		StartDate:         now,
		EndDate:           now.AddDate(0, pkg.DurationMonths, 0),
		IsActive:          true,
	}
	txn := &database.Transaction{
		ID:            uuid.New(),
		ActorType:     database.RoleUser,
		UserID:        userID,
		PackageID:     pkg.ID,
		AmountCents:   pkg.PriceCents,
		PaymentStatus: "completed",
		PaymentMethod: paymentMethod,
		Reference:     reference,
	}
	if err := m.repo.CreatePurchase(ctx, purchase, txn); err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	slog.Info("storage package purchased", "user_id", userID, "package_id", pkg.ID)
	return purchase, nil
}

// CreateReview records a client's rating of a photographer.
func (m *Marketplace) CreateReview(ctx context.Context, userID, photographerID uuid.UUID, stars int, comment string, imageURL *string) (*database.Review, error) {
	if stars < 1 || stars > 5 {
		return nil, ErrInvalidStars
	}

	review := &database.Review{
		ID:             uuid.New(),
		UserID:         userID,
		PhotographerID: photographerID,
		Stars:          stars,
		Comment:        comment,
		ImageURL:       imageURL,
	}
	if err := m.repo.CreateReview(ctx, review); err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return review, nil
}

// ListReviews returns a photographer's reviews, newest first.
func (m *Marketplace) ListReviews(ctx context.Context, photographerID uuid.UUID) ([]*database.Review, error) {
	return m.repo.ListReviewsByPhotographer(ctx, photographerID)
}

// CreateShare mints a guest link into an event's gallery. An empty password
// leaves the link open.
func (m *Marketplace) CreateShare(ctx context.Context, eventID uuid.UUID, mobile, password string) (*database.EventShare, error) {
	if _, err := m.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}

	token, err := generateSecureToken(16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate share token: %w", err)
	}

	share := &database.EventShare{
		ID:      uuid.New(),
		EventID: eventID,
		Token:   token,
	}
	if mobile != "" {
		share.Mobile = &mobile
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash share password: %w", err)
		}
		hashed := string(hash)
		share.PasswordHash = &hashed
	}

	if err := m.repo.CreateShare(ctx, share); err != nil {
		if errors.Is(err, database.ErrEventNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}

	slog.Info("share link created", "event_id", eventID, "protected", share.PasswordHash != nil)
	return share, nil
}

// ResolveShare exchanges a share token (and password, when the link is
// protected) for the event it opens.
func (m *Marketplace) ResolveShare(ctx context.Context, token, password string) (*database.Event, error) {
	share, err := m.repo.GetShareByToken(ctx, token)
	if err != nil {
		if errors.Is(err, database.ErrShareNotFound) {
			return nil, ErrShareNotFound
		}
		return nil, err
	}

	if share.PasswordHash != nil {
		if password == "" {
			return nil, ErrPasswordRequired
		}
		if err := bcrypt.CompareHashAndPassword([]byte(*share.PasswordHash), []byte(password)); err != nil {
			return nil, ErrInvalidPassword
		}
	}

	return m.GetEvent(ctx, share.EventID)
}

// Stats returns aggregate marketplace statistics.
func (m *Marketplace) Stats(ctx context.Context) (*database.Stats, error) {
	return m.repo.GetStats(ctx)
}

// generateSecureToken returns n random bytes, hex encoded.
func generateSecureToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
