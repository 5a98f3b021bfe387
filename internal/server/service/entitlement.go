package service

import (
	"context"
	"errors"
	"log/slog"

	"shutterhub/internal/server/database"

	"github.com/google/uuid"
)

var (
	ErrStorageQuotaExceeded   = errors.New("storage quota exceeded")
	ErrSelectionLimitExceeded = errors.New("selection exceeds package photo count")
)

// QuotaStore is the slice of the repository the guard needs.
type QuotaStore interface {
	ActiveStoragePackage(ctx context.Context, userID uuid.UUID) (*database.PurchasedPackage, error)
	TryReserveStorage(ctx context.Context, userID uuid.UUID, n int64) (bool, error)
	ReleaseStorage(ctx context.Context, userID uuid.UUID, n int64) error
}

// EntitlementGuard reserves and releases quota from a user's purchased
// storage package. Reservation is a single conditional update, so it stays
// consistent when uploads race each other.
type EntitlementGuard struct {
	store QuotaStore
}

// NewEntitlementGuard creates a guard over the given store.
func NewEntitlementGuard(store QuotaStore) *EntitlementGuard {
	return &EntitlementGuard{store: store}
}

// ReserveStorage claims n bytes of the owner's active package. A user with
// no active package is not metered; the returned bool reports whether a
// reservation was actually made and must be released later.
func (g *EntitlementGuard) ReserveStorage(ctx context.Context, ownerID uuid.UUID, n int64) (bool, error) {
	if n <= 0 {
		return false, nil
	}

	pkg, err := g.store.ActiveStoragePackage(ctx, ownerID)
	if err != nil {
		return false, err
	}
	if pkg == nil {
		slog.Debug("no active storage package, upload not metered", "owner_id", ownerID)
		return false, nil
	}

	ok, err := g.store.TryReserveStorage(ctx, ownerID, n)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrStorageQuotaExceeded
	}
	return true, nil
}

// ReleaseStorage gives reserved bytes back.
func (g *EntitlementGuard) ReleaseStorage(ctx context.Context, ownerID uuid.UUID, n int64) error {
	return g.store.ReleaseStorage(ctx, ownerID, n)
}
