package database

import (
	"time"

	"github.com/google/uuid"
)

// Event statuses.
const (
	EventUpcoming  = "upcoming"
	EventCompleted = "completed"
	EventCanceled  = "canceled"
)

// User roles.
const (
	RoleAdmin        = "admin"
	RolePhotographer = "photographer"
	RoleUser         = "user"
)

// User is a marketplace account: a client, a photographer or an admin.
type User struct {
	ID          uuid.UUID
	Name        string
	PhoneNumber string
	UserType    string
	CreatedAt   time.Time
}

// Event is the aggregate root for a photography engagement. It owns its
// photo batches and photos exclusively.
type Event struct {
	ID             uuid.UUID
	Name           string
	Slug           string
	Status         string
	OwnerID        uuid.UUID
	PhotographerID uuid.UUID
	PackageID      *uuid.UUID
	CreatedAt      time.Time

	// Joined from users; populated by GetEvent.
	OwnerPhone        string
	PhotographerPhone string
}

// PhotoBatch groups the photos uploaded in one named upload. The batch name
// is unique within its event.
type PhotoBatch struct {
	ID         uuid.UUID
	EventID    uuid.UUID
	BatchName  string
	CoverImage *string
	CreatedAt  time.Time
	Photos     []Photo
}

// Photo is a single stored object in an event batch. BlobKey is unique
// within the event.
type Photo struct {
	ID         uuid.UUID
	BatchID    uuid.UUID
	EventID    uuid.UUID
	BlobKey    string
	SizeBytes  int64
	SizeLabel  string
	IsSelected bool
	CreatedAt  time.Time
}

// PhotoPackage is a photographer's offering: how many photos the client may
// select for a given price.
type PhotoPackage struct {
	ID             uuid.UUID
	PhotographerID uuid.UUID
	Name           string
	PhotoCount     int
	PriceCents     int64
	CreatedAt      time.Time
}

// StoragePackage is a purchasable storage tier.
type StoragePackage struct {
	ID                uuid.UUID
	Name              string
	StorageLimitBytes int64
	PriceCents        int64
	DurationMonths    int
	IsActive          bool
	CreatedAt         time.Time
}

// PurchasedPackage tracks a user's active storage entitlement, including
// how much of it uploads have consumed.
type PurchasedPackage struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	PackageID         uuid.UUID
	StorageLimitBytes int64
	UsedBytes         int64
	StartDate         time.Time
	EndDate           time.Time
	IsActive          bool
}

// Transaction is a payment bookkeeping record. The payment gateway itself is
// an external collaborator; we only record what it reports.
type Transaction struct {
	ID            uuid.UUID
	ActorType     string
	UserID        uuid.UUID
	PackageID     uuid.UUID
	AmountCents   int64
	PaymentStatus string
	PaymentMethod string
	Reference     string
	CreatedAt     time.Time
}

// Review is a client's rating of a photographer.
type Review struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	PhotographerID uuid.UUID
	Stars          int
	Comment        string
	ImageURL       *string
	CreatedAt      time.Time
}

// EventShare is a guest link into an event's gallery, optionally protected
// by a password.
type EventShare struct {
	ID           uuid.UUID
	EventID      uuid.UUID
	Token        string
	Mobile       *string
	PasswordHash *string
	CreatedAt    time.Time
}

// OrphanBlob records a stored object that is no longer referenced by any
// photo row, so a background sweep can reclaim it.
type OrphanBlob struct {
	ID       uuid.UUID
	BlobKey  string
	Reason   string
	LoggedAt time.Time
	SweptAt  *time.Time
}

// Stats holds aggregate marketplace statistics.
type Stats struct {
	TotalEvents   int64
	TotalPhotos   int64
	SelectedCount int64
	StorageUsed   int64
}
