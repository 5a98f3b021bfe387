package service

import (
	"context"
	"testing"

	"shutterhub/internal/server/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLedgerStore holds one event's batches in memory and applies selection
// and deletion the way the repository does.
type fakeLedgerStore struct {
	event   *database.Event
	batches []database.PhotoBatch
	quota   *int

	deleteCalls int
}

func (f *fakeLedgerStore) GetEvent(ctx context.Context, id uuid.UUID) (*database.Event, error) {
	if f.event == nil || f.event.ID != id {
		return nil, database.ErrEventNotFound
	}
	return f.event, nil
}

func (f *fakeLedgerStore) EventBatches(ctx context.Context, eventID uuid.UUID) ([]database.PhotoBatch, error) {
	return f.batches, nil
}

func (f *fakeLedgerStore) EventPhotoQuota(ctx context.Context, eventID uuid.UUID) (*int, error) {
	if f.event == nil || f.event.ID != eventID {
		return nil, database.ErrEventNotFound
	}
	return f.quota, nil
}

func (f *fakeLedgerStore) SelectPhotos(ctx context.Context, eventID uuid.UUID, keys []string, limit *int) (int64, error) {
	wanted := make(map[string]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}

	if limit != nil {
		selected := 0
		for _, b := range f.batches {
			for _, p := range b.Photos {
				if p.IsSelected || wanted[p.BlobKey] {
					selected++
				}
			}
		}
		if selected > *limit {
			return 0, database.ErrSelectionLimitExceeded
		}
	}

	var n int64
	for bi := range f.batches {
		for pi := range f.batches[bi].Photos {
			p := &f.batches[bi].Photos[pi]
			if wanted[p.BlobKey] && !p.IsSelected {
				p.IsSelected = true
				n++
			}
		}
	}
	return n, nil
}

func (f *fakeLedgerStore) DeselectPhotos(ctx context.Context, eventID uuid.UUID, keys []string) (int64, error) {
	wanted := make(map[string]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}
	var n int64
	for bi := range f.batches {
		for pi := range f.batches[bi].Photos {
			p := &f.batches[bi].Photos[pi]
			if wanted[p.BlobKey] && p.IsSelected {
				p.IsSelected = false
				n++
			}
		}
	}
	return n, nil
}

func (f *fakeLedgerStore) PhotosInBatch(ctx context.Context, eventID uuid.UUID, batchName string) (uuid.UUID, []database.Photo, error) {
	for _, b := range f.batches {
		if b.BatchName == batchName {
			return b.ID, b.Photos, nil
		}
	}
	return uuid.Nil, nil, database.ErrBatchNotFound
}

func (f *fakeLedgerStore) DeletePhotos(ctx context.Context, batchID uuid.UUID, keys []string, ownerID uuid.UUID) (int64, error) {
	f.deleteCalls++
	wanted := make(map[string]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}
	var n int64
	for bi := range f.batches {
		if f.batches[bi].ID != batchID {
			continue
		}
		var kept []database.Photo
		for _, p := range f.batches[bi].Photos {
			if wanted[p.BlobKey] {
				n++
				continue
			}
			kept = append(kept, p)
		}
		f.batches[bi].Photos = kept
	}
	return n, nil
}

func newLedgerFixture(quota *int) (*fakeLedgerStore, *fakeBlobStore, *Ledger) {
	event := testEvent()
	store := &fakeLedgerStore{
		event: event,
		quota: quota,
		batches: []database.PhotoBatch{
			{
				ID:        uuid.New(),
				EventID:   event.ID,
				BatchName: "Day One",
				Photos: []database.Photo{
					{ID: uuid.New(), EventID: event.ID, BlobKey: "k/p1.jpg", SizeBytes: 1024, SizeLabel: "1.00 KB"},
					{ID: uuid.New(), EventID: event.ID, BlobKey: "k/p2.jpg", SizeBytes: 2048, SizeLabel: "2.00 KB"},
					{ID: uuid.New(), EventID: event.ID, BlobKey: "k/p3.jpg", SizeBytes: 4096, SizeLabel: "4.00 KB"},
				},
			},
		},
	}
	blobs := &fakeBlobStore{}
	return store, blobs, NewLedger(store, blobs)
}

func TestLedger_Selection(t *testing.T) {
	t.Run("select then deselect leaves only the remaining key selected", func(t *testing.T) {
		store, _, ledger := newLedgerFixture(nil)
		ctx := context.Background()

		snap, err := ledger.SelectPhotos(ctx, store.event.ID, []string{"k/p1.jpg", "k/p2.jpg"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"k/p1.jpg", "k/p2.jpg"}, snap.Selected)

		require.NoError(t, ledger.DeselectPhotos(ctx, store.event.ID, []string{"k/p1.jpg"}))

		snap, err = ledger.Snapshot(ctx, store.event.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"k/p2.jpg"}, snap.Selected)
	})

	t.Run("unnamed photos keep their selection state", func(t *testing.T) {
		store, _, ledger := newLedgerFixture(nil)
		ctx := context.Background()

		_, err := ledger.SelectPhotos(ctx, store.event.ID, []string{"k/p3.jpg"})
		require.NoError(t, err)

		snap, err := ledger.SelectPhotos(ctx, store.event.ID, []string{"k/p1.jpg"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"k/p1.jpg", "k/p3.jpg"}, snap.Selected)
	})

	t.Run("requires at least one key", func(t *testing.T) {
		store, _, ledger := newLedgerFixture(nil)

		_, err := ledger.SelectPhotos(context.Background(), store.event.ID, nil)
		assert.ErrorIs(t, err, ErrNoPhotoKeys)
		assert.ErrorIs(t, ledger.DeselectPhotos(context.Background(), store.event.ID, nil), ErrNoPhotoKeys)
	})

	t.Run("package photo count caps the selection", func(t *testing.T) {
		limit := 2
		store, _, ledger := newLedgerFixture(&limit)
		ctx := context.Background()

		_, err := ledger.SelectPhotos(ctx, store.event.ID, []string{"k/p1.jpg", "k/p2.jpg", "k/p3.jpg"})
		assert.ErrorIs(t, err, ErrSelectionLimitExceeded)

		snap, err := ledger.Snapshot(ctx, store.event.ID)
		require.NoError(t, err)
		assert.Empty(t, snap.Selected)
	})

	t.Run("unknown event", func(t *testing.T) {
		_, _, ledger := newLedgerFixture(nil)
		_, err := ledger.SelectPhotos(context.Background(), uuid.New(), []string{"k/p1.jpg"})
		assert.ErrorIs(t, err, ErrEventNotFound)
	})
}

func TestLedger_DeletePhotos(t *testing.T) {
	t.Run("removes rows and backing objects", func(t *testing.T) {
		store, blobs, ledger := newLedgerFixture(nil)

		deleted, err := ledger.DeletePhotos(context.Background(), store.event.ID, "Day One", []string{"k/p1.jpg", "k/p3.jpg"})
		require.NoError(t, err)

		require.Len(t, deleted, 2)
		assert.ElementsMatch(t, []string{"k/p1.jpg", "k/p3.jpg"}, blobs.removed)

		snap, err := ledger.Snapshot(context.Background(), store.event.ID)
		require.NoError(t, err)
		require.Len(t, snap.PhotoBatches, 1)
		require.Len(t, snap.PhotoBatches[0].Photos, 1)
		assert.Equal(t, "k/p2.jpg", snap.PhotoBatches[0].Photos[0].BlobKey)
	})

	t.Run("no matching keys deletes nothing", func(t *testing.T) {
		store, blobs, ledger := newLedgerFixture(nil)

		_, err := ledger.DeletePhotos(context.Background(), store.event.ID, "Day One", []string{"k/nope.jpg"})
		assert.ErrorIs(t, err, ErrNoPhotosMatched)
		assert.Zero(t, store.deleteCalls)
		assert.Empty(t, blobs.removed)
	})

	t.Run("unknown batch", func(t *testing.T) {
		store, _, ledger := newLedgerFixture(nil)

		_, err := ledger.DeletePhotos(context.Background(), store.event.ID, "Day Two", []string{"k/p1.jpg"})
		assert.ErrorIs(t, err, ErrBatchNotFound)
	})
}

func TestLedger_Snapshot(t *testing.T) {
	store, blobs, ledger := newLedgerFixture(nil)

	snap, err := ledger.Snapshot(context.Background(), store.event.ID)
	require.NoError(t, err)

	assert.Equal(t, store.event.ID, snap.ID)
	assert.Equal(t, "summer-wedding", snap.Slug)
	require.Len(t, snap.PhotoBatches, 1)
	assert.Equal(t, "Day One", snap.PhotoBatches[0].BatchName)
	require.Len(t, snap.PhotoBatches[0].Photos, 3)
	assert.Equal(t, blobs.ObjectURL("k/p1.jpg"), snap.PhotoBatches[0].Photos[0].URL)
	assert.Equal(t, "1.00 KB", snap.PhotoBatches[0].Photos[0].Size)
	assert.Empty(t, snap.Selected)
}
