package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMinio struct {
	putErr    error
	removeErr error
	putKeys   []string
	removed   []string
	consume   bool
}

func (f *fakeMinio) PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.putKeys = append(f.putKeys, key)
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	if f.consume && opts.Progress != nil {
		// Mirror the client: feed uploaded chunks through the progress hook.
		buf := make([]byte, 1024)
		for {
			n, err := reader.Read(buf)
			if n > 0 {
				opts.Progress.Read(buf[:n])
			}
			if err != nil {
				break
			}
		}
	}
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size}, nil
}

func (f *fakeMinio) RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error {
	f.removed = append(f.removed, key)
	return f.removeErr
}

func TestProgressReader(t *testing.T) {
	t.Run("reports monotonically increasing percentages ending at 100", func(t *testing.T) {
		var reported []int
		r := newProgressReader(1000, func(p int) { reported = append(reported, p) })

		for i := 0; i < 10; i++ {
			r.Read(make([]byte, 100))
		}

		require.NotEmpty(t, reported)
		for i := 1; i < len(reported); i++ {
			assert.Greater(t, reported[i], reported[i-1])
		}
		assert.Equal(t, 100, reported[len(reported)-1])
	})

	t.Run("suppresses repeats of the same percentage", func(t *testing.T) {
		var reported []int
		r := newProgressReader(100000, func(p int) { reported = append(reported, p) })

		// Chunks small enough that many map to the same percent.
		for i := 0; i < 100; i++ {
			r.Read(make([]byte, 100))
		}

		seen := make(map[int]bool)
		for _, p := range reported {
			assert.False(t, seen[p], "percent %d reported twice", p)
			seen[p] = true
		}
	})

	t.Run("caps at 100 when more bytes flow than expected", func(t *testing.T) {
		var last int
		r := newProgressReader(100, func(p int) { last = p })
		r.Read(make([]byte, 150))
		assert.Equal(t, 100, last)
	})

	t.Run("nil callback is safe", func(t *testing.T) {
		r := newProgressReader(100, nil)
		n, err := r.Read(make([]byte, 50))
		require.NoError(t, err)
		assert.Equal(t, 50, n)
	})
}

func TestMinioStore_Put(t *testing.T) {
	t.Run("uploads and returns key with URL", func(t *testing.T) {
		fake := &fakeMinio{consume: true}
		store := &MinioStore{endpoint: "s3.local:9000", bucket: "photos", client: fake}

		var last int
		res, err := store.Put(context.Background(), "a/b/c.jpg",
			bytes.NewReader(make([]byte, 2048)), 2048, "image/jpeg",
			func(p int) { last = p })

		require.NoError(t, err)
		assert.Equal(t, "a/b/c.jpg", res.Key)
		assert.Equal(t, "http://s3.local:9000/photos/a/b/c.jpg", res.URL)
		assert.Equal(t, 100, last)
	})

	t.Run("wraps failures in StorageError", func(t *testing.T) {
		fake := &fakeMinio{putErr: errors.New("connection reset")}
		store := &MinioStore{endpoint: "s3.local:9000", bucket: "photos", client: fake}

		_, err := store.Put(context.Background(), "a/b/c.jpg",
			strings.NewReader("data"), 4, "image/jpeg", nil)

		var storageErr *StorageError
		require.ErrorAs(t, err, &storageErr)
		assert.Equal(t, "put", storageErr.Op)
		assert.Equal(t, "a/b/c.jpg", storageErr.Key)
	})
}

func TestMinioStore_Remove(t *testing.T) {
	t.Run("removes the object", func(t *testing.T) {
		fake := &fakeMinio{}
		store := &MinioStore{endpoint: "s3.local:9000", bucket: "photos", client: fake}

		require.NoError(t, store.Remove(context.Background(), "a/b/c.jpg"))
		assert.Equal(t, []string{"a/b/c.jpg"}, fake.removed)
	})

	t.Run("wraps failures in StorageError", func(t *testing.T) {
		fake := &fakeMinio{removeErr: errors.New("access denied")}
		store := &MinioStore{endpoint: "s3.local:9000", bucket: "photos", client: fake}

		var storageErr *StorageError
		require.ErrorAs(t, store.Remove(context.Background(), "a/b/c.jpg"), &storageErr)
		assert.Equal(t, "remove", storageErr.Op)
	})
}

func TestMinioStore_ObjectURL(t *testing.T) {
	plain := &MinioStore{endpoint: "s3.local:9000", bucket: "photos"}
	assert.Equal(t, "http://s3.local:9000/photos/k", plain.ObjectURL("k"))

	secure := &MinioStore{endpoint: "s3.local", bucket: "photos", useSSL: true}
	assert.Equal(t, "https://s3.local/photos/k", secure.ObjectURL("k"))
}
