package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"shutterhub/internal/server/blobstore"
	"shutterhub/internal/server/database"
	"shutterhub/internal/server/stream"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// Sentinel errors for the upload pipeline.
var (
	ErrEventNotFound     = errors.New("event not found")
	ErrBatchExists       = errors.New("batch with this name already exists")
	ErrBatchNotFound     = errors.New("batch not found")
	ErrNoFiles           = errors.New("no files uploaded")
	ErrBatchNameRequired = errors.New("batch name is required")
	ErrFileTooLarge      = errors.New("file exceeds maximum allowed size")
)

// UploadMode selects between creating a new batch and appending to one.
type UploadMode int

const (
	ModeCreate UploadMode = iota
	ModeAppend
)

// UploadFile describes one pending file. Open is called when the file's
// turn comes, so at most workers files are held open at a time.
type UploadFile struct {
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// UploadRequest carries everything one bulk upload needs.
type UploadRequest struct {
	EventID       uuid.UUID
	BatchName     string
	UploaderPhone string
	Mode          UploadMode
	Files         []UploadFile
}

// UploadPlan is a validated request, ready to stream. Nothing has touched
// blob storage yet when a plan is produced.
type UploadPlan struct {
	req           UploadRequest
	event         *database.Event
	batchSlug     string
	uploaderPhone string
	totalBytes    int64
	reserved      bool
}

// UploadedPhoto is one successfully stored file.
type UploadedPhoto struct {
	File      string `json:"file"`
	BlobKey   string `json:"blobKey"`
	SizeLabel string `json:"size"`
}

// UploadResult summarizes a finished (or aborted) streaming phase.
type UploadResult struct {
	Uploaded []UploadedPhoto
	Failed   int
	Aborted  bool
}

// EventStore is the slice of the repository the pipeline needs.
type EventStore interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*database.Event, error)
	BatchExists(ctx context.Context, eventID uuid.UUID, batchName string) (bool, error)
	CommitBatch(ctx context.Context, eventID uuid.UUID, batchName string, photos []database.Photo, mustCreate bool) error
}

// Pipeline orchestrates a bulk photo upload: validation, per-file streaming
// with live progress, and a single atomic commit of the successes.
type Pipeline struct {
	events      EventStore
	blobs       blobstore.Store
	quota       *EntitlementGuard
	orphans     OrphanSink
	workers     int
	maxFileSize int64
}

// NewPipeline creates an upload pipeline.
func NewPipeline(events EventStore, blobs blobstore.Store, quota *EntitlementGuard, orphans OrphanSink, workers int, maxFileSize int64) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		events:      events,
		blobs:       blobs,
		quota:       quota,
		orphans:     orphans,
		workers:     workers,
		maxFileSize: maxFileSize,
	}
}

// Validate checks every request-level precondition before any byte is read
// or any stream is opened. A validation failure is answered synchronously.
func (p *Pipeline) Validate(ctx context.Context, req UploadRequest) (*UploadPlan, error) {
	if strings.TrimSpace(req.BatchName) == "" {
		return nil, ErrBatchNameRequired
	}
	if len(req.Files) == 0 {
		return nil, ErrNoFiles
	}

	var totalBytes int64
	for _, f := range req.Files {
		if p.maxFileSize > 0 && f.Size > p.maxFileSize {
			return nil, fmt.Errorf("%w: %s", ErrFileTooLarge, f.Name)
		}
		totalBytes += f.Size
	}

	event, err := p.events.GetEvent(ctx, req.EventID)
	if err != nil {
		if errors.Is(err, database.ErrEventNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}

	exists, err := p.events.BatchExists(ctx, req.EventID, req.BatchName)
	if err != nil {
		return nil, err
	}
	if req.Mode == ModeCreate && exists {
		return nil, ErrBatchExists
	}
	if req.Mode == ModeAppend && !exists {
		return nil, ErrBatchNotFound
	}

	uploaderPhone := req.UploaderPhone
	if uploaderPhone == "" {
		uploaderPhone = event.PhotographerPhone
	}

	reserved, err := p.quota.ReserveStorage(ctx, event.OwnerID, totalBytes)
	if err != nil {
		return nil, err
	}

	return &UploadPlan{
		req:           req,
		event:         event,
		batchSlug:     slug.Make(req.BatchName),
		uploaderPhone: uploaderPhone,
		totalBytes:    totalBytes,
		reserved:      reserved,
	}, nil
}

// Stream uploads the plan's files with bounded concurrency, forwarding
// progress through the channel, then commits the successes in one atomic
// write. A client disconnect stops new uploads and discards the batch; the
// blobs already stored are handed to the orphan sink.
//
// The context passed here must outlive the client connection: in-flight
// uploads are allowed to finish even when the client is gone.
func (p *Pipeline) Stream(ctx context.Context, plan *UploadPlan, ch *stream.Channel) (*UploadResult, error) {
	defer ch.Close()

	total := len(plan.req.Files)
	outcomes := make([]*database.Photo, total)
	var failedBytes int64

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, p.workers)
	)

	for i, file := range plan.req.Files {
		// Stop issuing new uploads once the client is gone; whatever is
		// in flight completes on its own.
		if ch.ClientGone() {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(index int, file UploadFile) {
			defer wg.Done()
			defer func() { <-sem }()

			photo, err := p.uploadOne(ctx, plan, file, index+1, total, ch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failedBytes += file.Size
				return
			}
			outcomes[index] = photo
		}(i, file)
	}
	wg.Wait()

	var photos []database.Photo
	var uploaded []UploadedPhoto
	var uploadedBytes int64
	for i, photo := range outcomes {
		if photo == nil {
			continue
		}
		photos = append(photos, *photo)
		uploadedBytes += photo.SizeBytes
		uploaded = append(uploaded, UploadedPhoto{
			File:      plan.req.Files[i].Name,
			BlobKey:   photo.BlobKey,
			SizeLabel: photo.SizeLabel,
		})
	}
	result := &UploadResult{Uploaded: uploaded, Failed: total - len(uploaded)}

	if ch.ClientGone() {
		result.Aborted = true
		for _, photo := range photos {
			p.orphans.LogOrphan(ctx, photo.BlobKey, "client disconnected before commit")
		}
		p.releaseQuota(ctx, plan, plan.totalBytes)
		slog.Warn("upload aborted by client disconnect",
			"event_id", plan.req.EventID,
			"batch", plan.req.BatchName,
			"uploaded", len(uploaded),
			"orphaned", len(photos),
		)
		return result, nil
	}

	if failedBytes > 0 {
		p.releaseQuota(ctx, plan, failedBytes)
	}

	if err := p.events.CommitBatch(ctx, plan.req.EventID, plan.req.BatchName, photos, plan.req.Mode == ModeCreate); err != nil {
		// The status line is long committed; the only way to report this
		// is in-band. The stored blobs stay behind for the sweeper.
		for _, photo := range photos {
			p.orphans.LogOrphan(ctx, photo.BlobKey, "commit failed")
		}
		p.releaseQuota(ctx, plan, uploadedBytes)
		ch.FileError(plan.req.BatchName, "failed to save uploaded photos")
		slog.Error("failed to commit photo batch",
			"event_id", plan.req.EventID,
			"batch", plan.req.BatchName,
			"error", err,
		)
		return result, err
	}

	ch.Done()
	slog.Info("photo batch committed",
		"event_id", plan.req.EventID,
		"batch", plan.req.BatchName,
		"uploaded", len(uploaded),
		"failed", result.Failed,
	)
	return result, nil
}

// uploadOne stores a single file and emits its progress. A failure is
// reported in-stream and never aborts the rest of the batch.
func (p *Pipeline) uploadOne(ctx context.Context, plan *UploadPlan, file UploadFile, index, total int, ch *stream.Channel) (*database.Photo, error) {
	key := p.objectKey(plan, file.Name)

	data, err := file.Open()
	if err != nil {
		ch.FileError(file.Name, err.Error())
		slog.Error("failed to open upload file", "file", file.Name, "error", err)
		return nil, err
	}
	defer data.Close()

	res, err := p.blobs.Put(ctx, key, data, file.Size, file.ContentType, func(percent int) {
		ch.Progress(file.Name, index, total, percent)
	})
	if err != nil {
		ch.FileError(file.Name, err.Error())
		slog.Error("failed to upload file", "file", file.Name, "key", key, "error", err)
		return nil, err
	}

	ch.Progress(file.Name, index, total, 100)

	return &database.Photo{
		BlobKey:   res.Key,
		SizeBytes: file.Size,
		SizeLabel: sizeLabel(file.Size),
	}, nil
}

// objectKey builds the storage path for one file:
// {uploader}/{owner}/{eventSlug}/{batchSlug}/{timestamp-filename}.
// The timestamp qualifier keeps append-mode re-uploads collision-free.
func (p *Pipeline) objectKey(plan *UploadPlan, filename string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%d-%s",
		plan.uploaderPhone,
		plan.event.OwnerPhone,
		plan.event.Slug,
		plan.batchSlug,
		time.Now().UnixMilli(),
		sanitizeFilename(filename),
	)
}

func (p *Pipeline) releaseQuota(ctx context.Context, plan *UploadPlan, n int64) {
	if !plan.reserved || n <= 0 {
		return
	}
	if err := p.quota.ReleaseStorage(ctx, plan.event.OwnerID, n); err != nil {
		slog.Error("failed to release storage quota",
			"owner_id", plan.event.OwnerID,
			"bytes", n,
			"error", err,
		)
	}
}

// sizeLabel renders a byte count the way clients expect it, e.g. "123.45 KB".
func sizeLabel(size int64) string {
	return fmt.Sprintf("%.2f KB", float64(size)/1024)
}

// sanitizeFilename strips directory components and limits length.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	if len(name) > 255 {
		ext := filepath.Ext(name)
		name = name[:255-len(ext)] + ext
	}

	if name == "" || name == "." {
		name = "photo"
	}

	return name
}
