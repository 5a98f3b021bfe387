package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"shutterhub/internal/server/service"
	"shutterhub/internal/server/stream"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// HandleUploadPhotos handles POST /api/events/:id/photos.
// Creates a new batch from a multipart form with a "batch_name" field and
// one or more "files" parts, streaming per-file progress back over SSE.
func (h *Handler) HandleUploadPhotos(c echo.Context) error {
	return h.streamUpload(c, service.ModeCreate)
}

// HandleAppendPhotos handles POST /api/events/:id/photos/append.
// Same wire contract as the create endpoint, but the batch must exist.
func (h *Handler) HandleAppendPhotos(c echo.Context) error {
	return h.streamUpload(c, service.ModeAppend)
}

func (h *Handler) streamUpload(c echo.Context, mode service.UploadMode) error {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid multipart form"})
	}

	files := make([]service.UploadFile, 0, len(form.File["files"]))
	for _, fh := range form.File["files"] {
		fh := fh
		files = append(files, service.UploadFile{
			Name:        fh.Filename,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}

	req := service.UploadRequest{
		EventID:       eventID,
		BatchName:     c.FormValue("batch_name"),
		UploaderPhone: c.Request().Header.Get("X-Uploader-Phone"),
		Mode:          mode,
		Files:         files,
	}

	// Every precondition is checked before the stream opens, so validation
	// failures still get a plain JSON status code.
	plan, err := h.pipeline.Validate(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(c, err)
	}

	sse, err := stream.NewSSEWriter(c.Response())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "streaming unsupported"})
	}

	ch := stream.NewChannel(sse)
	ch.OnClientGone(func() {
		slog.Warn("client disconnected during upload",
			"event_id", eventID,
			"batch", req.BatchName,
		)
	})
	ch.Watch(c.Request().Context())

	// In-flight uploads are allowed to finish after a disconnect, so the
	// pipeline runs on a context that survives the request.
	if _, err := h.pipeline.Stream(context.WithoutCancel(c.Request().Context()), plan, ch); err != nil {
		slog.Error("upload stream failed",
			"event_id", eventID,
			"batch", req.BatchName,
			"error", err,
		)
	}
	return nil
}

// HandleSelectPhotos handles POST /api/photos/select.
// Marks the named photos selected and returns the refreshed event snapshot.
func (h *Handler) HandleSelectPhotos(c echo.Context) error {
	var body struct {
		EventID  uuid.UUID `json:"eventId"`
		BlobKeys []string  `json:"blobKeys"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	snapshot, err := h.ledger.SelectPhotos(c.Request().Context(), body.EventID, body.BlobKeys)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, snapshot)
}

// HandleDeselectPhotos handles POST /api/photos/deselect.
func (h *Handler) HandleDeselectPhotos(c echo.Context) error {
	var body struct {
		EventID  uuid.UUID `json:"eventId"`
		BlobKeys []string  `json:"blobKeys"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if err := h.ledger.DeselectPhotos(c.Request().Context(), body.EventID, body.BlobKeys); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "photos deselected successfully"})
}

// HandleDeletePhotos handles DELETE /api/events/:id/photos.
func (h *Handler) HandleDeletePhotos(c echo.Context) error {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}

	var body struct {
		BatchName string   `json:"batchName"`
		BlobKeys  []string `json:"blobKeys"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	deleted, err := h.ledger.DeletePhotos(c.Request().Context(), eventID, body.BatchName, body.BlobKeys)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "photos deleted successfully",
		"deleted": deleted,
	})
}
