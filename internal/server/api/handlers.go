package api

import (
	"errors"
	"fmt"
	"net/http"

	"shutterhub/internal/server/database"
	"shutterhub/internal/server/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Handler contains the HTTP handlers for the ShutterHub API.
type Handler struct {
	pipeline *service.Pipeline
	ledger   *service.Ledger
	market   *service.Marketplace
	db       *database.DB
}

// NewHandler creates a new handler with the given service dependencies.
func NewHandler(pipeline *service.Pipeline, ledger *service.Ledger, market *service.Marketplace, db *database.DB) *Handler {
	return &Handler{pipeline: pipeline, ledger: ledger, market: market, db: db}
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including database connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

// HandleStats handles GET /api/stats.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.market.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to retrieve stats",
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"total_events":       stats.TotalEvents,
		"total_photos":       stats.TotalPhotos,
		"selected_photos":    stats.SelectedCount,
		"storage_used_bytes": stats.StorageUsed,
		"storage_used_human": humanizeBytes(stats.StorageUsed),
	})
}

// HandleCreateUser handles POST /api/users.
func (h *Handler) HandleCreateUser(c echo.Context) error {
	var body struct {
		Name     string `json:"name"`
		Phone    string `json:"phone"`
		UserType string `json:"userType"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	user, err := h.market.CreateUser(c.Request().Context(), body.Name, body.Phone, body.UserType)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, user)
}

// HandleGetUser handles GET /api/users/:id.
func (h *Handler) HandleGetUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	user, err := h.market.GetUser(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

// HandleCreateEvent handles POST /api/events.
func (h *Handler) HandleCreateEvent(c echo.Context) error {
	var body struct {
		Name           string     `json:"name"`
		OwnerID        uuid.UUID  `json:"ownerId"`
		PhotographerID uuid.UUID  `json:"photographerId"`
		PackageID      *uuid.UUID `json:"packageId"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	event, err := h.market.CreateEvent(c.Request().Context(), body.Name, body.OwnerID, body.PhotographerID, body.PackageID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, event)
}

// HandleGetEvent handles GET /api/events/:id.
// Returns the full event snapshot: batches, photos and the selected set.
func (h *Handler) HandleGetEvent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}

	snapshot, err := h.ledger.Snapshot(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, snapshot)
}

// HandleListEvents handles GET /api/events.
// Accepts optional owner_id and photographer_id query filters.
func (h *Handler) HandleListEvents(c echo.Context) error {
	var ownerID, photographerID *uuid.UUID
	if raw := c.QueryParam("owner_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid owner_id"})
		}
		ownerID = &id
	}
	if raw := c.QueryParam("photographer_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid photographer_id"})
		}
		photographerID = &id
	}

	events, err := h.market.ListEvents(c.Request().Context(), ownerID, photographerID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, events)
}

// HandleUpdateEvent handles PATCH /api/events/:id.
func (h *Handler) HandleUpdateEvent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}

	var body struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	event, err := h.market.UpdateEvent(c.Request().Context(), id, body.Name, body.Status)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, event)
}

// HandleDeleteEvent handles DELETE /api/events/:id.
func (h *Handler) HandleDeleteEvent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}

	if err := h.market.DeleteEvent(c.Request().Context(), id); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "event deleted successfully"})
}

// HandleCreateStoragePackage handles POST /api/packages.
func (h *Handler) HandleCreateStoragePackage(c echo.Context) error {
	var body struct {
		Name              string `json:"name"`
		StorageLimitBytes int64  `json:"storageLimitBytes"`
		PriceCents        int64  `json:"priceCents"`
		DurationMonths    int    `json:"durationMonths"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	pkg, err := h.market.CreateStoragePackage(c.Request().Context(), body.Name, body.StorageLimitBytes, body.PriceCents, body.DurationMonths)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, pkg)
}

// HandleListStoragePackages handles GET /api/packages.
func (h *Handler) HandleListStoragePackages(c echo.Context) error {
	packages, err := h.market.ListStoragePackages(c.Request().Context())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, packages)
}

// HandlePurchasePackage handles POST /api/packages/:id/purchase.
func (h *Handler) HandlePurchasePackage(c echo.Context) error {
	packageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid package id"})
	}

	var body struct {
		UserID        uuid.UUID `json:"userId"`
		PaymentMethod string    `json:"paymentMethod"`
		Reference     string    `json:"reference"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	purchase, err := h.market.PurchaseStorage(c.Request().Context(), body.UserID, packageID, body.PaymentMethod, body.Reference)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, purchase)
}

// HandleCreatePhotoPackage handles POST /api/photo-packages.
func (h *Handler) HandleCreatePhotoPackage(c echo.Context) error {
	var body struct {
		PhotographerID uuid.UUID `json:"photographerId"`
		Name           string    `json:"name"`
		PhotoCount     int       `json:"photoCount"`
		PriceCents     int64     `json:"priceCents"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	pkg, err := h.market.CreatePhotoPackage(c.Request().Context(), body.PhotographerID, body.Name, body.PhotoCount, body.PriceCents)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, pkg)
}

// HandleCreateReview handles POST /api/reviews.
func (h *Handler) HandleCreateReview(c echo.Context) error {
	var body struct {
		UserID         uuid.UUID `json:"userId"`
		PhotographerID uuid.UUID `json:"photographerId"`
		Stars          int       `json:"stars"`
		Comment        string    `json:"comment"`
		ImageURL       *string   `json:"imageUrl"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	review, err := h.market.CreateReview(c.Request().Context(), body.UserID, body.PhotographerID, body.Stars, body.Comment, body.ImageURL)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, review)
}

// HandleListReviews handles GET /api/reviews/:photographerId.
func (h *Handler) HandleListReviews(c echo.Context) error {
	photographerID, err := uuid.Parse(c.Param("photographerId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid photographer id"})
	}

	reviews, err := h.market.ListReviews(c.Request().Context(), photographerID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, reviews)
}

// HandleCreateShare handles POST /api/events/:id/share.
func (h *Handler) HandleCreateShare(c echo.Context) error {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}

	var body struct {
		Mobile   string `json:"mobile"`
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	share, err := h.market.CreateShare(c.Request().Context(), eventID, body.Mobile, body.Password)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"token":     share.Token,
		"protected": share.PasswordHash != nil,
	})
}

// HandleResolveShare handles GET /api/share/:token.
// A protected link takes the password from the "password" query param.
func (h *Handler) HandleResolveShare(c echo.Context) error {
	token := c.Param("token")
	password := c.QueryParam("password")

	event, err := h.market.ResolveShare(c.Request().Context(), token, password)
	if err != nil {
		return mapServiceError(c, err)
	}

	snapshot, err := h.ledger.Snapshot(c.Request().Context(), event.ID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, snapshot)
}

// mapServiceError translates service-layer errors into appropriate HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrEventNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
	case errors.Is(err, service.ErrBatchNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "photo batch not found"})
	case errors.Is(err, service.ErrUserNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	case errors.Is(err, service.ErrPackageNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "package not found"})
	case errors.Is(err, service.ErrShareNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "share link not found"})
	case errors.Is(err, service.ErrNoPhotosMatched):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no matching photos found"})
	case errors.Is(err, service.ErrBatchExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": "batch with this name already exists"})
	case errors.Is(err, service.ErrPhoneTaken):
		return c.JSON(http.StatusConflict, echo.Map{"error": "phone number already registered"})
	case errors.Is(err, service.ErrPasswordRequired):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "password_required"})
	case errors.Is(err, service.ErrInvalidPassword):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "invalid password"})
	case errors.Is(err, service.ErrFileTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{
			"error": "file exceeds maximum allowed size",
		})
	case errors.Is(err, service.ErrStorageQuotaExceeded):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "storage quota exceeded"})
	case errors.Is(err, service.ErrSelectionLimitExceeded):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "selection exceeds package photo count"})
	case errors.Is(err, service.ErrNoFiles),
		errors.Is(err, service.ErrBatchNameRequired),
		errors.Is(err, service.ErrNoPhotoKeys),
		errors.Is(err, service.ErrNameRequired),
		errors.Is(err, service.ErrInvalidStars):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}

// humanizeBytes formats a byte count into a human-readable string.
func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
