package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/san-kum/hazard-cam/server/capture"
	"github.com/san-kum/hazard-cam/server/models"
	"github.com/san-kum/hazard-cam/server/store"
	"go.uber.org/zap"
)

type PositionSetter interface {
	Position() models.GeoPosition
	Set(position models.GeoPosition) error
}

// SourceFactory builds a frame source for a camera endpoint.
type SourceFactory func(cameraURL string) (capture.Source, error)

type ControlHandler struct {
	session   SessionControl
	switcher  *capture.Switcher
	newSource SourceFactory
	settings  store.Settings
	hazards   store.HazardLog
	position  PositionSetter
	logger    *zap.Logger
}

type ControlDeps struct {
	Session   SessionControl
	Switcher  *capture.Switcher
	NewSource SourceFactory
	Settings  store.Settings
	Hazards   store.HazardLog
	Position  PositionSetter
}

type CameraRequest struct {
	URL string `json:"url" binding:"required"`
}

type LocationRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

func NewControlHandler(deps ControlDeps, logger *zap.Logger) *ControlHandler {
	return &ControlHandler{
		session:   deps.Session,
		switcher:  deps.Switcher,
		newSource: deps.NewSource,
		settings:  deps.Settings,
		hazards:   deps.Hazards,
		position:  deps.Position,
		logger:    logger,
	}
}

func (h *ControlHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Snapshot())
}

func (h *ControlHandler) StartRecording(c *gin.Context) {
	changed := h.session.Start()
	snapshot := h.session.Snapshot()
	if !changed && snapshot.State == models.StateIdle {
		respondError(c, http.StatusServiceUnavailable, "shutting_down", "Recording cannot start while the server is shutting down")
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed, "state": snapshot.State, "session_id": snapshot.Stats.SessionID})
}

func (h *ControlHandler) StopRecording(c *gin.Context) {
	changed := h.session.Stop()
	snapshot := h.session.Snapshot()
	c.JSON(http.StatusOK, gin.H{"changed": changed, "state": snapshot.State, "session_id": snapshot.Stats.SessionID})
}

func (h *ControlHandler) GetCamera(c *gin.Context) {
	cameraURL, err := h.settings.Get(c.Request.Context(), store.KeyCameraURL)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.logger.Error("Failed to read camera URL", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "storage_error", "Failed to read camera settings")
		return
	}
	response := gin.H{"url": cameraURL}
	if stats, ok := h.switcher.Stats(); ok {
		response["stats"] = stats
	}
	c.JSON(http.StatusOK, response)
}

// PutCamera swaps the live source and persists the endpoint.
func (h *ControlHandler) PutCamera(c *gin.Context) {
	var request CameraRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request format")
		return
	}

	cameraURL, err := normalizeCameraURL(request.URL)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_url", err.Error())
		return
	}

	source, err := h.newSource(cameraURL)
	if err != nil {
		h.logger.Warn("Failed to open camera source", zap.String("url", cameraURL), zap.Error(err))
		respondError(c, http.StatusBadGateway, "camera_unavailable", "Failed to open camera source")
		return
	}

	if err := h.settings.Set(c.Request.Context(), store.KeyCameraURL, cameraURL); err != nil {
		source.Close()
		h.logger.Error("Failed to persist camera URL", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "storage_error", "Failed to save camera settings")
		return
	}

	if err := h.switcher.Replace(source); err != nil {
		h.logger.Warn("Previous camera source did not close cleanly", zap.Error(err))
	}

	h.logger.Info("Camera endpoint updated", zap.String("url", cameraURL))
	c.JSON(http.StatusOK, gin.H{"url": cameraURL})
}

func (h *ControlHandler) GetLocation(c *gin.Context) {
	c.JSON(http.StatusOK, h.position.Position())
}

func (h *ControlHandler) PutLocation(c *gin.Context) {
	var request LocationRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "latitude and longitude are required")
		return
	}

	position := models.GeoPosition{Latitude: *request.Latitude, Longitude: *request.Longitude}
	if err := h.position.Set(position); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_location", err.Error())
		return
	}

	c.JSON(http.StatusOK, position)
}

func (h *ControlHandler) ListHazards(c *gin.Context) {
	limit := store.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(c, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := h.hazards.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list hazards", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "storage_error", "Failed to read hazard log")
		return
	}

	c.JSON(http.StatusOK, gin.H{"hazards": records, "count": len(records)})
}

// normalizeCameraURL accepts "host:port" as well as full http(s) URLs.
func normalizeCameraURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("camera url is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", errors.New("camera url is not a valid URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("camera url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("camera url has no host")
	}

	return strings.TrimRight(parsed.String(), "/"), nil
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": models.APIError{Code: code, Message: message}})
}
