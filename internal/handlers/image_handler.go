package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"gatehouse-backend/internal/models"
	"gatehouse-backend/internal/services"
)

type ImageHandler struct {
	Service *services.ImageStorageService
	logger  *zap.Logger
}

func NewImageHandler(service *services.ImageStorageService, logger *zap.Logger) *ImageHandler {
	return &ImageHandler{
		Service: service,
		logger:  logger.With(zap.String("component", "image_handler")),
	}
}

// GetImage streams the decrypted image. Responses are never cached.
func (h *ImageHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	image, err := h.Service.RetrieveImage(r.Context(), mux.Vars(r)["imageId"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", image.Metadata.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(image.Data)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.Header().Set("Content-Disposition", "inline")
	w.WriteHeader(http.StatusOK)
	w.Write(image.Data)
}

func (h *ImageHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["imageId"]
	if err := h.Service.DeleteImage(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "image_id": id})
}

func (h *ImageHandler) ResidentImages(w http.ResponseWriter, r *http.Request) {
	residentID := mux.Vars(r)["residentId"]
	records, err := h.Service.GetImagesByResident(r.Context(), residentID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	images := make([]models.ImageSummary, 0, len(records))
	for _, meta := range records {
		images = append(images, meta.Summary())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resident_id": residentID,
		"count":       len(images),
		"images":      images,
	})
}

func (h *ImageHandler) StorageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.GetStorageStats(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
