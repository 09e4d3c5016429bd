package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"gatehouse-backend/internal/apperror"
	"gatehouse-backend/internal/models"
	"gatehouse-backend/internal/services"
)

const (
	uploadField       = "image"
	maxFilenameLength = 255
)

type CaptureSessionHandler struct {
	Service *services.CaptureSessionService
	logger  *zap.Logger
}

func NewCaptureSessionHandler(service *services.CaptureSessionService, logger *zap.Logger) *CaptureSessionHandler {
	return &CaptureSessionHandler{
		Service: service,
		logger:  logger.With(zap.String("component", "capture_handler")),
	}
}

// StartSession resolves an OTP and opens a session. Lookup failures are
// reported to the operator as 400 with the directory's message.
func (h *CaptureSessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req models.StartSessionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.Service.StartCaptureSession(r.Context(), req.OTP)
	if err != nil {
		switch apperror.KindOf(err) {
		case apperror.KindValidation, apperror.KindUpstream:
			writeErrorStatus(w, h.logger, http.StatusBadRequest, err)
		default:
			writeError(w, h.logger, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (h *CaptureSessionHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req models.SetModeRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.Service.SetCaptureMode(r.Context(), mux.Vars(r)["id"], req.Mode)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Capture accepts the image either as the multipart field "image" or as
// the raw request body.
func (h *CaptureSessionHandler) Capture(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	data, filename, err := readUpload(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.Service.ProcessCapture(r.Context(), vars["id"], vars["type"], data, filename)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *CaptureSessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Service.CompleteSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *CaptureSessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	session, err := h.Service.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func readUpload(r *http.Request) ([]byte, string, error) {
	filename := r.URL.Query().Get("filename")

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile(uploadField)
		if err != nil {
			return nil, "", uploadError(err)
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", uploadError(err)
		}
		if header.Filename != "" {
			filename = header.Filename
		}
		return data, cleanFilename(filename), nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", uploadError(err)
	}
	return data, cleanFilename(filename), nil
}

func uploadError(err error) error {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return apperror.Validation("upload exceeds maximum size of %d bytes", maxErr.Limit)
	case errors.Is(err, http.ErrMissingFile):
		return apperror.Validation("image file is required")
	default:
		return apperror.Validation("invalid upload")
	}
}

// cleanFilename keeps only the base name the client sent.
func cleanFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	name = path.Base(name)
	if name == "." || name == "/" {
		return ""
	}
	if len(name) > maxFilenameLength {
		name = name[:maxFilenameLength]
	}
	return name
}
