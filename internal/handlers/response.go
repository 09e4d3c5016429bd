package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"gatehouse-backend/internal/apperror"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch apperror.KindOf(err) {
	case apperror.KindValidation, apperror.KindPolicy, apperror.KindState:
		return http.StatusBadRequest
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {success:false, error}. Errors without a kind
// are logged and hidden behind a generic message.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	writeErrorStatus(w, logger, statusFor(err), err)
}

func writeErrorStatus(w http.ResponseWriter, logger *zap.Logger, status int, err error) {
	message := apperror.Message(err)
	switch apperror.KindOf(err) {
	case apperror.KindIntegrity, apperror.KindStorage:
		logger.Error("request failed", zap.Error(err))
	case apperror.KindInternal:
		logger.Error("unexpected error", zap.Error(err))
		message = "internal server error"
	}
	writeJSON(w, status, errorResponse{Success: false, Error: message})
}

// decodeJSON decodes the request body into v. An empty body leaves v
// untouched when allowEmpty is set.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return nil
	}
	if allowEmpty && errors.Is(err, io.EOF) {
		return nil
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperror.Validation("request body exceeds %d bytes", maxErr.Limit)
	}
	return apperror.Validation("invalid request body")
}
