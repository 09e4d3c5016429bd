package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"gatehouse-backend/internal/apperror"
	"gatehouse-backend/internal/directory"
	"gatehouse-backend/internal/health"
	"gatehouse-backend/internal/models"
	"gatehouse-backend/internal/services"
)

type SystemHandler struct {
	Sessions      *services.CaptureSessionService
	Health        *health.HealthChecker
	SessionMaxAge time.Duration
	logger        *zap.Logger
}

func NewSystemHandler(sessions *services.CaptureSessionService, checker *health.HealthChecker, sessionMaxAge time.Duration, logger *zap.Logger) *SystemHandler {
	if sessionMaxAge <= 0 {
		sessionMaxAge = services.DefaultSessionMaxAge
	}
	return &SystemHandler{
		Sessions:      sessions,
		Health:        checker,
		SessionMaxAge: sessionMaxAge,
		logger:        logger.With(zap.String("component", "system_handler")),
	}
}

func (h *SystemHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Sessions.GetStatus(r.Context()))
}

// Cleanup sweeps expired sessions. The body is optional; without
// max_age_ms the configured session max age applies, and zero or less
// removes every session.
func (h *SystemHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req models.CleanupRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, h.logger, err)
		return
	}

	maxAge := h.SessionMaxAge
	if req.MaxAgeMs != nil {
		maxAge = time.Duration(*req.MaxAgeMs) * time.Millisecond
	}

	removed := h.Sessions.CleanupExpiredSessions(r.Context(), maxAge)
	writeJSON(w, http.StatusOK, models.CleanupResult{Removed: removed})
}

// DemoCodes lists the OTPs the demo directory accepts. It is only
// available while the service runs against the demo directory.
func (h *SystemHandler) DemoCodes(w http.ResponseWriter, r *http.Request) {
	demo, ok := h.Sessions.Directory().(*directory.DemoDirectory)
	if !ok {
		writeError(w, h.logger, apperror.NotFound("demo directory is not active"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"codes": demo.ListKnownCodes()})
}

func (h *SystemHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := h.Health.Check(r.Context())
	code := http.StatusOK
	if status.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
