package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gatehouse-backend/internal/apperror"
	"gatehouse-backend/internal/directory"
	"gatehouse-backend/internal/metrics"
	"gatehouse-backend/internal/models"
	"gatehouse-backend/internal/repositories"
)

// DefaultSessionMaxAge is the expiry applied when no max age is given.
const DefaultSessionMaxAge = 30 * time.Minute

// ImageStore is the part of ImageStorageService the orchestrator uses.
type ImageStore interface {
	StoreImage(ctx context.Context, data []byte, req models.StoreImageRequest) (*models.StoreImageResult, error)
	BackendName() string
}

// CaptureSessionService drives a session from OTP lookup through mode
// selection and captures to completion.
type CaptureSessionService struct {
	directory directory.Directory
	images    ImageStore
	sessions  *repositories.CaptureSessionRepository
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewCaptureSessionService(
	dir directory.Directory,
	images ImageStore,
	sessions *repositories.CaptureSessionRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) *CaptureSessionService {
	return &CaptureSessionService{
		directory: dir,
		images:    images,
		sessions:  sessions,
		metrics:   m,
		logger:    logger.With(zap.String("component", "capture_session")),
		now:       time.Now,
	}
}

func sessionNotFound(err error) error {
	if errors.Is(err, repositories.ErrSessionNotFound) {
		return apperror.NotFound("session not found")
	}
	return err
}

func (s *CaptureSessionService) StartCaptureSession(ctx context.Context, otp string) (*models.StartSessionResult, error) {
	otp = strings.TrimSpace(otp)
	if otp == "" {
		return nil, apperror.Validation("OTP is required")
	}

	resident, err := s.directory.SearchByOTP(ctx, otp)
	if err != nil {
		s.logger.Warn("OTP lookup failed", zap.String("directory", s.directory.Name()), zap.Error(err))
		return nil, err
	}

	now := s.now()
	session := &models.CaptureSession{
		ID:           uuid.NewString(),
		OTP:          otp,
		ResidentInfo: *resident,
		Captures:     make(map[models.CaptureType]*models.CaptureDescriptor),
		Status:       models.SessionActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.sessions.Create(session)

	s.logger.Info("capture session started",
		zap.String("session_id", session.ID),
		zap.String("resident_id", resident.ID),
		zap.String("unit_number", resident.UnitNumber),
	)

	return &models.StartSessionResult{
		SessionID:    session.ID,
		ResidentInfo: session.ResidentInfo,
		Status:       models.StatusReadyForModeSelection,
	}, nil
}

// SetCaptureMode chooses the session's mode. The mode can be set once.
func (s *CaptureSessionService) SetCaptureMode(ctx context.Context, sessionID, mode string) (*models.SetModeResult, error) {
	var result *models.SetModeResult
	err := s.sessions.Mutate(sessionID, func(session *models.CaptureSession) (bool, error) {
		m, ok := models.ParseCaptureMode(strings.TrimSpace(mode))
		if !ok {
			return false, apperror.Validation("invalid capture mode")
		}
		if session.Mode != "" {
			return false, apperror.State("capture mode already set")
		}

		session.Mode = m
		session.UpdatedAt = s.now()
		result = &models.SetModeResult{
			Mode:              m,
			Status:            models.StatusReadyForCapture,
			AvailableCaptures: m.RequiredCaptures(),
		}
		return false, nil
	})
	if err != nil {
		return nil, sessionNotFound(err)
	}

	s.logger.Info("capture mode set", zap.String("session_id", sessionID), zap.String("mode", string(result.Mode)))
	return result, nil
}

// ProcessCapture stores one image against the session. The session is
// locked for the whole call, so captures on one session never interleave,
// and it is left untouched when storing fails.
func (s *CaptureSessionService) ProcessCapture(ctx context.Context, sessionID, captureType string, data []byte, filename string) (*models.CaptureResult, error) {
	var result *models.CaptureResult
	label := "invalid"

	err := s.sessions.Mutate(sessionID, func(session *models.CaptureSession) (bool, error) {
		t, ok := models.ParseCaptureType(strings.TrimSpace(captureType))
		if !ok {
			return false, apperror.Validation("invalid capture type")
		}
		label = string(t)

		if session.Mode == "" {
			return false, apperror.State("capture mode must be set before capture")
		}
		if !session.Mode.Allows(t) {
			return false, apperror.Policy("%s capture not allowed in %s mode", t, session.Mode)
		}

		now := s.now()
		stored, err := s.images.StoreImage(ctx, data, models.StoreImageRequest{
			ResidentInfo:     session.ResidentInfo,
			CaptureType:      t,
			Timestamp:        now,
			SessionID:        session.ID,
			OTP:              session.OTP,
			OriginalFilename: filename,
		})
		if err != nil {
			return false, err
		}

		session.Captures[t] = &models.CaptureDescriptor{
			ImageID:   stored.ImageID,
			Filename:  stored.Filename,
			FileSize:  stored.Metadata.FileSize,
			Timestamp: now,
		}
		session.UpdatedAt = now
		if session.RequirementsMet() && session.Status != models.SessionCompleted {
			session.Status = models.SessionCompleted
			completedAt := now
			session.CompletedAt = &completedAt
		}

		result = &models.CaptureResult{
			Success:         true,
			CaptureType:     t,
			ImageID:         stored.ImageID,
			SessionComplete: session.Status == models.SessionCompleted,
			NextAction:      models.NextAction(session.MissingCaptures()),
		}
		return false, nil
	})
	if err != nil {
		err = sessionNotFound(err)
		s.metrics.ObserveCapture(label, captureOutcome(err))
		s.logger.Warn("capture rejected",
			zap.String("session_id", sessionID),
			zap.String("capture_type", captureType),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.ObserveCapture(label, metrics.ResultStored)
	s.logger.Info("capture stored",
		zap.String("session_id", sessionID),
		zap.String("capture_type", label),
		zap.String("image_id", result.ImageID),
		zap.Bool("session_complete", result.SessionComplete),
	)
	return result, nil
}

func captureOutcome(err error) string {
	switch apperror.KindOf(err) {
	case apperror.KindValidation, apperror.KindPolicy, apperror.KindState, apperror.KindNotFound:
		return metrics.ResultRejected
	default:
		return metrics.ResultFailed
	}
}

// CompleteSession returns the session summary and removes the session.
func (s *CaptureSessionService) CompleteSession(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	var summary *models.SessionSummary
	err := s.sessions.Mutate(sessionID, func(session *models.CaptureSession) (bool, error) {
		if session.Status != models.SessionCompleted {
			return false, apperror.State("session is not ready for completion")
		}
		snapshot := session.Clone()
		summary = &models.SessionSummary{
			SessionID:     snapshot.ID,
			ResidentInfo:  snapshot.ResidentInfo,
			Mode:          snapshot.Mode,
			Captures:      snapshot.Captures,
			CreatedAt:     snapshot.CreatedAt,
			CompletedAt:   snapshot.CompletedAt,
			TotalCaptures: snapshot.CaptureCount(),
		}
		return true, nil
	})
	if err != nil {
		return nil, sessionNotFound(err)
	}

	s.logger.Info("capture session completed",
		zap.String("session_id", sessionID),
		zap.Int("total_captures", summary.TotalCaptures),
	)
	return summary, nil
}

// GetSession returns a snapshot of the session.
func (s *CaptureSessionService) GetSession(ctx context.Context, sessionID string) (*models.CaptureSession, error) {
	session, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, sessionNotFound(err)
	}
	return session, nil
}

// CleanupExpiredSessions removes every session older than maxAge,
// whatever its status. A maxAge of zero or less removes all sessions.
func (s *CaptureSessionService) CleanupExpiredSessions(ctx context.Context, maxAge time.Duration) int {
	now := s.now()
	removed := s.sessions.RemoveWhere(func(createdAt time.Time) bool {
		return maxAge <= 0 || now.Sub(createdAt) > maxAge
	})
	if removed > 0 {
		s.logger.Info("expired sessions removed", zap.Int("removed", removed), zap.Duration("max_age", maxAge))
	}
	return removed
}

// StartJanitor runs CleanupExpiredSessions every interval until ctx is
// done. A non-positive maxAge falls back to DefaultSessionMaxAge so the
// janitor only ever expires sessions by age.
func (s *CaptureSessionService) StartJanitor(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		return
	}
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpiredSessions(ctx, maxAge)
			}
		}
	}()
}

func (s *CaptureSessionService) ActiveSessionsCount() int {
	return s.sessions.Count()
}

func (s *CaptureSessionService) GetStatus(ctx context.Context) models.ServiceStatus {
	return models.ServiceStatus{
		DirectoryMode:  s.directory.Name(),
		ActiveSessions: s.sessions.Count(),
		StorageBackend: s.images.BackendName(),
	}
}

// Directory exposes the selected directory for the demo-codes endpoint.
func (s *CaptureSessionService) Directory() directory.Directory {
	return s.directory
}
