package directory

import (
	"context"

	"gatehouse-backend/internal/models"
)

const (
	NameLive = "live"
	NameDemo = "demo"
)

// Directory resolves a visitor's one-time PIN to the resident who issued it.
type Directory interface {
	// Name returns "live" or "demo".
	Name() string

	// ValidateConfig reports whether enough configuration is present to
	// attempt a connection.
	ValidateConfig() bool

	// TestConnection probes the directory once.
	TestConnection(ctx context.Context) bool

	// SearchByOTP returns the resident behind otp. Every failure,
	// including an unknown OTP, is an apperror.KindUpstream error whose
	// message is safe to show the operator.
	SearchByOTP(ctx context.Context, otp string) (*models.ResidentInfo, error)
}

// Upstream messages shared by every Directory implementation.
const (
	MsgVisitorNotFound = "visitor not found for OTP"
	MsgAuthFailed      = "directory authentication failed"
	MsgRateLimited     = "directory rate limit exceeded"
	MsgServerError     = "directory server error"
	MsgUnreachable     = "directory unreachable"
	MsgBadResponse     = "directory returned an unreadable response"
)
