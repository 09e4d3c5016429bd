package models

import "time"

// CaptureMode is the session-level policy chosen by the operator.
type CaptureMode string

const (
	ModePedestrian CaptureMode = "pedestrian"
	ModeVehicle    CaptureMode = "vehicle"
)

// CaptureType identifies what an image shows.
type CaptureType string

const (
	CapturePerson  CaptureType = "person"  // ID document, passport or licence
	CaptureVehicle CaptureType = "vehicle" // number plate or licence disc
)

// AllCaptureTypes lists every capture type in storage partition order.
var AllCaptureTypes = []CaptureType{CapturePerson, CaptureVehicle}

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// Status tokens returned to the operator UI.
const (
	StatusReadyForModeSelection = "ready_for_mode_selection"
	StatusReadyForCapture       = "ready_for_capture"

	NextActionCompleteSession = "complete_session"
)

// modeCaptures is the single table of which capture types each mode
// requires, in the order the operator is prompted for them. Mode
// selection, capture validation and completion all read it.
var modeCaptures = map[CaptureMode][]CaptureType{
	ModePedestrian: {CapturePerson},
	ModeVehicle:    {CapturePerson, CaptureVehicle},
}

// ParseCaptureMode returns the mode named by s, or false.
func ParseCaptureMode(s string) (CaptureMode, bool) {
	m := CaptureMode(s)
	_, ok := modeCaptures[m]
	return m, ok
}

// ParseCaptureType returns the capture type named by s, or false.
func ParseCaptureType(s string) (CaptureType, bool) {
	switch t := CaptureType(s); t {
	case CapturePerson, CaptureVehicle:
		return t, true
	}
	return "", false
}

// RequiredCaptures returns the capture types m requires, in prompt order.
func (m CaptureMode) RequiredCaptures() []CaptureType {
	required := modeCaptures[m]
	out := make([]CaptureType, len(required))
	copy(out, required)
	return out
}

// Allows reports whether a capture of type t may be recorded under m.
func (m CaptureMode) Allows(t CaptureType) bool {
	for _, allowed := range modeCaptures[m] {
		if allowed == t {
			return true
		}
	}
	return false
}

// NextAction returns the UI hint for the given missing capture list.
func NextAction(missing []CaptureType) string {
	if len(missing) == 0 {
		return NextActionCompleteSession
	}
	return "capture_" + string(missing[0])
}

// CaptureDescriptor records a successfully stored capture.
type CaptureDescriptor struct {
	ImageID   string    `json:"image_id"`
	Filename  string    `json:"filename"`
	FileSize  int64     `json:"file_size"`
	Timestamp time.Time `json:"timestamp"`
}

// CaptureSession is one operator workflow from OTP lookup to completion.
type CaptureSession struct {
	ID           string                             `json:"session_id"`
	OTP          string                             `json:"-"`
	ResidentInfo ResidentInfo                       `json:"resident_info"`
	Mode         CaptureMode                        `json:"mode,omitempty"`
	Captures     map[CaptureType]*CaptureDescriptor `json:"captures"`
	Status       SessionStatus                      `json:"status"`
	CreatedAt    time.Time                          `json:"created_at"`
	UpdatedAt    time.Time                          `json:"updated_at"`
	CompletedAt  *time.Time                         `json:"completed_at,omitempty"`
}

// Clone returns a deep copy safe to hand outside the session lock.
func (s *CaptureSession) Clone() *CaptureSession {
	clone := *s
	clone.Captures = make(map[CaptureType]*CaptureDescriptor, len(s.Captures))
	for t, d := range s.Captures {
		if d == nil {
			continue
		}
		dc := *d
		clone.Captures[t] = &dc
	}
	if s.CompletedAt != nil {
		completedAt := *s.CompletedAt
		clone.CompletedAt = &completedAt
	}
	return &clone
}

// MissingCaptures returns the required capture types not yet recorded,
// in prompt order. It is empty when no mode is set.
func (s *CaptureSession) MissingCaptures() []CaptureType {
	var missing []CaptureType
	for _, t := range modeCaptures[s.Mode] {
		if s.Captures[t] == nil {
			missing = append(missing, t)
		}
	}
	return missing
}

// RequirementsMet reports whether a mode is set and every capture it
// requires is present.
func (s *CaptureSession) RequirementsMet() bool {
	if s.Mode == "" {
		return false
	}
	return len(s.MissingCaptures()) == 0
}

// CaptureCount returns the number of recorded captures.
func (s *CaptureSession) CaptureCount() int {
	n := 0
	for _, d := range s.Captures {
		if d != nil {
			n++
		}
	}
	return n
}

type StartSessionRequest struct {
	OTP string `json:"otp"`
}

type StartSessionResult struct {
	SessionID    string       `json:"session_id"`
	ResidentInfo ResidentInfo `json:"resident_info"`
	Status       string       `json:"status"`
}

type SetModeRequest struct {
	Mode string `json:"mode"`
}

type SetModeResult struct {
	Mode              CaptureMode   `json:"mode"`
	Status            string        `json:"status"`
	AvailableCaptures []CaptureType `json:"available_captures"`
}

type CaptureResult struct {
	Success         bool        `json:"success"`
	CaptureType     CaptureType `json:"capture_type"`
	ImageID         string      `json:"image_id"`
	SessionComplete bool        `json:"session_complete"`
	NextAction      string      `json:"next_action"`
}

type SessionSummary struct {
	SessionID     string                             `json:"session_id"`
	ResidentInfo  ResidentInfo                       `json:"resident_info"`
	Mode          CaptureMode                        `json:"mode"`
	Captures      map[CaptureType]*CaptureDescriptor `json:"captures"`
	CreatedAt     time.Time                          `json:"created_at"`
	CompletedAt   *time.Time                         `json:"completed_at,omitempty"`
	TotalCaptures int                                `json:"total_captures"`
}

type CleanupRequest struct {
	MaxAgeMs *int64 `json:"max_age_ms,omitempty"`
}

type CleanupResult struct {
	Removed int `json:"removed"`
}

// ServiceStatus reports the orchestrator's collaborators and load.
type ServiceStatus struct {
	DirectoryMode  string `json:"directory_mode"` // "live" or "demo"
	ActiveSessions int    `json:"active_sessions"`
	StorageBackend string `json:"storage_backend"`
}
