package models

// ResidentInfo is the identity returned by the resident directory for an
// OTP. Sessions hold their own copy; it is never mutated after lookup.
type ResidentInfo struct {
	ID          string `json:"id" db:"resident_id"`
	Name        string `json:"name" db:"resident_name"`
	UnitNumber  string `json:"unit_number" db:"unit_number"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	VisitorType string `json:"visitor_type,omitempty"`
	Status      string `json:"status,omitempty"`
	ValidUntil  string `json:"valid_until,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// ResidentSnapshot is the subset of ResidentInfo embedded in image
// metadata.
type ResidentSnapshot struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	UnitNumber string `json:"unit_number"`
}

// Snapshot returns the identity fields persisted alongside images.
func (r ResidentInfo) Snapshot() ResidentSnapshot {
	return ResidentSnapshot{ID: r.ID, Name: r.Name, UnitNumber: r.UnitNumber}
}
