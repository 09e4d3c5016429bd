package directory

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"gatehouse-backend/internal/apperror"
	"gatehouse-backend/internal/models"
)

var demoResidents = map[string]models.ResidentInfo{
	"123456": {
		ID: "res-001", Name: "Thandi Mokoena", UnitNumber: "A12",
		Phone: "+27 82 555 0101", Email: "thandi.mokoena@example.com",
		VisitorType: "guest", Status: "active", ValidUntil: "2099-12-31T23:59:59Z",
	},
	"234567": {
		ID: "res-002", Name: "Pieter van der Merwe", UnitNumber: "B04",
		Phone: "+27 83 555 0202", Email: "pieter.vdm@example.com",
		VisitorType: "contractor", Status: "active", ValidUntil: "2099-12-31T23:59:59Z",
	},
	"345678": {
		ID: "res-003", Name: "Aisha Patel", UnitNumber: "C21",
		Phone: "+27 84 555 0303", Email: "aisha.patel@example.com",
		VisitorType: "delivery", Status: "active", ValidUntil: "2099-12-31T23:59:59Z",
	},
}

// DemoDirectory serves a fixed resident set so the gatehouse UI can be
// exercised without a reachable directory.
type DemoDirectory struct {
	logger *zap.Logger
}

func NewDemoDirectory(logger *zap.Logger) *DemoDirectory {
	return &DemoDirectory{logger: logger.With(zap.String("component", "directory"))}
}

func (d *DemoDirectory) Name() string { return NameDemo }

func (d *DemoDirectory) ValidateConfig() bool { return true }

func (d *DemoDirectory) TestConnection(context.Context) bool { return true }

func (d *DemoDirectory) SearchByOTP(_ context.Context, otp string) (*models.ResidentInfo, error) {
	resident, ok := demoResidents[otp]
	if !ok {
		return nil, apperror.Upstream(MsgVisitorNotFound, nil)
	}
	d.logger.Debug("demo directory lookup", zap.String("resident_id", resident.ID))
	return &resident, nil
}

// ListKnownCodes returns the OTPs the demo directory accepts, sorted.
func (d *DemoDirectory) ListKnownCodes() []string {
	codes := make([]string, 0, len(demoResidents))
	for code := range demoResidents {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
