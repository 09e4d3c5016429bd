package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"gatehouse-backend/internal/apperror"
	"gatehouse-backend/internal/config"
	"gatehouse-backend/internal/models"
)

const healthPath = "/health"

// RESTDirectory talks to the estate's resident directory over HTTP.
type RESTDirectory struct {
	cfg        config.DirectoryConfig
	httpClient *resty.Client
	logger     *zap.Logger
}

func NewRESTDirectory(cfg config.DirectoryConfig, logger *zap.Logger) *RESTDirectory {
	if cfg.SearchPath == "" {
		cfg.SearchPath = "/visitors/search"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(max(cfg.Retries, 0)).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || (r != nil && r.StatusCode() >= http.StatusInternalServerError)
		}).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("X-API-Key", cfg.APIKey)
	}
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &RESTDirectory{
		cfg:        cfg,
		httpClient: client,
		logger:     logger.With(zap.String("component", "directory")),
	}
}

func (d *RESTDirectory) Name() string { return NameLive }

func (d *RESTDirectory) ValidateConfig() bool {
	if d.cfg.APIKey == "" && d.cfg.Token == "" {
		return false
	}
	u, err := url.Parse(d.cfg.BaseURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// TestConnection succeeds when the directory answers its health endpoint
// with anything other than a server or credential error.
func (d *RESTDirectory) TestConnection(ctx context.Context) bool {
	resp, err := d.httpClient.R().SetContext(ctx).Get(healthPath)
	if err != nil {
		d.logger.Warn("directory probe failed", zap.Error(err))
		return false
	}
	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		d.logger.Warn("directory rejected credentials", zap.Int("status_code", code))
		return false
	case code >= http.StatusInternalServerError:
		d.logger.Warn("directory probe returned server error", zap.Int("status_code", code))
		return false
	}
	return true
}

func (d *RESTDirectory) SearchByOTP(ctx context.Context, otp string) (*models.ResidentInfo, error) {
	resp, err := d.httpClient.R().
		SetContext(ctx).
		SetQueryParam("otp", otp).
		Get(d.cfg.SearchPath)
	if err != nil {
		d.logger.Error("directory search failed", zap.Error(err))
		return nil, apperror.Upstream(MsgUnreachable, err)
	}

	code := resp.StatusCode()
	if code != http.StatusOK {
		d.logger.Warn("directory search rejected", zap.Int("status_code", code))
		return nil, statusError(code)
	}

	resident, err := normalizeResident(resp.Body())
	if err != nil {
		d.logger.Error("directory response not understood", zap.Error(err))
		return nil, apperror.Upstream(MsgBadResponse, err)
	}
	if resident == nil {
		return nil, apperror.Upstream(MsgVisitorNotFound, nil)
	}
	return resident, nil
}

func statusError(code int) error {
	cause := fmt.Errorf("directory status %d", code)
	switch {
	case code == http.StatusNotFound:
		return apperror.Upstream(MsgVisitorNotFound, cause)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return apperror.Upstream(MsgAuthFailed, cause)
	case code == http.StatusTooManyRequests:
		return apperror.Upstream(MsgRateLimited, cause)
	case code >= http.StatusInternalServerError:
		return apperror.Upstream(MsgServerError, cause)
	default:
		return apperror.Upstream(fmt.Sprintf("directory request failed with status %d", code), cause)
	}
}

// Field aliases seen across directory deployments, most specific first.
var (
	idKeys          = []string{"resident_id", "residentId", "id"}
	nameKeys        = []string{"resident_name", "residentName", "full_name", "fullName", "name"}
	unitKeys        = []string{"unit_number", "unitNumber", "unit"}
	phoneKeys       = []string{"phone", "phone_number", "phoneNumber", "mobile"}
	emailKeys       = []string{"email", "email_address", "emailAddress"}
	visitorTypeKeys = []string{"visitor_type", "visitorType", "type"}
	statusKeys      = []string{"status"}
	validUntilKeys  = []string{"valid_until", "validUntil", "expires_at", "expiresAt"}
	createdAtKeys   = []string{"created_at", "createdAt"}
)

// normalizeResident accepts {data:{..}}, {data:[{..}]}, {visitor:{..}},
// [{..}] or a bare object. It returns nil without error when the payload
// holds no resident.
func normalizeResident(body []byte) (*models.ResidentInfo, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode directory payload: %w", err)
	}

	obj := unwrap(payload)
	if obj == nil {
		return nil, nil
	}

	// Some deployments nest the resident under the visitor record.
	resident := obj
	if nested, ok := obj["resident"].(map[string]any); ok {
		resident = nested
	}

	info := &models.ResidentInfo{
		ID:          firstString(resident, idKeys),
		Name:        firstString(resident, nameKeys),
		UnitNumber:  firstString(resident, unitKeys),
		Phone:       firstString(resident, phoneKeys),
		Email:       firstString(resident, emailKeys),
		VisitorType: firstString(obj, visitorTypeKeys),
		Status:      firstString(obj, statusKeys),
		ValidUntil:  firstString(obj, validUntilKeys),
		CreatedAt:   firstString(obj, createdAtKeys),
	}
	if info.UnitNumber == "" {
		info.UnitNumber = firstString(obj, unitKeys)
	}
	if info.ID == "" && info.Name == "" {
		return nil, nil
	}
	return info, nil
}

func unwrap(v any) map[string]any {
	for depth := 0; depth < 4; depth++ {
		switch t := v.(type) {
		case []any:
			if len(t) == 0 {
				return nil
			}
			v = t[0]
		case map[string]any:
			inner, ok := envelope(t)
			if !ok {
				return t
			}
			v = inner
		default:
			return nil
		}
	}
	return nil
}

func envelope(obj map[string]any) (any, bool) {
	for _, key := range []string{"data", "visitor", "result"} {
		if inner, ok := obj[key]; ok && inner != nil {
			return inner, true
		}
	}
	return nil, false
}

func firstString(obj map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		case bool:
			return fmt.Sprint(v)
		}
	}
	return ""
}
