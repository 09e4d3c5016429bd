package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gatehouse-backend/internal/apperror"
	"gatehouse-backend/internal/config"
)

func testConfig(baseURL string) config.DirectoryConfig {
	return config.DirectoryConfig{
		BaseURL:    baseURL,
		SearchPath: "/visitors/search",
		APIKey:     "test-key",
		Timeout:    2 * time.Second,
	}
}

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestRESTDirectory_SearchByOTP_shapes(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantID   string
		wantName string
		wantUnit string
	}{
		{
			name:     "data object",
			body:     `{"success":true,"data":{"resident_id":"r-1","resident_name":"Jane","unit_number":"A1"}}`,
			wantID:   "r-1", wantName: "Jane", wantUnit: "A1",
		},
		{
			name:     "data array",
			body:     `{"data":[{"residentId":"r-2","fullName":"Sipho","unitNumber":"B2"}]}`,
			wantID:   "r-2", wantName: "Sipho", wantUnit: "B2",
		},
		{
			name:     "visitor envelope with nested resident",
			body:     `{"visitor":{"visitor_type":"guest","valid_until":"2030-01-01","resident":{"id":7,"name":"Lee","unit":"C3"}}}`,
			wantID:   "7", wantName: "Lee", wantUnit: "C3",
		},
		{
			name:     "bare array",
			body:     `[{"id":"r-4","name":"Ana","unit":"D4"}]`,
			wantID:   "r-4", wantName: "Ana", wantUnit: "D4",
		},
		{
			name:     "bare object",
			body:     `{"id":"r-5","name":"Omar","unitNumber":"E5"}`,
			wantID:   "r-5", wantName: "Omar", wantUnit: "E5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/visitors/search", r.URL.Path)
				require.Equal(t, "482913", r.URL.Query().Get("otp"))
				require.Equal(t, "test-key", r.Header.Get("X-API-Key"))
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			})

			d := NewRESTDirectory(testConfig(srv.URL), zap.NewNop())
			got, err := d.SearchByOTP(context.Background(), "482913")
			require.NoError(t, err)
			require.Equal(t, tt.wantID, got.ID)
			require.Equal(t, tt.wantName, got.Name)
			require.Equal(t, tt.wantUnit, got.UnitNumber)
		})
	}
}

func TestRESTDirectory_SearchByOTP_statusMapping(t *testing.T) {
	tests := []struct {
		status  int
		body    string
		wantMsg string
	}{
		{status: http.StatusNotFound, wantMsg: MsgVisitorNotFound},
		{status: http.StatusUnauthorized, wantMsg: MsgAuthFailed},
		{status: http.StatusForbidden, wantMsg: MsgAuthFailed},
		{status: http.StatusTooManyRequests, wantMsg: MsgRateLimited},
		{status: http.StatusBadGateway, wantMsg: MsgServerError},
		{status: http.StatusOK, body: `{"data":[]}`, wantMsg: MsgVisitorNotFound},
		{status: http.StatusOK, body: `{"data":null}`, wantMsg: MsgVisitorNotFound},
		{status: http.StatusOK, body: `<html>`, wantMsg: MsgBadResponse},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status)+tt.body, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			d := NewRESTDirectory(testConfig(srv.URL), zap.NewNop())
			_, err := d.SearchByOTP(context.Background(), "000000")
			require.Error(t, err)
			require.True(t, apperror.Is(err, apperror.KindUpstream))
			require.Equal(t, tt.wantMsg, apperror.Message(err))
		})
	}
}

func TestRESTDirectory_SearchByOTP_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d := NewRESTDirectory(testConfig(url), zap.NewNop())
	_, err := d.SearchByOTP(context.Background(), "123456")
	require.True(t, apperror.Is(err, apperror.KindUpstream))
	require.Equal(t, MsgUnreachable, apperror.Message(err))
}

func TestRESTDirectory_retriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"r-9","name":"Retry","unit":"Z9"}`))
	})

	cfg := testConfig(srv.URL)
	cfg.Retries = 2
	d := NewRESTDirectory(cfg, zap.NewNop())

	got, err := d.SearchByOTP(context.Background(), "999999")
	require.NoError(t, err)
	require.Equal(t, "r-9", got.ID)
	require.Equal(t, int32(2), hits.Load())
}

func TestRESTDirectory_ValidateConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DirectoryConfig
		want bool
	}{
		{name: "api key", cfg: config.DirectoryConfig{BaseURL: "https://dir.example.com", APIKey: "k"}, want: true},
		{name: "bearer token", cfg: config.DirectoryConfig{BaseURL: "http://dir:8080", Token: "t"}, want: true},
		{name: "no credentials", cfg: config.DirectoryConfig{BaseURL: "https://dir.example.com"}},
		{name: "no base url", cfg: config.DirectoryConfig{APIKey: "k"}},
		{name: "relative url", cfg: config.DirectoryConfig{BaseURL: "dir.example.com", APIKey: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, NewRESTDirectory(tt.cfg, zap.NewNop()).ValidateConfig())
		})
	}
}

func TestRESTDirectory_TestConnection(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != healthPath {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.WriteHeader(int(status.Load()))
	})
	d := NewRESTDirectory(testConfig(srv.URL), zap.NewNop())

	require.True(t, d.TestConnection(context.Background()))

	status.Store(http.StatusNotFound)
	require.True(t, d.TestConnection(context.Background()))

	status.Store(http.StatusUnauthorized)
	require.False(t, d.TestConnection(context.Background()))

	status.Store(http.StatusInternalServerError)
	require.False(t, d.TestConnection(context.Background()))
}

func TestDemoDirectory(t *testing.T) {
	d := NewDemoDirectory(zap.NewNop())
	require.Equal(t, NameDemo, d.Name())
	require.True(t, d.ValidateConfig())
	require.True(t, d.TestConnection(context.Background()))

	codes := d.ListKnownCodes()
	require.NotEmpty(t, codes)
	require.IsIncreasing(t, codes)

	for _, code := range codes {
		got, err := d.SearchByOTP(context.Background(), code)
		require.NoError(t, err)
		require.NotEmpty(t, got.ID)
		require.NotEmpty(t, got.UnitNumber)
	}

	first, _ := d.SearchByOTP(context.Background(), codes[0])
	first.Name = "mutated"
	again, _ := d.SearchByOTP(context.Background(), codes[0])
	require.NotEqual(t, "mutated", again.Name)

	_, err := d.SearchByOTP(context.Background(), "000000")
	require.True(t, apperror.Is(err, apperror.KindUpstream))
	require.Equal(t, MsgVisitorNotFound, apperror.Message(err))
}

func TestSelect(t *testing.T) {
	probeInitialInterval = time.Millisecond

	t.Run("unconfigured falls back to demo", func(t *testing.T) {
		d := Select(context.Background(), config.DirectoryConfig{}, zap.NewNop())
		require.Equal(t, NameDemo, d.Name())
	})

	t.Run("unreachable falls back to demo", func(t *testing.T) {
		var probes atomic.Int32
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			probes.Add(1)
			w.WriteHeader(http.StatusForbidden)
		})
		d := Select(context.Background(), testConfig(srv.URL), zap.NewNop())
		require.Equal(t, NameDemo, d.Name())
		require.Equal(t, int32(probeAttempts), probes.Load())
	})

	t.Run("reachable after one failure uses live", func(t *testing.T) {
		var probes atomic.Int32
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			if probes.Add(1) == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
		d := Select(context.Background(), testConfig(srv.URL), zap.NewNop())
		require.Equal(t, NameLive, d.Name())
	})
}
