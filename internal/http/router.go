package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"gatehouse-backend/internal/config"
	"gatehouse-backend/internal/handlers"
	"gatehouse-backend/internal/metrics"
	"gatehouse-backend/internal/middleware"
)

type Handlers struct {
	Sessions *handlers.CaptureSessionHandler
	Images   *handlers.ImageHandler
	System   *handlers.SystemHandler
}

// NewRouter builds the API. CORS wraps the whole router so preflight
// requests are answered before route matching.
func NewRouter(cfg config.ServerConfig, h Handlers, limiter *middleware.RateLimiter, m *metrics.Metrics, logger *zap.Logger) http.Handler {
	r := mux.NewRouter()

	r.Use(middleware.RealIP(cfg.TrustedProxies))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.NewRequestLogger(logger, m).Handler)
	r.Use(middleware.GzipCompression)
	if limiter != nil {
		r.Use(limiter.Middleware)
	}

	r.HandleFunc("/health", h.System.HealthCheck).Methods(http.MethodGet)
	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	// Capture sessions
	api.HandleFunc("/session/start", h.Sessions.StartSession).Methods(http.MethodPost)
	api.HandleFunc("/session/{id}/mode", h.Sessions.SetMode).Methods(http.MethodPost)
	api.Handle("/session/{id}/capture/{type:person|vehicle}",
		middleware.MaxBodySize(cfg.MaxUploadSize)(http.HandlerFunc(h.Sessions.Capture))).Methods(http.MethodPost)
	api.HandleFunc("/session/{id}/complete", h.Sessions.Complete).Methods(http.MethodPost)
	api.HandleFunc("/session/{id}/status", h.Sessions.Status).Methods(http.MethodGet)

	// Images
	api.HandleFunc("/image/{imageId}", h.Images.GetImage).Methods(http.MethodGet)
	api.HandleFunc("/image/{imageId}", h.Images.DeleteImage).Methods(http.MethodDelete)
	api.HandleFunc("/resident/{residentId}/images", h.Images.ResidentImages).Methods(http.MethodGet)
	api.HandleFunc("/storage/stats", h.Images.StorageStats).Methods(http.MethodGet)

	// Operations
	api.HandleFunc("/cleanup", h.System.Cleanup).Methods(http.MethodPost)
	api.HandleFunc("/status", h.System.Status).Methods(http.MethodGet)
	api.HandleFunc("/directory/demo-codes", h.System.DemoCodes).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept", "Authorization"},
		ExposedHeaders: []string{"Content-Disposition"},
	})
	return c.Handler(r)
}
