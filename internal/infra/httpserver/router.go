package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	appcredits "github.com/bryanwahyu/iaccessible/internal/application/credits"
	appscans "github.com/bryanwahyu/iaccessible/internal/application/scans"
	"github.com/bryanwahyu/iaccessible/internal/domain/credits"
	"github.com/bryanwahyu/iaccessible/internal/domain/identity"
	"github.com/bryanwahyu/iaccessible/internal/logging"
	"github.com/bryanwahyu/iaccessible/internal/middleware"
)

// Deps wires the router to its services.
type Deps struct {
	Scans    *appscans.Service
	Credits  *appcredits.Service
	Verifier identity.Verifier
	Logger   *zap.Logger

	AllowedOrigins    []string
	RateLimitCapacity int
	RateLimitRefill   int
	HealthCheckers    map[string]middleware.HealthChecker
	// Readiness is optional; nil means always ready.
	Readiness *middleware.Readiness
}

type Router struct {
	scansSvc   *appscans.Service
	creditsSvc *appcredits.Service
	log        *zap.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{scansSvc: d.Scans, creditsSvc: d.Credits, log: log.With(logging.Component("httpserver"))}

	mux := chi.NewRouter()
	mux.Use(middleware.LoggingMiddleware(log))
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	mux.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Message: "Method Not Allowed"})
	})
	mux.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Message: "Not Found"})
	})

	mux.Get("/health", middleware.HealthHandler(d.HealthCheckers))
	mux.Get("/healthz", middleware.LivenessHandler)
	mux.Get("/readyz", middleware.ReadinessHandler(d.Readiness))
	mux.Get("/metrics", middleware.MetricsHandler)

	capacity, refill := d.RateLimitCapacity, d.RateLimitRefill
	if capacity <= 0 {
		capacity = 20
	}
	if refill <= 0 {
		refill = 1
	}

	// Group shares the route tree, so a wrong verb gets 405 before auth runs.
	mux.Group(func(api chi.Router) {
		api.Use(middleware.BearerAuth(d.Verifier, log))
		api.Use(middleware.RateLimitMiddleware(capacity, refill))

		api.Post("/api/scan/webpage", r.wrap(r.handleScanWebpage))

		api.Get("/api/credits/balance", r.wrap(r.handleBalance))
		api.Get("/api/credits/transactions", r.wrap(r.handleTransactions))

		api.Get("/api/scans", r.wrap(r.handleListScans))
		api.Get("/api/scans/{id}", r.wrap(r.handleGetScan))
		api.Get("/api/scans/{id}/items", r.wrap(r.handleScanItems))
		api.Get("/api/scans/{id}/errors", r.wrap(r.handleScanErrors))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

type successBody struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
}

type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// errBadRequest marks a malformed request body or parameter.
type errBadRequest struct{ msg string }

func (e *errBadRequest) Error() string { return e.msg }

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			status, body := r.errorResponse(err)
			if status >= http.StatusInternalServerError {
				r.log.Error("request failed", logging.Path(req.URL.Path), zap.Error(err))
			}
			writeJSON(w, status, body)
		}
	}
}

func (r *Router) errorResponse(err error) (int, errorBody) {
	var (
		verr *appscans.ValidationError
		aerr *appscans.AnalysisError
		berr *errBadRequest
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorBody{Message: "Missing " + verr.Field + " in request body"}
	case errors.As(err, &berr):
		return http.StatusBadRequest, errorBody{Message: berr.msg}
	case errors.As(err, &aerr):
		return http.StatusInternalServerError, errorBody{
			Message: "Accessibility scan failed: " + aerr.Err.Error(),
			Error:   aerr.Err.Error(),
		}
	case errors.Is(err, appscans.ErrNoReport):
		return http.StatusInternalServerError, errorBody{Message: "Scan completed but no report was generated."}
	case errors.Is(err, appscans.ErrReportUnavailable):
		return http.StatusInternalServerError, errorBody{Message: "Accessibility scan was requested but report is unavailable."}
	case errors.Is(err, appscans.ErrScanNotFound):
		return http.StatusNotFound, errorBody{Message: "Scan not found"}
	case errors.Is(err, credits.ErrProfileNotFound):
		return http.StatusNotFound, errorBody{Message: "User profile not found"}
	default:
		return http.StatusInternalServerError, errorBody{Message: "Internal server error"}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, message string, data any) error {
	writeJSON(w, http.StatusOK, successBody{Success: true, Message: message, Data: data})
	return nil
}
