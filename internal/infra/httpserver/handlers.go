package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	appscans "github.com/bryanwahyu/iaccessible/internal/application/scans"
	domain "github.com/bryanwahyu/iaccessible/internal/domain/scans"
	"github.com/bryanwahyu/iaccessible/internal/middleware"
)

const maxScanBody = 1 << 20

// POST /api/scan/webpage
// Body: {"url": "...", "servicesToScan": {"accessibility": true, ...}}
func (r *Router) handleScanWebpage(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		URL            string           `json:"url"`
		ServicesToScan *domain.Services `json:"servicesToScan"`
	}
	if err := json.NewDecoder(io.LimitReader(req.Body, maxScanBody)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return &errBadRequest{msg: "Invalid JSON request body"}
	}

	start := time.Now()
	middleware.ScanStarted()
	res, err := r.scansSvc.ScanWebpage(req.Context(), appscans.ScanWebpageCommand{
		UserID:   middleware.GetUserIDFromContext(req.Context()),
		URL:      body.URL,
		Target:   middleware.SanitizeString(body.URL),
		Services: body.ServicesToScan,
	})
	middleware.ScanFinished(time.Since(start), scanFailure(err))
	if err != nil {
		return err
	}
	if res.Report != nil {
		middleware.RecordSettlement(string(res.CreditDeductionStatus))
	}
	return ok(w, res.Message, res)
}

// scanFailure classifies a workflow error for the scan_failures counter.
func scanFailure(err error) string {
	var (
		verr *appscans.ValidationError
		aerr *appscans.AnalysisError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return middleware.ScanFailureValidation
	case errors.As(err, &aerr):
		return middleware.ScanFailureAnalysis
	case errors.Is(err, appscans.ErrNoReport):
		return middleware.ScanFailureNoReport
	case errors.Is(err, appscans.ErrReportUnavailable):
		return middleware.ScanFailureUnavailable
	default:
		return middleware.ScanFailureInternal
	}
}

// GET /api/credits/balance
func (r *Router) handleBalance(w http.ResponseWriter, req *http.Request) error {
	uid := middleware.GetUserIDFromContext(req.Context())
	u, err := r.creditsSvc.Balance(req.Context(), uid)
	if err != nil {
		return err
	}
	return ok(w, "", map[string]any{
		"userId":        u.ID,
		"creditBalance": u.CreditBalance,
	})
}

// GET /api/credits/transactions?limit=20
func (r *Router) handleTransactions(w http.ResponseWriter, req *http.Request) error {
	uid := middleware.GetUserIDFromContext(req.Context())
	limit := middleware.ValidateLimit(middleware.QueryInt(req.URL.Query().Get("limit"), 0))

	list, err := r.creditsSvc.History(req.Context(), uid, limit)
	if err != nil {
		return err
	}
	return ok(w, "", list)
}

// GET /api/scans?limit=20, or ?page=&page_size= for a paginated listing
func (r *Router) handleListScans(w http.ResponseWriter, req *http.Request) error {
	uid := middleware.GetUserIDFromContext(req.Context())
	q := req.URL.Query()

	if q.Has("page") {
		page := middleware.QueryInt(q.Get("page"), 1)
		size := middleware.ValidateLimit(middleware.QueryInt(q.Get("page_size"), 0))
		res, err := r.scansSvc.Page(req.Context(), uid, page, size)
		if err != nil {
			return err
		}
		return ok(w, "", res)
	}

	limit := middleware.ValidateLimit(middleware.QueryInt(q.Get("limit"), 0))
	list, err := r.scansSvc.Latest(req.Context(), uid, limit)
	if err != nil {
		return err
	}
	if list == nil {
		list = []*domain.ScanRecord{}
	}
	return ok(w, "", list)
}

// GET /api/scans/{id}
func (r *Router) handleGetScan(w http.ResponseWriter, req *http.Request) error {
	id, err := scanIDParam(req)
	if err != nil {
		return err
	}
	rec, err := r.scansSvc.Get(req.Context(), middleware.GetUserIDFromContext(req.Context()), id)
	if err != nil {
		return err
	}
	return ok(w, "", rec)
}

// GET /api/scans/{id}/items
func (r *Router) handleScanItems(w http.ResponseWriter, req *http.Request) error {
	id, err := scanIDParam(req)
	if err != nil {
		return err
	}
	items, err := r.scansSvc.Items(req.Context(), middleware.GetUserIDFromContext(req.Context()), id)
	if err != nil {
		return err
	}
	return ok(w, "", items)
}

// GET /api/scans/{id}/errors?limit=20
func (r *Router) handleScanErrors(w http.ResponseWriter, req *http.Request) error {
	id, err := scanIDParam(req)
	if err != nil {
		return err
	}
	limit := middleware.ValidateLimit(middleware.QueryInt(req.URL.Query().Get("limit"), 0))
	list, err := r.scansSvc.ScanErrors(req.Context(), middleware.GetUserIDFromContext(req.Context()), id, limit)
	if err != nil {
		return err
	}
	return ok(w, "", list)
}

func scanIDParam(req *http.Request) (domain.ScanID, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateScanID(id); err != nil {
		return "", &errBadRequest{msg: err.Error()}
	}
	return domain.ScanID(id), nil
}
