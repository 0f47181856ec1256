package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcredits "github.com/bryanwahyu/iaccessible/internal/application/credits"
	appscans "github.com/bryanwahyu/iaccessible/internal/application/scans"
	domain "github.com/bryanwahyu/iaccessible/internal/domain/scans"
	"github.com/bryanwahyu/iaccessible/internal/infra/db/sqlite"
	"github.com/bryanwahyu/iaccessible/internal/infra/db/sqlstore"
	"github.com/bryanwahyu/iaccessible/internal/infra/identity"
)

type stubEngine struct {
	report *domain.Report
	err    error
	closes *int
	target *string
}

func (e stubEngine) GetCompliance(_ context.Context, url, _ string) (*domain.Report, error) {
	if e.target != nil {
		*e.target = url
	}
	return e.report, e.err
}

func (e stubEngine) Close() error {
	*e.closes++
	return nil
}

type testServer struct {
	handler http.Handler
	ledger  *sqlstore.Ledger
	engine  *stubEngine
	closes  int
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Connect(ctx, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlstore.Migrate(ctx, db, sqlstore.SQLite))

	ts := &testServer{ledger: sqlstore.NewLedger(db, sqlstore.SQLite)}
	ts.engine = &stubEngine{report: &domain.Report{
		ToolID: "iaccessible-checker-v1.0",
		Summary: domain.ReportSummary{
			Counts:    domain.SummaryCounts{Violation: 1},
			Policies:  []string{"WCAG_2_1"},
			StartScan: time.Now().UnixMilli(),
			URL:       "https://example.com/",
		},
		Results: []domain.Finding{{
			RuleID: "page_title_exists", Level: domain.LevelViolation,
			Value: []string{"VALUE_PV_GROUP_REQUIRED", "FAIL"}, Message: "Page must have a title",
			Snippet: "<html>", Category: "Operable", Path: domain.FindingPath{DOM: "/html[1]"},
		}},
		NumExecuted: 3,
	}, closes: &ts.closes}

	scansSvc := &appscans.Service{
		Repo:    sqlstore.NewScanRepository(db, sqlstore.SQLite),
		Ledger:  ts.ledger,
		Engines: func() domain.Engine { return *ts.engine },
		Errors:  sqlstore.NewScanErrorRepository(db, sqlstore.SQLite),
		Cost:    10,
	}
	ts.handler = NewRouter(Deps{
		Scans:             scansSvc,
		Credits:           appcredits.NewService(ts.ledger, nil),
		Verifier:          identity.NewStaticVerifier(map[string]string{"tok-1": "user-1", "tok-2": "user-2"}),
		RateLimitCapacity: 1000,
		RateLimitRefill:   100,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.1:1234"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

const scanBody = `{"url":"https://example.com","servicesToScan":{"accessibility":true,"seo":false}}`

func TestScanWebpage_Success(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.ledger.EnsureUser(context.Background(), "user-1", "", 25))

	w, body := ts.do(t, http.MethodPost, "/api/scan/webpage", "tok-1", scanBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Accessibility scan completed for URL: https://example.com", body["message"])

	data := body["data"].(map[string]any)
	assert.Equal(t, "success", data["creditDeductionStatus"])
	assert.Equal(t, "https://example.com", data["url"])
	assert.NotNil(t, data["report"])
	assert.Equal(t, map[string]any{"accessibility": true, "readability": false, "seo": false, "pageHealth": false}, data["services"])
	assert.Equal(t, 1, ts.closes)

	scanID, _ := data["scanId"].(string)
	require.NotEmpty(t, scanID)

	u, err := ts.ledger.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(15), u.CreditBalance)

	w, body = ts.do(t, http.MethodGet, "/api/scans/"+scanID+"/items", "tok-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	items := body["data"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "page_title_exists", items[0].(map[string]any)["ruleId"])

	w, body = ts.do(t, http.MethodGet, "/api/credits/balance", "tok-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(15), body["data"].(map[string]any)["creditBalance"])

	w, body = ts.do(t, http.MethodGet, "/api/credits/transactions", "tok-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	txs := body["data"].([]any)
	require.Len(t, txs, 1)
	assert.Equal(t, scanID, txs[0].(map[string]any)["relatedScanId"])
}

func TestScanWebpage_EchoesURLAsSent(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.ledger.EnsureUser(context.Background(), "user-1", "", 25))
	var target string
	ts.engine.target = &target

	w, body := ts.do(t, http.MethodPost, "/api/scan/webpage", "tok-1",
		`{"url":"  https://example.com\u0007 ","servicesToScan":{"accessibility":true}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	sent := "  https://example.com\a "
	data := body["data"].(map[string]any)
	assert.Equal(t, sent, data["url"])
	assert.Equal(t, "Accessibility scan completed for URL: "+sent, body["message"])
	assert.Equal(t, "https://example.com", target)
}

func TestScanWebpage_InsufficientFundsStillReturnsReport(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.ledger.EnsureUser(context.Background(), "user-1", "", 5))

	w, body := ts.do(t, http.MethodPost, "/api/scan/webpage", "tok-1", scanBody)
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "failed_insufficient_funds", data["creditDeductionStatus"])
	assert.NotNil(t, data["report"])

	u, err := ts.ledger.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), u.CreditBalance)
}

func TestScanWebpage_UnknownProfile(t *testing.T) {
	ts := newTestServer(t)

	w, body := ts.do(t, http.MethodPost, "/api/scan/webpage", "tok-2", scanBody)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "error_user_profile_not_found", body["data"].(map[string]any)["creditDeductionStatus"])
}

func TestScanWebpage_Errors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		token      string
		body       string
		engineErr  error
		wantStatus int
		wantMsg    string
	}{
		{name: "wrong method", method: http.MethodGet, wantStatus: http.StatusMethodNotAllowed, wantMsg: "Method Not Allowed"},
		{name: "no token", method: http.MethodPost, body: scanBody, wantStatus: http.StatusUnauthorized, wantMsg: "Unauthorized: No token provided"},
		{name: "bad token", method: http.MethodPost, token: "forged", body: scanBody, wantStatus: http.StatusUnauthorized, wantMsg: "Unauthorized: Invalid token"},
		{name: "missing url", method: http.MethodPost, token: "tok-1", body: `{"servicesToScan":{"accessibility":true}}`, wantStatus: http.StatusBadRequest, wantMsg: "Missing URL in request body"},
		{name: "missing services", method: http.MethodPost, token: "tok-1", body: `{"url":"https://example.com"}`, wantStatus: http.StatusBadRequest, wantMsg: "Missing servicesToScan in request body"},
		{name: "empty body", method: http.MethodPost, token: "tok-1", wantStatus: http.StatusBadRequest, wantMsg: "Missing URL in request body"},
		{name: "malformed json", method: http.MethodPost, token: "tok-1", body: `{"url":`, wantStatus: http.StatusBadRequest, wantMsg: "Invalid JSON request body"},
		{name: "engine failure", method: http.MethodPost, token: "tok-1", body: scanBody, engineErr: errors.New("net::ERR_NAME_NOT_RESOLVED"),
			wantStatus: http.StatusInternalServerError, wantMsg: "Accessibility scan failed: net::ERR_NAME_NOT_RESOLVED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.engine.err = tt.engineErr

			w, body := ts.do(t, tt.method, "/api/scan/webpage", tt.token, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantMsg, body["message"])
			if tt.engineErr != nil {
				assert.Equal(t, tt.engineErr.Error(), body["error"])
				assert.Equal(t, 1, ts.closes)
			}
		})
	}
}

func TestScanWebpage_EmptyReport(t *testing.T) {
	ts := newTestServer(t)
	ts.engine.report = &domain.Report{}

	w, body := ts.do(t, http.MethodPost, "/api/scan/webpage", "tok-1", scanBody)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Scan completed but no report was generated.", body["message"])
	assert.Equal(t, 1, ts.closes)
}

func TestScanReads_ScopedToCaller(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.ledger.EnsureUser(context.Background(), "user-1", "", 100))

	_, body := ts.do(t, http.MethodPost, "/api/scan/webpage", "tok-1", scanBody)
	scanID := body["data"].(map[string]any)["scanId"].(string)

	w, body := ts.do(t, http.MethodGet, "/api/scans/"+scanID, "tok-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, scanID, body["data"].(map[string]any)["id"])

	w, _ = ts.do(t, http.MethodGet, "/api/scans/"+scanID, "tok-2", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = ts.do(t, http.MethodGet, "/api/scans?limit=5", "tok-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"].([]any), 1)

	w, body = ts.do(t, http.MethodGet, "/api/scans?page=1&page_size=10", "tok-2", "")
	require.Equal(t, http.StatusOK, w.Code)
	page := body["data"].(map[string]any)
	assert.Equal(t, float64(0), page["totalItems"])

	w, body = ts.do(t, http.MethodGet, "/api/scans/"+scanID+"/errors", "tok-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["data"])

	w, body = ts.do(t, http.MethodGet, "/api/scans/not-a-uuid", "tok-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid scan ID format", body["message"])
}

func TestBalance_UnknownProfile(t *testing.T) {
	ts := newTestServer(t)
	w, body := ts.do(t, http.MethodGet, "/api/credits/balance", "tok-2", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User profile not found", body["message"])
}

func TestPublicRoutes(t *testing.T) {
	ts := newTestServer(t)

	w, _ := ts.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, body := ts.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body, "requests_total")

	w, body = ts.do(t, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not Found", body["message"])
}
