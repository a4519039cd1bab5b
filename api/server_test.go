package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"billtrack/database"
	models "billtrack/database/models_pkg"
	"billtrack/recurring"
	"billtrack/service"
)

type fakeRunner struct {
	err        error
	lastUser   string
	lastDryRun bool
	lastLimit  int
}

func (f *fakeRunner) Regenerate(_ context.Context, userID string, dryRun bool) (*service.RegenerateReport, error) {
	f.lastUser, f.lastDryRun = userID, dryRun
	if f.err != nil {
		return nil, f.err
	}
	return &service.RegenerateReport{
		UserID: userID,
		Status: service.RunStatusOK,
		DryRun: dryRun,
		Bills: []recurring.DetectedBill{{
			MerchantName:   "Netflix",
			ExpectedAmount: decimal.RequireFromString("15.99"),
			Frequency:      recurring.FrequencyMonthly,
		}},
	}, nil
}

func (f *fakeRunner) Scan(_ context.Context, userID string) (*service.ScanReport, error) {
	f.lastUser = userID
	if f.err != nil {
		return nil, f.err
	}
	return &service.ScanReport{UserID: userID, Status: service.RunStatusNoData}, nil
}

func (f *fakeRunner) ScanAll(context.Context) (*service.ScanAllReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.ScanAllReport{Users: 3, Scanned: 3}, nil
}

func (f *fakeRunner) ListBills(_ context.Context, userID string) ([]recurring.DetectedBill, error) {
	f.lastUser = userID
	return []recurring.DetectedBill{{MerchantName: "Netflix"}, {MerchantName: "Rent"}}, f.err
}

func (f *fakeRunner) ListEvents(_ context.Context, userID string, limit int) ([]models.BillEvent, error) {
	f.lastUser, f.lastLimit = userID, limit
	return []models.BillEvent{{Kind: "paid"}}, f.err
}

func do(t *testing.T, runner BillRunner, method, target string) (*http.Response, map[string]interface{}) {
	t.Helper()
	srv := NewServer(runner, zerolog.New(io.Discard))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))

	res := rec.Result()
	var body map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return res, body
}

func TestRegenerateEndpoint(t *testing.T) {
	runner := &fakeRunner{}
	res, body := do(t, runner, http.MethodPost, "/api/users/user-1/regenerate?dry_run=true")

	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	if runner.lastUser != "user-1" || !runner.lastDryRun {
		t.Errorf("runner called with %q dry=%v", runner.lastUser, runner.lastDryRun)
	}
	if body["dry_run"] != true || body["status"] != "ok" {
		t.Errorf("unexpected body %v", body)
	}
	bills := body["bills"].([]interface{})
	if bill := bills[0].(map[string]interface{}); bill["expected_amount"] != "15.99" {
		t.Errorf("expected decimal string amount, got %v", bill["expected_amount"])
	}
}

func TestRegenerateRejectsBadDryRun(t *testing.T) {
	runner := &fakeRunner{}
	res, body := do(t, runner, http.MethodPost, "/api/users/user-1/regenerate?dry_run=maybe")
	if res.StatusCode != http.StatusBadRequest || body["error"] == nil {
		t.Errorf("expected 400 with error, got %d %v", res.StatusCode, body)
	}
	if runner.lastUser != "" {
		t.Error("runner must not be called")
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"run in progress", service.ErrRunInProgress, http.StatusConflict},
		{"not found", database.WrapDBError("ApplyScan", database.NewNotFoundErrorWithID("bill", 9)), http.StatusNotFound},
		{"storage", database.WrapDBError("ReplaceAutoDetected", errors.New("deadlock")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, body := do(t, &fakeRunner{err: tt.err}, http.MethodPost, "/api/users/user-1/scan")
			if res.StatusCode != tt.want {
				t.Errorf("expected %d, got %d", tt.want, res.StatusCode)
			}
			if msg, _ := body["error"].(string); msg == "" || msg == tt.err.Error() {
				t.Errorf("expected a generic error message, got %q", msg)
			}
		})
	}
}

func TestReadEndpoints(t *testing.T) {
	runner := &fakeRunner{}

	res, body := do(t, runner, http.MethodGet, "/api/users/user-2/bills")
	if res.StatusCode != http.StatusOK || body["count"] != float64(2) || runner.lastUser != "user-2" {
		t.Errorf("bills: %d %v", res.StatusCode, body)
	}

	tests := []struct {
		query string
		want  int
	}{
		{"", defaultEventLimit},
		{"?limit=10", 10},
		{"?limit=0", defaultEventLimit},
		{"?limit=100000", defaultEventLimit},
		{"?limit=abc", defaultEventLimit},
	}
	for _, tt := range tests {
		res, _ := do(t, runner, http.MethodGet, "/api/users/user-2/events"+tt.query)
		if res.StatusCode != http.StatusOK || runner.lastLimit != tt.want {
			t.Errorf("events%s: status %d limit %d, want %d", tt.query, res.StatusCode, runner.lastLimit, tt.want)
		}
	}
}

func TestScanAllAndHealth(t *testing.T) {
	res, body := do(t, &fakeRunner{}, http.MethodPost, "/api/scan")
	if res.StatusCode != http.StatusOK || body["scanned"] != float64(3) {
		t.Errorf("scan all: %d %v", res.StatusCode, body)
	}

	res, body = do(t, &fakeRunner{}, http.MethodGet, "/health")
	if res.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health: %d %v", res.StatusCode, body)
	}
}

func TestHealthReportsFailingDependency(t *testing.T) {
	srv := NewServer(&fakeRunner{}, zerolog.New(io.Discard))
	srv.SetHealthCheck("feed", func(context.Context) error { return nil })
	srv.SetHealthCheck("redis", func(context.Context) error { return errors.New("connection refused") })

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusServiceUnavailable || body.Status != "degraded" {
		t.Errorf("expected degraded 503, got %d %q", rec.Code, body.Status)
	}
	if body.Checks["feed"] != "ok" || body.Checks["redis"] != "connection refused" {
		t.Errorf("unexpected checks %v", body.Checks)
	}
}
