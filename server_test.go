package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bsm/redislock"
	"github.com/erpweb/erp_backend/models/reports"
	"github.com/erpweb/erp_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubQuerier struct {
	mu      sync.Mutex
	records []*reports.OrderLineRecord
	err     error
	calls   int
}

func (q *stubQuerier) Count(ctx context.Context, stmt reports.Statement) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	return int64(len(q.records)), q.err
}

func (q *stubQuerier) Rows(ctx context.Context, stmt reports.Statement) ([]*reports.OrderLineRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.err != nil {
		return nil, q.err
	}
	return q.records, nil
}

func stubRecord(orderNo, date string) *reports.OrderLineRecord {
	return &reports.OrderLineRecord{
		OrderNo:            orderNo,
		OrderSeq:           "0001",
		MtlItemNo:          "A100",
		MtlItemName:        "Bolt",
		MtlItemSpec:        "M8",
		ExpectDeliveryDate: date,
		OrderQty:           decimal.RequireFromString("10.30"),
		UnitPrice:          decimal.RequireFromString("2"),
		Amount:             decimal.RequireFromString("20.60"),
		DeliveryQty:        decimal.RequireFromString("0.10"),
	}
}

func noLock(ctx context.Context, key string) (func(), error) {
	return func() {}, nil
}

type testServer struct {
	router  *gin.Engine
	querier *stubQuerier
	token   string
	ready   bool
}

func newTestServer(t *testing.T, opts reports.Options, lock exportLock) *testServer {
	t.Helper()
	t.Setenv("API_SECRET", "test-secret")
	t.Setenv("GO_ENV", "")

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	opts.Logger = logger

	s := &testServer{
		querier: &stubQuerier{records: []*reports.OrderLineRecord{
			stubRecord("2210-001", "20240105"),
			stubRecord("2210-002", "20240106"),
		}},
		ready: true,
	}
	token, err := utils.JwtGenerate(42, "tester")
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}
	s.token = token
	s.router = newRouter(routerDeps{
		ready:      func() bool { return s.ready },
		report:     reports.NewUndeliveredOrderReport(s.querier, opts),
		exportLock: lock,
		logger:     logger,
	})
	return s
}

func (s *testServer) get(path string, authorized bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorized {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func messageOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not a JSON message: %s", w.Body.String())
	}
	return body.Message
}

func TestRouter_HealthAndReadiness(t *testing.T) {
	s := newTestServer(t, reports.Options{}, noLock)
	s.ready = false

	if w := s.get("/healthz", false); w.Code != http.StatusNoContent {
		t.Fatalf("healthz: expected 204, got %d", w.Code)
	}
	if w := s.get("/api/orders/test", true); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("not ready: expected 503, got %d", w.Code)
	}

	s.ready = true
	w := s.get("/api/orders/test", true)
	if w.Code != http.StatusOK || messageOf(t, w) != "Orders route is working" {
		t.Fatalf("orders test route: %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("x-correlation-id") == "" {
		t.Fatalf("expected a correlation id header")
	}
}

func TestRouter_NotFound(t *testing.T) {
	s := newTestServer(t, reports.Options{}, noLock)
	w := s.get("/api/nothing-here", false)
	if w.Code != http.StatusNotFound || messageOf(t, w) != "Route not found" {
		t.Fatalf("expected 404 Route not found, got %d %s", w.Code, w.Body.String())
	}
}

func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, reports.Options{}, noLock)
	for _, path := range []string{
		"/api/orders/unDeliveryOrders",
		"/api/orders/unDeliveryOrders/v",
		"/api/orders/unDeliveryOrders/export",
		"/api/users",
		"/api/products/1",
	} {
		if w := s.get(path, false); w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, w.Code)
		}
	}
	if s.querier.calls != 0 {
		t.Fatalf("unauthorized requests reached the database")
	}
}

func TestUndeliveredOrders_Page(t *testing.T) {
	s := newTestServer(t, reports.Options{}, noLock)
	w := s.get("/api/orders/unDeliveryOrders?mtlItemNo=A100&page=1&pageSize=25", true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}

	var page struct {
		Total    int64                        `json:"total"`
		Page     int                          `json:"page"`
		PageSize int                          `json:"pageSize"`
		Data     []map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 2 || page.Page != 1 || page.PageSize != 10 || len(page.Data) != 2 {
		t.Fatalf("unexpected page %+v", page)
	}
	first := page.Data[0]
	if string(first["ExpectDeliveryDate"]) != `"2024-01-05"` || string(first["unDeliveryQty"]) != "10.2" {
		t.Fatalf("unexpected line %s", w.Body.String())
	}
}

func TestUndeliveredOrders_InvalidFilterRunsNoQuery(t *testing.T) {
	s := newTestServer(t, reports.Options{}, noLock)
	cases := []struct {
		path    string
		message string
		field   string
	}{
		{"/api/orders/unDeliveryOrders?startDate=not-a-date", msgInvalidDate, "startDate"},
		{"/api/orders/unDeliveryOrders/v?endDate=2024-13-01", msgInvalidDate, "endDate"},
		{"/api/orders/unDeliveryOrders?startDate=2024-02-01&endDate=2024-01-01", msgDateOrder, "startDate"},
	}
	for _, tc := range cases {
		w := s.get(tc.path, true)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d %s", tc.path, w.Code, w.Body.String())
		}
		var body struct {
			Message string            `json:"message"`
			Errors  map[string]string `json:"errors"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: response is not JSON: %s", tc.path, w.Body.String())
		}
		if body.Message != tc.message || body.Errors[tc.field] == "" {
			t.Fatalf("%s: expected %s with %s detail, got %s", tc.path, tc.message, tc.field, w.Body.String())
		}
	}
	if s.querier.calls != 0 {
		t.Fatalf("expected no query for invalid filters, got %d calls", s.querier.calls)
	}
}

func TestUndeliveredOrders_QueryFailure(t *testing.T) {
	s := newTestServer(t, reports.Options{}, noLock)
	s.querier.err = errors.New("login failed for user 'erp'")

	w := s.get("/api/orders/unDeliveryOrders", true)
	if w.Code != http.StatusInternalServerError || messageOf(t, w) != msgQueryFailed {
		t.Fatalf("expected 500 %s, got %d %s", msgQueryFailed, w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "login failed") {
		t.Fatalf("cause leaked to the client: %s", w.Body.String())
	}

	w = s.get("/api/orders/unDeliveryOrders/v", true)
	if w.Code != http.StatusInternalServerError || messageOf(t, w) != msgExportFailed {
		t.Fatalf("expected 500 %s, got %d %s", msgExportFailed, w.Code, w.Body.String())
	}
}

func TestExportUndeliveredOrders(t *testing.T) {
	s := newTestServer(t, reports.Options{}, noLock)
	for _, path := range []string{"/api/orders/unDeliveryOrders/v?page=2", "/api/orders/unDeliveryOrders/export"} {
		w := s.get(path, true)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d %s", path, w.Code, w.Body.String())
		}
		if ct := w.Header().Get("Content-Type"); ct != reports.XlsxContentType {
			t.Fatalf("%s: unexpected content type %q", path, ct)
		}
		if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="UndeliveredOrders.xlsx"` {
			t.Fatalf("%s: unexpected disposition %q", path, cd)
		}

		f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
		if err != nil {
			t.Fatalf("%s: open workbook: %v", path, err)
		}
		rows, err := f.GetRows(reports.UndeliveredOrderSheet)
		f.Close()
		if err != nil {
			t.Fatalf("%s: GetRows: %v", path, err)
		}
		// page=2 is ignored: the export carries every matching row
		if len(rows) != 3 {
			t.Fatalf("%s: expected header plus 2 rows, got %d", path, len(rows))
		}
	}
}

func TestExportUndeliveredOrders_TooLarge(t *testing.T) {
	s := newTestServer(t, reports.Options{MaxExportRows: 1}, noLock)
	w := s.get("/api/orders/unDeliveryOrders/v", true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(messageOf(t, w), "1") {
		t.Fatalf("expected the cap in the message, got %s", w.Body.String())
	}
}

func TestExportUndeliveredOrders_Lock(t *testing.T) {
	var keys []string
	released := 0
	lock := func(ctx context.Context, key string) (func(), error) {
		keys = append(keys, key)
		if len(keys) > 1 {
			return nil, redislock.ErrNotObtained
		}
		return func() { released++ }, nil
	}
	s := newTestServer(t, reports.Options{}, lock)

	if w := s.get("/api/orders/unDeliveryOrders/v", true); w.Code != http.StatusOK {
		t.Fatalf("first export: expected 200, got %d", w.Code)
	}
	if released != 1 || keys[0] != "export:undeliveredOrders:42" {
		t.Fatalf("lock not scoped to the user or not released: keys=%v released=%d", keys, released)
	}

	w := s.get("/api/orders/unDeliveryOrders/v", true)
	if w.Code != http.StatusTooManyRequests || messageOf(t, w) != msgExportBusy {
		t.Fatalf("concurrent export: expected 429, got %d %s", w.Code, w.Body.String())
	}

	broken := func(ctx context.Context, key string) (func(), error) {
		return nil, errors.New("redis: connection refused")
	}
	s = newTestServer(t, reports.Options{}, broken)
	if w := s.get("/api/orders/unDeliveryOrders/v", true); w.Code != http.StatusOK {
		t.Fatalf("lock backend failure must not block the export, got %d", w.Code)
	}
}

func TestParamIdAndSplitAndTrim(t *testing.T) {
	s := newTestServer(t, reports.Options{}, noLock)
	for _, path := range []string{"/api/users/abc", "/api/products/0", "/api/products/-3"} {
		w := s.get(path, true)
		if w.Code != http.StatusBadRequest || messageOf(t, w) != msgInvalidId {
			t.Fatalf("%s: expected 400 %s, got %d %s", path, msgInvalidId, w.Code, w.Body.String())
		}
	}

	got := splitAndTrim(" https://a.example , ,https://b.example ")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", got)
	}
	if splitAndTrim("  ") != nil {
		t.Fatalf("blank list must be nil")
	}
}
