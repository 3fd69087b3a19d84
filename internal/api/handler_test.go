package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/drive-consolidator/internal/consolidator"
	"github.com/eugenenazirov/drive-consolidator/internal/metrics"
	"github.com/eugenenazirov/drive-consolidator/internal/storage"
)

type controllableClock struct {
	mu  sync.RWMutex
	now time.Time
}

func newControllableClock(initial time.Time) *controllableClock {
	return &controllableClock{now: initial}
}

func (c *controllableClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *controllableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setupTestRouter(t *testing.T, opts ...HandlerOption) (http.Handler, *controllableClock) {
	t.Helper()

	store := storage.NewMemoryStorage(storage.DefaultMaxDrives)
	clock := newControllableClock(time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC))

	logger := zaptest.NewLogger(t)
	opts = append([]HandlerOption{WithClock(clock.Now), WithLogger(logger)}, opts...)
	handler := NewHandler(consolidator.New(), store, opts...)
	router := NewRouter(handler, logger, WithLogging(false))

	return router, clock
}

func doJSON(t *testing.T, router http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

type consolidateBody struct {
	Fleet         string              `json:"fleet"`
	MinimumDrives int                 `json:"minimumDrives"`
	InitialDrives int                 `json:"initialDrives"`
	FinalUsed     []int               `json:"finalUsed"`
	FinalTotal    []int               `json:"finalTotal"`
	Moves         []consolidator.Move `json:"moves"`
	Warnings      []string            `json:"warnings"`
}

type errorBody struct {
	Error      string                           `json:"error"`
	Details    string                           `json:"details"`
	Suggestion string                           `json:"suggestion"`
	Violations []consolidator.CapacityViolation `json:"violations"`
}

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	if got := requestIDFromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	if got := requestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %s", got)
	}
	resp := httptest.NewRecorder()
	writeInternalError(resp, assertError("boom"))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 status, got %d", resp.Code)
	}
}

type assertError string

func (a assertError) Error() string { return string(a) }

func TestNewHandlerDefaultBounds(t *testing.T) {
	h := NewHandler(consolidator.New(), storage.NewMemoryStorage(storage.DefaultMaxDrives))
	if h.maxDrives != storage.DefaultMaxDrives {
		t.Fatalf("expected max drives %d, got %d", storage.DefaultMaxDrives, h.maxDrives)
	}
	if h.maxCapacity != consolidator.DefaultMaxCapacity {
		t.Fatalf("expected max capacity %d, got %d", consolidator.DefaultMaxCapacity, h.maxCapacity)
	}

	h = NewHandler(consolidator.New(), storage.NewMemoryStorage(0), WithBounds(3, 7))
	if h.maxDrives != 3 || h.maxCapacity != 7 {
		t.Fatalf("expected bounds 3/7, got %d/%d", h.maxDrives, h.maxCapacity)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router, clock := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %s", body.Status)
	}
	if !body.Timestamp.Equal(clock.Now()) {
		t.Fatalf("expected timestamp %s, got %s", clock.Now(), body.Timestamp)
	}
}

func TestConsolidateEndpointSuccess(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/consolidate", map[string]any{
		"used":  []int{300, 525, 110},
		"total": []int{350, 600, 115},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body consolidateBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.MinimumDrives != 2 {
		t.Fatalf("expected minimum drives 2, got %d", body.MinimumDrives)
	}
	if body.InitialDrives != 3 {
		t.Fatalf("expected initial drives 3, got %d", body.InitialDrives)
	}
	if want := []int{335, 600, 0}; !slices.Equal(body.FinalUsed, want) {
		t.Fatalf("expected final used %v, got %v", want, body.FinalUsed)
	}
	if want := []int{350, 600, 115}; !slices.Equal(body.FinalTotal, want) {
		t.Fatalf("expected final total %v, got %v", want, body.FinalTotal)
	}
	wantMoves := []consolidator.Move{
		{Source: 0, Amount: 75, Target: 1},
		{Source: 2, Amount: 110, Target: 0},
	}
	if !slices.Equal(body.Moves, wantMoves) {
		t.Fatalf("expected moves %v, got %v", wantMoves, body.Moves)
	}
	if len(body.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", body.Warnings)
	}
}

func TestConsolidateEndpointEmptyFleet(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/consolidate", map[string]any{
		"used":  []int{},
		"total": []int{},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body consolidateBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.MinimumDrives != 0 {
		t.Fatalf("expected minimum drives 0, got %d", body.MinimumDrives)
	}
	if len(body.Moves) != 0 {
		t.Fatalf("expected no moves, got %v", body.Moves)
	}
	if len(body.Warnings) == 0 {
		t.Fatalf("expected a warning for an empty fleet")
	}
}

func TestConsolidateEndpointReportsWarnings(t *testing.T) {
	router, _ := setupTestRouter(t, WithBounds(2, 100))

	rec := doJSON(t, router, http.MethodPost, "/api/consolidate", map[string]any{
		"used":  []int{1, 1, 1},
		"total": []int{500, 5, 5},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body consolidateBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Warnings) != 2 {
		t.Fatalf("expected drive count and capacity warnings, got %v", body.Warnings)
	}
	if body.MinimumDrives != 1 {
		t.Fatalf("expected minimum drives 1, got %d", body.MinimumDrives)
	}
}

func TestConsolidateEndpointValidation(t *testing.T) {
	tests := []struct {
		name           string
		payload        any
		wantSuggestion bool
		wantViolations []int
	}{
		{
			name:    "MalformedJSON",
			payload: "not-an-object",
		},
		{
			name:           "MissingTotal",
			payload:        map[string]any{"used": []int{1}},
			wantSuggestion: true,
		},
		{
			name:           "LengthMismatch",
			payload:        map[string]any{"used": []int{1, 2}, "total": []int{3}},
			wantSuggestion: true,
		},
		{
			name:           "CapacityExceeded",
			payload:        map[string]any{"used": []int{10, 1, 8, 3}, "total": []int{5, 1, 7, 2}},
			wantSuggestion: true,
			wantViolations: []int{0, 2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := setupTestRouter(t)

			rec := doJSON(t, router, http.MethodPost, "/api/consolidate", tt.payload)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}

			var body errorBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body.Error == "" {
				t.Fatalf("expected error message")
			}
			if tt.wantSuggestion && body.Suggestion == "" {
				t.Fatalf("expected suggestion to be populated")
			}

			got := make([]int, 0, len(body.Violations))
			for _, v := range body.Violations {
				got = append(got, v.Index)
			}
			if len(tt.wantViolations) > 0 && !slices.Equal(got, tt.wantViolations) {
				t.Fatalf("expected violations at %v, got %v", tt.wantViolations, got)
			}
		})
	}
}

func TestFleetLifecycle(t *testing.T) {
	router, clock := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/fleets", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var list struct {
		Fleets    []string  `json:"fleets"`
		UpdatedAt time.Time `json:"updatedAt"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(list.Fleets) != 0 {
		t.Fatalf("expected no fleets, got %v", list.Fleets)
	}

	clock.Advance(time.Hour)

	rec = doJSON(t, router, http.MethodPut, "/api/fleets/rack-a", map[string]any{
		"used":  []int{1, 200, 200, 199, 200, 200},
		"total": []int{1000, 200, 200, 200, 200, 200},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var saved struct {
		Name    string `json:"name"`
		Used    []int  `json:"used"`
		Total   []int  `json:"total"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&saved); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if saved.Name != "rack-a" || saved.Message == "" {
		t.Fatalf("unexpected save response: %+v", saved)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/fleets", nil)
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !slices.Equal(list.Fleets, []string{"rack-a"}) {
		t.Fatalf("expected [rack-a], got %v", list.Fleets)
	}
	if !list.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("expected updatedAt %s, got %s", clock.Now(), list.UpdatedAt)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/fleets/rack-a", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/fleets/rack-a/consolidate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result consolidateBody
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.Fleet != "rack-a" {
		t.Fatalf("expected fleet rack-a, got %s", result.Fleet)
	}
	if result.MinimumDrives != 1 {
		t.Fatalf("expected minimum drives 1, got %d", result.MinimumDrives)
	}
	if len(result.Moves) != 5 {
		t.Fatalf("expected 5 moves, got %v", result.Moves)
	}

	rec = doJSON(t, router, http.MethodDelete, "/api/fleets/rack-a", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/fleets/rack-a", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodDelete, "/api/fleets/rack-a", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 on second delete, got %d", rec.Code)
	}
}

func TestPutFleetValidatesInput(t *testing.T) {
	router, _ := setupTestRouter(t)

	tests := []struct {
		name    string
		payload any
	}{
		{name: "Malformed", payload: []string{"x"}},
		{name: "NoDrives", payload: map[string]any{"used": []int{}, "total": []int{}}},
		{name: "LengthMismatch", payload: map[string]any{"used": []int{1}, "total": []int{1, 2}}},
		{name: "Negative", payload: map[string]any{"used": []int{-1}, "total": []int{1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPut, "/api/fleets/bad", tt.payload)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestConsolidateStoredFleetOverCapacity(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPut, "/api/fleets/broken", map[string]any{
		"used":  []int{9, 1},
		"total": []int{5, 5},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected over-capacity fleet to be stored, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/fleets/broken/consolidate", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/fleets/missing/consolidate", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestConsolidateAllFleets(t *testing.T) {
	router, _ := setupTestRouter(t, WithBatchLimit(2))

	fleets := map[string]map[string]any{
		"alpha": {"used": []int{300, 525, 110}, "total": []int{350, 600, 115}},
		"beta":  {"used": []int{5}, "total": []int{5}},
		"gamma": {"used": []int{7, 1}, "total": []int{5, 5}},
	}
	for name, payload := range fleets {
		rec := doJSON(t, router, http.MethodPut, "/api/fleets/"+name, payload)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200 saving %s, got %d", name, rec.Code)
		}
	}

	rec := doJSON(t, router, http.MethodPost, "/api/fleets/consolidate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Fleets []struct {
			Fleet  string           `json:"fleet"`
			Result *consolidateBody `json:"result"`
			Error  *errorBody       `json:"error"`
		} `json:"fleets"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Fleets) != 3 {
		t.Fatalf("expected 3 fleet entries, got %d", len(body.Fleets))
	}

	wantOrder := []string{"alpha", "beta", "gamma"}
	for i, entry := range body.Fleets {
		if entry.Fleet != wantOrder[i] {
			t.Fatalf("expected fleet %s at %d, got %s", wantOrder[i], i, entry.Fleet)
		}
	}

	if r := body.Fleets[0].Result; r == nil || r.MinimumDrives != 2 {
		t.Fatalf("expected alpha to consolidate to 2 drives, got %+v", body.Fleets[0])
	}
	if r := body.Fleets[1].Result; r == nil || r.MinimumDrives != 1 || len(r.Moves) != 0 {
		t.Fatalf("expected beta to stay on 1 drive, got %+v", body.Fleets[1])
	}
	gamma := body.Fleets[2]
	if gamma.Result != nil || gamma.Error == nil {
		t.Fatalf("expected gamma to report an error, got %+v", gamma)
	}
	if len(gamma.Error.Violations) != 1 || gamma.Error.Violations[0].Index != 0 {
		t.Fatalf("expected violation at index 0, got %+v", gamma.Error.Violations)
	}
}

func TestConsolidateRecordsMetrics(t *testing.T) {
	recorder, err := metrics.NewRecorder()
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}
	router, _ := setupTestRouter(t, WithRecorder(recorder))

	doJSON(t, router, http.MethodPost, "/api/consolidate", map[string]any{
		"used":  []int{300, 525, 110},
		"total": []int{350, 600, 115},
	})
	doJSON(t, router, http.MethodPost, "/api/consolidate", map[string]any{
		"used":  []int{1, 2},
		"total": []int{3},
	})

	rec := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	out := rec.Body.String()
	for _, want := range []string{
		`drive_consolidator_runs_total{outcome="success"} 1`,
		`drive_consolidator_runs_total{outcome="length_mismatch"} 1`,
	} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Fatalf("expected metrics output to contain %q", want)
		}
	}
}

func TestCorsPreflight(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/consolidate", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("expected Access-Control-Allow-Origin header to be set")
	}
}

func TestRequestIDPropagation(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "test-request-id")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "test-request-id" {
		t.Fatalf("expected X-Request-ID header to be echoed, got %s", got)
	}
}
