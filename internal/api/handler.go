package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eugenenazirov/drive-consolidator/internal/consolidator"
	"github.com/eugenenazirov/drive-consolidator/internal/metrics"
	"github.com/eugenenazirov/drive-consolidator/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const defaultBatchLimit = 4

// Handler wires consolidator and storage dependencies into HTTP handlers.
type Handler struct {
	consolidator consolidator.Consolidator
	storage      storage.Storage
	recorder     *metrics.Recorder
	logger       *zap.Logger

	clock       func() time.Time
	maxDrives   int
	maxCapacity int
	batchLimit  int

	mu              sync.RWMutex
	fleetsUpdatedAt time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithRecorder records every consolidation run in Prometheus metrics.
func WithRecorder(recorder *metrics.Recorder) HandlerOption {
	return func(h *Handler) {
		h.recorder = recorder
	}
}

// WithLogger sets the logger used for per-run diagnostics.
func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithBounds sets the advisory limits reported as warnings. Zero disables a limit.
func WithBounds(maxDrives, maxCapacity int) HandlerOption {
	return func(h *Handler) {
		h.maxDrives = maxDrives
		h.maxCapacity = maxCapacity
	}
}

// WithBatchLimit caps how many fleets are consolidated at once.
func WithBatchLimit(limit int) HandlerOption {
	return func(h *Handler) {
		if limit > 0 {
			h.batchLimit = limit
		}
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(calc consolidator.Consolidator, store storage.Storage, opts ...HandlerOption) *Handler {
	h := &Handler{
		consolidator: calc,
		storage:      store,
		logger:       zap.NewNop(),
		clock: func() time.Time {
			return time.Now().UTC()
		},
		maxDrives:   storage.DefaultMaxDrives,
		maxCapacity: consolidator.DefaultMaxCapacity,
		batchLimit:  defaultBatchLimit,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.fleetsUpdatedAt = h.clock()
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	var req consolidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	resp, err := h.consolidate(r.Context(), "", req.Used, req.Total)
	if err != nil {
		writeConsolidationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListFleets(w http.ResponseWriter, r *http.Request) {
	_ = r
	names, err := h.storage.ListFleets()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fleetListResponse{
		Fleets:    names,
		UpdatedAt: h.currentFleetsUpdatedAt(),
	})
}

func (h *Handler) handleGetFleet(w http.ResponseWriter, r *http.Request) {
	fleet, err := h.storage.GetFleet(r.PathValue("name"))
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fleetResponse{Fleet: fleet})
}

func (h *Handler) handlePutFleet(w http.ResponseWriter, r *http.Request) {
	var req fleetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	name := r.PathValue("name")
	if err := h.storage.SaveFleet(storage.Fleet{Name: name, Used: req.Used, Total: req.Total}); err != nil {
		writeStorageError(w, err)
		return
	}

	h.markFleetsUpdated()

	fleet, err := h.storage.GetFleet(name)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fleetResponse{
		Fleet:   fleet,
		Message: "Fleet saved successfully",
	})
}

func (h *Handler) handleDeleteFleet(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.DeleteFleet(r.PathValue("name")); err != nil {
		writeStorageError(w, err)
		return
	}
	h.markFleetsUpdated()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleConsolidateFleet(w http.ResponseWriter, r *http.Request) {
	fleet, err := h.storage.GetFleet(r.PathValue("name"))
	if err != nil {
		writeStorageError(w, err)
		return
	}

	resp, err := h.consolidate(r.Context(), fleet.Name, fleet.Used, fleet.Total)
	if err != nil {
		writeConsolidationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleConsolidateAll runs every stored fleet. Each run owns its own state,
// so fleets are consolidated concurrently up to the batch limit.
func (h *Handler) handleConsolidateAll(w http.ResponseWriter, r *http.Request) {
	names, err := h.storage.ListFleets()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	entries := make([]batchEntry, len(names))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(h.batchLimit)

	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			entries[i].Fleet = name
			fleet, err := h.storage.GetFleet(name)
			if err != nil {
				if storage.IsNotFound(err) {
					entries[i].Error = &errorResponse{Error: "Fleet not found", Details: err.Error()}
					return nil
				}
				return err
			}

			resp, err := h.consolidate(ctx, name, fleet.Used, fleet.Total)
			if err != nil {
				entries[i].Error = consolidationErrorBody(err)
				return nil
			}
			entries[i].Result = &resp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, batchResponse{Fleets: entries})
}

func (h *Handler) consolidate(ctx context.Context, fleet string, used, total []int) (consolidateResponse, error) {
	start := time.Now()
	result, err := h.consolidator.Consolidate(used, total)
	elapsed := time.Since(start)

	logger := h.logger.With(zap.String("request_id", requestIDFromContext(ctx)))
	if fleet != "" {
		logger = logger.With(zap.String("fleet", fleet))
	}

	if err != nil {
		h.recorder.ObserveFailure(err)
		logger.Debug("consolidation rejected", zap.Error(err))
		return consolidateResponse{}, err
	}
	h.recorder.ObserveRun(used, result, elapsed)

	warnings := consolidator.CheckBounds(used, total, h.maxDrives, h.maxCapacity)
	for _, warning := range warnings {
		logger.Warn("input outside advised limits", zap.String("warning", warning))
	}

	initial, _ := consolidator.CountNonEmpty(used)
	logger.Info("consolidation completed",
		zap.Int("drives", len(used)),
		zap.Int("initial_drives", initial),
		zap.Int("minimum_drives", result.MinimumDrives),
		zap.Int("moves", result.Moves.Size()),
		zap.Duration("duration", elapsed),
	)

	return consolidateResponse{
		Fleet:             fleet,
		MinimumDrives:     result.MinimumDrives,
		InitialDrives:     initial,
		FinalUsed:         result.FinalUsed,
		FinalTotal:        result.FinalTotal,
		Moves:             result.Moves,
		Warnings:          warnings,
		CalculationTimeMs: elapsed.Milliseconds(),
	}, nil
}

func (h *Handler) currentFleetsUpdatedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.fleetsUpdatedAt
}

func (h *Handler) markFleetsUpdated() {
	h.mu.Lock()
	h.fleetsUpdatedAt = h.clock()
	h.mu.Unlock()
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type consolidateRequest struct {
	Used  []int `json:"used"`
	Total []int `json:"total"`
}

type fleetRequest struct {
	Used  []int `json:"used"`
	Total []int `json:"total"`
}

type consolidateResponse struct {
	Fleet             string                `json:"fleet,omitempty"`
	MinimumDrives     int                   `json:"minimumDrives"`
	InitialDrives     int                   `json:"initialDrives"`
	FinalUsed         []int                 `json:"finalUsed"`
	FinalTotal        []int                 `json:"finalTotal"`
	Moves             *consolidator.MoveLog `json:"moves"`
	Warnings          []string              `json:"warnings,omitempty"`
	CalculationTimeMs int64                 `json:"calculationTimeMs"`
}

type fleetListResponse struct {
	Fleets    []string  `json:"fleets"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type fleetResponse struct {
	storage.Fleet
	Message string `json:"message,omitempty"`
}

type batchEntry struct {
	Fleet  string               `json:"fleet"`
	Result *consolidateResponse `json:"result,omitempty"`
	Error  *errorResponse       `json:"error,omitempty"`
}

type batchResponse struct {
	Fleets []batchEntry `json:"fleets"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string                           `json:"error"`
	Details    string                           `json:"details,omitempty"`
	Suggestion string                           `json:"suggestion,omitempty"`
	Violations []consolidator.CapacityViolation `json:"violations,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}

func writeStorageError(w http.ResponseWriter, err error) {
	switch {
	case storage.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Fleet not found", err.Error())
	case errors.Is(err, storage.ErrInvalidFleet):
		writeError(w, http.StatusBadRequest, "Invalid fleet", err.Error())
	default:
		writeInternalError(w, err)
	}
}

func writeConsolidationError(w http.ResponseWriter, err error) {
	body := consolidationErrorBody(err)
	status := http.StatusInternalServerError
	var verr *consolidator.ValidationError
	if errors.As(err, &verr) {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, body)
}

func consolidationErrorBody(err error) *errorResponse {
	var verr *consolidator.ValidationError
	if !errors.As(err, &verr) {
		return &errorResponse{Error: "Internal error", Details: err.Error()}
	}

	body := &errorResponse{Error: "Invalid drives", Details: err.Error()}
	switch {
	case errors.Is(err, consolidator.ErrMissingInput):
		body.Suggestion = "provide both used and total arrays"
	case errors.Is(err, consolidator.ErrLengthMismatch):
		body.Suggestion = "used and total must describe the same drives"
	case errors.Is(err, consolidator.ErrCapacityExceeded):
		body.Suggestion = "every used size must be less than or equal to its total size"
		body.Violations = verr.Violations
	}
	return body
}
