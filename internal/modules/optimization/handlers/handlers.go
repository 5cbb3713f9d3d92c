// Package handlers provides HTTP handlers for portfolio optimization.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Optimizer runs one optimization.
type Optimizer interface {
	Optimize(ctx context.Context, req domain.OptimizationRequest) (*domain.OptimizationResult, error)
}

// ResultStore reads saved optimization results.
type ResultStore interface {
	Get(ctx context.Context, id string) (*domain.OptimizationResult, error)
	Recent(ctx context.Context, limit int, withBacktests bool) ([]domain.OptimizationResult, error)
}

// Handler handles optimizer HTTP requests
type Handler struct {
	optimizer Optimizer
	results   ResultStore
	log       zerolog.Logger
}

// NewHandler creates a new optimizer handler. results may be nil, in which case the
// result listing routes answer 503.
func NewHandler(optimizer Optimizer, results ResultStore, log zerolog.Logger) *Handler {
	return &Handler{
		optimizer: optimizer,
		results:   results,
		log:       log.With().Str("handler", "optimizer").Logger(),
	}
}

// RegisterRoutes registers the optimizer routes under /optimizer
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/optimizer", func(r chi.Router) {
		r.Post("/run", h.HandleRun)
		r.Get("/results", h.HandleListResults)
		r.Get("/results/{id}", h.HandleGetResult)
	})
}

// RunRequest is the body of POST /api/optimizer/run.
type RunRequest struct {
	RiskProfile            string          `json:"riskProfile"`
	InvestmentHorizonYears float64         `json:"investmentHorizonYears"`
	Capital                decimal.Decimal `json:"capital"`
	ExcludedAssetIDs       []int64         `json:"excludedAssetIds"`
	ReferenceDate          string          `json:"referenceDate,omitempty"` // YYYY-MM-DD
	LookbackMonths         int             `json:"lookbackMonths,omitempty"`
	Seed                   *uint64         `json:"seed,omitempty"`
	PopulationSize         int             `json:"populationSize,omitempty"`
	Generations            int             `json:"generations,omitempty"`
}

// ToDomain converts the body to a domain request.
func (b RunRequest) ToDomain() (domain.OptimizationRequest, error) {
	profile, err := domain.ParseRiskProfile(b.RiskProfile)
	if err != nil {
		return domain.OptimizationRequest{}, err
	}
	req := domain.OptimizationRequest{
		RiskProfile:            profile,
		InvestmentHorizonYears: b.InvestmentHorizonYears,
		Capital:                b.Capital,
		ExcludedAssets:         b.ExcludedAssetIDs,
		LookbackMonths:         b.LookbackMonths,
		Seed:                   b.Seed,
		PopulationSize:         b.PopulationSize,
		Generations:            b.Generations,
	}
	if b.ReferenceDate != "" {
		date, err := time.Parse("2006-01-02", b.ReferenceDate)
		if err != nil {
			return domain.OptimizationRequest{}, &domain.ValidationError{Field: "referenceDate", Reason: "expected YYYY-MM-DD"}
		}
		req.ReferenceDate = &date
	}
	return req, nil
}

// HandleRun handles POST /api/optimizer/run
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var body RunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, &domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	req, err := body.ToDomain()
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.optimizer.Optimize(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, result)
}

// HandleListResults handles GET /api/optimizer/results?limit=&backtests=
func (h *Handler) HandleListResults(w http.ResponseWriter, r *http.Request) {
	if h.results == nil {
		http.Error(w, "Result storage not configured", http.StatusServiceUnavailable)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, &domain.ValidationError{Field: "limit", Reason: "must be a positive integer"})
			return
		}
		limit = n
	}
	withBacktests := r.URL.Query().Get("backtests") == "true"

	results, err := h.results.Recent(r.Context(), limit, withBacktests)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if results == nil {
		results = []domain.OptimizationResult{}
	}
	h.writeData(w, http.StatusOK, results)
}

// HandleGetResult handles GET /api/optimizer/results/{id}
func (h *Handler) HandleGetResult(w http.ResponseWriter, r *http.Request) {
	if h.results == nil {
		http.Error(w, "Result storage not configured", http.StatusServiceUnavailable)
		return
	}

	result, err := h.results.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if result == nil {
		http.Error(w, "Result not found", http.StatusNotFound)
		return
	}
	h.writeData(w, http.StatusOK, result)
}

// StatusFor maps an error to its HTTP status: bad input and insufficient data are
// 422, cancellation is 503, everything else 500.
func StatusFor(err error) int {
	var derr *domain.DataInsufficientError
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &derr), errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrCancelled), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Optimizer request failed")
	} else {
		h.log.Debug().Err(err).Int("status", status).Msg("Optimizer request rejected")
	}
	h.writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}) {
	h.writeJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
