// Package handlers provides HTTP handlers for hyperparameter tuning.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/frontier/internal/domain"
	optimizationhandlers "github.com/aristath/frontier/internal/modules/optimization/handlers"
	"github.com/aristath/frontier/internal/modules/tuning"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// TuningService is the subset of tuning.Service the handlers use.
type TuningService interface {
	Converge(ctx context.Context, req tuning.ConvergenceRequest) (*tuning.ConvergenceReport, error)
	Grid(ctx context.Context, req tuning.GridRequest) (*tuning.GridReport, error)
	Best(ctx context.Context, assetCount int, profile domain.RiskProfile) (*domain.HyperparameterConfig, error)
}

// Handler handles tuning HTTP requests
type Handler struct {
	service TuningService
	log     zerolog.Logger
}

// NewHandler creates a new tuning handler
func NewHandler(service TuningService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "tuning").Logger(),
	}
}

// RegisterRoutes registers the tuning routes under /tuning
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/tuning", func(r chi.Router) {
		r.Post("/convergence", h.HandleConvergence)
		r.Post("/grid", h.HandleGrid)
		r.Get("/best", h.HandleBest)
	})
}

// problemBody is shared by the tuning request bodies.
type problemBody struct {
	RiskProfile      string  `json:"riskProfile"` // empty means neutral
	ExcludedAssetIDs []int64 `json:"excludedAssetIds"`
	ReferenceDate    string  `json:"referenceDate"` // YYYY-MM-DD
	LookbackMonths   int     `json:"lookbackMonths"`
}

func (b problemBody) toRequest() (tuning.ProblemRequest, error) {
	req := tuning.ProblemRequest{
		ExcludedAssets: b.ExcludedAssetIDs,
		LookbackMonths: b.LookbackMonths,
	}
	if b.RiskProfile != "" {
		profile, err := domain.ParseRiskProfile(b.RiskProfile)
		if err != nil {
			return req, err
		}
		req.RiskProfile = profile
	}
	if b.ReferenceDate != "" {
		date, err := time.Parse("2006-01-02", b.ReferenceDate)
		if err != nil {
			return req, &domain.ValidationError{Field: "referenceDate", Reason: "expected YYYY-MM-DD"}
		}
		req.ReferenceDate = &date
	}
	return req, nil
}

// ConvergenceBody is the body of POST /api/tuning/convergence.
type ConvergenceBody struct {
	problemBody
	MaxGenerations int     `json:"maxGenerations"`
	PopulationSize int     `json:"populationSize"`
	Runs           int     `json:"runs"`
	Metric         string  `json:"metric"`
	Seed           *uint64 `json:"seed"`
}

// GridBody is the body of POST /api/tuning/grid.
type GridBody struct {
	problemBody
	PopulationSizes      []int   `json:"populationSizes"`
	GenerationCounts     []int   `json:"generationCounts"`
	Runs                 int     `json:"runs"`
	CellTimeLimitSeconds float64 `json:"cellTimeLimitSeconds"`
	Metric               string  `json:"metric"`
	Seed                 *uint64 `json:"seed"`
	Save                 bool    `json:"save"`
}

// HandleConvergence handles POST /api/tuning/convergence
func (h *Handler) HandleConvergence(w http.ResponseWriter, r *http.Request) {
	var body ConvergenceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, &domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	problemReq, err := body.toRequest()
	if err != nil {
		h.writeError(w, err)
		return
	}
	metric, err := tuning.ParseMetric(body.Metric)
	if err != nil {
		h.writeError(w, err)
		return
	}

	report, err := h.service.Converge(r.Context(), tuning.ConvergenceRequest{
		ProblemRequest: problemReq,
		MaxGenerations: body.MaxGenerations,
		PopulationSize: body.PopulationSize,
		Runs:           body.Runs,
		Metric:         metric,
		Seed:           body.Seed,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, report)
}

// HandleGrid handles POST /api/tuning/grid
func (h *Handler) HandleGrid(w http.ResponseWriter, r *http.Request) {
	var body GridBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, &domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	problemReq, err := body.toRequest()
	if err != nil {
		h.writeError(w, err)
		return
	}
	metric, err := tuning.ParseMetric(body.Metric)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if body.CellTimeLimitSeconds < 0 {
		h.writeError(w, &domain.ValidationError{Field: "cellTimeLimitSeconds", Reason: "must not be negative"})
		return
	}

	report, err := h.service.Grid(r.Context(), tuning.GridRequest{
		ProblemRequest:   problemReq,
		PopulationSizes:  body.PopulationSizes,
		GenerationCounts: body.GenerationCounts,
		Runs:             body.Runs,
		CellTimeLimit:    time.Duration(body.CellTimeLimitSeconds * float64(time.Second)),
		Metric:           metric,
		Seed:             body.Seed,
		Save:             body.Save,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, report)
}

// HandleBest handles GET /api/tuning/best?assets=&profile=
func (h *Handler) HandleBest(w http.ResponseWriter, r *http.Request) {
	assets, err := strconv.Atoi(r.URL.Query().Get("assets"))
	if err != nil || assets < 1 {
		h.writeError(w, &domain.ValidationError{Field: "assets", Reason: "must be a positive integer"})
		return
	}
	profile := domain.RiskProfileNeutral
	if v := r.URL.Query().Get("profile"); v != "" {
		if profile, err = domain.ParseRiskProfile(v); err != nil {
			h.writeError(w, err)
			return
		}
	}

	cfg, err := h.service.Best(r.Context(), assets, profile)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if cfg == nil {
		http.Error(w, "No tuned configuration", http.StatusNotFound)
		return
	}
	h.writeData(w, cfg)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := optimizationhandlers.StatusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Tuning request failed")
	}
	h.writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeData(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
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
