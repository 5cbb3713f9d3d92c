// Package handlers provides the HTTP handler for rolling backtests.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/backtest"
	optimizationhandlers "github.com/aristath/frontier/internal/modules/optimization/handlers"
	"github.com/aristath/frontier/internal/work"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Handler runs backtests. Each request gets its own runner so progress reporting
// stays per request.
type Handler struct {
	data      domain.DataProvider
	optimizer backtest.Optimizer
	emitter   work.EventEmitter // Optional
	log       zerolog.Logger
}

// NewHandler creates a backtest handler
func NewHandler(data domain.DataProvider, optimizer backtest.Optimizer, log zerolog.Logger) *Handler {
	return &Handler{
		data:      data,
		optimizer: optimizer,
		log:       log.With().Str("handler", "backtest").Logger(),
	}
}

// SetEventEmitter sets where progress events go
func (h *Handler) SetEventEmitter(e work.EventEmitter) {
	h.emitter = e
}

// RegisterRoutes registers the backtest routes under /backtest
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/backtest", func(r chi.Router) {
		r.Post("/run", h.HandleRun)
	})
}

// RunBody is the body of POST /api/backtest/run.
type RunBody struct {
	Start            string          `json:"start"` // YYYY-MM-DD
	End              string          `json:"end"`   // YYYY-MM-DD
	RiskProfile      string          `json:"riskProfile"`
	ExcludedAssetIDs []int64         `json:"excludedAssetIds"`
	RebalanceMonths  int             `json:"rebalanceMonths"`
	WindowMonths     int             `json:"windowMonths"`
	Capital          decimal.Decimal `json:"capital"`
	Seed             *uint64         `json:"seed"`
}

// ToOptions converts the body to runner options.
func (b RunBody) ToOptions() (backtest.Options, error) {
	profile, err := domain.ParseRiskProfile(b.RiskProfile)
	if err != nil {
		return backtest.Options{}, err
	}
	start, err := time.Parse("2006-01-02", b.Start)
	if err != nil {
		return backtest.Options{}, &domain.ValidationError{Field: "start", Reason: "expected YYYY-MM-DD"}
	}
	end, err := time.Parse("2006-01-02", b.End)
	if err != nil {
		return backtest.Options{}, &domain.ValidationError{Field: "end", Reason: "expected YYYY-MM-DD"}
	}
	return backtest.Options{
		Start:           start,
		End:             end,
		Excluded:        b.ExcludedAssetIDs,
		RiskProfile:     profile,
		RebalanceMonths: b.RebalanceMonths,
		WindowMonths:    b.WindowMonths,
		Capital:         b.Capital,
		Seed:            b.Seed,
	}, nil
}

// HandleRun handles POST /api/backtest/run
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var body RunBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, &domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	opts, err := body.ToOptions()
	if err != nil {
		h.writeError(w, err)
		return
	}

	runner := backtest.NewRunner(h.data, h.optimizer, h.log)
	runner.SetProgressReporter(work.NewProgressReporter(h.emitter, uuid.NewString(), work.JobBacktest, opts.RiskProfile.String()))

	report, err := runner.Run(r.Context(), opts)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": report,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := optimizationhandlers.StatusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Backtest failed")
	}
	h.writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
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
