package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/quantlens/quantlens/internal/modules/portfolio"
)

// Handler handles analytics HTTP requests.
type Handler struct {
	service *Service
	log     zerolog.Logger
}

// NewHandler creates a new metrics handler.
func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "metrics").Logger(),
	}
}

// Routes mounts the analytics endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/portfolios/{id}/metrics", h.HandlePortfolioMetrics)
	r.Get("/api/securities/{symbol}/quote", h.HandleQuote)
	r.Get("/api/securities/{symbol}/indicators", h.HandleIndicators)
	r.Get("/api/correlation", h.HandleCorrelation)
	r.Post("/api/cache/invalidate", h.HandleInvalidate)
}

// HandlePortfolioMetrics returns the analytics bundle for a portfolio.
// Query: start, end (YYYY-MM-DD, optional, open when empty).
func (h *Handler) HandlePortfolioMetrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")

	if err := validateDateParam(start); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid start date: "+err.Error())
		return
	}
	if err := validateDateParam(end); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid end date: "+err.Error())
		return
	}
	if start != "" && end != "" && start > end {
		h.writeError(w, http.StatusBadRequest, "start date is after end date")
		return
	}

	bundle, err := h.service.PortfolioMetrics(r.Context(), id, start, end)
	if err != nil {
		if errors.Is(err, portfolio.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "portfolio not found")
			return
		}
		h.log.Error().Err(err).Str("portfolio", id).Msg("Failed to compute portfolio metrics")
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, bundle)
}

// HandleQuote returns the current quote for a symbol.
func (h *Handler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	quote, err := h.service.Quote(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, ErrNoProvider) {
			h.writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Quote fetch failed")
		h.writeError(w, http.StatusBadGateway, "quote fetch failed")
		return
	}

	h.writeJSON(w, http.StatusOK, quote)
}

// HandleIndicators returns technical indicator series for a symbol.
// Query: indicators (comma-separated, default all), window, period.
func (h *Handler) HandleIndicators(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	var indicators []string
	if raw := r.URL.Query().Get("indicators"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(strings.ToLower(name))
			if name != "" {
				indicators = append(indicators, name)
			}
		}
	}

	window, err := intParam(r, "window", 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid window: "+err.Error())
		return
	}
	period, err := intParam(r, "period", 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid period: "+err.Error())
		return
	}

	bundle, err := h.service.TechnicalIndicators(r.Context(), symbol, indicators, window, period)
	if err != nil {
		if strings.Contains(err.Error(), "unknown indicator") {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to compute indicators")
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, bundle)
}

// HandleCorrelation returns the correlation matrix for a symbol set.
// Query: symbols (comma-separated, required), days (default 90).
func (h *Handler) HandleCorrelation(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("symbols")
	var symbols []string
	for _, sym := range strings.Split(raw, ",") {
		sym = strings.TrimSpace(sym)
		if sym != "" {
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) < 2 {
		h.writeError(w, http.StatusBadRequest, "at least 2 symbols are required")
		return
	}

	days, err := intParam(r, "days", 90)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid days: "+err.Error())
		return
	}

	matrix, err := h.service.CorrelationMatrix(r.Context(), symbols, days)
	if err != nil {
		h.log.Error().Err(err).Strs("symbols", symbols).Msg("Failed to compute correlation")
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, matrix)
}

// HandleInvalidate removes cached results under a key prefix.
// Query: prefix (required).
func (h *Handler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		h.writeError(w, http.StatusBadRequest, "prefix is required")
		return
	}

	removed, err := h.service.Invalidate(r.Context(), prefix)
	if err != nil {
		h.log.Error().Err(err).Str("prefix", prefix).Msg("Cache invalidation failed")
		h.writeError(w, http.StatusInternalServerError, "invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"prefix":  prefix,
		"removed": removed,
	})
}

func validateDateParam(date string) error {
	if date == "" {
		return nil
	}
	if len(date) != 10 || date[4] != '-' || date[7] != '-' {
		return errors.New("expected YYYY-MM-DD")
	}
	return nil
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("expected an integer")
	}
	return v, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
