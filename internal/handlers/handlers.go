package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/jwaldner/greeks/engine"
	"github.com/jwaldner/greeks/internal/audit"
	"github.com/jwaldner/greeks/internal/logger"
	"github.com/jwaldner/greeks/internal/metrics"
	"github.com/jwaldner/greeks/internal/models"
	"github.com/jwaldner/greeks/internal/treasury"
	"github.com/jwaldner/greeks/internal/utils"
	"github.com/jwaldner/greeks/pricing"
	"github.com/jwaldner/greeks/volatility"
)

// maxBodyBytes bounds request bodies; a 20000-contract batch fits
const maxBodyBytes = 8 << 20

// GreeksHandler serves pricing, implied volatility, surface and chain
// requests. It owns the server's volatility surface: writes take the lock
// exclusively, queries share it.
type GreeksHandler struct {
	engine   *engine.Engine
	rates    treasury.RateSource
	auditor  audit.Auditor
	metrics  *metrics.Metrics
	validate *validator.Validate
	now      func() time.Time

	mu      sync.RWMutex
	surface *volatility.Surface
}

// NewGreeksHandler creates a handler with an empty surface. m may be nil.
func NewGreeksHandler(eng *engine.Engine, rates treasury.RateSource, auditor audit.Auditor, m *metrics.Metrics) *GreeksHandler {
	if auditor == nil {
		auditor = audit.Discard
	}
	return &GreeksHandler{
		engine:   eng,
		rates:    rates,
		auditor:  auditor,
		metrics:  m,
		validate: validator.New(),
		now:      time.Now,
		surface:  volatility.NewSurface(),
	}
}

// RegisterRoutes mounts the API on r
func (h *GreeksHandler) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/greeks", h.CalculateGreeksHandler).Methods("POST")
	api.HandleFunc("/greeks/batch", h.BatchGreeksHandler).Methods("POST")
	api.HandleFunc("/implied-vol", h.ImpliedVolHandler).Methods("POST")
	api.HandleFunc("/surface", h.GetSurfaceHandler).Methods("GET")
	api.HandleFunc("/surface/slices", h.AddSliceHandler).Methods("POST")
	api.HandleFunc("/surface/fit", h.FitSliceHandler).Methods("POST")
	api.HandleFunc("/surface/vol", h.SurfaceVolHandler).Methods("GET")
	api.HandleFunc("/chain", h.ChainHandler).Methods("POST")
	api.HandleFunc("/audit/archive", h.ArchiveHandler).Methods("POST")
	api.HandleFunc("/health", h.HealthHandler).Methods("GET")
}

// CalculateGreeksHandler prices one option
func (h *GreeksHandler) CalculateGreeksHandler(w http.ResponseWriter, r *http.Request) {
	var req models.GreeksRequest
	if !h.decode(w, r, &req) {
		return
	}

	contract, err := h.toContract(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	priced, err := h.engine.CalculateBlackScholes(r.Context(), []engine.OptionContract{contract})
	if err != nil {
		h.engineError(w, err)
		return
	}

	response := h.toGreeksResponse(req, priced[0])
	h.record("greeks", req.Symbol, response)
	writeJSON(w, http.StatusOK, response)
}

// BatchGreeksHandler prices many options through one engine call
func (h *GreeksHandler) BatchGreeksHandler(w http.ResponseWriter, r *http.Request) {
	var req models.BatchCalculationRequest
	if !h.decode(w, r, &req) {
		return
	}

	start := time.Now()
	contracts := make([]engine.OptionContract, len(req.Calculations))
	for i, calc := range req.Calculations {
		c, err := h.toContract(r.Context(), calc)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("calculation %d: %v", i, err), nil)
			return
		}
		contracts[i] = c
	}

	priced, err := h.engine.CalculateBlackScholes(r.Context(), contracts)
	if err != nil {
		h.engineError(w, err)
		return
	}

	response := models.BatchCalculationResponse{
		Results:           make([]models.GreeksResponse, len(priced)),
		TotalCalculations: len(priced),
		ExecutionMode:     string(h.engine.ModeFor(len(priced))),
	}
	for i, c := range priced {
		response.Results[i] = h.toGreeksResponse(req.Calculations[i], c)
		response.Results[i].Formatted = nil
	}
	response.ProcessedInMs = float64(time.Since(start).Microseconds()) / 1000

	logger.Verbose.Printf("📦 BATCH: %d calculations in %.3fms (%s)",
		response.TotalCalculations, response.ProcessedInMs, response.ExecutionMode)

	h.record("greeks_batch", "", map[string]interface{}{
		"total_calculations": response.TotalCalculations,
		"processed_in_ms":    response.ProcessedInMs,
		"execution_mode":     response.ExecutionMode,
	})
	writeJSON(w, http.StatusOK, response)
}

// ImpliedVolHandler inverts a market price to a volatility
func (h *GreeksHandler) ImpliedVolHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ImpliedVolRequest
	if !h.decode(w, r, &req) {
		return
	}

	optionType, err := pricing.ParseOptionType(req.OptionType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	maturity, err := h.maturity(req.TimeToMaturity, req.Expiration)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	rate := h.riskFreeRate(r.Context(), req.RiskFreeRate)

	p := pricing.NewParams(req.Spot, req.Strike, maturity, 0, rate, req.DividendYield)
	iv, err := pricing.ImpliedVolatility(req.MarketPrice, p, optionType)
	if err != nil {
		logger.Debug.Printf("🔍 IV %s %s K=%.2f price=%.4f: %v", req.Symbol, optionType, req.Strike, req.MarketPrice, err)
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil)
		return
	}

	p.Volatility = iv
	response := models.ImpliedVolResponse{
		Symbol:            req.Symbol,
		OptionType:        optionType.String(),
		MarketPrice:       req.MarketPrice,
		ImpliedVolatility: iv,
		TimeToMaturity:    maturity,
		RiskFreeRate:      rate,
		Vega:              models.Float(pricing.CalculateGreeks(p, optionType).Vega),
	}
	h.record("implied_vol", req.Symbol, response)
	writeJSON(w, http.StatusOK, response)
}

// AddSliceHandler adds or replaces one maturity slice
func (h *GreeksHandler) AddSliceHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SurfaceSliceRequest
	if !h.decode(w, r, &req) {
		return
	}

	var params volatility.SVIParams
	switch {
	case req.Params != nil:
		params = *req.Params
	case req.JW != nil:
		params = req.JW.ToSVI()
	}

	if !params.IsArbitrageFree() {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("slice %s violates no-arbitrage constraints", params), nil)
		return
	}

	response := h.addSlice(req.Maturity, params)
	h.record("surface_slice", "", response)
	writeJSON(w, http.StatusOK, response)
}

// FitSliceHandler calibrates a slice to quotes and adds it to the surface
func (h *GreeksHandler) FitSliceHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SurfaceFitRequest
	if !h.decode(w, r, &req) {
		return
	}

	fit, err := volatility.FitSVI(req.Quotes, req.Maturity)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, volatility.ErrTooFewQuotes) || errors.Is(err, volatility.ErrInvalidQuote) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error(), nil)
		return
	}

	logger.Info.Printf("🎯 FIT: T=%.4f %s rmse=%.2e (%d evals)", req.Maturity, fit.Params, fit.RMSE, fit.Evals)

	response := models.SurfaceFitResponse{
		SurfaceSliceResponse: h.addSlice(req.Maturity, fit.Params),
		RMSE:                 fit.RMSE,
		Evals:                fit.Evals,
	}
	h.record("surface_fit", "", response)
	writeJSON(w, http.StatusOK, response)
}

func (h *GreeksHandler) addSlice(maturity float64, params volatility.SVIParams) models.SurfaceSliceResponse {
	h.mu.Lock()
	h.surface.AddSlice(maturity, params)
	n := h.surface.NumSlices()
	surfaceOK := h.surface.IsArbitrageFree()
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SetSurfaceSlices(n)
	}
	if !surfaceOK {
		logger.Warn.Printf("⚠️ SURFACE: calendar arbitrage after adding T=%.4f", maturity)
	}

	return models.SurfaceSliceResponse{
		Maturity:             maturity,
		Params:               params,
		NumSlices:            n,
		SliceArbitrageFree:   params.IsArbitrageFree(),
		ButterflyOK:          params.CheckButterflyArbitrage(0),
		SurfaceArbitrageFree: surfaceOK,
	}
}

// GetSurfaceHandler lists the slices in maturity order
func (h *GreeksHandler) GetSurfaceHandler(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	response := models.SurfaceResponse{
		Slices:        h.surface.Slices(),
		NumSlices:     h.surface.NumSlices(),
		ArbitrageFree: h.surface.IsArbitrageFree(),
	}
	h.mu.RUnlock()

	if response.Slices == nil {
		response.Slices = []volatility.MaturitySlice{}
	}
	writeJSON(w, http.StatusOK, response)
}

// SurfaceVolHandler answers ?strike=&spot=&maturity= from the surface
func (h *GreeksHandler) SurfaceVolHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var values [3]float64
	for i, name := range []string{"strike", "spot", "maturity"} {
		v, err := strconv.ParseFloat(q.Get(name), 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("query parameter %q must be a number", name), []string{name})
			return
		}
		values[i] = v
	}
	strike, spot, maturity := values[0], values[1], values[2]

	vol, ok := h.ImpliedVolatility(strike, spot, maturity)
	if h.metrics != nil {
		h.metrics.ObserveSurfaceQuery(ok)
	}
	if !ok {
		writeError(w, http.StatusNotFound, "volatility surface is empty", nil)
		return
	}

	writeJSON(w, http.StatusOK, models.SurfaceVolResponse{
		Strike:            strike,
		Spot:              spot,
		Maturity:          maturity,
		ImpliedVolatility: models.Float(vol),
	})
}

// ImpliedVolatility queries the surface under the read lock
func (h *GreeksHandler) ImpliedVolatility(strike, spot, maturity float64) (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.surface.ImpliedVolatility(strike, spot, maturity)
}

// snapshot copies the surface under the read lock so a chain is priced off
// one consistent set of slices.
func (h *GreeksHandler) snapshot() *volatility.Surface {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.surface.Clone()
}

// ChainHandler prices a put and a call per strike off the surface
func (h *GreeksHandler) ChainHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ChainRequest
	if !h.decode(w, r, &req) {
		return
	}

	maturity, err := h.maturity(req.Maturity, req.Expiration)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	rate := h.riskFreeRate(r.Context(), req.RiskFreeRate)

	analysis, err := h.engine.AnalyzeChain(r.Context(), h.snapshot(), engine.ChainRequest{
		Symbol:        req.Symbol,
		Expiration:    req.Expiration,
		Spot:          req.Spot,
		Maturity:      maturity,
		Strikes:       req.Strikes,
		RiskFreeRate:  rate,
		DividendYield: req.DividendYield,
	})
	if err != nil {
		if errors.Is(err, engine.ErrNoVolatility) {
			writeError(w, http.StatusNotFound, err.Error(), nil)
			return
		}
		h.engineError(w, err)
		return
	}

	response := models.ChainResponse{
		Symbol:        analysis.Symbol,
		Expiration:    analysis.Expiration,
		Spot:          analysis.StockPrice,
		Maturity:      analysis.Maturity,
		RiskFreeRate:  rate,
		ExecutionMode: string(analysis.ExecutionMode),
		Puts:          toContractResults(analysis.Puts),
		Calls:         toContractResults(analysis.Calls),
		ProcessedInMs: analysis.Timings.TotalMs,
	}
	if s := analysis.VolatilitySkew; s != nil {
		response.Skew = &models.SkewResult{
			Put25DIV:   models.Float(s.Put25DIV),
			Call25DIV:  models.Float(s.Call25DIV),
			Skew:       models.Float(s.Skew),
			PutStrike:  s.PutStrike,
			CallStrike: s.CallStrike,
		}
	}

	h.record("chain", req.Symbol, response)
	writeJSON(w, http.StatusOK, response)
}

// ArchiveHandler rotates the audit journal
func (h *GreeksHandler) ArchiveHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.auditor.Archive(); err != nil {
		logger.Error.Printf("❌ AUDIT: archive failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

// HealthHandler reports engine and surface state
func (h *GreeksHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	slices := h.surface.NumSlices()
	h.mu.RUnlock()

	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:        "ok",
		ExecutionMode: string(h.engine.ExecutionMode()),
		Workers:       h.engine.Workers(),
		SurfaceSlices: slices,
		RiskFreeRate:  h.rates.RiskFreeRate(r.Context()),
		Timestamp:     h.now().UTC().Format(time.RFC3339),
	})
}

// decode reads and validates a JSON body, writing a 400 on failure
func (h *GreeksHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error(), nil)
		return false
	}

	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fmt.Sprintf("%s:%s", fe.Namespace(), fe.Tag())
			}
			writeError(w, http.StatusBadRequest, "validation failed", fields)
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return false
	}
	return true
}

func (h *GreeksHandler) maturity(timeToMaturity float64, expiration string) (float64, error) {
	if expiration == "" {
		return timeToMaturity, nil
	}
	return utils.TimeToExpiration(expiration, h.now())
}

func (h *GreeksHandler) riskFreeRate(ctx context.Context, override *float64) float64 {
	if override != nil {
		return *override
	}
	return h.rates.RiskFreeRate(ctx)
}

func (h *GreeksHandler) toContract(ctx context.Context, req models.GreeksRequest) (engine.OptionContract, error) {
	optionType, err := pricing.ParseOptionType(req.OptionType)
	if err != nil {
		return engine.OptionContract{}, err
	}
	maturity, err := h.maturity(req.TimeToMaturity, req.Expiration)
	if err != nil {
		return engine.OptionContract{}, err
	}

	typeByte := byte('C')
	if optionType == pricing.Put {
		typeByte = 'P'
	}
	return engine.OptionContract{
		Symbol:           req.Symbol,
		StrikePrice:      req.Strike,
		UnderlyingPrice:  req.Spot,
		TimeToExpiration: maturity,
		RiskFreeRate:     h.riskFreeRate(ctx, req.RiskFreeRate),
		DividendYield:    req.DividendYield,
		Volatility:       *req.Volatility,
		OptionType:       typeByte,
	}, nil
}

func (h *GreeksHandler) toGreeksResponse(req models.GreeksRequest, c engine.OptionContract) models.GreeksResponse {
	optionType, _ := c.Type()
	return models.GreeksResponse{
		Symbol:         req.Symbol,
		OptionType:     optionType.String(),
		Spot:           c.UnderlyingPrice,
		Strike:         c.StrikePrice,
		TimeToMaturity: models.Float(c.TimeToExpiration),
		Volatility:     c.Volatility,
		RiskFreeRate:   c.RiskFreeRate,
		DividendYield:  c.DividendYield,
		Price:          models.Float(c.TheoreticalPrice),
		Delta:          models.Float(c.Delta),
		Gamma:          models.Float(c.Gamma),
		Vega:           models.Float(c.Vega),
		Theta:          models.Float(c.Theta),
		Rho:            models.Float(c.Rho),
		Formatted: map[string]models.FieldValue{
			"price":          formatCurrency(c.TheoreticalPrice),
			"strike":         formatCurrency(c.StrikePrice),
			"spot":           formatCurrency(c.UnderlyingPrice),
			"volatility":     formatPercentage(c.Volatility),
			"risk_free":      formatPercentage(c.RiskFreeRate),
			"delta":          formatGreek(c.Delta, 4),
			"gamma":          formatGreek(c.Gamma, 6),
			"vega":           formatGreek(c.Vega, 4),
			"theta":          formatGreek(c.Theta, 4),
			"rho":            formatGreek(c.Rho, 4),
			"days_to_expiry": formatDays(c.TimeToExpiration),
		},
	}
}

func toContractResults(contracts []engine.OptionContract) []models.ContractResult {
	out := make([]models.ContractResult, len(contracts))
	for i, c := range contracts {
		optionType, _ := c.Type()
		out[i] = models.ContractResult{
			Strike:     c.StrikePrice,
			OptionType: optionType.String(),
			Volatility: c.Volatility,
			Price:      models.Float(c.TheoreticalPrice),
			Delta:      models.Float(c.Delta),
			Gamma:      models.Float(c.Gamma),
			Vega:       models.Float(c.Vega),
			Theta:      models.Float(c.Theta),
			Rho:        models.Float(c.Rho),
		}
	}
	return out
}

func (h *GreeksHandler) engineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Warn.Printf("⚠️ request abandoned: %v", err)
		writeError(w, http.StatusServiceUnavailable, err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidOptionType):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		logger.Error.Printf("❌ engine: %v", err)
		writeError(w, http.StatusInternalServerError, "calculation failed", nil)
	}
}

// record audits a response; a dropped entry never fails the request
func (h *GreeksHandler) record(operation, symbol string, data interface{}) {
	if err := h.auditor.Record(operation, symbol, data); err != nil {
		logger.Debug.Printf("📝 AUDIT: %s not recorded: %v", operation, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error.Printf("❌ failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, fields []string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg, Fields: fields})
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
